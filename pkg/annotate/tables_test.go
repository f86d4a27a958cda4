package annotate

import (
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proteinshake/internal/pdbtest"
	lio "proteinshake/pkg/loader/io"
	"proteinshake/pkg/protein"
)

const scopFile = `# SCOP release 2022-06-29
# FA-DOMID FA-PDBID FA-PDBREG FA-UNIID FA-UNIREG SF-DOMID SF-PDBID SF-PDBREG SF-UNIID SF-UNIREG SCOPCLA
8001896 1ux8 A:1-118 P9WKA7 1-118 8001896 1ux8 A:1-118 P9WKA7 1-118 TP=1,CL=1000000,CF=2000076,SF=3000001,FA=4000001
8033694 2gkm A:2-128 P9WKA9 2-128 8033694 2gkm A:2-128 P9WKA9 2-128 TP=1,CL=1000000,CF=2000076,SF=3000001,FA=4000002
`

func TestSCOP(t *testing.T) {
	index, err := ParseSCOP(strings.NewReader(scopFile))
	require.NoError(t, err)
	require.Len(t, index, 2)

	rec, err := SCOP{Index: index}.Annotate(context.Background(), record("1ux8", "A"))
	require.NoError(t, err)
	fa, ok := protein.Get[string](rec, protein.ScopeProtein, "SCOP-FA")
	require.True(t, ok)
	assert.Equal(t, "4000001", fa)
	sf, _ := protein.Get[string](rec, protein.ScopeProtein, "SCOP-SF")
	assert.Equal(t, "3000001", sf)

	_, err = SCOP{Index: index}.Annotate(context.Background(), record("9zzz", "A"))
	assert.ErrorIs(t, err, ErrDrop)
}

func TestParseSCOP_Malformed(t *testing.T) {
	_, err := ParseSCOP(strings.NewReader("1 2 3\n"))
	assert.Error(t, err)
}

func TestPfam(t *testing.T) {
	dir := t.TempDir()
	annot := `{"rcsb_polymer_entity_annotation":[
		{"type":"Pfam","annotation_id":"PF00042","name":"Globin"},
		{"type":"GO","annotation_id":"GO:0005344"},
		{"type":"Pfam","annotation_id":"PF00001"}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "4HHB.annot.json"), []byte(annot), 0o644))

	p := Pfam{Dir: dir, Loader: lio.NewIOFileLoader(lio.NewIOFileLoaderParams{})}
	rec, err := p.Annotate(context.Background(), record("4HHB", "A"))
	require.NoError(t, err)
	families, _ := protein.Get[[]string](rec, protein.ScopeProtein, "Pfam")
	assert.Equal(t, []string{"PF00042", "PF00001"}, families)

	_, err = p.Annotate(context.Background(), record("1ABC", "A"))
	assert.ErrorIs(t, err, ErrDrop)
}

func TestEnzymeCommission(t *testing.T) {
	table := "### EC-numbers\n1.1.1.1\t2.7.7.4\n### PDB-chain\tEC-number\n12as-A\t6.3.1.1\n101m-A\t\n1a0h-B\t3.4.21.5,3.4.21.6\n"
	index, err := ParseECAnnotations(strings.NewReader(table))
	require.NoError(t, err)

	e := EnzymeCommission{Index: index}
	rec, err := e.Annotate(context.Background(), record("12AS", "A"))
	require.NoError(t, err)
	ec, _ := protein.Get[[]string](rec, protein.ScopeProtein, "EC")
	assert.Equal(t, []string{"6.3.1.1"}, ec)

	rec, err = e.Annotate(context.Background(), record("1a0h", "b"))
	require.NoError(t, err)
	ec, _ = protein.Get[[]string](rec, protein.ScopeProtein, "EC")
	assert.Equal(t, []string{"3.4.21.5", "3.4.21.6"}, ec)

	_, err = e.Annotate(context.Background(), record("101m", "A"))
	assert.ErrorIs(t, err, ErrDrop)
}

const pdbbindIndex = `# ==============================================================================
# List of the protein-ligand complexes in the PDBbind refined set v.2020
# PDB code, resolution, release year, -logKd/Ki, Kd/Ki, reference, ligand name
2r58  2.00  2007   2.00  Kd=10mM       // 2r58.pdf (MLY)
3c2f  2.35  2008   2.07  Ki=8.5mM      // 3c2f.pdf (PRP)
1abc  NMR   1999   9.10  IC50<0.8nM    // 1abc.pdf (XYZ)
`

func TestParsePDBBindIndex(t *testing.T) {
	index, err := ParsePDBBindIndex(strings.NewReader(pdbbindIndex))
	require.NoError(t, err)
	require.Len(t, index, 3)

	e := index["3C2F"]
	assert.Equal(t, 2.35, e.Resolution)
	assert.Equal(t, 2008, e.Year)
	assert.Equal(t, 2.07, e.NegLogAff)
	assert.Equal(t, "Ki", e.Measure)
	assert.Equal(t, 8.5, e.Value)
	assert.Equal(t, "mM", e.Unit)
	assert.Equal(t, "PRP", e.LigandID)

	nmr := index["1ABC"]
	assert.Zero(t, nmr.Resolution)
	assert.Equal(t, "IC50", nmr.Measure)
	assert.Equal(t, 0.8, nmr.Value)
}

func TestLigandInterface(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "2r58"), 0o755))
	pdbtest.WriteFile(t, filepath.Join(dir, "2r58"), "2r58_pocket.pdb", []pdbtest.Atom{
		{ResName: "LYS", ResNum: 2},
		{Name: "CB", ResName: "LYS", ResNum: 2},
		{ResName: "GLY", ResNum: 4},
	})
	index, err := ParsePDBBindIndex(strings.NewReader(pdbbindIndex))
	require.NoError(t, err)

	rec := record("2r58", "A", "A", "A", "A")
	rec.AtomCount = 3
	require.NoError(t, protein.SetAtom(rec, "residue_number", []int{1, 2, 2}))

	l := LigandInterface{Dir: dir, Index: index, Loader: lio.NewIOFileLoader(lio.NewIOFileLoaderParams{})}
	out, err := Apply(context.Background(), l, rec)
	require.NoError(t, err)

	site, _ := protein.Get[[]bool](out, protein.ScopeResidue, "binding_site")
	assert.Equal(t, []bool{false, true, false, true}, site)
	atomSite, _ := protein.Get[[]bool](out, protein.ScopeAtom, "binding_site")
	assert.Equal(t, []bool{false, true, true}, atomSite)
	aff, _ := protein.Get[float64](out, protein.ScopeProtein, "neglog_aff")
	assert.Equal(t, 2.0, aff)
	lig, _ := protein.Get[string](out, protein.ScopeProtein, "ligand_id")
	assert.Equal(t, "MLY", lig)

	_, err = l.Annotate(context.Background(), record("3c2f", "A"))
	assert.ErrorIs(t, err, ErrDrop, "missing pocket file drops the record")
	_, err = l.Annotate(context.Background(), record("9xyz", "A"))
	assert.ErrorIs(t, err, ErrDrop)
}

func db2(id, smiles string, zipped bool) []byte {
	content := "M " + id + " 30 1 0\nM +0.00 -1.00\nM " + smiles + " NO_LONG_NAME\nA 1 C1 C.3\n"
	if !zipped {
		return []byte(content)
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write([]byte(content))
	zw.Close()
	return buf.Bytes()
}

func TestParseDB2(t *testing.T) {
	for _, zipped := range []bool{false, true} {
		m, err := ParseDB2(db2("ZINC000000087599", "O=C(CSc1nnc(COc2ccccc2)o1)NC1CCCCC1", zipped))
		require.NoError(t, err)
		assert.Equal(t, "ZINC000000087599", m.ID)
		assert.Equal(t, "O=C(CSc1nnc(COc2ccccc2)o1)NC1CCCCC1", m.SMILES)
	}
	_, err := ParseDB2([]byte("M\n"))
	assert.Error(t, err)
}

func TestLigandDecoys(t *testing.T) {
	dir := t.TempDir()
	write := func(sub, name string, data []byte) {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, sub), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, sub, name), data, 0o644))
	}
	write("ligands_ADA", "1.db2.gz", db2("CHEMBL1", "CCO", true))
	write("decoys_ADA", "1.db2.gz", db2("ZINC1", "CCN", true))
	write("decoys_ADA", "2.db2.gz", db2("ZINC2", "CCC", true))

	l := LigandDecoys{Dir: dir, Loader: lio.NewIOFileLoader(lio.NewIOFileLoaderParams{})}
	rec, err := l.Annotate(context.Background(), record("ADA", "A"))
	require.NoError(t, err)

	ids, _ := protein.Get[[]string](rec, protein.ScopeProtein, "decoys_ids")
	assert.Equal(t, []string{"ZINC1", "ZINC2"}, ids)
	smiles, _ := protein.Get[[]string](rec, protein.ScopeProtein, "ligands_smiles")
	assert.Equal(t, []string{"CCO"}, smiles)
	n, _ := protein.Get[int](rec, protein.ScopeProtein, "num_mols")
	assert.Equal(t, 3, n)

	_, err = l.Annotate(context.Background(), record("EGFR", "A"))
	assert.ErrorIs(t, err, ErrDrop)
}
