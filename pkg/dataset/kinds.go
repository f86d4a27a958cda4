package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"

	"proteinshake/pkg/annotate"
	"proteinshake/pkg/loader"
	"proteinshake/pkg/parser"
	"proteinshake/pkg/protein"
)

var ErrUnknownKind = errors.New("unknown dataset kind")

// Names of the raw layout below RawDir shared by all kinds.
const (
	FilesDir         = "files"
	StructurePattern = "*.pdb*"
	SCOPFile         = "scop.txt"
	ECFile           = "nrPDB-EC_annot.tsv"
	PDBBindIndexFile = "index/INDEX_refined_data.2020"
)

// Env is what a Definition may use to find its raw files and side tables.
type Env struct {
	Layout Layout
	Loader loader.FileLoader
}

// Read reads a file below RawDir.
func (e Env) Read(ctx context.Context, name string) ([]byte, error) {
	return e.Loader.ReadFile(ctx, filepath.Join(e.Layout.RawDir, name))
}

func (e Env) FilesDir() string {
	return filepath.Join(e.Layout.RawDir, FilesDir)
}

// Definition describes how one kind of dataset is built from its raw files.
type Definition struct {
	Name string

	Residues                   protein.ResidueTable
	KeepAtoms                  bool
	IDFunc                     parser.IDFunc
	SingleChainOnly            bool
	RequireContiguousNumbering bool

	// Source acquires raw files. Nil expects them in place.
	Source Source
	// Files lists the structure files to parse. Defaults to
	// RawDir/files/*.pdb*.
	Files func(ctx context.Context, env Env) ([]string, error)
	// Annotator loads side tables and returns the annotator to apply.
	// Defaults to annotate.Identity.
	Annotator func(ctx context.Context, env Env) (annotate.Annotator, error)
}

func (d Definition) files(ctx context.Context, env Env) ([]string, error) {
	if d.Files != nil {
		return d.Files(ctx, env)
	}
	return env.Loader.List(ctx, env.FilesDir(), StructurePattern)
}

func (d Definition) annotator(ctx context.Context, env Env) (annotate.Annotator, error) {
	if d.Annotator == nil {
		return annotate.Identity, nil
	}
	return d.Annotator(ctx, env)
}

var kinds = map[string]func() Definition{
	"proteins": func() Definition {
		return Definition{Name: "proteins"}
	},
	"scop": func() Definition {
		return Definition{
			Name:            "scop",
			SingleChainOnly: true,
			Annotator: func(ctx context.Context, env Env) (annotate.Annotator, error) {
				data, err := env.Read(ctx, SCOPFile)
				if err != nil {
					return nil, err
				}
				index, err := annotate.ParseSCOP(bytes.NewReader(data))
				if err != nil {
					return nil, err
				}
				return annotate.SCOP{Index: index}, nil
			},
		}
	},
	"pfam": func() Definition {
		return Definition{
			Name: "pfam",
			Annotator: func(_ context.Context, env Env) (annotate.Annotator, error) {
				return annotate.Pfam{Dir: env.FilesDir(), Loader: env.Loader}, nil
			},
		}
	},
	"ec": func() Definition {
		return Definition{
			Name:            "ec",
			SingleChainOnly: true,
			Annotator: func(ctx context.Context, env Env) (annotate.Annotator, error) {
				data, err := env.Read(ctx, ECFile)
				if err != nil {
					return nil, err
				}
				index, err := annotate.ParseECAnnotations(bytes.NewReader(data))
				if err != nil {
					return nil, err
				}
				return annotate.EnzymeCommission{Index: index}, nil
			},
		}
	},
	"pdbbind": func() Definition {
		return Definition{
			Name:      "pdbbind",
			Residues:  protein.ExtendedResidues,
			KeepAtoms: true,
			IDFunc:    pdbPrefixID,
			Files: func(ctx context.Context, env Env) ([]string, error) {
				index, err := readBindingIndex(ctx, env)
				if err != nil {
					return nil, err
				}
				ids := make([]string, 0, len(index))
				for _, e := range index {
					ids = append(ids, e.PDB)
				}
				sort.Strings(ids)
				files := make([]string, len(ids))
				for i, id := range ids {
					files[i] = filepath.Join(env.FilesDir(), id, id+"_protein.pdb")
				}
				return files, nil
			},
			Annotator: func(ctx context.Context, env Env) (annotate.Annotator, error) {
				index, err := readBindingIndex(ctx, env)
				if err != nil {
					return nil, err
				}
				return annotate.LigandInterface{
					Dir:      env.FilesDir(),
					Index:    index,
					Loader:   env.Loader,
					Residues: protein.ExtendedResidues,
				}, nil
			},
		}
	},
	"dude": func() Definition {
		return Definition{
			Name:     "dude",
			Residues: protein.ExtendedResidues,
			Annotator: func(_ context.Context, env Env) (annotate.Annotator, error) {
				return annotate.LigandDecoys{Dir: env.FilesDir(), Loader: env.Loader}, nil
			},
		}
	},
	"ppi": func() Definition {
		return Definition{
			Name: "ppi",
			Annotator: func(context.Context, Env) (annotate.Annotator, error) {
				return annotate.ProteinInterface{Cutoff: annotate.DefaultInterfaceCutoff}, nil
			},
		}
	},
	"tmalign": func() Definition {
		return Definition{Name: "tmalign", SingleChainOnly: true}
	},
}

// Kinds returns the registered dataset kinds in sorted order.
func Kinds() []string {
	names := make([]string, 0, len(kinds))
	for name := range kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns a fresh Definition of the given kind.
func Lookup(kind string) (Definition, error) {
	newDef, ok := kinds[kind]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return newDef(), nil
}

func readBindingIndex(ctx context.Context, env Env) (annotate.BindingIndex, error) {
	data, err := env.Read(ctx, PDBBindIndexFile)
	if err != nil {
		return nil, err
	}
	return annotate.ParsePDBBindIndex(bytes.NewReader(data))
}

// pdbPrefixID turns "1abc_protein.pdb" into "1abc".
func pdbPrefixID(p string) string {
	id := loader.BaseID(path.Base(p))
	if len(id) > 4 {
		id = id[:4]
	}
	return id
}
