package annotate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"proteinshake/pkg/loader"
	"proteinshake/pkg/protein"
)

type entityAnnotations struct {
	Annotations []struct {
		Type         string `json:"type"`
		AnnotationID string `json:"annotation_id"`
		Name         string `json:"name"`
	} `json:"rcsb_polymer_entity_annotation"`
}

// Pfam reads the RCSB entity annotation file stored next to each structure
// as <Dir>/<ID>.annot.json and adds the Pfam accessions as "Pfam".
type Pfam struct {
	Dir    string
	Loader loader.FileLoader
}

func (p Pfam) Annotate(ctx context.Context, rec *protein.Record) (*protein.Record, error) {
	data, err := p.Loader.ReadFile(ctx, path.Join(p.Dir, rec.ID+".annot.json"))
	if err != nil {
		if errors.Is(err, loader.ErrNotFound) {
			return nil, Drop("%s has no annotation file", rec.ID)
		}
		return nil, err
	}

	var annot entityAnnotations
	if err := json.Unmarshal(data, &annot); err != nil {
		return nil, fmt.Errorf("failed to decode annotations of %s: %w", rec.ID, err)
	}

	var families []string
	for _, a := range annot.Annotations {
		if a.Type == "Pfam" {
			families = append(families, a.AnnotationID)
		}
	}
	if len(families) == 0 {
		return nil, Drop("%s has no pfam annotation", rec.ID)
	}
	protein.SetProtein(rec, "Pfam", families)
	return rec, nil
}
