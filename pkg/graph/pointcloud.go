package graph

import (
	"fmt"
	"math"
	"sort"

	"proteinshake/pkg/embed"
	"proteinshake/pkg/protein"
)

// PointCloud is a record as coordinates plus per residue features.
type PointCloud struct {
	ID       string
	Coords   [][3]float32
	Features [][]float32
}

func NewPointCloud(rec *protein.Record, f embed.Func) (*PointCloud, error) {
	features, err := f(rec.Sequence)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %s: %w", rec.ID, err)
	}
	if len(features) != len(rec.Coords) {
		return nil, fmt.Errorf("%w: %s has %d features for %d coordinates",
			protein.ErrScopeLength, rec.ID, len(features), len(rec.Coords))
	}
	coords := make([][3]float32, len(rec.Coords))
	for i, p := range rec.Coords {
		coords[i] = [3]float32{float32(p.X), float32(p.Y), float32(p.Z)}
	}
	return &PointCloud{ID: rec.ID, Coords: coords, Features: features}, nil
}

// Voxel is one occupied cell of a voxel grid.
type Voxel struct {
	Index    [3]int
	Count    int
	Features []float32
}

// VoxelGrid is a sparse grid of fixed voxel size anchored at Origin, the
// minimum corner of the record's bounding box. Voxels are sorted by index.
type VoxelGrid struct {
	ID        string
	VoxelSize float64
	Origin    protein.Point
	Shape     [3]int
	Voxels    []Voxel
}

type VoxelParams struct {
	// VoxelSize is the voxel edge in Angstrom.
	VoxelSize float64
	// Sum adds the features of residues sharing a voxel instead of
	// averaging them.
	Sum   bool
	Embed embed.Func
}

// Voxelize bins the residues of rec into cubic voxels and aggregates their
// features per voxel.
func Voxelize(rec *protein.Record, params VoxelParams) (*VoxelGrid, error) {
	if params.VoxelSize <= 0 {
		return nil, fmt.Errorf("voxel size must be positive, got %v", params.VoxelSize)
	}
	f := params.Embed
	if f == nil {
		f = embed.OneHot(embed.DefaultAlphabet)
	}
	pc, err := NewPointCloud(rec, f)
	if err != nil {
		return nil, err
	}

	grid := &VoxelGrid{ID: rec.ID, VoxelSize: params.VoxelSize}
	if len(rec.Coords) == 0 {
		return grid, nil
	}

	lo := rec.Coords[0]
	for _, p := range rec.Coords[1:] {
		lo = protein.Point{X: math.Min(lo.X, p.X), Y: math.Min(lo.Y, p.Y), Z: math.Min(lo.Z, p.Z)}
	}
	grid.Origin = lo

	cells := make(map[[3]int]*Voxel)
	for i, p := range rec.Coords {
		d := p.Sub(lo)
		idx := [3]int{
			int(math.Floor(d.X / params.VoxelSize)),
			int(math.Floor(d.Y / params.VoxelSize)),
			int(math.Floor(d.Z / params.VoxelSize)),
		}
		for a := 0; a < 3; a++ {
			grid.Shape[a] = max(grid.Shape[a], idx[a]+1)
		}
		v, ok := cells[idx]
		if !ok {
			v = &Voxel{Index: idx, Features: make([]float32, len(pc.Features[i]))}
			cells[idx] = v
		}
		v.Count++
		for j, x := range pc.Features[i] {
			v.Features[j] += x
		}
	}

	grid.Voxels = make([]Voxel, 0, len(cells))
	for _, v := range cells {
		if !params.Sum {
			for j := range v.Features {
				v.Features[j] /= float32(v.Count)
			}
		}
		grid.Voxels = append(grid.Voxels, *v)
	}
	sort.Slice(grid.Voxels, func(a, b int) bool {
		x, y := grid.Voxels[a].Index, grid.Voxels[b].Index
		for k := 0; k < 3; k++ {
			if x[k] != y[k] {
				return x[k] < y[k]
			}
		}
		return false
	})
	return grid, nil
}
