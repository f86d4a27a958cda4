package graph

import (
	"math"
	"sort"

	"proteinshake/pkg/protein"
)

type cell struct {
	x, y, z int
}

func cellOf(p protein.Point, size float64) cell {
	return cell{
		x: int(math.Floor(p.X / size)),
		y: int(math.Floor(p.Y / size)),
		z: int(math.Floor(p.Z / size)),
	}
}

// RadiusPairs returns every pair (i, j), i < j, of points whose distance is
// at most eps, sorted by i then j. Points are bucketed into cubic cells of
// edge eps so only the 27 surrounding cells are searched per point.
func RadiusPairs(coords []protein.Point, eps float64) [][2]int {
	if eps <= 0 || len(coords) < 2 {
		return nil
	}

	buckets := make(map[cell][]int)
	for i, p := range coords {
		c := cellOf(p, eps)
		buckets[c] = append(buckets[c], i)
	}

	eps2 := eps * eps
	var pairs [][2]int
	for i, p := range coords {
		c := cellOf(p, eps)
		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				for dz := -1; dz <= 1; dz++ {
					for _, j := range buckets[cell{c.x + dx, c.y + dy, c.z + dz}] {
						if j <= i {
							continue
						}
						if p.Dist2(coords[j]) <= eps2 {
							pairs = append(pairs, [2]int{i, j})
						}
					}
				}
			}
		}
	}

	sort.Slice(pairs, func(a, b int) bool {
		if pairs[a][0] != pairs[b][0] {
			return pairs[a][0] < pairs[b][0]
		}
		return pairs[a][1] < pairs[b][1]
	})
	return pairs
}

type neighbor struct {
	index int
	dist2 float64
}

// NearestNeighbors returns, for every point, the indices of its k nearest
// other points ordered by distance. Ties are broken by ascending index and
// k is clipped to len(coords)-1.
func NearestNeighbors(coords []protein.Point, k int) [][]int {
	n := len(coords)
	if k > n-1 {
		k = n - 1
	}
	out := make([][]int, n)
	if k <= 0 {
		return out
	}

	candidates := make([]neighbor, 0, n-1)
	for i, p := range coords {
		candidates = candidates[:0]
		for j, q := range coords {
			if j == i {
				continue
			}
			candidates = append(candidates, neighbor{index: j, dist2: p.Dist2(q)})
		}
		sort.Slice(candidates, func(a, b int) bool {
			if candidates[a].dist2 != candidates[b].dist2 {
				return candidates[a].dist2 < candidates[b].dist2
			}
			return candidates[a].index < candidates[b].index
		})
		nn := make([]int, k)
		for x := 0; x < k; x++ {
			nn[x] = candidates[x].index
		}
		out[i] = nn
	}
	return out
}
