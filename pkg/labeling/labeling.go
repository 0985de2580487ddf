// Package labeling provides label-aware operations over 2D/3D grids:
// connected component labeling, size-based component filtering,
// distance-bounded label dilation, and per-region intensity statistics.
package labeling

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"volmorph/pkg/chamfer"
	"volmorph/pkg/distmap"
	"volmorph/pkg/grid"
)

// ConnectedComponents labels the connected foreground regions of a
// binary grid using union-find over the given connectivity. Labels are
// assigned in raster order of each component's first sample, starting at
// 1; background stays 0. Returns the label grid and the component count.
func ConnectedComponents(binary []uint8, dims grid.Dims, conn grid.Connectivity) ([]int32, int, error) {
	if err := dims.CheckLen(len(binary)); err != nil {
		return nil, 0, err
	}
	if err := conn.Check(dims); err != nil {
		return nil, 0, err
	}

	parent := newUnionFind(len(binary))
	provisional := make([]int32, len(binary))
	next := int32(1)
	fwd := conn.ForwardOffsets()

	for z := 0; z < dims.Depth; z++ {
		for y := 0; y < dims.Height; y++ {
			for x := 0; x < dims.Width; x++ {
				idx := dims.Index(x, y, z)
				if binary[idx] == 0 {
					continue
				}
				assigned := false
				for _, o := range fwd {
					nx, ny, nz := x+o.X, y+o.Y, z+o.Z
					if !dims.Contains(nx, ny, nz) {
						continue
					}
					nidx := dims.Index(nx, ny, nz)
					if binary[nidx] == 0 {
						continue
					}
					if !assigned {
						provisional[idx] = provisional[nidx]
						assigned = true
					}
					parent.union(idx, nidx)
				}
				if !assigned {
					provisional[idx] = next
					next++
				}
			}
		}
	}

	// Resolve union-find roots to final labels, numbered in raster order
	// of first occurrence so the lowest id always belongs to the
	// earliest component.
	labels := make([]int32, len(binary))
	rootLabel := make(map[int]int32)
	count := int32(0)
	for z := 0; z < dims.Depth; z++ {
		for y := 0; y < dims.Height; y++ {
			for x := 0; x < dims.Width; x++ {
				idx := dims.Index(x, y, z)
				if binary[idx] == 0 {
					continue
				}
				root := parent.find(idx)
				l, ok := rootLabel[root]
				if !ok {
					count++
					l = count
					rootLabel[root] = l
				}
				labels[idx] = l
			}
		}
	}
	return labels, int(count), nil
}

// SizeOpening removes every labeled component whose sample count is
// strictly below minCount, resetting it to background. Components with
// exactly minCount samples are kept. The input is untouched; a fresh
// label grid is returned.
func SizeOpening(labels []int32, dims grid.Dims, minCount int) ([]int32, error) {
	if err := dims.CheckLen(len(labels)); err != nil {
		return nil, err
	}

	counts := make(map[int32]int)
	for _, l := range labels {
		if l > 0 {
			counts[l]++
		}
	}

	out := make([]int32, len(labels))
	for i, l := range labels {
		if l > 0 && counts[l] < minCount {
			continue
		}
		out[i] = l
	}
	return out, nil
}

// BinaryAreaOpening labels the foreground of a binary grid and removes
// every component with fewer than minCount samples (area in 2D, volume
// in 3D), returning the filtered binary grid.
func BinaryAreaOpening(binary []uint8, dims grid.Dims, conn grid.Connectivity, minCount int) ([]uint8, error) {
	labels, _, err := ConnectedComponents(binary, dims, conn)
	if err != nil {
		return nil, err
	}
	kept, err := SizeOpening(labels, dims, minCount)
	if err != nil {
		return nil, err
	}
	out := make([]uint8, len(binary))
	for i, l := range kept {
		if l > 0 {
			out[i] = 1
		}
	}
	return out, nil
}

// DilateLabels grows every labeled region outward by up to radius in
// normalized chamfer distance, without crossing into samples already
// claimed by another label. Each frontier sample goes to the label whose
// propagated distance is strictly smallest; at exact ties the lowest
// label id wins. The input is untouched.
func DilateLabels(labels []int32, dims grid.Dims, mask *chamfer.Mask, radius float64) ([]int32, error) {
	if err := dims.CheckLen(len(labels)); err != nil {
		return nil, err
	}
	if radius < 0 {
		return nil, fmt.Errorf("radius must be non-negative, got %g", radius)
	}

	out := make([]int32, len(labels))
	copy(out, labels)

	best := make([]float64, len(labels))
	for i := range best {
		best[i] = math.Inf(1)
	}

	// One distance map per label, lowest id first so that strict
	// comparison resolves exact ties to the lowest label.
	for _, l := range labelSet(labels) {
		inverse := make([]uint8, len(labels))
		for i, v := range labels {
			if v != l {
				inverse[i] = 1
			}
		}
		dist, err := distmap.DistanceMapFloat(inverse, dims, mask, distmap.Options{Normalize: true})
		if err != nil {
			return nil, err
		}
		for i, d := range dist {
			if labels[i] != 0 {
				continue
			}
			if d <= radius && d < best[i] {
				best[i] = d
				out[i] = l
			}
		}
	}
	return out, nil
}

// RegionStat summarizes the intensity of one labeled region.
type RegionStat struct {
	// Label is the region id.
	Label int32

	// Count is the number of samples: area in 2D, volume in 3D.
	Count int

	// Mean, Std, Min and Max describe the intensities sampled under the
	// region.
	Mean float64
	Std  float64
	Min  float64
	Max  float64
}

// RegionStats accumulates per-region intensity statistics of values
// under the label grid, one entry per distinct non-zero label, sorted by
// label id.
func RegionStats(labels []int32, values []float64, dims grid.Dims) ([]RegionStat, error) {
	if err := dims.CheckLen(len(labels)); err != nil {
		return nil, err
	}
	if err := dims.CheckLen(len(values)); err != nil {
		return nil, err
	}

	samples := make(map[int32][]float64)
	for i, l := range labels {
		if l > 0 {
			samples[l] = append(samples[l], values[i])
		}
	}

	stats := make([]RegionStat, 0, len(samples))
	for _, l := range sortedKeys(samples) {
		v := samples[l]
		s := RegionStat{
			Label: l,
			Count: len(v),
			Mean:  stat.Mean(v, nil),
			Min:   v[0],
			Max:   v[0],
		}
		if len(v) > 1 {
			s.Std = stat.StdDev(v, nil)
		}
		for _, x := range v {
			if x < s.Min {
				s.Min = x
			}
			if x > s.Max {
				s.Max = x
			}
		}
		stats = append(stats, s)
	}
	return stats, nil
}

// labelSet returns the distinct non-zero labels in ascending order.
func labelSet(labels []int32) []int32 {
	seen := make(map[int32]struct{})
	var set []int32
	for _, l := range labels {
		if l == 0 {
			continue
		}
		if _, ok := seen[l]; !ok {
			seen[l] = struct{}{}
			set = append(set, l)
		}
	}
	sort.Slice(set, func(i, j int) bool { return set[i] < set[j] })
	return set
}

func sortedKeys(m map[int32][]float64) []int32 {
	keys := make([]int32, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// unionFind is a flat-array disjoint set with path halving.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	// Smaller root wins so earlier raster indices stay roots.
	if ra < rb {
		u.parent[rb] = ra
	} else {
		u.parent[ra] = rb
	}
}
