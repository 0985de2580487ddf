// Package distmap computes chamfer distance transforms over binary and
// labeled grids using two full raster sweeps.
//
// Background samples map to distance zero; every other sample receives
// the chamfer distance to the nearest background sample or, in
// label-aware mode, to the nearest sample carrying a different label.
// Integer accumulation saturates at grid.Unreached instead of wrapping,
// so a foreground region disconnected from any background keeps the
// sentinel in the output; callers may treat it as infinite.
package distmap

import (
	"math"

	"volmorph/pkg/chamfer"
	"volmorph/pkg/grid"
)

// Options controls a distance transform invocation.
type Options struct {
	// Normalize divides the result by the mask's unit-step weight after
	// both sweeps: rounded integer division for integer maps, exact for
	// float maps. Propagation itself always runs on raw weights.
	Normalize bool

	// Progress is the optional cancellation hook, called after each
	// raster sweep.
	Progress grid.ProgressFunc
}

// DistanceMapInt computes the integer chamfer distance map of a binary
// grid. Samples with value 0 are background; everything else is
// foreground. The result has the same shape as the input.
func DistanceMapInt(binary []uint8, dims grid.Dims, mask *chamfer.Mask, opts Options) ([]int32, error) {
	if err := dims.CheckLen(len(binary)); err != nil {
		return nil, err
	}
	return intSweeps(binaryLabels(binary), dims, mask, opts)
}

// DistanceMapFloat is DistanceMapInt with floating-point weights.
// Unreached samples carry +Inf.
func DistanceMapFloat(binary []uint8, dims grid.Dims, mask *chamfer.Mask, opts Options) ([]float64, error) {
	if err := dims.CheckLen(len(binary)); err != nil {
		return nil, err
	}
	return floatSweeps(binaryLabels(binary), dims, mask, opts)
}

// LabelDistanceMapInt computes, for every labeled sample, the integer
// chamfer distance to the nearest sample carrying a different label or
// background. Relaxation never crosses a label boundary, so the
// transform is independent per label.
func LabelDistanceMapInt(labels []int32, dims grid.Dims, mask *chamfer.Mask, opts Options) ([]int32, error) {
	if err := dims.CheckLen(len(labels)); err != nil {
		return nil, err
	}
	return intSweeps(labels, dims, mask, opts)
}

// LabelDistanceMapFloat is LabelDistanceMapInt with floating-point
// weights.
func LabelDistanceMapFloat(labels []int32, dims grid.Dims, mask *chamfer.Mask, opts Options) ([]float64, error) {
	if err := dims.CheckLen(len(labels)); err != nil {
		return nil, err
	}
	return floatSweeps(labels, dims, mask, opts)
}

func binaryLabels(binary []uint8) []int32 {
	labels := make([]int32, len(binary))
	for i, v := range binary {
		if v > 0 {
			labels[i] = 1
		}
	}
	return labels
}

func intSweeps(labels []int32, dims grid.Dims, mask *chamfer.Mask, opts Options) ([]int32, error) {
	dist := make([]int32, len(labels))
	for i, l := range labels {
		if l != 0 {
			dist[i] = grid.Unreached
		}
	}

	// Forward sweep, low-to-high in every axis.
	for z := 0; z < dims.Depth; z++ {
		for y := 0; y < dims.Height; y++ {
			for x := 0; x < dims.Width; x++ {
				idx := dims.Index(x, y, z)
				if labels[idx] == 0 {
					continue
				}
				dist[idx] = relaxInt(labels, dist, dims, mask.Forward(), x, y, z, idx)
			}
		}
	}
	if !opts.Progress.Step("distance map", 1, 2) {
		return nil, grid.ErrCancelled
	}

	// Backward sweep, reverse raster order.
	for z := dims.Depth - 1; z >= 0; z-- {
		for y := dims.Height - 1; y >= 0; y-- {
			for x := dims.Width - 1; x >= 0; x-- {
				idx := dims.Index(x, y, z)
				if labels[idx] == 0 {
					continue
				}
				dist[idx] = relaxInt(labels, dist, dims, mask.Backward(), x, y, z, idx)
			}
		}
	}
	if !opts.Progress.Step("distance map", 2, 2) {
		return nil, grid.ErrCancelled
	}

	if opts.Normalize {
		unit := mask.UnitWeight()
		if unit > 1 {
			for i, d := range dist {
				if d != grid.Unreached {
					dist[i] = (d + unit/2) / unit
				}
			}
		}
	}
	return dist, nil
}

// relaxInt returns the minimum of the current distance and every
// neighbor distance plus the offset weight, saturating at the sentinel.
func relaxInt(labels, dist []int32, dims grid.Dims, offs []chamfer.WeightedOffset, x, y, z, idx int) int32 {
	d := dist[idx]
	for _, o := range offs {
		nx, ny, nz := x+o.X, y+o.Y, z+o.Z
		if !dims.Contains(nx, ny, nz) {
			continue
		}
		nidx := dims.Index(nx, ny, nz)
		var cand int32
		if labels[nidx] != labels[idx] {
			// Different label or background: the boundary sits on the
			// neighbor, one offset step away.
			cand = o.Weight
		} else {
			nd := dist[nidx]
			if nd >= grid.Unreached-o.Weight {
				continue
			}
			cand = nd + o.Weight
		}
		if cand < d {
			d = cand
		}
	}
	return d
}

func floatSweeps(labels []int32, dims grid.Dims, mask *chamfer.Mask, opts Options) ([]float64, error) {
	inf := math.Inf(1)
	dist := make([]float64, len(labels))
	for i, l := range labels {
		if l != 0 {
			dist[i] = inf
		}
	}

	for z := 0; z < dims.Depth; z++ {
		for y := 0; y < dims.Height; y++ {
			for x := 0; x < dims.Width; x++ {
				idx := dims.Index(x, y, z)
				if labels[idx] == 0 {
					continue
				}
				dist[idx] = relaxFloat(labels, dist, dims, mask.Forward(), x, y, z, idx)
			}
		}
	}
	if !opts.Progress.Step("distance map", 1, 2) {
		return nil, grid.ErrCancelled
	}

	for z := dims.Depth - 1; z >= 0; z-- {
		for y := dims.Height - 1; y >= 0; y-- {
			for x := dims.Width - 1; x >= 0; x-- {
				idx := dims.Index(x, y, z)
				if labels[idx] == 0 {
					continue
				}
				dist[idx] = relaxFloat(labels, dist, dims, mask.Backward(), x, y, z, idx)
			}
		}
	}
	if !opts.Progress.Step("distance map", 2, 2) {
		return nil, grid.ErrCancelled
	}

	if opts.Normalize {
		unit := mask.FloatUnitWeight()
		if unit != 1 {
			for i := range dist {
				dist[i] /= unit
			}
		}
	}
	return dist, nil
}

func relaxFloat(labels []int32, dist []float64, dims grid.Dims, offs []chamfer.WeightedOffset, x, y, z, idx int) float64 {
	d := dist[idx]
	for _, o := range offs {
		nx, ny, nz := x+o.X, y+o.Y, z+o.Z
		if !dims.Contains(nx, ny, nz) {
			continue
		}
		nidx := dims.Index(nx, ny, nz)
		cand := o.FloatWeight
		if labels[nidx] == labels[idx] {
			cand += dist[nidx]
		}
		if cand < d {
			d = cand
		}
	}
	return d
}
