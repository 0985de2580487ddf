// Package reconstruct implements grayscale geodesic reconstruction: the
// iterative growth of a marker grid under a mask grid until idempotence,
// by dilation or by erosion.
//
// The implementation is the standard hybrid: one forward raster pass,
// one backward raster pass that seeds a FIFO queue, then queue-driven
// propagation until fixed point. Each update is monotonic and bounded by
// the mask, so termination is guaranteed.
//
// The same machinery provides border removal (reconstruction from the
// boundary shell), regional and extended minima extraction, and minima
// imposition, the pre-pass that controls watershed over-segmentation.
package reconstruct

import (
	"errors"
	"fmt"
	"math"

	"volmorph/pkg/grid"
)

// ErrConstraint is returned when Validate is set and the marker/mask
// ordering required by the reconstruction mode does not hold.
var ErrConstraint = errors.New("marker/mask ordering constraint violated")

// Options controls a reconstruction invocation.
type Options struct {
	// Connectivity selects the neighbor relation: 4 or 8 in 2D, 6 or 26
	// in 3D.
	Connectivity grid.Connectivity

	// Validate enables the defensive marker/mask ordering check before
	// any propagation starts. Without it a violated ordering silently
	// produces an over- or under-constrained result; that is a
	// documented caller responsibility, not an engine fault.
	Validate bool

	// Progress is the optional cancellation hook, called after each
	// raster pass and after each batch of popped queue entries.
	Progress grid.ProgressFunc
}

// queueBatch is the number of popped queue entries between progress
// checkpoints.
const queueBatch = 4096

// ByDilation grows marker under mask until idempotence: the result is
// the largest grid that is pointwise at most mask and reachable from
// marker by repeated connectivity dilations. Callers must supply
// marker <= mask pointwise.
func ByDilation(marker, mask []float64, dims grid.Dims, opts Options) ([]float64, error) {
	if err := check(marker, mask, dims, opts); err != nil {
		return nil, err
	}
	if opts.Validate {
		for i := range marker {
			if marker[i] > mask[i] {
				return nil, fmt.Errorf("%w: marker exceeds mask at index %d (dilation needs marker <= mask)", ErrConstraint, i)
			}
		}
	}
	return run(marker, mask, dims, opts)
}

// ByErosion shrinks marker onto mask until idempotence, the dual of
// ByDilation. Callers must supply marker >= mask pointwise.
func ByErosion(marker, mask []float64, dims grid.Dims, opts Options) ([]float64, error) {
	if err := check(marker, mask, dims, opts); err != nil {
		return nil, err
	}
	if opts.Validate {
		for i := range marker {
			if marker[i] < mask[i] {
				return nil, fmt.Errorf("%w: marker below mask at index %d (erosion needs marker >= mask)", ErrConstraint, i)
			}
		}
	}

	// Erosion is dilation on the negated grids.
	negMarker := negated(marker)
	negMask := negated(mask)
	res, err := run(negMarker, negMask, dims, opts)
	if err != nil {
		return nil, err
	}
	for i := range res {
		res[i] = -res[i]
	}
	return res, nil
}

// KillBorders removes every structure connected to the grid boundary:
// it reconstructs the image from its boundary shell and subtracts the
// reconstruction, leaving only structures that never touch a border.
func KillBorders(img []float64, dims grid.Dims, opts Options) ([]float64, error) {
	if err := dims.CheckLen(len(img)); err != nil {
		return nil, err
	}

	floor := minValue(img)
	marker := make([]float64, len(img))
	for z := 0; z < dims.Depth; z++ {
		for y := 0; y < dims.Height; y++ {
			for x := 0; x < dims.Width; x++ {
				idx := dims.Index(x, y, z)
				if onBorder(x, y, z, dims) {
					marker[idx] = img[idx]
				} else {
					marker[idx] = floor
				}
			}
		}
	}

	rec, err := ByDilation(marker, img, dims, opts)
	if err != nil {
		return nil, err
	}
	for i := range rec {
		rec[i] = img[i] - rec[i]
	}
	return rec, nil
}

// RegionalMinima marks every connected plateau with no strictly lower
// neighbor. The result is a binary grid: 1 on minima, 0 elsewhere.
func RegionalMinima(relief []float64, dims grid.Dims, opts Options) ([]uint8, error) {
	if err := dims.CheckLen(len(relief)); err != nil {
		return nil, err
	}
	if err := opts.Connectivity.Check(dims); err != nil {
		return nil, err
	}
	offs := opts.Connectivity.Offsets()

	minima := make([]uint8, len(relief))
	visited := make([]bool, len(relief))
	var plateau, queue []int

	for z := 0; z < dims.Depth; z++ {
		for y := 0; y < dims.Height; y++ {
			for x := 0; x < dims.Width; x++ {
				start := dims.Index(x, y, z)
				if visited[start] {
					continue
				}

				// Flood the plateau of equal values and watch for a
				// lower neighbor.
				level := relief[start]
				isMin := true
				plateau = plateau[:0]
				queue = append(queue[:0], start)
				visited[start] = true
				for len(queue) > 0 {
					idx := queue[len(queue)-1]
					queue = queue[:len(queue)-1]
					plateau = append(plateau, idx)

					px, py, pz := coords(idx, dims)
					for _, o := range offs {
						nx, ny, nz := px+o.X, py+o.Y, pz+o.Z
						if !dims.Contains(nx, ny, nz) {
							continue
						}
						nidx := dims.Index(nx, ny, nz)
						switch {
						case relief[nidx] < level:
							isMin = false
						case relief[nidx] == level && !visited[nidx]:
							visited[nidx] = true
							queue = append(queue, nidx)
						}
					}
				}

				if isMin {
					for _, idx := range plateau {
						minima[idx] = 1
					}
				}
			}
		}
	}
	return minima, nil
}

// ExtendedMinima marks the regional minima of the h-minima transform of
// the relief: minima whose dynamic (depth relative to their lowest
// saddle) is below h are merged into their neighbors. Increasing h can
// only merge basins, never split them.
func ExtendedMinima(relief []float64, h float64, dims grid.Dims, opts Options) ([]uint8, error) {
	if err := dims.CheckLen(len(relief)); err != nil {
		return nil, err
	}
	if h < 0 {
		return nil, fmt.Errorf("dynamic must be non-negative, got %g", h)
	}

	shifted := make([]float64, len(relief))
	for i, v := range relief {
		shifted[i] = v + h
	}
	hmin, err := ByErosion(shifted, relief, dims, opts)
	if err != nil {
		return nil, err
	}
	return RegionalMinima(hmin, dims, opts)
}

// ImposeMinima rebuilds the relief so that its regional minima are
// exactly the non-zero samples of minima, flattening every other
// depression. The input relief is left untouched.
func ImposeMinima(relief []float64, minima []uint8, dims grid.Dims, opts Options) ([]float64, error) {
	if err := dims.CheckLen(len(relief)); err != nil {
		return nil, err
	}
	if err := dims.CheckLen(len(minima)); err != nil {
		return nil, err
	}

	// Imposed minima are forced one level below the lowest relief value
	// so they always dominate the flattened depressions.
	floor := minValue(relief) - 1
	ceil := maxValue(relief) + 1
	marker := make([]float64, len(relief))
	limit := make([]float64, len(relief))
	for i, v := range relief {
		if minima[i] != 0 {
			marker[i] = floor
			limit[i] = floor
		} else {
			marker[i] = ceil
			limit[i] = v + 1
		}
	}
	return ByErosion(marker, limit, dims, opts)
}

func check(marker, mask []float64, dims grid.Dims, opts Options) error {
	if err := dims.CheckLen(len(marker)); err != nil {
		return fmt.Errorf("marker: %w", err)
	}
	if err := dims.CheckLen(len(mask)); err != nil {
		return fmt.Errorf("mask: %w", err)
	}
	return opts.Connectivity.Check(dims)
}

// run performs reconstruction by dilation of marker under mask.
func run(marker, mask []float64, dims grid.Dims, opts Options) ([]float64, error) {
	res := make([]float64, len(marker))
	copy(res, marker)

	fwd := opts.Connectivity.ForwardOffsets()
	bwd := opts.Connectivity.BackwardOffsets()

	// Forward raster pass.
	for z := 0; z < dims.Depth; z++ {
		for y := 0; y < dims.Height; y++ {
			for x := 0; x < dims.Width; x++ {
				idx := dims.Index(x, y, z)
				v := res[idx]
				for _, o := range fwd {
					nx, ny, nz := x+o.X, y+o.Y, z+o.Z
					if !dims.Contains(nx, ny, nz) {
						continue
					}
					if nv := res[dims.Index(nx, ny, nz)]; nv > v {
						v = nv
					}
				}
				if v > mask[idx] {
					v = mask[idx]
				}
				res[idx] = v
			}
		}
	}
	if !opts.Progress.Step("reconstruction", 1, 3) {
		return nil, grid.ErrCancelled
	}

	// Backward raster pass; samples whose backward neighbors could still
	// be raised seed the queue.
	var queue []int
	queued := make([]bool, len(res))
	for z := dims.Depth - 1; z >= 0; z-- {
		for y := dims.Height - 1; y >= 0; y-- {
			for x := dims.Width - 1; x >= 0; x-- {
				idx := dims.Index(x, y, z)
				v := res[idx]
				for _, o := range bwd {
					nx, ny, nz := x+o.X, y+o.Y, z+o.Z
					if !dims.Contains(nx, ny, nz) {
						continue
					}
					if nv := res[dims.Index(nx, ny, nz)]; nv > v {
						v = nv
					}
				}
				if v > mask[idx] {
					v = mask[idx]
				}
				res[idx] = v

				for _, o := range bwd {
					nx, ny, nz := x+o.X, y+o.Y, z+o.Z
					if !dims.Contains(nx, ny, nz) {
						continue
					}
					nidx := dims.Index(nx, ny, nz)
					if res[nidx] < v && res[nidx] < mask[nidx] {
						if !queued[idx] {
							queued[idx] = true
							queue = append(queue, idx)
						}
						break
					}
				}
			}
		}
	}
	if !opts.Progress.Step("reconstruction", 2, 3) {
		return nil, grid.ErrCancelled
	}

	// Queue propagation to fixed point.
	offs := opts.Connectivity.Offsets()
	popped := 0
	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		queued[idx] = false

		x, y, z := coords(idx, dims)
		for _, o := range offs {
			nx, ny, nz := x+o.X, y+o.Y, z+o.Z
			if !dims.Contains(nx, ny, nz) {
				continue
			}
			nidx := dims.Index(nx, ny, nz)
			v := res[idx]
			if v > mask[nidx] {
				v = mask[nidx]
			}
			if v > res[nidx] {
				res[nidx] = v
				if !queued[nidx] {
					queued[nidx] = true
					queue = append(queue, nidx)
				}
			}
		}

		popped++
		if popped%queueBatch == 0 {
			if !opts.Progress.Step("reconstruction", popped, popped+len(queue)) {
				return nil, grid.ErrCancelled
			}
		}
	}
	if !opts.Progress.Step("reconstruction", 3, 3) {
		return nil, grid.ErrCancelled
	}
	return res, nil
}

func negated(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = -x
	}
	return out
}

func minValue(v []float64) float64 {
	m := math.Inf(1)
	for _, x := range v {
		if x < m {
			m = x
		}
	}
	return m
}

func maxValue(v []float64) float64 {
	m := math.Inf(-1)
	for _, x := range v {
		if x > m {
			m = x
		}
	}
	return m
}

func onBorder(x, y, z int, dims grid.Dims) bool {
	if x == 0 || y == 0 || x == dims.Width-1 || y == dims.Height-1 {
		return true
	}
	return dims.Is3D() && (z == 0 || z == dims.Depth-1)
}

func coords(idx int, dims grid.Dims) (x, y, z int) {
	plane := dims.Width * dims.Height
	z = idx / plane
	rem := idx % plane
	return rem % dims.Width, rem / dims.Width, z
}
