// Package grid holds the plain data types shared by every engine package:
// grid dimensions, neighborhood connectivities, sentinel values and the
// progress/cancellation hook. It has no dependencies on the engines.
package grid

import (
	"errors"
	"fmt"
	"math"
)

// Unreached is the saturating sentinel for integer chamfer distances.
// A sample still carrying this value after both raster sweeps is
// disconnected from the background; this is reported, not an error.
const Unreached int32 = math.MaxInt32

// WatershedLine is the label reserved for samples where two or more
// catchment basins meet during flooding.
const WatershedLine int32 = -1

// ErrCancelled is returned when a progress hook requests cancellation.
// No partial result buffer accompanies it.
var ErrCancelled = errors.New("operation cancelled")

// Dims describes the extent of a dense 2D or 3D grid stored as a flat
// slice in row-major order, indexed z*Width*Height + y*Width + x.
// Depth is 1 for 2D grids.
type Dims struct {
	// Width is the extent along x in samples.
	Width int

	// Height is the extent along y in samples.
	Height int

	// Depth is the extent along z in samples; 1 for a single 2D plane.
	Depth int
}

// Dims2D returns the dimensions of a single 2D plane.
func Dims2D(width, height int) Dims {
	return Dims{Width: width, Height: height, Depth: 1}
}

// Dims3D returns the dimensions of a 3D volume.
func Dims3D(width, height, depth int) Dims {
	return Dims{Width: width, Height: height, Depth: depth}
}

// Is3D reports whether the grid has more than one plane.
func (d Dims) Is3D() bool {
	return d.Depth > 1
}

// Len returns the number of samples in the grid.
func (d Dims) Len() int {
	return d.Width * d.Height * d.Depth
}

// Index returns the flat index of sample (x, y, z).
func (d Dims) Index(x, y, z int) int {
	return z*d.Width*d.Height + y*d.Width + x
}

// Contains reports whether (x, y, z) lies inside the grid bounds.
func (d Dims) Contains(x, y, z int) bool {
	return x >= 0 && x < d.Width && y >= 0 && y < d.Height && z >= 0 && z < d.Depth
}

// CheckLen verifies that a buffer of n samples matches the grid extent.
// Engines call this on every input buffer before any work starts.
func (d Dims) CheckLen(n int) error {
	if d.Width < 1 || d.Height < 1 || d.Depth < 1 {
		return fmt.Errorf("invalid dimensions %dx%dx%d", d.Width, d.Height, d.Depth)
	}
	if n != d.Len() {
		return fmt.Errorf("buffer length %d does not match dimensions %dx%dx%d (want %d)",
			n, d.Width, d.Height, d.Depth, d.Len())
	}
	return nil
}

// Offset is a relative step between a sample and one of its neighbors.
type Offset struct {
	X, Y, Z int
}

// Before reports whether the offset points to a sample visited earlier
// in raster order (the "forward" half of a neighborhood or chamfer mask).
func (o Offset) Before() bool {
	if o.Z != 0 {
		return o.Z < 0
	}
	if o.Y != 0 {
		return o.Y < 0
	}
	return o.X < 0
}

// Connectivity selects the neighbor relation used for propagation:
// 4 or 8 neighbors in 2D, 6 or 26 in 3D.
type Connectivity int

const (
	Conn4  Connectivity = 4
	Conn8  Connectivity = 8
	Conn6  Connectivity = 6
	Conn26 Connectivity = 26
)

// Check validates the connectivity against the grid dimensionality.
func (c Connectivity) Check(d Dims) error {
	switch c {
	case Conn4, Conn8:
		if d.Is3D() {
			return fmt.Errorf("connectivity %d is 2D-only but grid has depth %d", c, d.Depth)
		}
	case Conn6, Conn26:
		if !d.Is3D() {
			return fmt.Errorf("connectivity %d is 3D-only but grid is a single plane", c)
		}
	default:
		return fmt.Errorf("unknown connectivity %d (want 4, 8, 6 or 26)", c)
	}
	return nil
}

// Offsets returns the full neighborhood for the connectivity, in raster
// order. The slice is freshly allocated and safe to keep.
func (c Connectivity) Offsets() []Offset {
	var offs []Offset
	switch c {
	case Conn4:
		offs = []Offset{{0, -1, 0}, {-1, 0, 0}, {1, 0, 0}, {0, 1, 0}}
	case Conn8:
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				offs = append(offs, Offset{dx, dy, 0})
			}
		}
	case Conn6:
		offs = []Offset{
			{0, 0, -1}, {0, -1, 0}, {-1, 0, 0},
			{1, 0, 0}, {0, 1, 0}, {0, 0, 1},
		}
	case Conn26:
		for dz := -1; dz <= 1; dz++ {
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 && dz == 0 {
						continue
					}
					offs = append(offs, Offset{dx, dy, dz})
				}
			}
		}
	}
	return offs
}

// ForwardOffsets returns the neighbors visited before the current sample
// in raster order.
func (c Connectivity) ForwardOffsets() []Offset {
	var fwd []Offset
	for _, o := range c.Offsets() {
		if o.Before() {
			fwd = append(fwd, o)
		}
	}
	return fwd
}

// BackwardOffsets returns the neighbors visited after the current sample
// in raster order.
func (c Connectivity) BackwardOffsets() []Offset {
	var bwd []Offset
	for _, o := range c.Offsets() {
		if !o.Before() {
			bwd = append(bwd, o)
		}
	}
	return bwd
}
