// Package chamfer provides the weighted-offset masks that define the
// discretized local distance metrics used by the distance transform and
// label dilation engines.
//
// A chamfer mask approximates the Euclidean metric by local relaxation:
// each offset carries a strictly positive weight, and the distance at a
// sample is the minimum over neighbors of their distance plus the offset
// weight. Short masks (city-block, chessboard) only visit direct
// neighbors; longer masks (chess-knight, Svensson 3-4-5-7) trade a larger
// offset radius for lower angular error.
//
// Masks are selected by name, built once per call and immutable
// afterwards, so a single mask may be shared read-only across a whole
// transform.
package chamfer

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"volmorph/pkg/grid"
)

// Preset names accepted by ByName.
const (
	// Chessboard uses unit weights for every direct neighbor.
	Chessboard = "chessboard"

	// CityBlock weights diagonal steps as two (three in 3D) axis steps.
	CityBlock = "city-block"

	// Borgefors is the classic 3-4 (3-4-5 in 3D) integer approximation.
	Borgefors = "borgefors"

	// QuasiEuclidean uses weights 1, sqrt(2), sqrt(3) (10, 14, 17 in
	// integer representation).
	QuasiEuclidean = "quasi-euclidean"

	// ChessKnight adds knight-move offsets with weights 5-7-11. 2D only.
	ChessKnight = "chess-knight"

	// Svensson is the 3-4-5-7 mask extending Borgefors with the
	// <1,1,2> offset family. 3D only.
	Svensson = "svensson"
)

// ErrUnknownMask is returned when a mask name is not recognized or is
// requested for the wrong dimensionality.
var ErrUnknownMask = errors.New("unknown chamfer mask")

// WeightedOffset pairs a neighbor offset with its integer and
// floating-point weights.
type WeightedOffset struct {
	grid.Offset

	// Weight is the integer weight used by the short-integer transform.
	Weight int32

	// FloatWeight is the floating-point weight used by the float
	// transform. For purely integer masks it equals float64(Weight).
	FloatWeight float64
}

// Mask is an immutable chamfer mask: a symmetric set of weighted offsets
// split into the halves preceding and following the current sample in
// raster order.
type Mask struct {
	name     string
	forward  []WeightedOffset
	backward []WeightedOffset
}

// ByName builds the named mask for the dimensionality of dims.
// It fails with an error wrapping ErrUnknownMask for unknown names and
// for 2D-only masks requested in 3D context or vice versa.
//
// The mapping from name to offsets and weights is deterministic: every
// call with the same name and dimensionality yields an identical mask.
func ByName(name string, dims grid.Dims) (*Mask, error) {
	is3D := dims.Is3D()
	switch name {
	case Chessboard:
		if is3D {
			return newMask3(name, 1, 1, 1), nil
		}
		return newMask2(name, 1, 1), nil
	case CityBlock:
		if is3D {
			return newMask3(name, 1, 2, 3), nil
		}
		return newMask2(name, 1, 2), nil
	case Borgefors:
		if is3D {
			return newMask3(name, 3, 4, 5), nil
		}
		return newMask2(name, 3, 4), nil
	case QuasiEuclidean:
		if is3D {
			m := newMask3(name, 10, 14, 17)
			m.setFloatWeights(1, math.Sqrt2, math.Sqrt(3))
			return m, nil
		}
		m := newMask2(name, 10, 14)
		m.setFloatWeights(1, math.Sqrt2)
		return m, nil
	case ChessKnight:
		if is3D {
			return nil, fmt.Errorf("%w: %q is 2D-only", ErrUnknownMask, name)
		}
		return newKnightMask(name, 5, 7, 11), nil
	case Svensson:
		if !is3D {
			return nil, fmt.Errorf("%w: %q is 3D-only", ErrUnknownMask, name)
		}
		return newSvenssonMask(name, 3, 4, 5, 7), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMask, name)
	}
}

// Names returns the preset names valid for the dimensionality of dims,
// sorted alphabetically.
func Names(dims grid.Dims) []string {
	names := []string{Chessboard, CityBlock, Borgefors, QuasiEuclidean}
	if dims.Is3D() {
		names = append(names, Svensson)
	} else {
		names = append(names, ChessKnight)
	}
	sort.Strings(names)
	return names
}

// Name returns the preset name the mask was built from.
func (m *Mask) Name() string {
	return m.name
}

// Forward returns the offsets preceding the current sample in raster
// order. The slice is shared; callers must not modify it.
func (m *Mask) Forward() []WeightedOffset {
	return m.forward
}

// Backward returns the offsets following the current sample in raster
// order. The slice is shared; callers must not modify it.
func (m *Mask) Backward() []WeightedOffset {
	return m.backward
}

// Offsets returns the full symmetric offset set, forward half first.
func (m *Mask) Offsets() []WeightedOffset {
	all := make([]WeightedOffset, 0, len(m.forward)+len(m.backward))
	all = append(all, m.forward...)
	all = append(all, m.backward...)
	return all
}

// UnitWeight returns the integer weight of an axis-aligned unit step.
// Integer distance maps are divided by this unit when normalization is
// requested.
func (m *Mask) UnitWeight() int32 {
	for _, o := range m.backward {
		if o.X == 1 && o.Y == 0 && o.Z == 0 {
			return o.Weight
		}
	}
	return 1
}

// FloatUnitWeight returns the floating-point weight of an axis-aligned
// unit step.
func (m *Mask) FloatUnitWeight() float64 {
	for _, o := range m.backward {
		if o.X == 1 && o.Y == 0 && o.Z == 0 {
			return o.FloatWeight
		}
	}
	return 1
}

// newMask2 builds a 2D mask from orthogonal and diagonal weights.
func newMask2(name string, ortho, diag int32) *Mask {
	var offs []WeightedOffset
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			w := ortho
			if dx != 0 && dy != 0 {
				w = diag
			}
			offs = append(offs, weighted(dx, dy, 0, w))
		}
	}
	return assemble(name, offs)
}

// newMask3 builds a 3D mask from orthogonal, face-diagonal and
// cube-diagonal weights.
func newMask3(name string, ortho, diag, diag3 int32) *Mask {
	var offs []WeightedOffset
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				n := abs(dx) + abs(dy) + abs(dz)
				if n == 0 {
					continue
				}
				var w int32
				switch n {
				case 1:
					w = ortho
				case 2:
					w = diag
				default:
					w = diag3
				}
				offs = append(offs, weighted(dx, dy, dz, w))
			}
		}
	}
	return assemble(name, offs)
}

// newKnightMask builds the 2D 5-7-11 mask: direct neighbors plus the
// eight knight moves.
func newKnightMask(name string, ortho, diag, knight int32) *Mask {
	m := newMask2(name, ortho, diag)
	var offs []WeightedOffset
	offs = append(offs, m.Offsets()...)
	for _, d := range [][2]int{{1, 2}, {2, 1}} {
		for _, sx := range []int{-1, 1} {
			for _, sy := range []int{-1, 1} {
				offs = append(offs, weighted(sx*d[0], sy*d[1], 0, knight))
			}
		}
	}
	return assemble(name, offs)
}

// newSvenssonMask builds the 3D 3-4-5-7 mask: the 3x3x3 neighborhood
// plus the 24 offsets of the <1,1,2> family.
func newSvenssonMask(name string, ortho, diag, diag3, diag112 int32) *Mask {
	m := newMask3(name, ortho, diag, diag3)
	var offs []WeightedOffset
	offs = append(offs, m.Offsets()...)
	for dz := -2; dz <= 2; dz++ {
		for dy := -2; dy <= 2; dy++ {
			for dx := -2; dx <= 2; dx++ {
				if abs(dx)*abs(dy)*abs(dz) != 1*1*2 {
					continue
				}
				if abs(dx)+abs(dy)+abs(dz) != 4 {
					continue
				}
				offs = append(offs, weighted(dx, dy, dz, diag112))
			}
		}
	}
	return assemble(name, offs)
}

// setFloatWeights overrides the float weights by integer weight class,
// in ascending order of the integer weights present in the mask.
func (m *Mask) setFloatWeights(floats ...float64) {
	classes := map[int32]float64{}
	var ints []int32
	for _, o := range m.Offsets() {
		if _, seen := classes[o.Weight]; !seen {
			classes[o.Weight] = 0
			ints = append(ints, o.Weight)
		}
	}
	sort.Slice(ints, func(i, j int) bool { return ints[i] < ints[j] })
	for i, w := range ints {
		if i < len(floats) {
			classes[w] = floats[i]
		}
	}
	for i := range m.forward {
		m.forward[i].FloatWeight = classes[m.forward[i].Weight]
	}
	for i := range m.backward {
		m.backward[i].FloatWeight = classes[m.backward[i].Weight]
	}
}

// assemble splits the symmetric offset set into raster-order halves.
func assemble(name string, offs []WeightedOffset) *Mask {
	m := &Mask{name: name}
	for _, o := range offs {
		if o.Before() {
			m.forward = append(m.forward, o)
		} else {
			m.backward = append(m.backward, o)
		}
	}
	return m
}

func weighted(dx, dy, dz int, w int32) WeightedOffset {
	return WeightedOffset{
		Offset:      grid.Offset{X: dx, Y: dy, Z: dz},
		Weight:      w,
		FloatWeight: float64(w),
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
