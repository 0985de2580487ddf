package chamfer

import (
	"errors"
	"math"
	"testing"

	"volmorph/pkg/grid"
)

// TestByNameDimensionality verifies that dimension-restricted masks are
// rejected in the wrong context.
func TestByNameDimensionality(t *testing.T) {
	d2 := grid.Dims2D(10, 10)
	d3 := grid.Dims3D(10, 10, 10)

	if _, err := ByName(ChessKnight, d3); !errors.Is(err, ErrUnknownMask) {
		t.Errorf("Expected ErrUnknownMask for chess-knight in 3D, got %v", err)
	}
	if _, err := ByName(Svensson, d2); !errors.Is(err, ErrUnknownMask) {
		t.Errorf("Expected ErrUnknownMask for svensson in 2D, got %v", err)
	}
	if _, err := ByName("no-such-mask", d2); !errors.Is(err, ErrUnknownMask) {
		t.Errorf("Expected ErrUnknownMask for bogus name, got %v", err)
	}

	for _, name := range Names(d2) {
		if _, err := ByName(name, d2); err != nil {
			t.Errorf("ByName(%q, 2D) failed: %v", name, err)
		}
	}
	for _, name := range Names(d3) {
		if _, err := ByName(name, d3); err != nil {
			t.Errorf("ByName(%q, 3D) failed: %v", name, err)
		}
	}
}

// TestMaskSymmetry checks the structural invariant of every preset:
// each forward offset has a backward twin with the same weight, and
// weights grow with the Euclidean length of the offset.
func TestMaskSymmetry(t *testing.T) {
	cases := []struct {
		name string
		dims grid.Dims
	}{
		{Chessboard, grid.Dims2D(4, 4)},
		{CityBlock, grid.Dims2D(4, 4)},
		{Borgefors, grid.Dims2D(4, 4)},
		{QuasiEuclidean, grid.Dims2D(4, 4)},
		{ChessKnight, grid.Dims2D(4, 4)},
		{Chessboard, grid.Dims3D(4, 4, 4)},
		{CityBlock, grid.Dims3D(4, 4, 4)},
		{Borgefors, grid.Dims3D(4, 4, 4)},
		{QuasiEuclidean, grid.Dims3D(4, 4, 4)},
		{Svensson, grid.Dims3D(4, 4, 4)},
	}

	for _, tc := range cases {
		mask, err := ByName(tc.name, tc.dims)
		if err != nil {
			t.Fatalf("ByName(%q) failed: %v", tc.name, err)
		}

		if len(mask.Forward()) != len(mask.Backward()) {
			t.Errorf("%s: forward/backward halves differ in size: %d vs %d",
				tc.name, len(mask.Forward()), len(mask.Backward()))
		}

		// Every offset must have a negated twin with the same weight.
		type key struct {
			x, y, z int
			w       int32
		}
		twins := make(map[key]int)
		for _, o := range mask.Offsets() {
			twins[key{o.X, o.Y, o.Z, o.Weight}]++
		}
		for _, o := range mask.Offsets() {
			if twins[key{-o.X, -o.Y, -o.Z, o.Weight}] == 0 {
				t.Errorf("%s: offset (%d,%d,%d) has no negated twin", tc.name, o.X, o.Y, o.Z)
			}
		}

		// Weights are strictly positive and non-decreasing with length.
		for _, a := range mask.Offsets() {
			if a.Weight <= 0 || a.FloatWeight <= 0 {
				t.Errorf("%s: non-positive weight on offset (%d,%d,%d)", tc.name, a.X, a.Y, a.Z)
			}
			for _, b := range mask.Offsets() {
				la := float64(a.X*a.X + a.Y*a.Y + a.Z*a.Z)
				lb := float64(b.X*b.X + b.Y*b.Y + b.Z*b.Z)
				if la < lb && a.Weight > b.Weight {
					t.Errorf("%s: weight %d of shorter offset (%d,%d,%d) exceeds weight %d of (%d,%d,%d)",
						tc.name, a.Weight, a.X, a.Y, a.Z, b.Weight, b.X, b.Y, b.Z)
				}
			}
		}
	}
}

// TestMaskDeterminism verifies that repeated construction yields the
// same table.
func TestMaskDeterminism(t *testing.T) {
	d := grid.Dims2D(8, 8)
	a, _ := ByName(ChessKnight, d)
	b, _ := ByName(ChessKnight, d)

	if len(a.Offsets()) != len(b.Offsets()) {
		t.Fatalf("Mask size changed between calls: %d vs %d", len(a.Offsets()), len(b.Offsets()))
	}
	for i, o := range a.Offsets() {
		if o != b.Offsets()[i] {
			t.Errorf("Offset %d differs between calls: %+v vs %+v", i, o, b.Offsets()[i])
		}
	}
}

// TestQuasiEuclideanFloatWeights checks the irrational float weights of
// the quasi-Euclidean preset.
func TestQuasiEuclideanFloatWeights(t *testing.T) {
	mask, err := ByName(QuasiEuclidean, grid.Dims3D(4, 4, 4))
	if err != nil {
		t.Fatalf("ByName failed: %v", err)
	}

	want := map[int32]float64{10: 1, 14: math.Sqrt2, 17: math.Sqrt(3)}
	for _, o := range mask.Offsets() {
		expected, ok := want[o.Weight]
		if !ok {
			t.Fatalf("Unexpected integer weight %d", o.Weight)
		}
		if math.Abs(o.FloatWeight-expected) > 1e-12 {
			t.Errorf("Offset (%d,%d,%d): expected float weight %f, got %f",
				o.X, o.Y, o.Z, expected, o.FloatWeight)
		}
	}

	if mask.UnitWeight() != 10 {
		t.Errorf("Expected unit weight 10, got %d", mask.UnitWeight())
	}
	if math.Abs(mask.FloatUnitWeight()-1.0) > 1e-12 {
		t.Errorf("Expected float unit weight 1.0, got %f", mask.FloatUnitWeight())
	}
}

// TestKnightMaskSize checks the offset counts of the extended masks.
func TestKnightMaskSize(t *testing.T) {
	knight, _ := ByName(ChessKnight, grid.Dims2D(4, 4))
	if len(knight.Offsets()) != 16 {
		t.Errorf("chess-knight: expected 16 offsets (8 direct + 8 knight), got %d", len(knight.Offsets()))
	}

	svensson, _ := ByName(Svensson, grid.Dims3D(4, 4, 4))
	if len(svensson.Offsets()) != 50 {
		t.Errorf("svensson: expected 50 offsets (26 direct + 24 <1,1,2>), got %d", len(svensson.Offsets()))
	}
}
