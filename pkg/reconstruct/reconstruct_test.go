package reconstruct

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"volmorph/pkg/grid"
)

func opts8() Options {
	return Options{Connectivity: grid.Conn8}
}

func opts4() Options {
	return Options{Connectivity: grid.Conn4}
}

// TestByDilationBounds verifies that for valid input the result is
// pointwise between marker and mask.
func TestByDilationBounds(t *testing.T) {
	dims := grid.Dims2D(8, 6)
	marker := make([]float64, dims.Len())
	mask := make([]float64, dims.Len())
	for y := 0; y < dims.Height; y++ {
		for x := 0; x < dims.Width; x++ {
			idx := dims.Index(x, y, 0)
			mask[idx] = float64((x*7+y*3)%10 + 1)
		}
	}
	marker[dims.Index(3, 2, 0)] = mask[dims.Index(3, 2, 0)]
	marker[dims.Index(6, 4, 0)] = 1

	res, err := ByDilation(marker, mask, dims, opts8())
	if err != nil {
		t.Fatalf("ByDilation failed: %v", err)
	}
	for i := range res {
		if res[i] < marker[i] {
			t.Errorf("Result %f below marker %f at index %d", res[i], marker[i], i)
		}
		if res[i] > mask[i] {
			t.Errorf("Result %f above mask %f at index %d", res[i], mask[i], i)
		}
	}
}

// TestByDilationIdempotent verifies that reconstructing the result again
// under the same mask changes nothing.
func TestByDilationIdempotent(t *testing.T) {
	dims := grid.Dims2D(9, 7)
	marker := make([]float64, dims.Len())
	mask := make([]float64, dims.Len())
	for i := range mask {
		mask[i] = float64((i*13)%17 + 1)
	}
	marker[dims.Index(4, 3, 0)] = mask[dims.Index(4, 3, 0)]
	marker[dims.Index(1, 5, 0)] = 2

	once, err := ByDilation(marker, mask, dims, opts4())
	if err != nil {
		t.Fatalf("ByDilation failed: %v", err)
	}
	twice, err := ByDilation(once, mask, dims, opts4())
	if err != nil {
		t.Fatalf("ByDilation (second pass) failed: %v", err)
	}
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("Reconstruction is not idempotent (-once +twice):\n%s", diff)
	}
}

// TestByDilationPlateaus checks reconstruction on a grid of two plateaus
// separated by a barrier: the marker floods its own plateau fully and
// crosses into the other only up to the barrier height.
func TestByDilationPlateaus(t *testing.T) {
	dims := grid.Dims2D(7, 1)
	mask := []float64{5, 5, 5, 1, 4, 4, 4}
	marker := []float64{5, 0, 0, 0, 0, 0, 0}

	res, err := ByDilation(marker, mask, dims, opts4())
	if err != nil {
		t.Fatalf("ByDilation failed: %v", err)
	}

	want := []float64{5, 5, 5, 1, 1, 1, 1}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("Reconstruction mismatch (-want +got):\n%s", diff)
	}
}

// TestByErosionDual checks the erosion dual on a one-dimensional
// profile.
func TestByErosionDual(t *testing.T) {
	dims := grid.Dims2D(7, 1)
	mask := []float64{1, 1, 1, 6, 3, 3, 3}
	marker := []float64{1, 8, 8, 8, 8, 8, 8}

	res, err := ByErosion(marker, mask, dims, opts4())
	if err != nil {
		t.Fatalf("ByErosion failed: %v", err)
	}

	want := []float64{1, 1, 1, 6, 6, 6, 6}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("Erosion reconstruction mismatch (-want +got):\n%s", diff)
	}
}

// TestValidate verifies the defensive ordering check.
func TestValidate(t *testing.T) {
	dims := grid.Dims2D(3, 1)
	mask := []float64{1, 2, 3}
	marker := []float64{0, 5, 0}

	opts := opts4()
	opts.Validate = true
	if _, err := ByDilation(marker, mask, dims, opts); !errors.Is(err, ErrConstraint) {
		t.Errorf("Expected ErrConstraint for marker > mask, got %v", err)
	}
	if _, err := ByErosion(mask, marker, dims, opts); !errors.Is(err, ErrConstraint) {
		t.Errorf("Expected ErrConstraint for marker < mask, got %v", err)
	}

	// Without Validate the engine proceeds and still terminates.
	if _, err := ByDilation(marker, mask, dims, opts4()); err != nil {
		t.Errorf("Unvalidated reconstruction should not fail, got %v", err)
	}
}

// TestKillBorders verifies that a structure touching the boundary is
// removed while an interior structure survives.
func TestKillBorders(t *testing.T) {
	dims := grid.Dims2D(7, 5)
	img := make([]float64, dims.Len())
	// Blob touching the left border.
	img[dims.Index(0, 2, 0)] = 9
	img[dims.Index(1, 2, 0)] = 9
	// Interior blob.
	img[dims.Index(4, 2, 0)] = 7

	res, err := KillBorders(img, dims, opts8())
	if err != nil {
		t.Fatalf("KillBorders failed: %v", err)
	}

	if res[dims.Index(0, 2, 0)] != 0 || res[dims.Index(1, 2, 0)] != 0 {
		t.Errorf("Border-connected blob not removed: %f %f",
			res[dims.Index(0, 2, 0)], res[dims.Index(1, 2, 0)])
	}
	if res[dims.Index(4, 2, 0)] != 7 {
		t.Errorf("Interior blob altered: expected 7, got %f", res[dims.Index(4, 2, 0)])
	}
}

// TestRegionalMinima checks plateau handling: an equal-valued plateau
// with no lower neighbor is a single minimum; a plateau with a lower
// neighbor is not.
func TestRegionalMinima(t *testing.T) {
	dims := grid.Dims2D(5, 1)
	relief := []float64{3, 1, 1, 2, 0}

	minima, err := RegionalMinima(relief, dims, opts4())
	if err != nil {
		t.Fatalf("RegionalMinima failed: %v", err)
	}

	want := []uint8{0, 1, 1, 0, 1}
	if diff := cmp.Diff(want, minima); diff != "" {
		t.Errorf("Regional minima mismatch (-want +got):\n%s", diff)
	}
}

// TestExtendedMinimaMerging verifies that increasing the dynamic merges
// shallow minima: h=0 keeps both depressions, h=2 suppresses the one of
// depth 1.
func TestExtendedMinimaMerging(t *testing.T) {
	dims := grid.Dims2D(9, 1)
	// Two depressions: one of depth 5 (value 0 below saddle 5), one of
	// depth 1 (value 4 below saddle 5).
	relief := []float64{9, 0, 0, 5, 4, 4, 5, 9, 9}

	shallow, err := ExtendedMinima(relief, 0.5, dims, opts4())
	if err != nil {
		t.Fatalf("ExtendedMinima(0.5) failed: %v", err)
	}
	if countNonZero(shallow) != 4 {
		t.Errorf("Expected both minima plateaus (4 samples) at h=0.5, got %d marked", countNonZero(shallow))
	}

	merged, err := ExtendedMinima(relief, 2, dims, opts4())
	if err != nil {
		t.Fatalf("ExtendedMinima(2) failed: %v", err)
	}
	if merged[1] != 1 || merged[2] != 1 {
		t.Errorf("Deep minimum lost at h=2: %v", merged)
	}
	if merged[4] != 0 || merged[5] != 0 {
		t.Errorf("Shallow minimum of depth 1 should be suppressed at h=2: %v", merged)
	}
}

// TestImposeMinima verifies that after imposition the regional minima
// are exactly the requested markers.
func TestImposeMinima(t *testing.T) {
	dims := grid.Dims2D(9, 1)
	relief := []float64{9, 0, 0, 5, 4, 4, 5, 9, 9}
	minima := []uint8{0, 1, 1, 0, 0, 0, 0, 0, 0}

	imposed, err := ImposeMinima(relief, minima, dims, opts4())
	if err != nil {
		t.Fatalf("ImposeMinima failed: %v", err)
	}

	got, err := RegionalMinima(imposed, dims, opts4())
	if err != nil {
		t.Fatalf("RegionalMinima failed: %v", err)
	}
	if diff := cmp.Diff(minima, got); diff != "" {
		t.Errorf("Imposed minima mismatch (-want +got):\n%s", diff)
	}
}

// TestConnectivityMismatch verifies configuration validation.
func TestConnectivityMismatch(t *testing.T) {
	dims := grid.Dims3D(3, 3, 3)
	buf := make([]float64, dims.Len())

	if _, err := ByDilation(buf, buf, dims, opts8()); err == nil {
		t.Error("Expected error for 2D connectivity on a 3D grid, got nil")
	}
}

// TestReconstructionCancellation verifies the hook aborts cleanly.
func TestReconstructionCancellation(t *testing.T) {
	dims := grid.Dims2D(5, 5)
	buf := make([]float64, dims.Len())

	opts := opts4()
	opts.Progress = func(stage string, done, total int) bool { return false }
	res, err := ByDilation(buf, buf, dims, opts)
	if !errors.Is(err, grid.ErrCancelled) {
		t.Fatalf("Expected ErrCancelled, got %v", err)
	}
	if res != nil {
		t.Errorf("Expected no buffer on cancellation, got %v", res)
	}
}

func countNonZero(v []uint8) int {
	n := 0
	for _, x := range v {
		if x != 0 {
			n++
		}
	}
	return n
}
