// Package watershed floods a grayscale relief from seeded minima,
// partitioning the domain into labeled catchment basins separated by
// watershed lines.
//
// Flooding follows the Vincent-Soille priority-flood scheme: a priority
// queue ordered by intensity, with a monotonically increasing insertion
// sequence number as tie-break so the output is deterministic across
// runs regardless of heap internals. Candidate minima come from
// extended-minima imposition (see package reconstruct), which merges
// minima shallower than a caller-supplied dynamic and is the lever that
// limits over-segmentation.
package watershed

import (
	"container/heap"
	"fmt"
	"math"

	"volmorph/pkg/grid"
	"volmorph/pkg/labeling"
	"volmorph/pkg/reconstruct"
)

// Options controls a flooding invocation.
type Options struct {
	// Connectivity selects the neighbor relation: 4 or 8 in 2D, 6 or 26
	// in 3D.
	Connectivity grid.Connectivity

	// HMin and HMax bound the intensities that participate in flooding.
	// Samples outside the window are excluded and stay unlabeled in the
	// output. If HMax <= HMin the whole intensity range participates.
	HMin, HMax float64

	// ROI optionally restricts flooding to the samples where it is
	// true. Must match the relief shape when present.
	ROI []bool

	// Progress is the optional cancellation hook, called once per batch
	// of popped queue entries.
	Progress grid.ProgressFunc
}

// floodBatch is the number of popped queue entries between progress
// checkpoints.
const floodBatch = 4096

// Run floods the relief from the seeded markers. Markers use 0 for
// unlabeled samples and k > 0 for basin k; the result keeps the basin
// ids, assigns grid.WatershedLine to samples touching two or more
// basins, and leaves out-of-range or unreachable samples at 0.
// The inputs are untouched.
func Run(relief []float64, markers []int32, dims grid.Dims, opts Options) ([]int32, error) {
	if err := dims.CheckLen(len(relief)); err != nil {
		return nil, fmt.Errorf("relief: %w", err)
	}
	if err := dims.CheckLen(len(markers)); err != nil {
		return nil, fmt.Errorf("markers: %w", err)
	}
	if err := opts.Connectivity.Check(dims); err != nil {
		return nil, err
	}
	if opts.ROI != nil {
		if err := dims.CheckLen(len(opts.ROI)); err != nil {
			return nil, fmt.Errorf("roi: %w", err)
		}
	}

	hMin, hMax := opts.HMin, opts.HMax
	if hMax <= hMin {
		hMin, hMax = math.Inf(-1), math.Inf(1)
	}
	inRange := func(idx int) bool {
		if opts.ROI != nil && !opts.ROI[idx] {
			return false
		}
		return relief[idx] >= hMin && relief[idx] <= hMax
	}

	labels := make([]int32, len(markers))
	q := &floodQueue{}
	heap.Init(q)

	for idx, m := range markers {
		if m > 0 && inRange(idx) {
			labels[idx] = m
			q.push(idx, relief[idx])
		}
	}

	offs := opts.Connectivity.Offsets()
	popped := 0
	for q.Len() > 0 {
		idx := heap.Pop(q).(entry).idx
		x, y, z := coords(idx, dims)

		for _, o := range offs {
			nx, ny, nz := x+o.X, y+o.Y, z+o.Z
			if !dims.Contains(nx, ny, nz) {
				continue
			}
			nidx := dims.Index(nx, ny, nz)
			if labels[nidx] != 0 || !inRange(nidx) {
				continue
			}

			// The neighbor joins the popped sample's basin unless it
			// already touches a second, different basin; then it is a
			// watershed line and never propagates further.
			basin := neighborBasin(labels, dims, offs, nx, ny, nz)
			labels[nidx] = basin
			if basin != grid.WatershedLine {
				q.push(nidx, relief[nidx])
			}
		}

		popped++
		if popped%floodBatch == 0 {
			if !opts.Progress.Step("watershed", popped, popped+q.Len()) {
				return nil, grid.ErrCancelled
			}
		}
	}

	if !opts.Progress.Step("watershed", popped, popped) {
		return nil, grid.ErrCancelled
	}
	return labels, nil
}

// Segment is the unseeded entry point: it extracts the extended minima
// of the relief for the given dynamic, imposes them, labels them, and
// floods the imposed relief. The intensity window of opts applies to
// the flooding stage.
func Segment(relief []float64, dynamic float64, dims grid.Dims, opts Options) ([]int32, error) {
	if err := dims.CheckLen(len(relief)); err != nil {
		return nil, err
	}

	ropts := reconstruct.Options{
		Connectivity: opts.Connectivity,
		Progress:     opts.Progress,
	}
	minima, err := reconstruct.ExtendedMinima(relief, dynamic, dims, ropts)
	if err != nil {
		return nil, err
	}
	imposed, err := reconstruct.ImposeMinima(relief, minima, dims, ropts)
	if err != nil {
		return nil, err
	}
	markers, _, err := labeling.ConnectedComponents(minima, dims, opts.Connectivity)
	if err != nil {
		return nil, err
	}
	return Run(imposed, markers, dims, opts)
}

// neighborBasin returns the single basin id adjacent to (x, y, z), or
// grid.WatershedLine when two or more distinct basins touch it.
func neighborBasin(labels []int32, dims grid.Dims, offs []grid.Offset, x, y, z int) int32 {
	basin := int32(0)
	for _, o := range offs {
		nx, ny, nz := x+o.X, y+o.Y, z+o.Z
		if !dims.Contains(nx, ny, nz) {
			continue
		}
		l := labels[dims.Index(nx, ny, nz)]
		if l <= 0 {
			continue
		}
		if basin == 0 {
			basin = l
		} else if basin != l {
			return grid.WatershedLine
		}
	}
	return basin
}

// entry is one queued candidate: flat index, its intensity, and the
// insertion sequence number used as deterministic tie-break.
type entry struct {
	idx   int
	value float64
	seq   int
}

// floodQueue is a binary heap of entries ordered by (value, seq).
type floodQueue struct {
	entries []entry
	nextSeq int
}

func (q *floodQueue) push(idx int, value float64) {
	heap.Push(q, entry{idx: idx, value: value, seq: q.nextSeq})
	q.nextSeq++
}

func (q *floodQueue) Len() int { return len(q.entries) }

func (q *floodQueue) Less(i, j int) bool {
	if q.entries[i].value != q.entries[j].value {
		return q.entries[i].value < q.entries[j].value
	}
	return q.entries[i].seq < q.entries[j].seq
}

func (q *floodQueue) Swap(i, j int) {
	q.entries[i], q.entries[j] = q.entries[j], q.entries[i]
}

func (q *floodQueue) Push(x any) {
	q.entries = append(q.entries, x.(entry))
}

func (q *floodQueue) Pop() any {
	e := q.entries[len(q.entries)-1]
	q.entries = q.entries[:len(q.entries)-1]
	return e
}

func coords(idx int, dims grid.Dims) (x, y, z int) {
	plane := dims.Width * dims.Height
	z = idx / plane
	rem := idx % plane
	return rem % dims.Width, rem / dims.Width, z
}
