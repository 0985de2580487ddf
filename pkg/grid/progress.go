package grid

// ProgressFunc is the optional progress and cancellation hook passed to
// long-running transforms. Engines call it at coarse checkpoints (after a
// raster sweep, after a batch of popped queue entries) with the stage name
// and a done/total pair. Returning false requests cancellation: the engine
// stops at the next checkpoint and returns ErrCancelled with no buffer.
//
// A nil ProgressFunc disables reporting and never cancels.
type ProgressFunc func(stage string, done, total int) bool

// Step invokes the hook if present and reports whether work may continue.
func (p ProgressFunc) Step(stage string, done, total int) bool {
	if p == nil {
		return true
	}
	return p(stage, done, total)
}
