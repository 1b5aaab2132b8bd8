package gpu

// ReleaseQueue defers the destruction of per-draw objects until the
// submission that used them has completed.
type ReleaseQueue struct {
	pending []pendingRelease
}

type pendingRelease struct {
	index   uint64
	release func()
}

// Defer schedules release to run once submission index has completed.
func (q *ReleaseQueue) Defer(index uint64, release func()) {
	q.pending = append(q.pending, pendingRelease{index: index, release: release})
}

// Collect runs the releases of every submission up to completed and
// returns how many ran.
func (q *ReleaseQueue) Collect(completed uint64) int {
	kept := q.pending[:0]
	n := 0
	for _, p := range q.pending {
		if p.index <= completed {
			p.release()
			n++
			continue
		}
		kept = append(kept, p)
	}
	clear(q.pending[len(kept):])
	q.pending = kept
	return n
}

// Flush runs all pending releases. The caller must have waited for the
// device to go idle.
func (q *ReleaseQueue) Flush() {
	for _, p := range q.pending {
		p.release()
	}
	q.pending = nil
}

// Len returns the number of pending releases.
func (q *ReleaseQueue) Len() int { return len(q.pending) }
