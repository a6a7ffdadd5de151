package playback

import (
	"sort"

	"github.com/tanklab/tanktalk/internal/backend"
)

// Queue is one batch of dialogue lines plus a display cursor. At most one
// queue drains at a time; installing a new one discards the old.
type Queue struct {
	lines []backend.DialogueLine
	index int
}

// NewQueue builds a queue from a generation batch, stable-sorted ascending
// by sequence. Stable keeps original array order when sequences collide.
func NewQueue(lines []backend.DialogueLine) *Queue {
	sorted := append([]backend.DialogueLine(nil), lines...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Sequence < sorted[j].Sequence
	})
	return &Queue{lines: sorted}
}

// Next returns the line under the cursor and advances it.
// ok is false once the queue is drained.
func (q *Queue) Next() (backend.DialogueLine, bool) {
	if q == nil || q.index >= len(q.lines) {
		return backend.DialogueLine{}, false
	}
	line := q.lines[q.index]
	q.index++
	return line, true
}

// Done reports whether every line has been consumed.
func (q *Queue) Done() bool {
	return q == nil || q.index >= len(q.lines)
}

// Progress returns the cursor position and total line count.
func (q *Queue) Progress() (current, total int) {
	if q == nil {
		return 0, 0
	}
	return q.index, len(q.lines)
}
