// Package verdictbus implements the Verdict Buffer and subscriber fanout: a bounded,
// commit-order-preserving ring of recent Verdicts, fanned out to subscribers
// via copy-on-write snapshots and bounded per-subscriber queues.
package verdictbus

import (
	"sync"

	"github.com/jroosing/dnsverdict/internal/model"
)

// DefaultBufferCapacity is the default number of retained committed verdicts.
const DefaultBufferCapacity = 200

// Buffer is a bounded, oldest-evicted, commit-order-preserving ring of
// recently committed Verdicts.
type Buffer struct {
	mu       sync.Mutex
	entries  []model.Verdict
	capacity int
	next     int
	full     bool
}

// NewBuffer returns a Buffer with the given capacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &Buffer{capacity: capacity}
}

// Append records v as the most recently committed verdict, evicting the
// oldest entry if the buffer is at capacity.
func (b *Buffer) Append(v model.Verdict) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.entries) < b.capacity {
		b.entries = append(b.entries, v)
	} else {
		b.entries[b.next] = v
		b.full = true
	}
	b.next = (b.next + 1) % b.capacity
}

// Recent returns up to n of the most recently committed verdicts,
// most-recent first.
func (b *Buffer) Recent(n int) []model.Verdict {
	b.mu.Lock()
	defer b.mu.Unlock()

	ordered := b.orderedLocked()
	if n <= 0 || n > len(ordered) {
		n = len(ordered)
	}
	out := make([]model.Verdict, n)
	for i := 0; i < n; i++ {
		out[i] = ordered[len(ordered)-1-i]
	}
	return out
}

// orderedLocked returns entries in commit order (oldest first). Caller must
// hold b.mu.
func (b *Buffer) orderedLocked() []model.Verdict {
	if !b.full {
		out := make([]model.Verdict, len(b.entries))
		copy(out, b.entries)
		return out
	}
	out := make([]model.Verdict, 0, len(b.entries))
	out = append(out, b.entries[b.next:]...)
	out = append(out, b.entries[:b.next]...)
	return out
}
