// Package history keeps the most recent raw orientation estimates for
// diagnostics and method comparison.
package history

import (
	"sync"
	"time"

	"ahrs-ng/internal/filter"
	"ahrs-ng/internal/rotation"
)

const DefaultSize = 512

// Entry is one raw estimate.
type Entry struct {
	At          time.Time            `json:"at"`
	Method      filter.Method        `json:"method"`
	Orientation rotation.Orientation `json:"orientation"`
}

// Ring is a fixed-size, lock-protected log of the latest entries. It
// implements filter.Recorder and is safe for concurrent use.
type Ring struct {
	now func() time.Time

	mu    sync.RWMutex
	buf   []Entry
	next  int
	full  bool
	total uint64
}

func NewRing(size int, now func() time.Time) *Ring {
	if size <= 0 {
		size = DefaultSize
	}
	if now == nil {
		now = time.Now
	}
	return &Ring{now: now, buf: make([]Entry, size)}
}

func (r *Ring) Record(method filter.Method, o rotation.Orientation) {
	at := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = Entry{At: at, Method: method, Orientation: o}
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
	r.total++
}

// Entries returns up to limit of the newest entries, oldest first. A limit
// of zero or less returns everything retained.
func (r *Ring) Entries(limit int) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := r.next
	if r.full {
		n = len(r.buf)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Entry, 0, limit)
	start := r.next - limit
	for i := 0; i < limit; i++ {
		idx := (start + i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}

// Len is the number of retained entries.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// Total counts every entry ever recorded, including overwritten ones.
func (r *Ring) Total() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}

func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.buf {
		r.buf[i] = Entry{}
	}
	r.next, r.full = 0, false
}
