package dispatch

import (
	"sync"
	"time"
)

// Record is one routed interaction.
type Record struct {
	At      time.Time     `json:"at"`
	Kind    string        `json:"kind"`
	Command string        `json:"command,omitempty"`
	UserID  string        `json:"user_id"`
	GuildID string        `json:"guild_id,omitempty"`
	Outcome string        `json:"outcome"`
	Took    time.Duration `json:"took_ns"`
}

// history is a fixed size ring of the latest records.
type history struct {
	mu   sync.Mutex
	buf  []Record
	next int
	full bool
}

func newHistory(size int) *history {
	if size <= 0 {
		size = 1
	}
	return &history{buf: make([]Record, size)}
}

func (h *history) add(r Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf[h.next] = r
	h.next = (h.next + 1) % len(h.buf)
	if h.next == 0 {
		h.full = true
	}
}

// latest returns up to n records, newest first.
func (h *history) latest(n int) []Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	size := h.next
	if h.full {
		size = len(h.buf)
	}
	if n <= 0 || n > size {
		n = size
	}
	out := make([]Record, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, h.buf[(h.next-i+len(h.buf))%len(h.buf)])
	}
	return out
}
