package providers

import (
	"math/rand/v2"
	"strings"
	"sync"
)

// Rotation hands out topics so every topic gets a turn before any repeats. A topic
// that produced a draft moves to the used list; when nothing is left available, or on
// Reset, the used topics come back.
type Rotation struct {
	mu        sync.Mutex
	available []string
	used      []string
	shuffle   func([]string)
}

// NewRotation starts with every topic available.
func NewRotation(topics []string) *Rotation {
	r := &Rotation{shuffle: func(s []string) {
		rand.Shuffle(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] })
	}}
	seen := map[string]struct{}{}
	for _, t := range topics {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		r.available = append(r.available, t)
	}
	return r
}

// Next returns the available topics in a fresh random order, refilling from the used
// list first if every topic has been used.
func (r *Rotation) Next() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.available) == 0 {
		r.resetLocked()
	}
	out := append([]string(nil), r.available...)
	r.shuffle(out)
	return out
}

// MarkUsed moves topic to the used list.
func (r *Rotation) MarkUsed(topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, t := range r.available {
		if strings.EqualFold(t, topic) {
			r.available = append(r.available[:i], r.available[i+1:]...)
			r.used = append(r.used, t)
			return
		}
	}
}

// Reset makes every topic available again.
func (r *Rotation) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked()
}

func (r *Rotation) resetLocked() {
	r.available = append(r.available, r.used...)
	r.used = nil
}

// Counts reports how many topics are available and used.
func (r *Rotation) Counts() (available, used int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.available), len(r.used)
}
