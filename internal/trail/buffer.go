package trail

import (
	"hash/fnv"
	"sort"
	"sync"

	"custodia/internal/domain"
)

const stripeCount = 64

// eventBuffer is the in-memory side of the durability policy: a bounded
// FIFO ring per subject, safe for concurrent append and read. Lock striping
// keys on subject ID so no cross-subject lock ever exists.
type eventBuffer struct {
	cap     int
	stripes [stripeCount]bufferStripe
	onEvict func()
}

type bufferStripe struct {
	mu       sync.RWMutex
	subjects map[string]*subjectRing
}

func newEventBuffer(capacity int, onEvict func()) *eventBuffer {
	b := &eventBuffer{cap: capacity, onEvict: onEvict}
	for i := range b.stripes {
		b.stripes[i].subjects = make(map[string]*subjectRing)
	}
	return b
}

func (b *eventBuffer) stripe(subjectID string) *bufferStripe {
	h := fnv.New32a()
	_, _ = h.Write([]byte(subjectID))
	return &b.stripes[h.Sum32()%stripeCount]
}

// append adds the event to its subject's ring, evicting the oldest entry
// when the ring is full.
func (b *eventBuffer) append(event domain.AuditEvent) {
	s := b.stripe(event.SubjectID)
	s.mu.Lock()
	ring, ok := s.subjects[event.SubjectID]
	if !ok {
		ring = newSubjectRing(b.cap)
		s.subjects[event.SubjectID] = ring
	}
	evicted := ring.push(event)
	s.mu.Unlock()

	if evicted && b.onEvict != nil {
		b.onEvict()
	}
}

// query snapshots matching events in ascending timestamp order. Per-subject
// append order is preserved; a cross-subject read sorts the merged snapshot.
func (b *eventBuffer) query(f Filter) []domain.AuditEvent {
	var out []domain.AuditEvent

	if f.SubjectID != "" {
		s := b.stripe(f.SubjectID)
		s.mu.RLock()
		if ring, ok := s.subjects[f.SubjectID]; ok {
			out = ring.collect(f, out)
		}
		s.mu.RUnlock()
	} else {
		for i := range b.stripes {
			s := &b.stripes[i]
			s.mu.RLock()
			for _, ring := range s.subjects {
				out = ring.collect(f, out)
			}
			s.mu.RUnlock()
		}
	}

	// Stable sort keeps per-subject append order for equal timestamps, so
	// the non-decreasing read-back invariant holds for every caller.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// subjectRing is a fixed-capacity FIFO of events in append order.
type subjectRing struct {
	events []domain.AuditEvent
	start  int
	count  int
}

func newSubjectRing(capacity int) *subjectRing {
	return &subjectRing{events: make([]domain.AuditEvent, capacity)}
}

// push appends one event, returning true when the oldest was dropped.
func (r *subjectRing) push(event domain.AuditEvent) bool {
	if r.count == len(r.events) {
		r.events[r.start] = event
		r.start = (r.start + 1) % len(r.events)
		return true
	}
	r.events[(r.start+r.count)%len(r.events)] = event
	r.count++
	return false
}

func (r *subjectRing) collect(f Filter, out []domain.AuditEvent) []domain.AuditEvent {
	for i := 0; i < r.count; i++ {
		e := r.events[(r.start+i)%len(r.events)]
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}
