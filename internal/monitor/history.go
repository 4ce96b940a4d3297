package monitor

import "github.com/gridsentry/gridwatch/internal/detect"

// DefaultHistoryCapacity is the retention limit for polled readings.
const DefaultHistoryCapacity = 30

// History is a bounded FIFO of detection events backed by a ring buffer.
// Insertion order is chronological order; once full, each append evicts the
// oldest entry. History is not safe for concurrent use on its own: the
// Engine serialises all access.
type History struct {
	events   []detect.Event
	capacity int
	head     int // next write position
	size     int
}

// NewHistory creates a history buffer with the given capacity.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = DefaultHistoryCapacity
	}
	return &History{
		events:   make([]detect.Event, capacity),
		capacity: capacity,
	}
}

// Append stores an event at the tail, evicting the oldest if at capacity.
func (h *History) Append(e detect.Event) {
	h.events[h.head] = e
	h.head = (h.head + 1) % h.capacity
	if h.size < h.capacity {
		h.size++
	}
}

// Clear empties the buffer. Used on mode switch.
func (h *History) Clear() {
	for i := range h.events {
		h.events[i] = detect.Event{}
	}
	h.head = 0
	h.size = 0
}

// Snapshot returns a copy of the stored events, oldest first. Mutating the
// returned slice never affects the buffer.
func (h *History) Snapshot() []detect.Event {
	out := make([]detect.Event, h.size)
	for i := 0; i < h.size; i++ {
		idx := (h.head - h.size + i + h.capacity) % h.capacity
		out[i] = h.events[idx]
	}
	return out
}

// Latest returns the most recently appended event, or false if empty.
func (h *History) Latest() (detect.Event, bool) {
	if h.size == 0 {
		return detect.Event{}, false
	}
	idx := (h.head - 1 + h.capacity) % h.capacity
	return h.events[idx], true
}

// Len returns the current number of stored events.
func (h *History) Len() int {
	return h.size
}

// Capacity returns the retention limit.
func (h *History) Capacity() int {
	return h.capacity
}
