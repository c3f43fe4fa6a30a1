package channel

import (
	"sync"

	"tradesim/logger"
	"tradesim/models"
)

type HandoffStats struct {
	Enqueued int64 `json:"enqueued"`
	Drained  int64 `json:"drained"`
	Dropped  int64 `json:"dropped"`
}

// Handoff is the FIFO between the feed goroutine and the cost engine.
// Enqueue and DrainAll never block. With capacity 0 the queue grows without
// bound; with a positive capacity the oldest snapshot is dropped to make
// room, and every drop is counted and logged.
type Handoff struct {
	mu       sync.Mutex
	items    []models.BookSnapshot
	capacity int
	stats    HandoffStats
	log      *logger.Log
}

func NewHandoff(capacity int) *Handoff {
	if capacity < 0 {
		capacity = 0
	}
	log := logger.GetLogger()
	log.WithComponent("handoff_queue").WithFields(logger.Fields{
		"capacity": capacity,
		"bounded":  capacity > 0,
	}).Debug("handoff queue initialized")
	return &Handoff{capacity: capacity, log: log}
}

// Enqueue appends a snapshot. It reports false when an older snapshot had to
// be evicted to respect the capacity.
func (h *Handoff) Enqueue(snapshot models.BookSnapshot) bool {
	h.mu.Lock()
	dropped := false
	if h.capacity > 0 && len(h.items) >= h.capacity {
		h.items[0] = models.BookSnapshot{}
		h.items = h.items[1:]
		h.stats.Dropped++
		dropped = true
	}
	h.items = append(h.items, snapshot)
	h.stats.Enqueued++
	h.mu.Unlock()

	if dropped {
		h.log.WithComponent("handoff_queue").WithFields(logger.Fields{
			"symbol":   snapshot.Symbol,
			"capacity": h.capacity,
		}).Warn("handoff queue full, dropped oldest snapshot")
	}
	return !dropped
}

// DrainAll removes and returns every queued snapshot in arrival order. An
// empty queue yields an empty, non-nil slice.
func (h *Handoff) DrainAll() []models.BookSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.items) == 0 {
		return []models.BookSnapshot{}
	}
	out := h.items
	h.items = nil
	h.stats.Drained += int64(len(out))
	return out
}

func (h *Handoff) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.items)
}

func (h *Handoff) Capacity() int {
	return h.capacity
}

func (h *Handoff) Stats() HandoffStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}
