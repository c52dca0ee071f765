package ratelimiter

import (
	"sync"
	"time"
)

const (
	// DefaultTableSize is the number of hash slots in the client table.
	DefaultTableSize = 1024

	// DefaultSlotCapacity is the number of timestamps a single slot retains.
	DefaultSlotCapacity = 1000
)

// SlidingWindowConfig configures a SlidingWindow.
type SlidingWindowConfig struct {
	// Enabled turns limiting on. A disabled limiter never limits and never
	// touches its table.
	Enabled bool

	// MaxRequests is the number of requests a client may make per Interval.
	MaxRequests int

	// Interval is the length of the sliding window.
	Interval time.Duration

	// TableSize is the number of hash slots (default: DefaultTableSize).
	TableSize int

	// SlotCapacity is the timestamp ring size per slot (default: DefaultSlotCapacity).
	SlotCapacity int

	// Now overrides the clock. Used by tests.
	Now func() time.Time
}

// SlidingWindow is a per-client sliding-window rate limiter.
//
// Clients are mapped onto a fixed table of slots by a multiplicative string
// hash of their address. A slot tracks one address at a time: when a
// different address hashes onto an occupied slot, the slot is reset and the
// previous address loses its history. This keeps memory bounded at
// TableSize * SlotCapacity timestamps.
//
// Thread safety:
// The table is allocated once and never resized, so locating a slot needs
// no lock. Each slot has its own mutex, and unrelated clients never contend.
type SlidingWindow struct {
	enabled     bool
	maxRequests int
	interval    time.Duration
	tableSize   int
	capacity    int
	now         func() time.Time

	initOnce sync.Once
	slots    []windowSlot
}

// windowSlot holds the recent request timestamps of one client address.
type windowSlot struct {
	mu     sync.Mutex
	addr   string
	stamps []int64 // unix nanoseconds, ring buffer of length capacity
	next   int     // index the next timestamp is written to
	count  int     // number of valid entries, at most capacity
}

// NewSlidingWindow creates a limiter. The slot table is allocated lazily on
// the first call to IsLimited.
func NewSlidingWindow(cfg SlidingWindowConfig) *SlidingWindow {
	if cfg.TableSize <= 0 {
		cfg.TableSize = DefaultTableSize
	}
	if cfg.SlotCapacity <= 0 {
		cfg.SlotCapacity = DefaultSlotCapacity
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &SlidingWindow{
		enabled:     cfg.Enabled,
		maxRequests: cfg.MaxRequests,
		interval:    cfg.Interval,
		tableSize:   cfg.TableSize,
		capacity:    cfg.SlotCapacity,
		now:         cfg.Now,
	}
}

// Enabled reports whether the limiter is active.
func (w *SlidingWindow) Enabled() bool {
	return w.enabled
}

// IsLimited reports whether addr has exhausted its budget for the current
// window. When the request is allowed its timestamp is recorded; a limited
// request records nothing.
//
// Parameters:
//   - addr: client address (normally the remote IP without port)
//
// Returns true if the client must be rejected with 429.
func (w *SlidingWindow) IsLimited(addr string) bool {
	if !w.enabled {
		return false
	}

	w.initOnce.Do(func() {
		w.slots = make([]windowSlot, w.tableSize)
	})

	slot := &w.slots[hashAddress(addr, w.tableSize)]

	slot.mu.Lock()
	defer slot.mu.Unlock()

	if slot.count == 0 || slot.addr != addr {
		slot.reset(addr, w.capacity)
	}

	now := w.now().UnixNano()
	windowStart := now - int64(w.interval)

	recent := 0
	for i := 0; i < slot.count; i++ {
		if slot.stamps[i] >= windowStart {
			recent++
		}
	}

	if recent >= w.maxRequests {
		return true
	}

	slot.stamps[slot.next] = now
	slot.next = (slot.next + 1) % len(slot.stamps)
	if slot.count < len(slot.stamps) {
		slot.count++
	}

	return false
}

// reset reassigns the slot to addr and clears its history. The ring is
// allocated on first use so idle slots cost nothing.
func (s *windowSlot) reset(addr string, capacity int) {
	s.addr = addr
	s.next = 0
	s.count = 0
	if s.stamps == nil {
		s.stamps = make([]int64, capacity)
	}
}

// hashAddress computes h = h*31 + c over the address bytes, modulo size.
func hashAddress(addr string, size int) int {
	var h uint32
	for i := 0; i < len(addr); i++ {
		h = h*31 + uint32(addr[i])
	}
	return int(h % uint32(size))
}
