// Package ring implements the single-producer/single-consumer byte ring
// used on both the RX side (ISR append, main-loop drain) and the TX side
// (main-loop enqueue, main-loop pump). Capacity is always a power of two;
// one slot is permanently reserved so that head==tail is unambiguously
// "empty" and never collides with "full".
package ring

import "sync/atomic"

// Ring is a fixed-capacity SPSC byte queue. head is advanced only by the
// producer, tail only by the consumer; that single-writer-per-index
// discipline is what makes the ring safe without a lock. head and tail
// are stored as atomic.Uint32 to stand in for the `volatile` access the
// firmware source relies on across the ISR/main-loop boundary.
type Ring struct {
	buf       []byte
	mask      uint32
	head      atomic.Uint32
	tail      atomic.Uint32
	rejected  atomic.Uint64
	highwater atomic.Uint32
}

// New allocates a ring of the given power-of-two capacity. Panics if
// capacity is not a power of two or is zero, since that would break the
// index-masking arithmetic the whole package relies on.
func New(capacity int) *Ring {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic("ring: capacity must be a power of two")
	}
	return &Ring{
		buf:  make([]byte, capacity),
		mask: uint32(capacity) - 1,
	}
}

// Capacity returns the raw buffer size C. Usable capacity (the most that
// can ever be held) is Capacity()-1.
func (r *Ring) Capacity() int { return len(r.buf) }

// Used returns the number of bytes currently queued. head and tail are
// free-running uint32 counters (never masked when stored); used = head -
// tail relies on unsigned wraparound subtraction, so it stays correct
// across a 2^32 rollover of either index.
func (r *Ring) Used() int {
	head := r.head.Load()
	tail := r.tail.Load()
	return int(head - tail)
}

// Free returns how many more bytes can be accepted before the ring is
// full (i.e. before Used would reach Capacity()-1).
func (r *Ring) Free() int {
	return r.Capacity() - 1 - r.Used()
}

// Rejected returns the cumulative count of bytes rejected by WriteTry.
func (r *Ring) Rejected() uint64 { return r.rejected.Load() }

// HighWater returns the peak Used() value observed since the last Clear.
func (r *Ring) HighWater() int { return int(r.highwater.Load()) }

// Clear discards all queued bytes. Only safe to call from the consumer
// side (it advances tail to head).
func (r *Ring) Clear() {
	r.tail.Store(r.head.Load())
	r.highwater.Store(0)
}

// WriteTry appends src atomically (all-or-nothing): it succeeds iff
// len(src) <= Free() and len(src) <= Capacity()-1; otherwise it rejects
// the whole write and bumps the rejected counter by len(src). Safe to
// call from the producer side only (ISR, for the RX ring).
func (r *Ring) WriteTry(src []byte) bool {
	n := len(src)
	cap1 := r.Capacity() - 1
	if n == 0 {
		return true
	}
	if n > cap1 || n > r.Free() {
		r.rejected.Add(uint64(n))
		return false
	}
	head := r.head.Load()
	for i := 0; i < n; i++ {
		r.buf[(head+uint32(i))&r.mask] = src[i]
	}
	newHead := head + uint32(n)
	r.head.Store(newHead)

	used := r.Used()
	if uint32(used) > r.highwater.Load() {
		r.highwater.Store(uint32(used))
	}
	return true
}

// PeekLinear returns the largest contiguous run of queued bytes starting
// at tail, without consuming them. If the queued data wraps past the end
// of the backing array, only the first (non-wrapped) segment is returned;
// callers that need the full queued length should fall back to
// CopyFromTail.
func (r *Ring) PeekLinear() []byte {
	used := r.Used()
	if used == 0 {
		return nil
	}
	tail := r.tail.Load() & r.mask
	end := uint32(len(r.buf))
	if uint32(used) <= end-tail {
		return r.buf[tail : tail+uint32(used)]
	}
	return r.buf[tail:end]
}

// CopyFromTail performs a non-destructive, wrap-aware copy of up to n
// queued bytes into dst, returning the number of bytes actually copied
// (min(n, Used(), len(dst))).
func (r *Ring) CopyFromTail(dst []byte, n int) int {
	used := r.Used()
	if n > used {
		n = used
	}
	if n > len(dst) {
		n = len(dst)
	}
	tail := r.tail.Load()
	for i := 0; i < n; i++ {
		dst[i] = r.buf[(tail+uint32(i))&r.mask]
	}
	return n
}

// Pop advances tail by n, discarding n bytes from the front of the queue.
// n must not exceed Used(); callers are expected to have already
// validated that via Used() or a prior CopyFromTail/PeekLinear.
func (r *Ring) Pop(n int) {
	if n <= 0 {
		return
	}
	r.tail.Store(r.tail.Load() + uint32(n))
}
