// Package txengine implements the TX side: a frame-aware stream ring with
// drop-oldest admission, plus a single-slot response channel that always
// takes priority over stream frames when the transport pump runs.
package txengine

import (
	"github.com/brahimab8/sensorbusd/pkg/iface"
	"github.com/brahimab8/sensorbusd/pkg/protocol"
	"github.com/brahimab8/sensorbusd/pkg/ring"
)

// Engine owns the TX ring and the response slot and is the only writer of
// either; it is driven exclusively from the main loop (no ISR access).
type Engine struct {
	ring      *ring.Ring
	transport iface.Transport

	respBuf     [protocol.MaxFrame]byte
	respLen     int
	respPending bool

	scratch [protocol.MaxFrame]byte
	hdrBuf  [protocol.HeaderLen]byte
	peekBuf []byte // preallocated, sized to the ring's full capacity
}

// New wires an Engine to a pre-sized TX ring and a transport. ring's
// capacity must satisfy ring.Capacity()-1 >= protocol.MaxFrame (checked
// by pkg/sanity at startup, not here).
func New(txRing *ring.Ring, transport iface.Transport) *Engine {
	return &Engine{ring: txRing, transport: transport, peekBuf: make([]byte, txRing.Capacity())}
}

// EnqueueFrame admits a fully-encoded frame into the stream ring,
// dropping whole older frames (never partial bytes) to make room.
// Mirrors ps_tx_enqueue_frame: drop until it fits, clear as a last
// resort if drops alone cannot free enough space.
func (e *Engine) EnqueueFrame(frame []byte) error {
	n := len(frame)
	cap1 := e.ring.Capacity() - 1
	if n > cap1 {
		return errFrameTooBig
	}
	for e.ring.Free() < n {
		if !e.dropOneFrame() {
			e.ring.Clear()
			break
		}
	}
	if !e.ring.WriteTry(frame) {
		return errAdmissionFailed
	}
	return nil
}

// dropOneFrame removes exactly one frame's worth of bytes from the head
// of the ring (by ring.Pop semantics, i.e. its tail), returning true if
// it made progress. Mirrors drop_one_frame_buf: resync on bad header,
// drop a whole validated frame when complete, or report no progress when
// the ring holds only a truncated residue (the caller then clears).
func (e *Engine) dropOneFrame() bool {
	used := e.ring.Used()
	if used == 0 {
		return false
	}
	n := e.ring.CopyFromTail(e.hdrBuf[:], len(e.hdrBuf))
	if n < len(e.hdrBuf) {
		return false
	}
	buf := e.peekBuf[:used]
	e.ring.CopyFromTail(buf, used)
	_, _, consumed, err := protocol.Decode(buf)
	if err == protocol.ErrInvalid {
		e.ring.Pop(1)
		return true
	}
	if err == protocol.ErrIncomplete {
		return false
	}
	e.ring.Pop(consumed)
	return true
}

// SendResponse encodes a CMD reply (ACK or NACK) into the priority
// response slot, overwriting any still-pending response: CMD replies are
// strictly newer-wins since the host issues commands sequentially.
func (e *Engine) SendResponse(typ protocol.FrameType, seq, ts uint32, payload []byte) error {
	n, err := protocol.Encode(e.respBuf[:], typ, payload, seq, ts)
	if err != nil {
		return err
	}
	e.respLen = n
	e.respPending = true
	return nil
}

// SendStream encodes and enqueues a STREAM frame into the TX ring.
func (e *Engine) SendStream(payload []byte, seq, ts uint32) error {
	n, err := protocol.Encode(e.scratch[:], protocol.TypeStream, payload, seq, ts)
	if err != nil {
		return err
	}
	return e.EnqueueFrame(e.scratch[:n])
}

// Pump writes at most one frame to the transport per call, preferring
// the response slot over the stream ring. Returns without writing if the
// link isn't ready or nothing is available.
func (e *Engine) Pump() error {
	if !e.transport.LinkReady() {
		return nil
	}
	best := e.transport.BestChunk()

	if e.respPending {
		if e.respLen <= int(best) {
			n, err := e.transport.TxWrite(e.respBuf[:e.respLen])
			if err != nil {
				return err
			}
			if n == e.respLen {
				e.respPending = false
				e.respLen = 0
			}
		}
		return nil
	}

	used := e.ring.Used()
	if used < protocol.HeaderLen {
		return nil
	}
	e.ring.CopyFromTail(e.hdrBuf[:], protocol.HeaderLen)
	frameLen, ok := peekFrameLen(e.hdrBuf[:])
	if !ok {
		e.ring.Pop(1)
		return nil
	}
	if used < frameLen {
		return nil
	}
	if frameLen > int(best) {
		return nil
	}

	linear := e.ring.PeekLinear()
	if len(linear) >= frameLen {
		n, werr := e.transport.TxWrite(linear[:frameLen])
		if werr != nil {
			return werr
		}
		if n == frameLen {
			e.ring.Pop(frameLen)
		}
		return nil
	}

	buf := e.scratch[:frameLen]
	e.ring.CopyFromTail(buf, frameLen)
	n, werr := e.transport.TxWrite(buf)
	if werr != nil {
		return werr
	}
	if n == frameLen {
		e.ring.Pop(frameLen)
	}
	return nil
}

// peekFrameLen validates the magic/version/length fields of a raw header
// slice and, if valid, returns the total encoded frame length.
func peekFrameLen(hdr []byte) (int, bool) {
	if len(hdr) < protocol.HeaderLen {
		return 0, false
	}
	magic := uint16(hdr[0]) | uint16(hdr[1])<<8
	ver := hdr[3]
	length := uint16(hdr[4]) | uint16(hdr[5])<<8
	if magic != protocol.Magic || ver != protocol.Version || int(length) > protocol.MaxPayload {
		return 0, false
	}
	return protocol.HeaderLen + int(length) + protocol.CRCLen, true
}

type txError string

func (e txError) Error() string { return string(e) }

const (
	errFrameTooBig     txError = "txengine: frame exceeds ring usable capacity"
	errAdmissionFailed txError = "txengine: frame rejected after drop-oldest pass"
)
