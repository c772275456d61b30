// Package rxengine appends inbound bytes into the RX ring from the
// transport's receive callback and, from the main loop, resyncs to the
// frame magic and decodes one frame at a time.
package rxengine

import (
	"github.com/brahimab8/sensorbusd/pkg/protocol"
	"github.com/brahimab8/sensorbusd/pkg/ring"
)

// CmdHandler is invoked once per decoded CMD frame found during
// ProcessRX. STREAM/ACK/NACK frames arriving from the host are ignored
// (the host is not expected to send them).
type CmdHandler func(hdr protocol.Header, payload []byte)

// Engine owns the RX ring. OnRX is safe to call from a transport's
// receive goroutine; ProcessRX must only be called from the main loop.
type Engine struct {
	ring    *ring.Ring
	scratch []byte // preallocated, sized to the ring's full capacity
}

// New wires an Engine to a pre-sized RX ring.
func New(rxRing *ring.Ring) *Engine {
	return &Engine{ring: rxRing, scratch: make([]byte, rxRing.Capacity())}
}

// OnRX appends received bytes into the RX ring. Never blocks: on
// rejection (ring full) the bytes are silently dropped and the ring's
// rejected counter is bumped; the host is expected to notice gaps via
// STREAM seq and retry commands that go unanswered.
func (e *Engine) OnRX(b []byte) {
	e.ring.WriteTry(b)
}

// ProcessRX drains as many complete frames as are currently available,
// dispatching each CMD frame to handle. It resyncs past stray bytes (bad
// magic, version, length, or CRC) by popping exactly one byte and
// retrying immediately, which is the deterministic choice documented in
// SPEC_FULL.md for the Invalid case (grounded on the original firmware's
// ps_parse_commands/drop_one_frame_buf, both of which make progress this
// way rather than waiting for more bytes).
//
// handle must not retain payload past the call: it aliases e.scratch,
// which is overwritten on the next iteration.
func (e *Engine) ProcessRX(handle CmdHandler) {
	for e.ring.Used() >= protocol.HeaderLen {
		used := e.ring.Used()
		buf := e.scratch[:used]
		e.ring.CopyFromTail(buf, used)

		hdr, payload, consumed, err := protocol.Decode(buf)
		switch err {
		case nil:
			if hdr.Type == protocol.TypeCmd && handle != nil {
				handle(hdr, payload)
			}
			e.ring.Pop(consumed)
		case protocol.ErrIncomplete:
			return
		case protocol.ErrInvalid:
			e.ring.Pop(1)
		default:
			return
		}
	}
}
