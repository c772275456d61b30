// Package dispatch implements the opcode-indexed command table: a fixed
// 256-entry array of (parser, handler) pairs producing exactly one
// ACK/NACK per dispatched command.
package dispatch

import "github.com/brahimab8/sensorbusd/pkg/protocol"

// ErrorCode is the wire error taxonomy, used both as the internal result
// of a failed parse/handle and as the single-byte NACK payload.
type ErrorCode uint8

const (
	OK            ErrorCode = 0
	InvalidCmd    ErrorCode = 1
	InvalidLen    ErrorCode = 2
	InvalidValue  ErrorCode = 3
	SensorBusy    ErrorCode = 4
	Overflow      ErrorCode = 5
	Internal      ErrorCode = 6
	UnknownError  ErrorCode = 255
)

// Args is the decoded-argument slot a Parser fills in and a Handler
// reads back. It is a single reused struct wide enough for every
// registered command's arguments, rather than an interface{}, so
// dispatching a command never boxes a value onto the heap.
type Args struct {
	SensorID uint8
	PeriodMs uint32
}

// Parser decodes a raw payload into args. It returns ok=false with a
// specific ErrorCode (InvalidLen or InvalidValue) when the bytes don't
// decode cleanly. Fields of args not relevant to the command are left
// untouched; a Handler must only read the fields its Parser sets.
type Parser func(payload []byte, args *Args) (code ErrorCode, ok bool)

// Handler mutates core state for the parsed args and writes its response
// bytes into resp (capacity protocol.MaxPayload). It returns the number
// of bytes written and ok=true for an ACK, or ok=false with an ErrorCode
// for a NACK.
type Handler func(args *Args, resp []byte) (n int, code ErrorCode, ok bool)

type entry struct {
	parser  Parser
	handler Handler
}

// Dispatcher holds the 256-entry opcode table plus the scratch buffers
// every Dispatch call reuses: the decoded-args slot and the response
// byte buffer. Dispatch is never called concurrently with itself, so a
// single shared scratch pair is safe.
type Dispatcher struct {
	table [256]entry

	args    Args
	respBuf [protocol.MaxPayload]byte
}

// New returns an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{}
}

// Register installs (or overwrites) the parser/handler pair for opcode.
func (d *Dispatcher) Register(opcode uint8, p Parser, h Handler) {
	d.table[opcode] = entry{parser: p, handler: h}
}

// Dispatch runs the full parse+handle pipeline for one CMD payload,
// returning the frame type (Ack or Nack) and the bytes to place in the
// response payload. On Nack, resp is exactly one byte: the ErrorCode.
// The returned slice aliases the Dispatcher's own scratch buffer and is
// only valid until the next Dispatch call; the caller must copy it out
// (as pkg/txengine.SendResponse does) before dispatching again.
func (d *Dispatcher) Dispatch(cmdID uint8, payload []byte) (protocol.FrameType, []byte) {
	if len(payload) > protocol.MaxPayload {
		d.respBuf[0] = byte(InvalidLen)
		return protocol.TypeNack, d.respBuf[:1]
	}
	e := d.table[cmdID]
	if e.parser == nil || e.handler == nil {
		d.respBuf[0] = byte(InvalidCmd)
		return protocol.TypeNack, d.respBuf[:1]
	}
	code, ok := e.parser(payload, &d.args)
	if !ok {
		if code == OK {
			code = InvalidLen
		}
		d.respBuf[0] = byte(code)
		return protocol.TypeNack, d.respBuf[:1]
	}
	n, code, ok := e.handler(&d.args, d.respBuf[:])
	if !ok {
		if code == OK {
			code = UnknownError
		}
		d.respBuf[0] = byte(code)
		return protocol.TypeNack, d.respBuf[:1]
	}
	return protocol.TypeAck, d.respBuf[:n]
}
