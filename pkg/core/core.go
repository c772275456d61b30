// Package core wires the eight subsystems (ring, protocol, tx/rx engines,
// dispatcher, streaming machine, sensor manager, sanity checks) into a
// single Core: the owner of the firmware-equivalent state, rings,
// engines, the opcode table, and the per-sensor streaming descriptors.
package core

import (
	"encoding/binary"

	"github.com/brahimab8/sensorbusd/pkg/clock"
	"github.com/brahimab8/sensorbusd/pkg/dispatch"
	"github.com/brahimab8/sensorbusd/pkg/iface"
	"github.com/brahimab8/sensorbusd/pkg/protocol"
	"github.com/brahimab8/sensorbusd/pkg/ring"
	"github.com/brahimab8/sensorbusd/pkg/rxengine"
	"github.com/brahimab8/sensorbusd/pkg/sanity"
	"github.com/brahimab8/sensorbusd/pkg/streammachine"
	"github.com/brahimab8/sensorbusd/pkg/txengine"
)

// Standard opcodes for the command dispatch table.
const (
	CmdStart      uint8 = 0x01
	CmdStop       uint8 = 0x02
	CmdSetPeriod  uint8 = 0x03
	CmdGetPeriod  uint8 = 0x04
	CmdPing       uint8 = 0x05
	CmdGetSensors uint8 = 0x06
	CmdReadSensor uint8 = 0x07
	CmdGetUptime  uint8 = 0x08
)

// Config bounds the period a SET_PERIOD command may install.
type Config struct {
	TxRingCapacity  int
	RxRingCapacity  int
	DefaultPeriodMs uint32
	MinPeriodMs     uint32
	MaxPeriodMs     uint32
}

// Core owns every piece of the firmware-equivalent state for one device
// session: both rings, the TX/RX engines, the command dispatcher, the
// process start clock, and the streaming descriptor table (one per
// registered sensor).
type Core struct {
	cfg Config

	rxRing *ring.Ring
	txRing *ring.Ring

	rx   *rxengine.Engine
	tx   *txengine.Engine
	disp *dispatch.Dispatcher

	clk iface.Clock

	descriptors map[uint8]*streammachine.Descriptor
	order       []uint8 // registration order, for stable GET_SENSORS output
}

// New validates cfg via pkg/sanity, builds the rings and engines, and
// registers the standard opcode handlers. transport and clk are supplied
// by the caller (serial/usbcdc adapter, real or fake clock).
func New(cfg Config, transport iface.Transport, clk iface.Clock) (*Core, error) {
	if err := sanity.CheckConfig(cfg.TxRingCapacity, cfg.RxRingCapacity, transport.BestChunk(), cfg.DefaultPeriodMs); err != nil {
		return nil, err
	}

	c := &Core{
		cfg:         cfg,
		rxRing:      ring.New(cfg.RxRingCapacity),
		txRing:      ring.New(cfg.TxRingCapacity),
		disp:        dispatch.New(),
		clk:         clk,
		descriptors: make(map[uint8]*streammachine.Descriptor),
	}
	c.tx = txengine.New(c.txRing, transport)
	c.rx = rxengine.New(c.rxRing)
	transport.SetRXCallback(c.OnRX)

	c.registerStandardOpcodes()
	return c, nil
}

// OnRX feeds transport-received bytes into the RX ring. Safe to call
// concurrently with Tick from the transport's own read goroutine: it
// only ever appends (the RX ring's producer side).
func (c *Core) OnRX(b []byte) {
	c.rx.OnRX(b)
}

// AttachSensor registers a streaming descriptor for a sensor at
// runtimeID, wiring it with the given iface.Sensor and default period.
func (c *Core) AttachSensor(runtimeID uint8, typeID uint8, sensor iface.Sensor, maxPayload int) {
	d := &streammachine.Descriptor{
		RuntimeID:   runtimeID,
		TypeID:      typeID,
		Sensor:      sensor,
		SensorReady: true,
		PeriodMs:    c.cfg.DefaultPeriodMs,
	}
	c.descriptors[runtimeID] = d
	c.order = append(c.order, runtimeID)
	d.MaxPayload = maxPayload
}

// Tick runs exactly one iteration of the main loop: RX processing, then
// streaming generation, then TX pumping, in that order, bounding
// command-to-ack latency at one tick plus one transport write.
func (c *Core) Tick() error {
	c.rx.ProcessRX(c.handleCmd)

	now := c.clk.NowMS()
	for _, id := range c.order {
		d := c.descriptors[id]
		streammachine.Tick(d, now, c.emitStream)
	}

	return c.tx.Pump()
}

func (c *Core) emitStream(_ *streammachine.Descriptor, payload []byte, seq, ts uint32) {
	if err := c.tx.SendStream(payload, seq, ts); err != nil {
		// Enqueue failures only happen on malformed payload length;
		// streammachine always builds payloads within MaxPayload, so this
		// path is defensive rather than expected.
		_ = err
	}
}

func (c *Core) handleCmd(hdr protocol.Header, payload []byte) {
	typ, resp := c.disp.Dispatch(uint8(firstByteOr(payload, 0xFF)), cmdPayloadAfterOpcode(payload))
	if err := c.tx.SendResponse(typ, hdr.Seq, c.clk.NowMS(), resp); err != nil {
		_ = err
	}
}

// firstByteOr returns payload[0] or a fallback if payload is empty. The
// CMD frame's own hdr.Type is fixed to CMD; the command *opcode* is
// carried as the first payload byte so the 256-entry table can be
// addressed uniformly for both no-arg and argument-bearing commands.
func firstByteOr(payload []byte, fallback uint8) uint8 {
	if len(payload) == 0 {
		return fallback
	}
	return payload[0]
}

func cmdPayloadAfterOpcode(payload []byte) []byte {
	if len(payload) == 0 {
		return payload
	}
	return payload[1:]
}

func (c *Core) registerStandardOpcodes() {
	c.disp.Register(CmdStart, parseSensorID, c.handleStart)
	c.disp.Register(CmdStop, parseSensorID, c.handleStop)
	c.disp.Register(CmdSetPeriod, parseSetPeriod, c.handleSetPeriod)
	c.disp.Register(CmdGetPeriod, parseSensorID, c.handleGetPeriod)
	c.disp.Register(CmdPing, parseNoArg, c.handlePing)
	c.disp.Register(CmdGetSensors, parseNoArg, c.handleGetSensors)
	c.disp.Register(CmdReadSensor, parseSensorID, c.handleReadSensor)
	c.disp.Register(CmdGetUptime, parseNoArg, c.handleGetUptime)
}

// --- parsers ---

func parseNoArg(payload []byte, _ *dispatch.Args) (dispatch.ErrorCode, bool) {
	if len(payload) != 0 {
		return dispatch.InvalidLen, false
	}
	return dispatch.OK, true
}

func parseSensorID(payload []byte, args *dispatch.Args) (dispatch.ErrorCode, bool) {
	if len(payload) < 1 {
		return dispatch.InvalidLen, false
	}
	args.SensorID = payload[0]
	return dispatch.OK, true
}

func parseSetPeriod(payload []byte, args *dispatch.Args) (dispatch.ErrorCode, bool) {
	if len(payload) < 3 {
		return dispatch.InvalidLen, false
	}
	args.SensorID = payload[0]
	args.PeriodMs = uint32(binary.LittleEndian.Uint16(payload[1:3]))
	return dispatch.OK, true
}

// --- handlers ---

func (c *Core) handleStart(args *dispatch.Args, _ []byte) (int, dispatch.ErrorCode, bool) {
	d, ok := c.descriptors[args.SensorID]
	if !ok {
		return 0, dispatch.InvalidValue, false
	}
	d.StartStreaming()
	return 0, dispatch.OK, true
}

func (c *Core) handleStop(args *dispatch.Args, _ []byte) (int, dispatch.ErrorCode, bool) {
	d, ok := c.descriptors[args.SensorID]
	if !ok {
		return 0, dispatch.InvalidValue, false
	}
	d.StopStreaming()
	return 0, dispatch.OK, true
}

func (c *Core) handleSetPeriod(args *dispatch.Args, _ []byte) (int, dispatch.ErrorCode, bool) {
	d, ok := c.descriptors[args.SensorID]
	if !ok {
		return 0, dispatch.InvalidValue, false
	}
	if args.PeriodMs < c.cfg.MinPeriodMs || args.PeriodMs > c.cfg.MaxPeriodMs {
		return 0, dispatch.InvalidValue, false
	}
	d.PeriodMs = args.PeriodMs
	return 0, dispatch.OK, true
}

func (c *Core) handleGetPeriod(args *dispatch.Args, resp []byte) (int, dispatch.ErrorCode, bool) {
	d, ok := c.descriptors[args.SensorID]
	if !ok {
		return 0, dispatch.InvalidValue, false
	}
	binary.LittleEndian.PutUint32(resp[0:4], d.PeriodMs)
	return 4, dispatch.OK, true
}

func (c *Core) handlePing(_ *dispatch.Args, _ []byte) (int, dispatch.ErrorCode, bool) {
	return 0, dispatch.OK, true
}

func (c *Core) handleGetSensors(_ *dispatch.Args, resp []byte) (int, dispatch.ErrorCode, bool) {
	n := 0
	for _, id := range c.order {
		d := c.descriptors[id]
		if n+2 > len(resp) {
			break
		}
		resp[n] = d.RuntimeID
		resp[n+1] = d.TypeID
		n += 2
	}
	return n, dispatch.OK, true
}

func (c *Core) handleReadSensor(args *dispatch.Args, resp []byte) (int, dispatch.ErrorCode, bool) {
	d, ok := c.descriptors[args.SensorID]
	if !ok {
		return 0, dispatch.InvalidValue, false
	}
	if d.Streaming {
		return 0, dispatch.SensorBusy, false
	}
	sample := make([]byte, d.Sensor.SampleSize())
	if d.Sensor.Start() == iface.SensorError {
		return 0, dispatch.Internal, false
	}
	for {
		st := d.Sensor.Poll()
		if st == iface.SensorReady {
			break
		}
		if st == iface.SensorError {
			return 0, dispatch.Internal, false
		}
	}
	n := d.Sensor.Fill(sample)
	if n == 0 || 1+n > len(resp) {
		return 0, dispatch.Overflow, false
	}
	resp[0] = d.RuntimeID
	copy(resp[1:], sample[:n])
	return 1 + n, dispatch.OK, true
}

func (c *Core) handleGetUptime(_ *dispatch.Args, resp []byte) (int, dispatch.ErrorCode, bool) {
	binary.LittleEndian.PutUint32(resp[0:4], c.clk.NowMS())
	return 4, dispatch.OK, true
}

// NewRealClock returns a pkg/clock real clock typed as iface.Clock.
func NewRealClock() iface.Clock { return clock.NewReal() }

// DescriptorSnapshot is a read-only view of one sensor's streaming state,
// used by the Redis bridge and the HTTP/TUI tools without exposing the
// live *streammachine.Descriptor for mutation.
type DescriptorSnapshot struct {
	RuntimeID  uint8
	TypeID     uint8
	Streaming  bool
	State      streammachine.State
	Seq        uint32
	PeriodMs   uint32
	LastEmitMs uint32
}

// Snapshot returns a point-in-time copy of every registered sensor's
// streaming descriptor, in registration order.
func (c *Core) Snapshot() []DescriptorSnapshot {
	out := make([]DescriptorSnapshot, 0, len(c.order))
	for _, id := range c.order {
		d := c.descriptors[id]
		out = append(out, DescriptorSnapshot{
			RuntimeID:  d.RuntimeID,
			TypeID:     d.TypeID,
			Streaming:  d.Streaming,
			State:      d.State,
			Seq:        d.Seq,
			PeriodMs:   d.PeriodMs,
			LastEmitMs: d.LastEmitMs,
		})
	}
	return out
}

// Dispatch exposes the in-process dispatcher to other host-side
// components (pkg/httpapi) that want to issue a command without going
// through the wire transport at all.
func (c *Core) Dispatch(cmdID uint8, payload []byte) (protocol.FrameType, []byte) {
	return c.disp.Dispatch(cmdID, payload)
}
