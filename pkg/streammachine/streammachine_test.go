package streammachine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brahimab8/sensorbusd/pkg/clock"
	"github.com/brahimab8/sensorbusd/pkg/iface"
	"github.com/brahimab8/sensorbusd/pkg/sensormgr"
)

type fakeSensor struct {
	startResult iface.SensorState
	pollResult  iface.SensorState
	fillBytes   []byte
	sampleSize  int
}

func (f *fakeSensor) Start() iface.SensorState  { return f.startResult }
func (f *fakeSensor) Poll() iface.SensorState   { return f.pollResult }
func (f *fakeSensor) SampleSize() int           { return f.sampleSize }
func (f *fakeSensor) TypeID() uint8             { return 1 }
func (f *fakeSensor) Fill(dst []byte) int       { return copy(dst, f.fillBytes) }

func newDescriptor(s iface.Sensor, periodMs uint32) *Descriptor {
	return &Descriptor{
		RuntimeID:   3,
		TypeID:      1,
		Sensor:      s,
		SensorReady: true,
		Streaming:   true,
		PeriodMs:    periodMs,
		MaxPayload:  46,
	}
}

func TestIdleWaitsForPeriodElapsed(t *testing.T) {
	s := &fakeSensor{}
	d := newDescriptor(s, 100)
	d.LastEmitMs = 1000
	Tick(d, 1050, nil) // only 50ms elapsed
	require.Equal(t, Idle, d.State)
}

func TestFullCycleReadyEmitsAndReturnsToIdle(t *testing.T) {
	s := &fakeSensor{startResult: iface.SensorReady, fillBytes: []byte{1, 2}, sampleSize: 2}
	d := newDescriptor(s, 100)
	d.LastEmitMs = 0

	var emitted []byte
	var seq, ts uint32
	emit := func(_ *Descriptor, payload []byte, sq, t uint32) {
		emitted = payload
		seq, ts = sq, t
	}

	Tick(d, 100, emit) // Idle -> SensorStart
	require.Equal(t, SensorStart, d.State)
	Tick(d, 100, emit) // SensorStart -> Ready (sensor already ready)
	require.Equal(t, Ready, d.State)
	Tick(d, 100, emit) // Ready -> emit -> Idle
	require.Equal(t, Idle, d.State)

	require.Equal(t, []byte{3, 1, 2}, emitted) // runtime_id prefix + sample
	require.Equal(t, uint32(0), seq)
	require.Equal(t, uint32(100), ts)
	require.Equal(t, uint32(1), d.Seq)
	require.Equal(t, uint32(100), d.LastEmitMs)
}

func TestBusyStartRevisitsPollUntilReady(t *testing.T) {
	s := &fakeSensor{startResult: iface.SensorBusy, pollResult: iface.SensorBusy, fillBytes: []byte{9}, sampleSize: 1}
	d := newDescriptor(s, 0)

	Tick(d, 0, nil) // Idle -> SensorStart
	Tick(d, 0, nil) // SensorStart -> SensorPoll (busy)
	require.Equal(t, SensorPoll, d.State)
	Tick(d, 0, nil) // still busy, stays in SensorPoll
	require.Equal(t, SensorPoll, d.State)

	s.pollResult = iface.SensorReady
	Tick(d, 0, nil) // now ready
	require.Equal(t, Ready, d.State)
}

func TestErrorDropsStreamingAndReturnsToIdle(t *testing.T) {
	s := &fakeSensor{startResult: iface.SensorError}
	d := newDescriptor(s, 0)

	Tick(d, 0, nil) // Idle -> SensorStart
	Tick(d, 0, nil) // SensorStart -> Errored
	require.Equal(t, Errored, d.State)
	require.True(t, d.Streaming)

	Tick(d, 0, nil) // Errored -> Idle, streaming disabled
	require.Equal(t, Idle, d.State)
	require.False(t, d.Streaming)
}

func TestZeroLengthFillSkipsEmission(t *testing.T) {
	s := &fakeSensor{startResult: iface.SensorReady, fillBytes: nil, sampleSize: 2}
	d := newDescriptor(s, 0)

	var called bool
	Tick(d, 0, func(*Descriptor, []byte, uint32, uint32) { called = true }) // Idle -> SensorStart
	Tick(d, 0, func(*Descriptor, []byte, uint32, uint32) { called = true }) // SensorStart -> Ready
	Tick(d, 0, func(*Descriptor, []byte, uint32, uint32) { called = true }) // Ready: Fill returns 0 -> Idle
	require.False(t, called)
	require.Equal(t, Idle, d.State)
	require.Equal(t, uint32(0), d.Seq) // not incremented on skip
}

func TestStartStreamingResetsSeq(t *testing.T) {
	d := newDescriptor(&fakeSensor{}, 0)
	d.Seq = 42
	d.State = SensorPoll
	d.StartStreaming()
	require.Equal(t, uint32(0), d.Seq)
	require.Equal(t, Idle, d.State)
	require.True(t, d.Streaming)
}

func TestStopStreamingReturnsToIdle(t *testing.T) {
	d := newDescriptor(&fakeSensor{}, 0)
	d.State = Ready
	d.StopStreaming()
	require.False(t, d.Streaming)
	require.Equal(t, Idle, d.State)
}

func TestPeriodGatingIsWrapSafe(t *testing.T) {
	s := &fakeSensor{}
	d := newDescriptor(s, 100)
	d.LastEmitMs = 0xFFFFFFF0 // close to uint32 wrap
	// now has wrapped past 0; (now - last) mod 2^32 should still read as
	// elapsed correctly rather than underflowing to a huge value.
	now := d.LastEmitMs + 150 // wraps
	Tick(d, now, nil)
	require.Equal(t, SensorStart, d.State)
}

func TestNonStreamingDescriptorNeverTicks(t *testing.T) {
	d := newDescriptor(&fakeSensor{}, 0)
	d.Streaming = false
	Tick(d, 1_000_000, nil)
	require.Equal(t, Idle, d.State)
}

// TestRealManagerEmitsFreshSampleEachPeriod drives a real sensormgr.Manager
// (not fakeSensor, whose Start is permanently Ready and whose Fill returns
// constant bytes and so cannot catch a re-arming bug) through two full
// streaming periods and asserts the emitted payload changes each period,
// proving the manager performs a fresh read rather than replaying its cache.
func TestRealManagerEmitsFreshSampleEachPeriod(t *testing.T) {
	calls := 0
	read := func() ([]byte, error) {
		calls++
		return []byte{byte(calls), byte(calls)}, nil
	}
	mgr := sensormgr.New(read, 2, 1, clock.NewFake(0))
	d := newDescriptor(mgr, 100)
	d.LastEmitMs = 0

	var payloads [][]byte
	emit := func(_ *Descriptor, payload []byte, _, _ uint32) {
		cp := make([]byte, len(payload))
		copy(cp, payload)
		payloads = append(payloads, cp)
	}

	// Cycle 1: Idle -> SensorStart -> SensorPoll -> Ready -> emit -> Idle.
	Tick(d, 100, emit) // Idle -> SensorStart
	Tick(d, 100, emit) // SensorStart -> SensorPoll (Start requested, Busy)
	Tick(d, 100, emit) // SensorPoll -> Ready (Poll performs the read)
	Tick(d, 100, emit) // Ready -> emit -> Idle
	require.Equal(t, Idle, d.State)
	require.Len(t, payloads, 1)

	// Cycle 2: must re-arm rather than replay the same cached sample.
	Tick(d, 200, emit)
	Tick(d, 200, emit)
	Tick(d, 200, emit)
	Tick(d, 200, emit)
	require.Equal(t, Idle, d.State)
	require.Len(t, payloads, 2)

	require.Equal(t, 2, calls, "each streaming period must perform its own fresh read")
	require.NotEqual(t, payloads[0], payloads[1], "streamed sample bytes must differ between periods")
}
