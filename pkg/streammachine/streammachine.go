// Package streammachine implements the per-sensor cooperative streaming
// state machine: IDLE -> SENSOR_START -> SENSOR_POLL -> READY -> IDLE,
// with an ERROR sink that drops streaming back to IDLE.
package streammachine

import "github.com/brahimab8/sensorbusd/pkg/iface"

// State is one of the five cooperative states a sensor's descriptor
// cycles through.
type State int

const (
	Idle State = iota
	SensorStart
	SensorPoll
	Ready
	Errored
)

// Descriptor is the per-sensor streaming state plus its registration
// fields: the sensor facade, its period, and its last-emit bookkeeping.
type Descriptor struct {
	RuntimeID    uint8
	TypeID       uint8
	Sensor       iface.Sensor
	SensorReady  bool // true once the sensor has been wired/initialized
	Streaming    bool
	State        State
	Seq          uint32
	PeriodMs     uint32
	LastEmitMs   uint32
	MaxPayload   int
}

// Emit is called by Tick exactly once per cycle that produces a STREAM
// frame; seq is the descriptor's own post-increment sequence number.
type Emit func(d *Descriptor, payload []byte, seq, ts uint32)

// Tick advances one descriptor by one step for the current tick. It is a
// no-op unless the sensor is both registered-ready and streaming-enabled.
// now is the current monotonic millisecond reading; period gating uses
// (now - LastEmitMs) mod 2^32 so a clock wrap is harmless.
func Tick(d *Descriptor, now uint32, emit Emit) {
	if !d.SensorReady || !d.Streaming {
		return
	}

	switch d.State {
	case Idle:
		if now-d.LastEmitMs >= d.PeriodMs {
			d.State = SensorStart
		}

	case SensorStart:
		switch d.Sensor.Start() {
		case iface.SensorReady:
			d.State = Ready
		case iface.SensorBusy:
			d.State = SensorPoll
		case iface.SensorError:
			d.State = Errored
		}

	case SensorPoll:
		switch d.Sensor.Poll() {
		case iface.SensorReady:
			d.State = Ready
		case iface.SensorBusy:
			// stay in SensorPoll; revisited next tick
		case iface.SensorError:
			d.State = Errored
		}

	case Ready:
		fillCap := d.MaxPayload - 1
		if d.Sensor.SampleSize() < fillCap {
			fillCap = d.Sensor.SampleSize()
		}
		sample := make([]byte, fillCap)
		n := d.Sensor.Fill(sample)
		if n > 0 {
			payload := make([]byte, 1+n)
			payload[0] = d.RuntimeID
			copy(payload[1:], sample[:n])
			seq := d.Seq
			d.Seq++
			d.LastEmitMs = now
			if emit != nil {
				emit(d, payload, seq, now)
			}
		}
		d.State = Idle

	case Errored:
		d.Streaming = false
		d.State = Idle
	}
}

// StartStreaming enables streaming for this sensor, resetting its sequence number
// to zero and returning it to IDLE. This applies uniformly whether the
// sensor was previously idle or already streaming: per the resolution of
// the redundant-START question, a repeat START always resets seq=0
// rather than being a silent no-op.
func (d *Descriptor) StartStreaming() {
	d.Streaming = true
	d.State = Idle
	d.Seq = 0
}

// StopStreaming disables streaming and returns the descriptor to IDLE.
func (d *Descriptor) StopStreaming() {
	d.Streaming = false
	d.State = Idle
}
