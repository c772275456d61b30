// Package sensormgr adapts a blocking sensor read into the cooperative
// start/poll/fill facade the streaming machine expects, caching the last
// sample between Poll and Fill and keeping the last read error.
package sensormgr

import (
	"github.com/brahimab8/sensorbusd/pkg/iface"
)

// ReadFunc performs one blocking sample read, returning the raw sample
// bytes (length must equal the Manager's configured sample size) or an
// error.
type ReadFunc func() ([]byte, error)

// state is the manager's own bookkeeping, separate from
// streammachine.State: it tracks whether a blocking read has been
// requested and completed, not the streaming cycle built on top of it.
type state int

const (
	stIdle state = iota
	stRequested
	stReady
	stError
)

// Manager implements iface.Sensor over a blocking ReadFunc, matching the
// original firmware's sensor_mgr_t: start() returns immediately, poll()
// performs the blocking read the first time it's called after start(),
// and fill() only succeeds once a sample is cached and ready.
type Manager struct {
	read       ReadFunc
	sampleSize int
	typeID     uint8
	clock      iface.Clock

	last         []byte
	lastErr      error
	lastSampleMs uint32
	state        state
}

// New wires a Manager around read, a fixed sample size and type id, and
// a clock used to stamp successful samples.
func New(read ReadFunc, sampleSize int, typeID uint8, clock iface.Clock) *Manager {
	return &Manager{
		read:       read,
		sampleSize: sampleSize,
		typeID:     typeID,
		clock:      clock,
		last:       make([]byte, sampleSize),
		state:      stIdle,
	}
}

// Start returns Ready immediately if a sample is already cached, Busy if
// a read was already requested, and otherwise requests one (returning
// Busy so the caller polls next tick).
func (m *Manager) Start() iface.SensorState {
	switch m.state {
	case stReady:
		return iface.SensorReady
	case stRequested:
		return iface.SensorBusy
	default:
		m.state = stRequested
		return iface.SensorBusy
	}
}

// Poll performs the blocking read the first time it observes a
// requested-but-not-yet-read state; IDLE/READY both report Ready
// immediately (nothing to wait on), ERROR persists until the next Start.
func (m *Manager) Poll() iface.SensorState {
	switch m.state {
	case stRequested:
		sample, err := m.read()
		if err != nil {
			m.lastErr = err
			m.state = stError
			return iface.SensorError
		}
		copy(m.last, sample)
		if m.clock != nil {
			m.lastSampleMs = m.clock.NowMS()
		}
		m.state = stReady
		return iface.SensorReady
	case stError:
		return iface.SensorError
	default:
		return iface.SensorReady
	}
}

// Fill copies the cached sample into dst and returns the number of bytes
// copied, or 0 if no sample is ready or dst is too small. A successful
// copy consumes the cache: it drops the manager back to IDLE so the next
// Start invites a fresh REQUESTED/read cycle rather than serving the same
// bytes again next period (the original firmware's streaming path reads
// bus_mV/current_uA directly every tick; this is the cooperative-adapter
// equivalent of that fresh-per-period behavior).
func (m *Manager) Fill(dst []byte) int {
	if m.state != stReady || len(dst) < m.sampleSize {
		return 0
	}
	n := copy(dst, m.last)
	m.state = stIdle
	return n
}

// SampleSize returns the fixed sample length this manager produces.
func (m *Manager) SampleSize() int { return m.sampleSize }

// TypeID returns the static sensor family identifier.
func (m *Manager) TypeID() uint8 { return m.typeID }

// LastError returns the error from the most recent failed read, if any.
func (m *Manager) LastError() error { return m.lastErr }

// LastSampleMs returns the clock reading at the last successful sample.
func (m *Manager) LastSampleMs() uint32 { return m.lastSampleMs }

// SampleBlocking performs an immediate blocking read outside the
// cooperative Start/Poll cycle and leaves the result cached as ready for
// Fill. The core's READ_SENSOR handler does not call it; it drives
// Start/Poll/Fill instead.
func (m *Manager) SampleBlocking() ([]byte, error) {
	sample, err := m.read()
	if err != nil {
		m.lastErr = err
		m.state = stError
		return nil, err
	}
	copy(m.last, sample)
	if m.clock != nil {
		m.lastSampleMs = m.clock.NowMS()
	}
	m.state = stReady
	return m.last, nil
}
