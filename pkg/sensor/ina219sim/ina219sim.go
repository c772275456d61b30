// Package ina219sim simulates the INA219-shaped sample the original
// firmware's ps_fill_sensor_payload produced: a 6-byte little-endian
// record of bus voltage (mV, u16) and current (uA, i32). No real INA219
// chip is reachable from a host process, so this generates a plausible,
// deterministic-per-seed reading via a bounded random walk, and is wired
// as the default pkg/sensormgr.ReadFunc in cmd/sensorbusd.
package ina219sim

import (
	"encoding/binary"
	"math/rand"
)

// SampleSize is the fixed record length: u16 bus_mV + i32 current_uA.
const SampleSize = 6

// Sim holds one sensor's simulated state: a slowly drifting bus voltage
// and current draw, seeded per instance so multiple simulated sensors
// don't all report identical traces.
type Sim struct {
	rng    *rand.Rand
	busMV  int32
	currUA int32
}

// New creates a simulated INA219 seeded by seed, starting near a typical
// 5V bus drawing a modest current.
func New(seed int64) *Sim {
	return &Sim{
		rng:    rand.New(rand.NewSource(seed)),
		busMV:  5000,
		currUA: 150000,
	}
}

// Read produces the next simulated sample, bounding the random walk so
// voltage stays within [3000, 5500] mV and current within [0, 3000000] uA.
func (s *Sim) Read() ([]byte, error) {
	s.busMV += int32(s.rng.Intn(21) - 10)
	if s.busMV < 3000 {
		s.busMV = 3000
	}
	if s.busMV > 5500 {
		s.busMV = 5500
	}

	s.currUA += int32(s.rng.Intn(2001) - 1000)
	if s.currUA < 0 {
		s.currUA = 0
	}
	if s.currUA > 3_000_000 {
		s.currUA = 3_000_000
	}

	out := make([]byte, SampleSize)
	binary.LittleEndian.PutUint16(out[0:2], uint16(s.busMV))
	binary.LittleEndian.PutUint32(out[2:6], uint32(s.currUA))
	return out, nil
}
