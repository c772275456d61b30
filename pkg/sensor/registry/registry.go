// Package registry builds a fixed set of simulated sensor slots and
// wires each into a pkg/sensormgr.Manager, one per runtime id, matching
// the runtime_id-prefixed STREAM payload shape the core emits.
package registry

import (
	"github.com/brahimab8/sensorbusd/pkg/clock"
	"github.com/brahimab8/sensorbusd/pkg/iface"
	"github.com/brahimab8/sensorbusd/pkg/sensor/ina219sim"
	"github.com/brahimab8/sensorbusd/pkg/sensormgr"
)

// MaxSlots bounds the registry size, matching the 8-sensor ceiling the
// original firmware's generalized registry used.
const MaxSlots = 8

// TypeIDINA219 is the static family identifier reported in GET_SENSORS
// for every slot this registry builds (all slots simulate the same chip).
const TypeIDINA219 uint8 = 1

// Slot pairs a runtime id with the iface.Sensor implementation backing
// it.
type Slot struct {
	RuntimeID uint8
	TypeID    uint8
	Sensor    iface.Sensor
}

// BuildSimulated constructs n simulated INA219 sensor slots (n clamped to
// MaxSlots), each with a distinct deterministic seed so their traces
// diverge, sharing clk for sample timestamps.
func BuildSimulated(n int, clk iface.Clock) []Slot {
	if n > MaxSlots {
		n = MaxSlots
	}
	if clk == nil {
		clk = clock.NewReal()
	}
	slots := make([]Slot, 0, n)
	for i := 0; i < n; i++ {
		sim := ina219sim.New(int64(i) + 1)
		mgr := sensormgr.New(sim.Read, ina219sim.SampleSize, TypeIDINA219, clk)
		slots = append(slots, Slot{
			RuntimeID: uint8(i),
			TypeID:    TypeIDINA219,
			Sensor:    mgr,
		})
	}
	return slots
}
