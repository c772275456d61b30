// Package sanity holds the configuration invariants the original
// firmware enforced as compile-time static assertions (ps_sanity.c). Go
// has no _Static_assert; the checks against fixed protocol constants run
// once as a package init() panic, and the checks against
// runtime-configured values (ring capacities, transport chunk size) run
// via CheckConfig, which callers invoke once during wiring before
// starting the core.
package sanity

import (
	"fmt"

	"github.com/brahimab8/sensorbusd/pkg/protocol"
)

func init() {
	if protocol.HeaderLen != 16 {
		panic("sanity: header size must be 16 bytes")
	}
	if protocol.MaxFrame != protocol.HeaderLen+protocol.MaxPayload+protocol.CRCLen {
		panic("sanity: MaxFrame inconsistent with header/payload/crc lengths")
	}
}

// CheckConfig validates the invariants that depend on runtime
// configuration: a frame at MaxFrame bytes must fit with room to spare in
// both rings, and must fit in a single transport write.
func CheckConfig(txRingCap, rxRingCap int, bestChunk uint16, streamPeriodDefaultMs uint32) error {
	if protocol.MaxFrame > txRingCap-1 {
		return fmt.Errorf("sanity: max frame %d exceeds TX ring usable capacity %d", protocol.MaxFrame, txRingCap-1)
	}
	if protocol.MaxFrame > rxRingCap-1 {
		return fmt.Errorf("sanity: max frame %d exceeds RX ring usable capacity %d", protocol.MaxFrame, rxRingCap-1)
	}
	if protocol.MaxFrame > int(bestChunk) {
		return fmt.Errorf("sanity: max frame %d exceeds transport best chunk %d", protocol.MaxFrame, bestChunk)
	}
	if streamPeriodDefaultMs == 0 {
		return fmt.Errorf("sanity: stream period default must be > 0")
	}
	return nil
}
