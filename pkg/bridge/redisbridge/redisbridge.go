// Package redisbridge mirrors device streaming state into Redis and
// turns a Redis command list into in-process dispatcher calls: one
// goroutine publishes snapshots outward, another blocks on BRPOP and
// turns commands inward.
package redisbridge

import (
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	cborpkg "github.com/fxamacker/cbor/v2"

	"github.com/brahimab8/sensorbusd/pkg/core"
)

// Redis key/list names used by the bridge.
const (
	KeySensorPrefix = "sensor:" // hash per runtime id, e.g. "sensor:0"
	ListCommands    = "sensorbus:commands"
	ChanSensor      = "sensorbus:updates"
)

// Client is the subset of pkg/redis.Client the bridge needs; kept as an
// interface so tests can supply a fake.
type Client interface {
	WriteAndPublishInt(key, field string, value int) error
	WriteAndPublishString(key, field, value string) error
	BRPop(timeout time.Duration, key string) ([]string, error)
}

// Bridge wires a *core.Core to a Redis Client.
type Bridge struct {
	core   *core.Core
	redis  Client
	stopCh chan struct{}
}

// New builds a Bridge over an already-connected redis client.
func New(c *core.Core, redisClient Client) *Bridge {
	return &Bridge{core: c, redis: redisClient, stopCh: make(chan struct{})}
}

// Stop signals WatchCommands to return.
func (b *Bridge) Stop() { close(b.stopCh) }

// PublishSnapshot writes every sensor's current streaming descriptor
// into its Redis hash and publishes a change notification for each
// field via WriteAndPublish{Int,String}.
func (b *Bridge) PublishSnapshot() {
	for _, d := range b.core.Snapshot() {
		key := fmt.Sprintf("%s%d", KeySensorPrefix, d.RuntimeID)
		if err := b.redis.WriteAndPublishString(key, "streaming", boolStr(d.Streaming)); err != nil {
			log.Printf("redisbridge: write streaming flag for sensor %d: %v", d.RuntimeID, err)
		}
		if err := b.redis.WriteAndPublishInt(key, "seq", int(d.Seq)); err != nil {
			log.Printf("redisbridge: write seq for sensor %d: %v", d.RuntimeID, err)
		}
		if err := b.redis.WriteAndPublishInt(key, "period_ms", int(d.PeriodMs)); err != nil {
			log.Printf("redisbridge: write period for sensor %d: %v", d.RuntimeID, err)
		}
		if err := b.redis.WriteAndPublishInt(key, "last_emit_ms", int(d.LastEmitMs)); err != nil {
			log.Printf("redisbridge: write last_emit for sensor %d: %v", d.RuntimeID, err)
		}
	}
}

// WatchCommands blocks, BRPOP-ing ListCommands and translating each
// "op:sensor_id[:value]" string into an in-process dispatcher call.
// Intended to run in its own goroutine via `go bridge.WatchCommands()`.
func (b *Bridge) WatchCommands() {
	for {
		select {
		case <-b.stopCh:
			return
		default:
		}

		result, err := b.redis.BRPop(0, ListCommands)
		if err != nil {
			if err != redis.Nil {
				log.Printf("redisbridge: BRPOP %s: %v", ListCommands, err)
				time.Sleep(time.Second)
			}
			continue
		}
		if len(result) != 2 {
			continue
		}
		b.handleCommandString(result[1])
	}
}

func (b *Bridge) handleCommandString(command string) {
	op, sensorID, value, ok := parseCommand(command)
	if !ok {
		log.Printf("redisbridge: malformed command %q", command)
		return
	}

	var payload []byte
	switch op {
	case "start":
		payload = []byte{core.CmdStart, sensorID}
	case "stop":
		payload = []byte{core.CmdStop, sensorID}
	case "set-period":
		p := make([]byte, 4)
		p[0] = core.CmdSetPeriod
		p[1] = sensorID
		binary.LittleEndian.PutUint16(p[2:4], uint16(value))
		payload = p
	case "read":
		payload = []byte{core.CmdReadSensor, sensorID}
	default:
		log.Printf("redisbridge: unknown command op %q", op)
		return
	}

	typ, resp := b.core.Dispatch(payload[0], payload[1:])
	log.Printf("redisbridge: dispatched %q -> type=%v resp=%x", command, typ, resp)
}

func parseCommand(command string) (op string, sensorID uint8, value uint16, ok bool) {
	i := 0
	for i < len(command) && command[i] != ':' {
		i++
	}
	if i == 0 || i == len(command) {
		return "", 0, 0, false
	}
	opStr := command[:i]
	var sid, val int
	n, _ := fmt.Sscanf(command[i+1:], "%d:%d", &sid, &val)
	if n < 1 {
		return "", 0, 0, false
	}
	return opStr, uint8(sid), uint16(val), true
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// snapshotCBOR is the on-disk debug export shape: one entry per sensor.
type snapshotCBOR struct {
	RuntimeID  uint8  `cbor:"runtime_id"`
	TypeID     uint8  `cbor:"type_id"`
	Streaming  bool   `cbor:"streaming"`
	Seq        uint32 `cbor:"seq"`
	PeriodMs   uint32 `cbor:"period_ms"`
	LastEmitMs uint32 `cbor:"last_emit_ms"`
}

// EncodeSnapshot CBOR-encodes the current descriptor table for an
// on-disk diagnostic export; the wire protocol itself stays the raw
// framed codec in pkg/protocol.
func (b *Bridge) EncodeSnapshot() ([]byte, error) {
	snaps := b.core.Snapshot()
	out := make([]snapshotCBOR, 0, len(snaps))
	for _, d := range snaps {
		out = append(out, snapshotCBOR{
			RuntimeID:  d.RuntimeID,
			TypeID:     d.TypeID,
			Streaming:  d.Streaming,
			Seq:        d.Seq,
			PeriodMs:   d.PeriodMs,
			LastEmitMs: d.LastEmitMs,
		})
	}
	return cborpkg.Marshal(out)
}

// WriteSnapshotFile CBOR-encodes the current descriptor table via
// EncodeSnapshot and writes it to path, for the on-request debug export
// triggered from the HTTP API.
func (b *Bridge) WriteSnapshotFile(path string) error {
	data, err := b.EncodeSnapshot()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot file %s: %w", path, err)
	}
	return nil
}
