package redisbridge

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"

	"github.com/brahimab8/sensorbusd/pkg/clock"
	"github.com/brahimab8/sensorbusd/pkg/core"
	"github.com/brahimab8/sensorbusd/pkg/iface"
)

type fakeTransport struct{}

func (f *fakeTransport) TxWrite(buf []byte) (int, error) { return len(buf), nil }
func (f *fakeTransport) LinkReady() bool                 { return true }
func (f *fakeTransport) BestChunk() uint16               { return 64 }
func (f *fakeTransport) SetRXCallback(cb func([]byte))   {}

type fakeSensor struct{}

func (s *fakeSensor) Start() iface.SensorState { return iface.SensorReady }
func (s *fakeSensor) Poll() iface.SensorState  { return iface.SensorReady }
func (s *fakeSensor) Fill(dst []byte) int      { return copy(dst, []byte{1, 2}) }
func (s *fakeSensor) SampleSize() int          { return 2 }
func (s *fakeSensor) TypeID() uint8            { return 9 }

type fakeRedisClient struct{}

func (f *fakeRedisClient) WriteAndPublishInt(key, field string, value int) error    { return nil }
func (f *fakeRedisClient) WriteAndPublishString(key, field, value string) error     { return nil }
func (f *fakeRedisClient) BRPop(timeout time.Duration, key string) ([]string, error) { return nil, nil }

func newTestBridge(t *testing.T) *Bridge {
	t.Helper()
	cfg := core.Config{
		TxRingCapacity:  8192,
		RxRingCapacity:  2048,
		DefaultPeriodMs: 500,
		MinPeriodMs:     1,
		MaxPeriodMs:     60000,
	}
	c, err := core.New(cfg, &fakeTransport{}, clock.NewFake(0))
	require.NoError(t, err)
	c.AttachSensor(3, 9, &fakeSensor{}, 46)
	return New(c, &fakeRedisClient{})
}

func TestEncodeSnapshotProducesOneEntryPerSensor(t *testing.T) {
	b := newTestBridge(t)
	data, err := b.EncodeSnapshot()
	require.NoError(t, err)

	var decoded []snapshotCBOR
	require.NoError(t, cbor.Unmarshal(data, &decoded))
	require.Len(t, decoded, 1)
	require.Equal(t, uint8(3), decoded[0].RuntimeID)
	require.Equal(t, uint8(9), decoded[0].TypeID)
}

func TestWriteSnapshotFileWritesDecodableCBOR(t *testing.T) {
	b := newTestBridge(t)
	path := filepath.Join(t.TempDir(), "snapshot.cbor")

	require.NoError(t, b.WriteSnapshotFile(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded []snapshotCBOR
	require.NoError(t, cbor.Unmarshal(raw, &decoded))
	require.Len(t, decoded, 1)
}

func TestWriteSnapshotFileFailsOnUnwritablePath(t *testing.T) {
	b := newTestBridge(t)
	require.Error(t, b.WriteSnapshotFile(filepath.Join(t.TempDir(), "missing-dir", "snapshot.cbor")))
}
