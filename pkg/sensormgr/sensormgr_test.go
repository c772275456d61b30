package sensormgr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brahimab8/sensorbusd/pkg/clock"
	"github.com/brahimab8/sensorbusd/pkg/iface"
)

func TestStartRequestsThenPollCompletesRead(t *testing.T) {
	calls := 0
	read := func() ([]byte, error) {
		calls++
		return []byte{1, 2}, nil
	}
	clk := clock.NewFake(10)
	m := New(read, 2, 1, clk)

	st := m.Start()
	require.Equal(t, iface.SensorBusy, st)
	require.Equal(t, 0, calls) // start does not itself perform the read

	st = m.Poll()
	require.Equal(t, iface.SensorReady, st)
	require.Equal(t, 1, calls)

	dst := make([]byte, 2)
	n := m.Fill(dst)
	require.Equal(t, 2, n)
	require.Equal(t, []byte{1, 2}, dst)
	require.Equal(t, uint32(10), m.LastSampleMs())
}

func TestStartWhenAlreadyReadyReturnsImmediately(t *testing.T) {
	read := func() ([]byte, error) { return []byte{9}, nil }
	m := New(read, 1, 1, clock.NewFake(0))
	m.Start()
	m.Poll() // now Ready

	st := m.Start()
	require.Equal(t, iface.SensorReady, st)
}

func TestReadErrorEntersErrorState(t *testing.T) {
	read := func() ([]byte, error) { return nil, errors.New("i2c timeout") }
	m := New(read, 1, 1, clock.NewFake(0))
	m.Start()
	st := m.Poll()
	require.Equal(t, iface.SensorError, st)
	require.Error(t, m.LastError())
	require.Equal(t, iface.SensorError, m.Poll()) // persists until next Start
}

func TestFillFailsWhenNotReady(t *testing.T) {
	m := New(func() ([]byte, error) { return []byte{1}, nil }, 1, 1, clock.NewFake(0))
	dst := make([]byte, 1)
	require.Equal(t, 0, m.Fill(dst))
}

func TestFillFailsWhenDstTooSmall(t *testing.T) {
	m := New(func() ([]byte, error) { return []byte{1, 2}, nil }, 2, 1, clock.NewFake(0))
	m.Start()
	m.Poll()
	dst := make([]byte, 1)
	require.Equal(t, 0, m.Fill(dst))
}

func TestFillConsumesCacheForcingFreshReadNextCycle(t *testing.T) {
	calls := 0
	read := func() ([]byte, error) {
		calls++
		return []byte{byte(calls), byte(calls)}, nil
	}
	m := New(read, 2, 1, clock.NewFake(0))

	dst := make([]byte, 2)
	for cycle := 1; cycle <= 3; cycle++ {
		st := m.Start()
		require.Equal(t, iface.SensorBusy, st, "cycle %d: Start must re-arm after the prior Fill consumed the cache", cycle)
		require.Equal(t, iface.SensorReady, m.Poll())
		require.Equal(t, calls, cycle, "cycle %d: Poll must perform a fresh read, not reuse the cache", cycle)

		n := m.Fill(dst)
		require.Equal(t, 2, n)
		require.Equal(t, []byte{byte(cycle), byte(cycle)}, dst)
	}
}

func TestSampleBlockingBypassesCooperativeCycle(t *testing.T) {
	m := New(func() ([]byte, error) { return []byte{7, 8}, nil }, 2, 1, clock.NewFake(5))
	sample, err := m.SampleBlocking()
	require.NoError(t, err)
	require.Equal(t, []byte{7, 8}, sample)

	dst := make([]byte, 2)
	require.Equal(t, 2, m.Fill(dst))
}
