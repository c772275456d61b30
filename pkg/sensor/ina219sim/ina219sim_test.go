package ina219sim

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadProducesFixedSizeSample(t *testing.T) {
	s := New(1)
	sample, err := s.Read()
	require.NoError(t, err)
	require.Len(t, sample, SampleSize)
}

func TestReadStaysWithinBoundsAcrossManySamples(t *testing.T) {
	s := New(42)
	for i := 0; i < 10_000; i++ {
		sample, err := s.Read()
		require.NoError(t, err)

		busMV := binary.LittleEndian.Uint16(sample[0:2])
		currUA := binary.LittleEndian.Uint32(sample[2:6])

		require.GreaterOrEqual(t, busMV, uint16(3000))
		require.LessOrEqual(t, busMV, uint16(5500))
		require.LessOrEqual(t, currUA, uint32(3_000_000))
	}
}

func TestDifferentSeedsDiverge(t *testing.T) {
	a := New(1)
	b := New(2)
	var aSample, bSample []byte
	for i := 0; i < 50; i++ {
		aSample, _ = a.Read()
		bSample, _ = b.Read()
	}
	require.NotEqual(t, aSample, bSample)
}
