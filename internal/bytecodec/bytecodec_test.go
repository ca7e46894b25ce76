package bytecodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadWriteUintBE(t *testing.T) {
	testCases := []struct {
		width int
		value uint64
	}{
		{1, 0xAB},
		{2, 0xBEEF},
		{4, 0xDEADBEEF},
		{8, 0x0102030405060708},
	}

	for _, tc := range testCases {
		encoded, err := WriteUintBE(tc.value, tc.width)
		require.NoError(t, err)
		require.Len(t, encoded, tc.width)

		decoded, err := ReadUintBE(encoded, tc.width)
		require.NoError(t, err)
		assert.Equal(t, tc.value, decoded)
	}
}

func TestReadUintBEShortBuffer(t *testing.T) {
	_, err := ReadUintBE([]byte{0x01, 0x02}, 4)
	assert.Error(t, err)
}

func TestUnsupportedWidth(t *testing.T) {
	_, err := WriteUintBE(1, 3)
	assert.Error(t, err)

	_, err = ReadUintBE([]byte{1, 2, 3}, 3)
	assert.Error(t, err)
}

func TestReadUintLE(t *testing.T) {
	v, err := ReadUintLE([]byte{0x01, 0x02, 0x03, 0x04}, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x04030201), v)
}

func TestU16ToI16(t *testing.T) {
	assert.Equal(t, int16(1), U16ToI16(1))
	assert.Equal(t, int16(-1), U16ToI16(0xFFFF))
	assert.Equal(t, int16(-3), U16ToI16(0xFFFD))
}

func TestPad(t *testing.T) {
	testCases := []struct {
		n, p, want uint64
	}{
		{0, 2, 0},
		{1, 2, 2},
		{2, 2, 2},
		{3, 2, 4},
		{5, 4, 8},
		{8, 4, 8},
		{7, 0, 7},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.want, Pad(tc.n, tc.p))
	}
}
