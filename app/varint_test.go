package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadVarint(t *testing.T) {
	tests := []struct {
		name         string
		data         []byte
		offset       int
		expectedVal  uint64
		expectedRead int
		expectedOK   bool
	}{
		{
			name:         "single byte varint",
			data:         []byte{0x7F},
			offset:       0,
			expectedVal:  127,
			expectedRead: 1,
			expectedOK:   true,
		},
		{
			name:         "two byte varint",
			data:         []byte{0x81, 0x00},
			offset:       0,
			expectedVal:  128,
			expectedRead: 2,
			expectedOK:   true,
		},
		{
			name:         "nine byte varint uses all 8 bits of final byte",
			data:         []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
			offset:       0,
			expectedVal:  0xFFFFFFFFFFFFFFFF,
			expectedRead: 9,
			expectedOK:   true,
		},
		{
			name:         "truncated varint",
			data:         []byte{0x81},
			offset:       0,
			expectedVal:  0,
			expectedRead: 0,
			expectedOK:   false,
		},
		{
			name:         "offset into the middle of the buffer",
			data:         []byte{0x00, 0x05},
			offset:       1,
			expectedVal:  5,
			expectedRead: 1,
			expectedOK:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			val, n, ok := readVarint(tt.data, tt.offset)
			assert.Equal(t, tt.expectedOK, ok)
			if tt.expectedOK {
				assert.Equal(t, tt.expectedVal, val)
				assert.Equal(t, tt.expectedRead, n)
			}
		})
	}
}

func TestVarintCursorAdvancesAcrossReads(t *testing.T) {
	data := []byte{0x02, 0x81, 0x00, 0x7F}
	c := newVarintCursor(data, 0)

	v1, err := c.ReadVarint()
	require := assert.New(t)
	require.NoError(err)
	require.Equal(uint64(2), v1)

	v2, err := c.ReadVarint()
	require.NoError(err)
	require.Equal(uint64(128), v2)

	v3, err := c.ReadVarint()
	require.NoError(err)
	require.Equal(uint64(127), v3)
	require.Equal(len(data), c.Offset())
}

func TestVarintReaderFromStream(t *testing.T) {
	data := []byte{0x7F, 0x81, 0x00}
	r := newVarintReader(bytes.NewReader(data))

	v1, err := r.ReadVarint()
	assert.NoError(t, err)
	assert.Equal(t, uint64(127), v1)

	v2, err := r.ReadVarint()
	assert.NoError(t, err)
	assert.Equal(t, uint64(128), v2)
}
