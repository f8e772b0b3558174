package main

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gen2brain/snd/alsa"
)

func TestBytesToIntBuffer(t *testing.T) {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint16(data[0:], uint16(0x7fff))
	binary.LittleEndian.PutUint16(data[2:], 0x8000) // -32768
	binary.LittleEndian.PutUint32(data[4:], 0x00ffffff)

	buf, err := bytesToIntBuffer(data[:4], alsa.SNDRV_PCM_FORMAT_S16_LE, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{32767, -32768}, buf.Data)
	assert.Equal(t, 16, buf.SourceBitDepth)
	assert.Equal(t, 2, buf.Format.NumChannels)

	// The upper byte of an S24_LE container is ignored.
	buf, err = bytesToIntBuffer(data[4:], alsa.SNDRV_PCM_FORMAT_S24_LE, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{-1}, buf.Data)

	_, err = bytesToIntBuffer(data, alsa.SNDRV_PCM_FORMAT_FLOAT_LE, 1)
	assert.Error(t, err)
}

func TestDetermineFormat(t *testing.T) {
	f, depth, err := determineFormat("s24")
	require.NoError(t, err)
	assert.Equal(t, alsa.SNDRV_PCM_FORMAT_S24_LE, f)
	assert.Equal(t, 24, depth)

	_, _, err = determineFormat("float")
	assert.Error(t, err)
}
