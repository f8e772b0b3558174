//go:build linux && (amd64 || arm64)

package alsa

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeterLevel(t *testing.T) {
	samples := func(vs ...int16) []byte {
		b := make([]byte, len(vs)*2)
		for i, v := range vs {
			binary.LittleEndian.PutUint16(b[i*2:], uint16(v))
		}

		return b
	}

	assert.Equal(t, 0, meterLevel(samples(0, 0), SNDRV_PCM_FORMAT_S16_LE))
	assert.Equal(t, 127, meterLevel(samples(100, -16384), SNDRV_PCM_FORMAT_S16_LE))
	assert.Equal(t, 254, meterLevel(samples(32767), SNDRV_PCM_FORMAT_S16_LE))
	assert.Equal(t, 255, meterLevel(samples(-32768), SNDRV_PCM_FORMAT_S16_LE))
	assert.Equal(t, 0, meterLevel(samples(-32768), SNDRV_PCM_FORMAT_S32_LE))
}
