package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"

	"github.com/gen2brain/snd/alsa"
)

// decoder hides the difference between the WAV and MP3 readers from the
// playback loop.
type decoder interface {
	// PCMBuffer fills buf.Data and returns the number of samples (not frames) read.
	PCMBuffer(buf *audio.IntBuffer) (n int, err error)
	Duration() (time.Duration, error)
	NumChans() uint16
	SampleRate() uint32
	BitDepth() uint16
	IsFloat() bool
}

type wavDecoder struct {
	*wav.Decoder
}

func newWavDecoder(r io.ReadSeeker) (decoder, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, errors.New("invalid WAV file")
	}

	return &wavDecoder{Decoder: d}, nil
}

func (w *wavDecoder) SampleRate() uint32 { return w.Decoder.SampleRate }
func (w *wavDecoder) NumChans() uint16   { return w.Decoder.NumChans }
func (w *wavDecoder) BitDepth() uint16   { return uint16(w.Decoder.BitDepth) }
func (w *wavDecoder) IsFloat() bool      { return w.Decoder.WavAudioFormat == 3 } // WAVE_FORMAT_IEEE_FLOAT

// mp3Decoder always yields 16-bit stereo.
type mp3Decoder struct {
	d       *mp3.Decoder
	scratch []byte
}

func newMp3Decoder(r io.Reader) (decoder, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}

	return &mp3Decoder{d: d}, nil
}

func (m *mp3Decoder) PCMBuffer(buf *audio.IntBuffer) (int, error) {
	want := len(buf.Data) * 2
	if cap(m.scratch) < want {
		m.scratch = make([]byte, want)
	}

	n, err := io.ReadFull(m.d, m.scratch[:want])
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = nil
	}

	samples := n / 2
	for i := range samples {
		buf.Data[i] = int(int16(binary.LittleEndian.Uint16(m.scratch[i*2:])))
	}

	return samples, err
}

func (m *mp3Decoder) Duration() (time.Duration, error) {
	frames := m.d.Length() / 4
	if frames <= 0 {
		return 0, errors.New("unknown stream length")
	}

	return time.Duration(float64(frames) / float64(m.d.SampleRate()) * float64(time.Second)), nil
}

func (m *mp3Decoder) SampleRate() uint32 { return uint32(m.d.SampleRate()) }
func (m *mp3Decoder) NumChans() uint16   { return 2 }
func (m *mp3Decoder) BitDepth() uint16   { return 16 }
func (m *mp3Decoder) IsFloat() bool      { return false }

// formatFor picks the device format for the decoded stream, or the one named
// by s when it is not empty.
func formatFor(s string, d decoder) (alsa.PcmFormat, error) {
	switch s {
	case "":
	case "s16":
		return alsa.SNDRV_PCM_FORMAT_S16_LE, nil
	case "s24":
		return alsa.SNDRV_PCM_FORMAT_S24_LE, nil
	case "s32":
		return alsa.SNDRV_PCM_FORMAT_S32_LE, nil
	case "float":
		return alsa.SNDRV_PCM_FORMAT_FLOAT_LE, nil
	case "float64":
		return alsa.SNDRV_PCM_FORMAT_FLOAT64_LE, nil
	default:
		return 0, fmt.Errorf("unsupported format: %q", s)
	}

	if d.IsFloat() {
		switch d.BitDepth() {
		case 32:
			return alsa.SNDRV_PCM_FORMAT_FLOAT_LE, nil
		case 64:
			return alsa.SNDRV_PCM_FORMAT_FLOAT64_LE, nil
		default:
			return 0, fmt.Errorf("unsupported float bit depth: %d", d.BitDepth())
		}
	}

	switch d.BitDepth() {
	// 8-bit input is widened; the driver has no way to ask for S8.
	case 8, 16:
		return alsa.SNDRV_PCM_FORMAT_S16_LE, nil
	case 24:
		return alsa.SNDRV_PCM_FORMAT_S24_LE, nil
	case 32:
		return alsa.SNDRV_PCM_FORMAT_S32_LE, nil
	default:
		return 0, fmt.Errorf("unsupported integer bit depth: %d", d.BitDepth())
	}
}

// encode converts decoded samples of the given source bit depth to the
// interleaved little-endian bytes a CMD_BUFFER payload carries. The returned
// slice is freshly allocated.
func encode(samples []int, bitDepth uint16, f alsa.PcmFormat) ([]byte, error) {
	width := int(alsa.PcmFormatToBits(f) / 8)
	out := make([]byte, len(samples)*width)
	full := float64(int(1) << (bitDepth - 1))

	for i, s := range samples {
		b := out[i*width:]

		switch f {
		case alsa.SNDRV_PCM_FORMAT_S16_LE:
			binary.LittleEndian.PutUint16(b, uint16(clamp(shift(s, bitDepth, 16), math.MinInt16, math.MaxInt16)))
		case alsa.SNDRV_PCM_FORMAT_S24_LE:
			binary.LittleEndian.PutUint32(b, uint32(int32(clamp(shift(s, bitDepth, 24), -1<<23, 1<<23-1))))
		case alsa.SNDRV_PCM_FORMAT_S32_LE:
			binary.LittleEndian.PutUint32(b, uint32(int32(shift(s, bitDepth, 32))))
		case alsa.SNDRV_PCM_FORMAT_FLOAT_LE:
			binary.LittleEndian.PutUint32(b, math.Float32bits(float32(float64(s)/full)))
		case alsa.SNDRV_PCM_FORMAT_FLOAT64_LE:
			binary.LittleEndian.PutUint64(b, math.Float64bits(float64(s)/full))
		default:
			return nil, fmt.Errorf("format %d not handled", f)
		}
	}

	return out, nil
}

// shift rescales a sample from one integer bit depth to another.
func shift(s int, from, to uint16) int {
	if from < to {
		return s << (to - from)
	}

	return s >> (from - to)
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
