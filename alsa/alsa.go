// Package alsa implements snd.Driver on top of the Linux ALSA PCM interface,
// talking to /dev/snd directly through ioctls.
//
// Every channel owns a playback PCM and a worker goroutine locked to its OS
// thread. The worker executes queued commands and fires channel completion
// routines, so those always run off the host goroutines, as snd requires.
package alsa

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/gen2brain/snd"
)

// PcmFormat defines the sample format for a PCM stream.
// These values correspond to the SNDRV_PCM_FORMAT_* constants in the ALSA kernel headers.
type PcmFormat int32

const (
	SNDRV_PCM_FORMAT_S8         PcmFormat = 0
	SNDRV_PCM_FORMAT_U8         PcmFormat = 1
	SNDRV_PCM_FORMAT_S16_LE     PcmFormat = 2
	SNDRV_PCM_FORMAT_S16_BE     PcmFormat = 3
	SNDRV_PCM_FORMAT_S24_LE     PcmFormat = 6
	SNDRV_PCM_FORMAT_S32_LE     PcmFormat = 10
	SNDRV_PCM_FORMAT_S32_BE     PcmFormat = 11
	SNDRV_PCM_FORMAT_FLOAT_LE   PcmFormat = 14
	SNDRV_PCM_FORMAT_FLOAT64_LE PcmFormat = 16
	SNDRV_PCM_FORMAT_S24_3LE    PcmFormat = 32
)

// PcmFormatToBits returns the number of bits per sample for a given format.
// 24-bit formats in 32-bit containers return 32.
func PcmFormatToBits(f PcmFormat) uint32 {
	switch f {
	case SNDRV_PCM_FORMAT_FLOAT64_LE:
		return 64
	case SNDRV_PCM_FORMAT_S32_LE, SNDRV_PCM_FORMAT_S32_BE, SNDRV_PCM_FORMAT_FLOAT_LE, SNDRV_PCM_FORMAT_S24_LE:
		return 32
	case SNDRV_PCM_FORMAT_S24_3LE:
		return 24
	case SNDRV_PCM_FORMAT_S16_LE, SNDRV_PCM_FORMAT_S16_BE:
		return 16
	case SNDRV_PCM_FORMAT_S8, SNDRV_PCM_FORMAT_U8:
		return 8
	default:
		return 0
	}
}

// Sound Manager channel init flags understood by NewChannel.
const (
	InitChanMask = 0xC0
	InitMono     = 0x80
	InitStereo   = 0xC0
)

// DefaultQueueLength is the command queue capacity used when Config.QueueLength is zero.
const DefaultQueueLength = 128

var (
	// ErrQueueFull is returned by a non-waiting DoCommand when the channel queue is full.
	ErrQueueFull = errors.New("alsa: command queue full")
	// ErrUnsupportedCommand is returned for opcodes the driver does not execute.
	ErrUnsupportedCommand = errors.New("alsa: unsupported command")
	// ErrDisposed is returned by channel operations after Dispose.
	ErrDisposed = errors.New("alsa: channel disposed")
	// ErrBusy is returned by Record for a record that is already recording.
	ErrBusy = errors.New("alsa: request already active")
	// ErrNotRecording is returned by recording controls when no request is active.
	ErrNotRecording = errors.New("alsa: no active request")
	// ErrNoBuffer is returned by Record when the record has nothing to fill.
	ErrNoBuffer = errors.New("alsa: record has no buffer")
)

// Config selects the playback device and the stream parameters shared by
// every channel and recording the driver opens.
type Config struct {
	Card        uint
	Device      uint
	Channels    uint32
	Rate        uint32
	PeriodSize  uint32
	PeriodCount uint32
	Format      PcmFormat
	QueueLength int
	Logger      *zap.Logger
}

// DefaultConfig is 16-bit stereo at 48 kHz on hw:0,0.
var DefaultConfig = Config{
	Channels:    2,
	Rate:        48000,
	PeriodSize:  1024,
	PeriodCount: 4,
	Format:      SNDRV_PCM_FORMAT_S16_LE,
	QueueLength: DefaultQueueLength,
}

func (c Config) withDefaults() Config {
	if c.Channels == 0 {
		c.Channels = DefaultConfig.Channels
	}

	if c.Rate == 0 {
		c.Rate = DefaultConfig.Rate
	}

	if c.PeriodSize == 0 {
		c.PeriodSize = DefaultConfig.PeriodSize
	}

	if c.PeriodCount == 0 {
		c.PeriodCount = DefaultConfig.PeriodCount
	}

	// S8 is the zero value and cannot be told apart from an unset Format.
	if c.Format == SNDRV_PCM_FORMAT_S8 {
		c.Format = DefaultConfig.Format
	}

	if c.QueueLength <= 0 {
		c.QueueLength = DefaultConfig.QueueLength
	}

	if c.Logger == nil {
		c.Logger = snd.Logger()
	}

	return c
}

// FrameSize returns the size of a single frame in bytes.
func (c Config) FrameSize() uint32 {
	return c.Channels * (PcmFormatToBits(c.Format) / 8)
}

// BytesPerMillisecond returns the byte rate of the stream, in bytes per millisecond.
func (c Config) BytesPerMillisecond() float64 {
	return float64(c.Rate) * float64(c.FrameSize()) / 1000
}

// Driver is the ALSA implementation of snd.Driver.
type Driver struct {
	cfg Config
	log *zap.Logger

	mu         sync.Mutex
	channels   map[*channel]struct{}
	recordings map[*snd.SPBRecord]*recording
}

var _ snd.Driver = (*Driver)(nil)

// Open creates a driver for cfg. Zero fields take their value from
// DefaultConfig. No device is opened until a channel or recording needs one.
func Open(cfg Config) *Driver {
	cfg = cfg.withDefaults()

	return &Driver{
		cfg:        cfg,
		log:        cfg.Logger.Named("alsa"),
		channels:   make(map[*channel]struct{}),
		recordings: make(map[*snd.SPBRecord]*recording),
	}
}

// Config returns the effective driver configuration.
func (d *Driver) Config() Config {
	return d.cfg
}

// Close disposes every open channel, flushing queued audio, and aborts every
// active recording.
func (d *Driver) Close() error {
	d.mu.Lock()
	channels := make([]*channel, 0, len(d.channels))
	for c := range d.channels {
		channels = append(channels, c)
	}
	records := make([]*snd.SPBRecord, 0, len(d.recordings))
	for rec := range d.recordings {
		records = append(records, rec)
	}
	d.mu.Unlock()

	var errs []error
	for _, c := range channels {
		if err := c.Dispose(true); err != nil {
			errs = append(errs, err)
		}
	}

	for _, rec := range records {
		if err := d.StopRecording(rec); err != nil && !errors.Is(err, ErrNotRecording) {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
