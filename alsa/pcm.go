package alsa

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// errBadState is what a transfer returns when another goroutine dropped the stream under it.
var errBadState = unix.EBADFD

// pcm is an open hardware PCM device. It is driven by a single goroutine at a
// time, except for drop, which may be called from any goroutine to abort a
// blocked transfer.
type pcm struct {
	file      *os.File
	path      string
	config    Config
	capture   bool
	frameSize uint32
	prepared  atomic.Bool
	xruns     int
}

// openPCM opens /dev/snd/pcmC<card>D<device>{p,c} and applies cfg.
// Plugins are not supported; only direct hardware devices can be opened.
func openPCM(card, device uint, capture bool, cfg Config) (*pcm, error) {
	streamChar := 'p'
	if capture {
		streamChar = 'c'
	}

	path := fmt.Sprintf("/dev/snd/pcmC%dD%d%c", card, device, streamChar)

	// Open non-blocking so a busy device fails fast, then switch to blocking I/O.
	file, err := os.OpenFile(path, os.O_RDWR|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open PCM device %s: %w", path, err)
	}

	flags, err := unix.FcntlInt(file.Fd(), unix.F_GETFL, 0)
	if err == nil {
		_, err = unix.FcntlInt(file.Fd(), unix.F_SETFL, flags&^syscall.O_NONBLOCK)
	}

	if err != nil {
		_ = file.Close()

		return nil, fmt.Errorf("failed to set blocking mode on %s: %w", path, err)
	}

	p := &pcm{
		file:    file,
		path:    path,
		capture: capture,
	}

	if err := p.setConfig(cfg); err != nil {
		_ = file.Close()

		return nil, fmt.Errorf("failed to configure %s: %w", path, err)
	}

	return p, nil
}

func (p *pcm) setConfig(cfg Config) error {
	hw := newHwParams()
	hw.setMask(paramAccess, accessRWInterleaved)
	hw.setMask(paramFormat, uint32(cfg.Format))
	hw.setMin(paramPeriodSize, cfg.PeriodSize)
	hw.setInt(paramChannels, cfg.Channels)
	hw.setInt(paramPeriods, cfg.PeriodCount)
	hw.setInt(paramRate, cfg.Rate)

	if err := ioctl(p.file.Fd(), SNDRV_PCM_IOCTL_HW_PARAMS, uintptr(unsafe.Pointer(hw))); err != nil {
		return fmt.Errorf("ioctl HW_PARAMS failed: %w", err)
	}

	p.config = cfg
	p.config.PeriodSize = hw.getInt(paramPeriodSize)
	p.config.PeriodCount = hw.getInt(paramPeriods)
	p.config.Channels = hw.getInt(paramChannels)
	p.config.Rate = hw.getInt(paramRate)

	if p.config.Channels == 0 || p.config.Rate == 0 || p.config.PeriodSize == 0 || p.config.PeriodCount == 0 {
		return fmt.Errorf("driver finalized invalid PCM configuration (Channels=%d, Rate=%d, PeriodSize=%d, PeriodCount=%d)",
			p.config.Channels, p.config.Rate, p.config.PeriodSize, p.config.PeriodCount)
	}

	p.frameSize = p.config.FrameSize()
	if p.frameSize == 0 {
		return fmt.Errorf("unsupported sample format %d", cfg.Format)
	}

	bufferSize := p.config.PeriodSize * p.config.PeriodCount

	sw := &sndPcmSwParams{
		TstampMode: 1, // SNDRV_PCM_TSTAMP_ENABLE
		PeriodStep: 1,
		AvailMin:   sndPcmUframesT(p.config.PeriodSize),
		XferAlign:  sndPcmUframesT(p.config.PeriodSize / 2),
	}

	if p.capture {
		sw.StartThreshold = 1
		sw.StopThreshold = sndPcmUframesT(bufferSize * 10)
	} else {
		sw.StartThreshold = sndPcmUframesT(bufferSize / 2)
		sw.StopThreshold = sndPcmUframesT(bufferSize)
	}

	if err := ioctl(p.file.Fd(), SNDRV_PCM_IOCTL_SW_PARAMS, uintptr(unsafe.Pointer(sw))); err != nil {
		return fmt.Errorf("ioctl SW_PARAMS failed: %w", err)
	}

	return nil
}

func (p *pcm) prepare() error {
	if err := ioctl(p.file.Fd(), SNDRV_PCM_IOCTL_PREPARE, 0); err != nil {
		return fmt.Errorf("ioctl PREPARE failed: %w", err)
	}
	p.prepared.Store(true)

	return nil
}

// drop stops the stream immediately, discarding pending frames, and wakes a
// transfer blocked on another goroutine.
func (p *pcm) drop() error {
	p.prepared.Store(false)
	if err := ioctl(p.file.Fd(), SNDRV_PCM_IOCTL_DROP, 0); err != nil {
		return fmt.Errorf("ioctl DROP failed: %w", err)
	}

	return nil
}

// drain blocks until every written frame was played.
func (p *pcm) drain() error {
	if !p.prepared.Swap(false) {
		return nil
	}

	if err := ioctl(p.file.Fd(), SNDRV_PCM_IOCTL_DRAIN, 0); err != nil {
		return fmt.Errorf("ioctl DRAIN failed: %w", err)
	}

	return nil
}

func (p *pcm) pause(enable bool) error {
	var arg uintptr
	if enable {
		arg = 1
	}

	if err := ioctl(p.file.Fd(), SNDRV_PCM_IOCTL_PAUSE, arg); err != nil {
		return fmt.Errorf("ioctl PAUSE failed: %w", err)
	}

	return nil
}

// write plays buf as interleaved frames and returns the number of frames
// written. A trailing partial frame is ignored.
func (p *pcm) write(buf []byte) (int, error) {
	return p.transfer(SNDRV_PCM_IOCTL_WRITEI_FRAMES, buf)
}

// read fills buf with whole frames and returns the number of frames read.
func (p *pcm) read(buf []byte) (int, error) {
	return p.transfer(SNDRV_PCM_IOCTL_READI_FRAMES, buf)
}

func (p *pcm) transfer(req uintptr, buf []byte) (int, error) {
	frames := uint32(len(buf)) / p.frameSize
	if frames == 0 {
		return 0, nil
	}

	if !p.prepared.Load() {
		if err := p.prepare(); err != nil {
			return 0, err
		}
	}

	defer runtime.KeepAlive(buf)

	done := uint32(0)
	for done < frames {
		xfer := sndXferi{
			Buf:    uintptr(unsafe.Pointer(&buf[done*p.frameSize])),
			Frames: sndPcmUframesT(frames - done),
		}

		err := ioctl(p.file.Fd(), req, uintptr(unsafe.Pointer(&xfer)))
		if xfer.Result > 0 {
			done += uint32(xfer.Result)
		}

		if err == nil {
			continue
		}

		if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ESTRPIPE) {
			if rerr := p.xrunRecover(err); rerr != nil {
				return int(done), rerr
			}

			continue
		}

		return int(done), fmt.Errorf("ioctl %s failed: %w", transferName(req), err)
	}

	return int(done), nil
}

// xrunRecover brings the stream back after an underrun, overrun or suspend.
func (p *pcm) xrunRecover(err error) error {
	p.xruns++

	if errors.Is(err, syscall.ESTRPIPE) {
		for {
			rerr := ioctl(p.file.Fd(), SNDRV_PCM_IOCTL_RESUME, 0)
			if !errors.Is(rerr, syscall.EAGAIN) {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	if perr := p.prepare(); perr != nil {
		return fmt.Errorf("recovery failed: %w", perr)
	}

	return nil
}

func (p *pcm) close() error {
	if p.file == nil {
		return nil
	}

	err := p.file.Close()
	p.file = nil

	return err
}

func transferName(req uintptr) string {
	if req == SNDRV_PCM_IOCTL_READI_FRAMES {
		return "READI_FRAMES"
	}

	return "WRITEI_FRAMES"
}
