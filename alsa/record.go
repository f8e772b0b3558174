package alsa

import (
	"encoding/binary"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/gen2brain/snd"
)

// recording is one active SPB request on a capture PCM.
type recording struct {
	rec   *snd.SPBRecord
	pcm   *pcm
	buf   []byte
	limit int
	log   *zap.Logger

	paused   atomic.Bool
	resume   chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	recorded atomic.Uint32
	meter    atomic.Int32
}

// Record implements snd.Driver. InRefNum selects the capture device as
// card<<8 | device. The request fills Buffer up to Count bytes and
// Milliseconds of audio, whichever is smaller (zero means no limit). With
// async unset Record returns once the completion routine has fired.
func (d *Driver) Record(rec *snd.SPBRecord, async bool) error {
	buf := rec.Buffer()
	limit := len(buf)

	if n := int(rec.Count()); n > 0 && n < limit {
		limit = n
	}

	if ms := rec.Milliseconds(); ms > 0 {
		if n := int(float64(ms) * d.cfg.BytesPerMillisecond()); n < limit {
			limit = n
		}
	}

	limit -= limit % int(d.cfg.FrameSize())
	if limit <= 0 {
		return ErrNoBuffer
	}

	d.mu.Lock()
	if _, ok := d.recordings[rec]; ok {
		d.mu.Unlock()

		return ErrBusy
	}

	ref := uint(rec.InRefNum())
	p, err := openPCM(ref>>8&0xff, ref&0xff, true, d.cfg)
	if err != nil {
		d.mu.Unlock()

		return err
	}

	r := &recording{
		rec:    rec,
		pcm:    p,
		buf:    buf,
		limit:  limit,
		log:    d.log.With(zap.String("pcm", p.path)),
		resume: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	d.recordings[rec] = r
	d.mu.Unlock()

	go d.capture(r)

	if async {
		return nil
	}

	<-r.done
	if rec.Error() == snd.SPB_ERR_IO {
		return fmt.Errorf("alsa: recording on %s failed", p.path)
	}

	return nil
}

// PauseRecording implements snd.Driver.
func (d *Driver) PauseRecording(rec *snd.SPBRecord) error {
	r, err := d.recording(rec)
	if err != nil {
		return err
	}

	if r.paused.Swap(true) {
		return nil
	}

	if err := r.pcm.pause(true); err != nil {
		// Devices without pause support overrun instead; restart cleanly on resume.
		return r.pcm.drop()
	}

	return nil
}

// ResumeRecording implements snd.Driver.
func (d *Driver) ResumeRecording(rec *snd.SPBRecord) error {
	r, err := d.recording(rec)
	if err != nil {
		return err
	}

	if !r.paused.Swap(false) {
		return nil
	}

	var perr error
	if r.pcm.prepared.Load() {
		perr = r.pcm.pause(false)
	}

	select {
	case r.resume <- struct{}{}:
	default:
	}

	return perr
}

// StopRecording implements snd.Driver. The completion routine fires with
// SPB_ERR_ABORTED before StopRecording returns.
func (d *Driver) StopRecording(rec *snd.SPBRecord) error {
	r, err := d.recording(rec)
	if err != nil {
		return err
	}

	r.stopOnce.Do(func() {
		close(r.stop)
		_ = r.pcm.drop()
	})

	<-r.done

	return nil
}

// RecordingStatus implements snd.Driver. An idle record reports the zero status.
func (d *Driver) RecordingStatus(rec *snd.SPBRecord) (snd.RecordingStatus, error) {
	d.mu.Lock()
	r, ok := d.recordings[rec]
	d.mu.Unlock()

	if !ok {
		return snd.RecordingStatus{}, nil
	}

	recorded := r.recorded.Load()
	bpms := d.cfg.BytesPerMillisecond()

	return snd.RecordingStatus{
		Recording:            true,
		Paused:               r.paused.Load(),
		MeterLevel:           int16(r.meter.Load()),
		TotalBytes:           uint32(r.limit),
		RecordedBytes:        recorded,
		TotalMilliseconds:    uint32(float64(r.limit) / bpms),
		RecordedMilliseconds: uint32(float64(recorded) / bpms),
	}, nil
}

func (d *Driver) recording(rec *snd.SPBRecord) (*recording, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.recordings[rec]
	if !ok {
		return nil, ErrNotRecording
	}

	return r, nil
}

// capture is the I/O thread of a recording. It fires the interrupt routine
// after every period and the completion routine exactly once, last.
func (d *Driver) capture(r *recording) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(r.done)

	code := d.captureLoop(r)

	if err := r.pcm.close(); err != nil {
		r.log.Warn("close failed", zap.Error(err))
	}

	d.mu.Lock()
	delete(d.recordings, r.rec)
	d.mu.Unlock()

	r.rec.SetCount(int32(r.recorded.Load()))
	r.rec.Complete(code)
}

func (d *Driver) captureLoop(r *recording) int16 {
	period := int(r.pcm.config.PeriodSize * r.pcm.frameSize)
	offset := 0

	for offset < r.limit {
		select {
		case <-r.stop:
			return snd.SPB_ERR_ABORTED
		default:
		}

		if r.paused.Load() {
			select {
			case <-r.stop:
				return snd.SPB_ERR_ABORTED
			case <-r.resume:
			}

			continue
		}

		end := min(offset+period, r.limit)

		n, err := r.pcm.read(r.buf[offset:end])
		got := n * int(r.pcm.frameSize)
		if got > 0 {
			r.meter.Store(int32(meterLevel(r.buf[offset:offset+got], r.pcm.config.Format)))
			offset += got
			r.recorded.Store(uint32(offset))
			r.rec.Interrupt()
		}

		if err != nil {
			select {
			case <-r.stop:
				return snd.SPB_ERR_ABORTED
			default:
			}

			if r.paused.Load() && errors.Is(err, errBadState) {
				continue
			}

			r.log.Warn("read failed", zap.Int("recorded", offset), zap.Error(err))

			return snd.SPB_ERR_IO
		}
	}

	return snd.SPB_ERR_NONE
}

// meterLevel returns the peak of a block of samples scaled to 0..255, the
// range of the Sound Manager meter. Only 16-bit little-endian samples are
// metered; other formats read 0.
func meterLevel(b []byte, f PcmFormat) int {
	if f != SNDRV_PCM_FORMAT_S16_LE {
		return 0
	}

	peak := 0
	for i := 0; i+1 < len(b); i += 2 {
		v := int(int16(binary.LittleEndian.Uint16(b[i:])))
		if v < 0 {
			v = -v
		}
		peak = max(peak, v)
	}

	return peak * 255 / 32768
}
