package alsa

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/gen2brain/snd"
)

// opDispose is queued behind the last command by a non-quiet Dispose.
const opDispose uint16 = 0xFFFF

// channel is a playback PCM driven by a worker goroutine.
type channel struct {
	drv      *Driver
	pcm      *pcm
	userInfo uint64
	done     snd.CommandRoutine
	log      *zap.Logger

	queue     chan snd.Command
	immediate chan snd.Command
	quit      chan struct{}
	exited    chan struct{}

	mu       sync.Mutex
	disposed bool

	paused    atomic.Bool
	finishing atomic.Bool
	busy      atomic.Bool
	frames    atomic.Uint64
}

// NewChannel implements snd.Driver. synth is accepted for compatibility and
// ignored; the InitMono and InitStereo bits of init override the configured
// channel count.
func (d *Driver) NewChannel(synth int16, init int32, userInfo uint64, done snd.CommandRoutine) (snd.NativeChannel, error) {
	cfg := d.cfg
	switch init & InitChanMask {
	case InitMono:
		cfg.Channels = 1
	case InitStereo:
		cfg.Channels = 2
	}

	p, err := openPCM(cfg.Card, cfg.Device, false, cfg)
	if err != nil {
		return nil, err
	}

	c := &channel{
		drv:       d,
		pcm:       p,
		userInfo:  userInfo,
		done:      done,
		log:       d.log.With(zap.String("pcm", p.path), zap.Uint64("user_info", userInfo)),
		queue:     make(chan snd.Command, cfg.QueueLength),
		immediate: make(chan snd.Command, cfg.QueueLength),
		quit:      make(chan struct{}),
		exited:    make(chan struct{}),
	}

	d.mu.Lock()
	d.channels[c] = struct{}{}
	d.mu.Unlock()

	go c.run()

	c.log.Debug("channel opened",
		zap.Int16("synth", synth),
		zap.Uint32("channels", p.config.Channels),
		zap.Uint32("rate", p.config.Rate))

	return c, nil
}

func supported(op uint16) bool {
	switch op {
	case snd.CMD_NULL, snd.CMD_QUIET, snd.CMD_FLUSH, snd.CMD_WAIT, snd.CMD_PAUSE,
		snd.CMD_RESUME, snd.CMD_CALLBACK, snd.CMD_SYNC, snd.CMD_BUFFER:
		return true
	default:
		return false
	}
}

// DoCommand implements snd.NativeChannel.
func (c *channel) DoCommand(cmd snd.Command, noWait bool) error {
	if !supported(cmd.Op) {
		return fmt.Errorf("%w: %s", ErrUnsupportedCommand, snd.CommandName(cmd.Op))
	}

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()

		return ErrDisposed
	}

	if noWait {
		defer c.mu.Unlock()

		select {
		case c.queue <- cmd:
			return nil
		default:
			return ErrQueueFull
		}
	}
	c.mu.Unlock()

	select {
	case c.queue <- cmd:
		return nil
	case <-c.quit:
		return ErrDisposed
	case <-c.exited:
		return ErrDisposed
	}
}

// DoImmediate implements snd.NativeChannel. Quiet, flush, pause and resume
// take effect before DoImmediate returns; other commands run on the worker
// ahead of the queue.
func (c *channel) DoImmediate(cmd snd.Command) error {
	if !supported(cmd.Op) {
		return fmt.Errorf("%w: %s", ErrUnsupportedCommand, snd.CommandName(cmd.Op))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return ErrDisposed
	}

	switch cmd.Op {
	case snd.CMD_QUIET:
		c.flush()

		return c.pcm.drop()
	case snd.CMD_FLUSH:
		c.flush()

		return nil
	case snd.CMD_PAUSE, snd.CMD_RESUME:
		return c.setPaused(cmd.Op == snd.CMD_PAUSE)
	}

	select {
	case c.immediate <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// Status implements snd.NativeChannel.
func (c *channel) Status() (snd.ChannelStatus, error) {
	c.mu.Lock()
	disposed := c.disposed
	c.mu.Unlock()

	queued := len(c.queue) + len(c.immediate)

	return snd.ChannelStatus{
		Busy:     c.busy.Load() || queued > 0,
		Paused:   c.paused.Load(),
		Disposed: disposed,
		Queued:   queued,
		Frames:   c.frames.Load(),
	}, nil
}

// Dispose implements snd.NativeChannel. Without quietNow it waits for the
// queue to play out. Either way the worker has exited, and no completion can
// fire, once Dispose returns.
func (c *channel) Dispose(quietNow bool) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()

		return nil
	}
	c.disposed = true
	c.mu.Unlock()

	var errs []error
	if quietNow {
		c.flush()
		close(c.quit)
		if err := c.pcm.drop(); err != nil {
			errs = append(errs, err)
		}
	} else {
		// A paused channel still plays out its queue before going away.
		c.finishing.Store(true)
		if c.paused.Load() {
			if err := c.setPaused(false); err != nil {
				errs = append(errs, err)
			}
		}
		c.queue <- snd.Command{Op: opDispose}
	}

	<-c.exited

	if err := c.pcm.close(); err != nil {
		errs = append(errs, err)
	}

	c.drv.mu.Lock()
	delete(c.drv.channels, c)
	c.drv.mu.Unlock()

	c.log.Debug("channel disposed", zap.Bool("quiet", quietNow), zap.Int("xruns", c.pcm.xruns))

	return errors.Join(errs...)
}

// flush discards every queued command without executing it. It reports
// whether a pending non-quiet Dispose was among them.
func (c *channel) flush() (disposing bool) {
	for {
		select {
		case cmd := <-c.queue:
			disposing = disposing || cmd.Op == opDispose
		case <-c.immediate:
		default:
			return disposing
		}
	}
}

func (c *channel) setPaused(paused bool) error {
	if c.paused.Swap(paused) == paused {
		return nil
	}

	// Wake the worker so it picks up the new state.
	select {
	case c.immediate <- snd.Command{Op: snd.CMD_NULL}:
	default:
	}

	if !c.pcm.prepared.Load() {
		return nil
	}

	if err := c.pcm.pause(paused); err != nil {
		// Not every device can pause; stop the stream and restart on the next write instead.
		if paused {
			return c.pcm.drop()
		}

		return err
	}

	return nil
}

func (c *channel) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(c.exited)

	for {
		var queue <-chan snd.Command
		if !c.paused.Load() || c.finishing.Load() {
			queue = c.queue
		}

		var cmd snd.Command
		select {
		case <-c.quit:
			return
		case cmd = <-c.immediate:
		default:
			select {
			case <-c.quit:
				return
			case cmd = <-c.immediate:
			case cmd = <-queue:
			}
		}

		c.busy.Store(true)
		stop := c.execute(cmd)
		c.busy.Store(false)

		if stop {
			return
		}
	}
}

// execute runs a single command on the worker thread. It reports whether the
// worker must exit.
func (c *channel) execute(cmd snd.Command) bool {
	switch cmd.Op {
	case opDispose:
		if err := c.pcm.drain(); err != nil {
			c.log.Warn("drain failed", zap.Error(err))
		}

		return true
	case snd.CMD_BUFFER:
		n, err := c.pcm.write(cmd.Payload)
		c.frames.Add(uint64(n))
		if err != nil {
			c.log.Warn("write failed", zap.Int("frames", n), zap.Error(err))
		}
	case snd.CMD_WAIT:
		// Param1 counts half-milliseconds.
		t := time.NewTimer(time.Duration(cmd.Param1) * 500 * time.Microsecond)
		select {
		case <-t.C:
		case <-c.quit:
			t.Stop()
		}
	case snd.CMD_CALLBACK:
		if c.done != nil {
			c.done(c.userInfo, cmd)
		}
	case snd.CMD_QUIET:
		disposing := c.flush()
		if err := c.pcm.drop(); err != nil {
			c.log.Warn("quiet failed", zap.Error(err))
		}

		return disposing
	case snd.CMD_FLUSH:
		if c.flush() {
			return c.execute(snd.Command{Op: opDispose})
		}
	case snd.CMD_PAUSE, snd.CMD_RESUME:
		if err := c.setPaused(cmd.Op == snd.CMD_PAUSE); err != nil {
			c.log.Warn("pause failed", zap.Error(err))
		}
	}

	return false
}
