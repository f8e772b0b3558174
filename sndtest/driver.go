// Package sndtest provides an in-memory snd.Driver for tests.
//
// Channels queue commands until Run executes them, and completions are fired
// from a separate goroutine locked to its own OS thread, the same way a real
// driver thread would.
package sndtest

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/gen2brain/snd"
)

// QueueLength is the command queue capacity of every fake channel.
const QueueLength = 128

var (
	ErrQueueFull = errors.New("sndtest: command queue full")
	ErrDisposed  = errors.New("sndtest: channel disposed")
	ErrNotActive = errors.New("sndtest: no active request")
)

// Driver is a scriptable snd.Driver.
type Driver struct {
	mu       sync.Mutex
	channels []*Channel
	active   map[*snd.SPBRecord]*snd.RecordingStatus

	// NewChannelErr, when set, makes NewChannel fail.
	NewChannelErr error
	// DisposeErr, when set, is returned by every Dispose (the channel is still disposed).
	DisposeErr error
	// OnDispose runs inside Dispose before it returns.
	OnDispose func(userInfo uint64)
}

// New creates an empty driver.
func New() *Driver {
	return &Driver{
		active: make(map[*snd.SPBRecord]*snd.RecordingStatus),
	}
}

// Channel is a fake native channel.
type Channel struct {
	drv      *Driver
	userInfo uint64
	synth    int16
	init     int32
	done     snd.CommandRoutine

	mu        sync.Mutex
	queue     []snd.Command
	executed  []snd.Command
	paused    bool
	disposed  bool
	quietNow  bool
	callbacks int
}

// NewChannel implements snd.Driver.
func (d *Driver) NewChannel(synth int16, init int32, userInfo uint64, done snd.CommandRoutine) (snd.NativeChannel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.NewChannelErr != nil {
		return nil, d.NewChannelErr
	}

	c := &Channel{
		drv:      d,
		userInfo: userInfo,
		synth:    synth,
		init:     init,
		done:     done,
	}
	d.channels = append(d.channels, c)

	return c, nil
}

// Channels returns every channel created so far, disposed or not.
func (d *Driver) Channels() []*Channel {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]*Channel(nil), d.channels...)
}

// Last returns the most recently created channel, or nil.
func (d *Driver) Last() *Channel {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.channels) == 0 {
		return nil
	}

	return d.channels[len(d.channels)-1]
}

// UserInfo returns the back reference the channel was created with.
func (c *Channel) UserInfo() uint64 {
	return c.userInfo
}

// Queued returns the commands waiting to run.
func (c *Channel) Queued() []snd.Command {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]snd.Command(nil), c.queue...)
}

// Executed returns the commands Run or DoImmediate executed, in order.
func (c *Channel) Executed() []snd.Command {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]snd.Command(nil), c.executed...)
}

// Disposed reports whether Dispose ran, and with which quietNow.
func (c *Channel) Disposed() (disposed, quietNow bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.disposed, c.quietNow
}

// DoCommand implements snd.NativeChannel.
func (c *Channel) DoCommand(cmd snd.Command, noWait bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return ErrDisposed
	}

	if len(c.queue) >= QueueLength {
		if noWait {
			return ErrQueueFull
		}

		return fmt.Errorf("sndtest: blocking submit on a full queue: %w", ErrQueueFull)
	}

	c.queue = append(c.queue, cmd)

	return nil
}

// DoImmediate implements snd.NativeChannel.
func (c *Channel) DoImmediate(cmd snd.Command) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()

		return ErrDisposed
	}
	fire := c.apply(cmd)
	c.mu.Unlock()

	if fire {
		c.Fire(cmd)
	}

	return nil
}

// Status implements snd.NativeChannel.
func (c *Channel) Status() (snd.ChannelStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return snd.ChannelStatus{
		Busy:     len(c.queue) > 0,
		Paused:   c.paused,
		Disposed: c.disposed,
		Queued:   len(c.queue),
	}, nil
}

// Dispose implements snd.NativeChannel.
func (c *Channel) Dispose(quietNow bool) error {
	c.mu.Lock()
	c.disposed = true
	c.quietNow = quietNow
	c.queue = nil
	c.mu.Unlock()

	if c.drv.OnDispose != nil {
		c.drv.OnDispose(c.userInfo)
	}

	return c.drv.DisposeErr
}

// Run executes every queued command, firing the completion routine for each
// CMD_CALLBACK, and returns how many commands ran.
func (c *Channel) Run() int {
	n := 0
	for {
		c.mu.Lock()
		if c.disposed || c.paused || len(c.queue) == 0 {
			c.mu.Unlock()

			return n
		}
		cmd := c.queue[0]
		c.queue = c.queue[1:]
		fire := c.apply(cmd)
		c.mu.Unlock()

		if fire {
			c.Fire(cmd)
		}
		n++
	}
}

// apply records cmd as executed and reports whether it completes with a callback.
// c.mu must be held.
func (c *Channel) apply(cmd snd.Command) bool {
	c.executed = append(c.executed, cmd)

	switch cmd.Op {
	case snd.CMD_PAUSE:
		c.paused = true
	case snd.CMD_RESUME:
		c.paused = false
	case snd.CMD_QUIET, snd.CMD_FLUSH:
		c.queue = nil
	case snd.CMD_CALLBACK:
		c.callbacks++

		return true
	}

	return false
}

// Fire invokes the completion routine with cmd from a goroutine locked to its
// own OS thread and waits for it to return.
func (c *Channel) Fire(cmd snd.Command) {
	foreign(func() {
		c.done(c.userInfo, cmd)
	})
}

// Record implements snd.Driver. Synchronous requests complete before Record returns.
func (d *Driver) Record(rec *snd.SPBRecord, async bool) error {
	d.mu.Lock()
	d.active[rec] = &snd.RecordingStatus{
		Recording:         true,
		TotalBytes:        uint32(rec.BufferLength()),
		TotalMilliseconds: uint32(rec.Milliseconds()),
	}
	d.mu.Unlock()

	if !async {
		d.Complete(rec, snd.SPB_ERR_NONE)
	}

	return nil
}

// PauseRecording implements snd.Driver.
func (d *Driver) PauseRecording(rec *snd.SPBRecord) error {
	return d.withActive(rec, func(st *snd.RecordingStatus) { st.Paused = true })
}

// ResumeRecording implements snd.Driver.
func (d *Driver) ResumeRecording(rec *snd.SPBRecord) error {
	return d.withActive(rec, func(st *snd.RecordingStatus) { st.Paused = false })
}

// StopRecording implements snd.Driver. The request completes as aborted.
func (d *Driver) StopRecording(rec *snd.SPBRecord) error {
	d.mu.Lock()
	_, ok := d.active[rec]
	d.mu.Unlock()

	if !ok {
		return ErrNotActive
	}

	d.Complete(rec, snd.SPB_ERR_ABORTED)

	return nil
}

// RecordingStatus implements snd.Driver.
func (d *Driver) RecordingStatus(rec *snd.SPBRecord) (snd.RecordingStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.active[rec]
	if !ok {
		return snd.RecordingStatus{}, nil
	}

	return *st, nil
}

// Complete ends the request of rec with code and fires its completion routine
// from a foreign thread. It works whether or not Record was called.
func (d *Driver) Complete(rec *snd.SPBRecord, code int16) {
	d.mu.Lock()
	delete(d.active, rec)
	d.mu.Unlock()

	foreign(func() {
		rec.Complete(code)
	})
}

// Interrupt fires the interrupt routine of rec from a foreign thread.
func (d *Driver) Interrupt(rec *snd.SPBRecord) {
	foreign(func() {
		rec.Interrupt()
	})
}

func (d *Driver) withActive(rec *snd.SPBRecord, fn func(*snd.RecordingStatus)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.active[rec]
	if !ok {
		return ErrNotActive
	}
	fn(st)

	return nil
}

func foreign(fn func()) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		fn()
	}()
	wg.Wait()
}
