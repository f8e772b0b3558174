package snd

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChannelCallback receives the command record of every completed CMD_CALLBACK.
// It runs on the goroutine that drains the dispatcher.
type ChannelCallback func(ch *Channel, cmd Command) error

// Channel owns one native output channel and its completion callback.
type Channel struct {
	id       uuid.UUID
	session  *Session
	handle   uint64
	token    Token
	callback atomic.Pointer[ChannelCallback]

	mu      sync.Mutex
	native  NativeChannel
	cleanup runtime.Cleanup
}

// channelRelease is what the cleanup of a forgotten channel needs. It must not
// reference the Channel itself.
type channelRelease struct {
	session *Session
	native  NativeChannel
	handle  uint64
	id      uuid.UUID
}

// NewChannel allocates a native output channel. cb may be nil.
//
// Dispose or Close is the only guaranteed release. A channel that is dropped
// without either is disposed quietly by a cleanup, but only after the garbage
// collector finds it unreachable; until then the native channel stays open
// and keeps playing its queue, and its completions are discarded.
func (s *Session) NewChannel(synth int16, init int32, cb ChannelCallback) (*Channel, error) {
	ch := &Channel{
		id:      uuid.New(),
		session: s,
		token:   s.contexts.Capture(),
	}

	if cb != nil {
		ch.callback.Store(&cb)
	}

	ch.handle = s.channels.insert(ch)

	native, err := s.driver.NewChannel(synth, init, ch.handle, s.channelCompletion)
	if err != nil {
		s.channels.remove(ch.handle)

		return nil, &Error{
			Op:     "new channel",
			Kind:   KindNativeAllocation,
			Detail: fmt.Sprintf("synth %d, init %#x", synth, init),
			Cause:  err,
		}
	}

	ch.native = native
	ch.cleanup = runtime.AddCleanup(ch, releaseChannel, channelRelease{
		session: s,
		native:  native,
		handle:  ch.handle,
		id:      ch.id,
	})

	s.log.Debug("channel opened",
		zap.String("channel", ch.id.String()),
		zap.Bool("callback", cb != nil))

	return ch, nil
}

// ID returns the identifier used for this channel in logs.
func (c *Channel) ID() uuid.UUID {
	return c.id
}

// IsReady reports whether the channel still owns a native channel.
func (c *Channel) IsReady() bool {
	if c == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.native != nil
}

// Submit decodes v (see DecodeCommand) and appends it to the channel queue.
// It never blocks: a full queue is reported by the driver as an error.
// The callback, if any, fires later when the channel reaches the command.
func (c *Channel) Submit(v any) error {
	cmd, err := DecodeCommand(v)
	if err != nil {
		return err
	}

	native, err := c.nativeChannel("submit")
	if err != nil {
		return err
	}

	return native.DoCommand(cmd, true)
}

// DoImmediate decodes v and executes it ahead of the queued commands.
func (c *Channel) DoImmediate(v any) error {
	cmd, err := DecodeCommand(v)
	if err != nil {
		return err
	}

	native, err := c.nativeChannel("do immediate")
	if err != nil {
		return err
	}

	return native.DoImmediate(cmd)
}

// Status returns the native channel status.
func (c *Channel) Status() (ChannelStatus, error) {
	native, err := c.nativeChannel("status")
	if err != nil {
		return ChannelStatus{}, err
	}

	return native.Status()
}

// Dispose stops the native channel, flushing queued audio when quietNow is
// set, then releases the callback. The channel is torn down even if the
// driver reports a failure; the failure is logged and returned.
func (c *Channel) Dispose(quietNow bool) error {
	c.mu.Lock()
	native := c.native
	c.native = nil
	c.mu.Unlock()

	if native == nil {
		return nil
	}

	c.cleanup.Stop()

	err := native.Dispose(quietNow)
	if err != nil {
		c.session.log.Warn("channel dispose failed",
			zap.String("channel", c.id.String()),
			zap.Error(err))
	}

	c.callback.Store(nil)
	c.session.channels.remove(c.handle)

	if err != nil {
		return fmt.Errorf("snd: dispose channel: %w", err)
	}

	return nil
}

// Close disposes the channel immediately, dropping anything still queued.
func (c *Channel) Close() error {
	return c.Dispose(true)
}

func (c *Channel) nativeChannel(op string) (NativeChannel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.native == nil {
		return nil, closedError(op)
	}

	return c.native, nil
}

// channelCompletion is the trampoline every native channel of the session
// fires from its driver thread. It only queues work.
func (s *Session) channelCompletion(userInfo uint64, cmd Command) {
	ch := s.channels.lookup(userInfo)
	if ch == nil {
		return
	}

	defer enterContext(s.contexts, ch.token)()

	if ch.callback.Load() == nil {
		return
	}

	// Each completion travels with its own copy of the record, so completions
	// queued back to back never observe each other's fields.
	rec := cmd
	if cmd.Payload != nil {
		rec.Payload = append([]byte{}, cmd.Payload...)
	}

	s.dispatcher.enqueue("channel callback", func() error {
		return ch.invoke(rec)
	})
}

func (c *Channel) invoke(cmd Command) error {
	cb := c.callback.Load()
	if cb == nil {
		return nil
	}

	return (*cb)(c, cmd)
}

func releaseChannel(r channelRelease) {
	if err := r.native.Dispose(true); err != nil {
		r.session.log.Warn("channel dispose failed",
			zap.String("channel", r.id.String()),
			zap.Error(err))
	}

	r.session.channels.remove(r.handle)
}
