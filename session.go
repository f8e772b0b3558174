package snd

import (
	"go.uber.org/zap"
)

// Session binds a Driver to the dispatcher, context provider and object
// tables that the Channel and SPB objects created through it share.
type Session struct {
	driver     Driver
	dispatcher *Dispatcher
	contexts   ContextProvider
	log        *zap.Logger
	channels   handleTable[Channel]
	spbs       handleTable[SPB]
}

// Option configures a Session.
type Option func(*Session)

// WithDispatcher routes deferred callbacks through d instead of DefaultDispatcher().
func WithDispatcher(d *Dispatcher) Option {
	return func(s *Session) {
		s.dispatcher = d
	}
}

// WithContextProvider sets the provider used to capture and restore the
// execution context of trampolines.
func WithContextProvider(p ContextProvider) Option {
	return func(s *Session) {
		s.contexts = p
	}
}

// WithLogger sets the session logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		s.log = l
	}
}

// NewSession creates a session over drv.
func NewSession(drv Driver, opts ...Option) *Session {
	s := &Session{
		driver: drv,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.dispatcher == nil {
		s.dispatcher = DefaultDispatcher()
	}

	if s.contexts == nil {
		s.contexts = NopContext{}
	}

	if s.log == nil {
		s.log = Logger()
	}

	return s
}

// Dispatcher returns the dispatcher deferred callbacks are queued on.
func (s *Session) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// Drain runs the callbacks queued on the session dispatcher.
func (s *Session) Drain() int {
	return s.dispatcher.Drain()
}

// Channels returns the number of channels not yet disposed.
func (s *Session) Channels() int {
	return s.channels.len()
}

// SPBs returns the number of SPB objects not yet closed.
func (s *Session) SPBs() int {
	return s.spbs.len()
}
