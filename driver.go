package snd

import (
	"sync"
	"sync/atomic"
)

// CommandRoutine is the per-channel completion routine a driver fires from its
// own thread whenever a channel completes a CMD_CALLBACK. userInfo is the value
// passed to NewChannel.
type CommandRoutine func(userInfo uint64, cmd Command)

// Driver is the native sound subsystem. Implementations own their threads and
// may fire routines from any of them, at any time, except after Dispose or
// StopRecording returned.
type Driver interface {
	// NewChannel allocates an output channel whose completions go to done.
	NewChannel(synth int16, init int32, userInfo uint64, done CommandRoutine) (NativeChannel, error)
	// Record starts (async) or performs (sync) the I/O request described by rec.
	Record(rec *SPBRecord, async bool) error
	PauseRecording(rec *SPBRecord) error
	ResumeRecording(rec *SPBRecord) error
	// StopRecording aborts an active request. Once it returns, no routine of rec fires again.
	StopRecording(rec *SPBRecord) error
	RecordingStatus(rec *SPBRecord) (RecordingStatus, error)
}

// NativeChannel is a driver-owned output channel.
type NativeChannel interface {
	// DoCommand appends cmd to the channel queue. With noWait a full queue is an error.
	DoCommand(cmd Command, noWait bool) error
	// DoImmediate executes cmd ahead of anything queued.
	DoImmediate(cmd Command) error
	Status() (ChannelStatus, error)
	// Dispose stops the channel, flushing queued audio when quietNow is set, and
	// returns only once no further completions can fire.
	Dispose(quietNow bool) error
}

// ChannelStatus describes a native channel.
type ChannelStatus struct {
	Busy     bool
	Paused   bool
	Disposed bool
	Queued   int    // Commands waiting in the queue.
	Frames   uint64 // Frames played so far.
}

// RecordingStatus describes an SPB request in progress.
type RecordingStatus struct {
	Recording            bool
	Paused               bool
	MeterLevel           int16 // Peak of the last period, 0..255.
	TotalBytes           uint32
	RecordedBytes        uint32
	TotalMilliseconds    uint32
	RecordedMilliseconds uint32
}

// SPB record error codes written by drivers.
const (
	SPB_ERR_NONE    int16 = 0
	SPB_ERR_IO      int16 = -1
	SPB_ERR_ABORTED int16 = 1
)

// SPBRecord is the native I/O record embedded by value in an SPB. Numeric
// fields are accessed atomically because drivers update them from their own
// threads.
type SPBRecord struct {
	inRefNum     atomic.Int32
	count        atomic.Int32
	milliseconds atomic.Int32
	err          atomic.Int32
	userLong     atomic.Uint64

	completion atomic.Pointer[func(*SPBRecord)]
	interrupt  atomic.Pointer[func(*SPBRecord)]

	mu     sync.Mutex
	buffer []byte
}

// InRefNum returns the input device reference.
func (r *SPBRecord) InRefNum() int32 { return r.inRefNum.Load() }

// SetInRefNum sets the input device reference.
func (r *SPBRecord) SetInRefNum(v int32) { r.inRefNum.Store(v) }

// Count returns the number of bytes to record, or recorded once complete.
func (r *SPBRecord) Count() int32 { return r.count.Load() }

// SetCount sets the number of bytes to record.
func (r *SPBRecord) SetCount(v int32) { r.count.Store(v) }

// Milliseconds returns the recording time limit.
func (r *SPBRecord) Milliseconds() int32 { return r.milliseconds.Load() }

// SetMilliseconds sets the recording time limit.
func (r *SPBRecord) SetMilliseconds(v int32) { r.milliseconds.Store(v) }

// Error returns the result of the last request.
func (r *SPBRecord) Error() int16 { return int16(r.err.Load()) }

// SetError is called by drivers to publish a request result.
func (r *SPBRecord) SetError(v int16) { r.err.Store(int32(v)) }

// UserLong returns the back reference to the owning object.
func (r *SPBRecord) UserLong() uint64 { return r.userLong.Load() }

// SetUserLong sets the back reference to the owning object.
func (r *SPBRecord) SetUserLong(v uint64) { r.userLong.Store(v) }

// Buffer returns the I/O buffer.
func (r *SPBRecord) Buffer() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.buffer
}

// SetBuffer replaces the I/O buffer. It must not be called while a request is active.
func (r *SPBRecord) SetBuffer(b []byte) {
	r.mu.Lock()
	r.buffer = b
	r.mu.Unlock()
}

// BufferLength returns len(Buffer()).
func (r *SPBRecord) BufferLength() int {
	return len(r.Buffer())
}

// SetCompletionRoutine installs the routine fired when a request completes.
func (r *SPBRecord) SetCompletionRoutine(fn func(*SPBRecord)) {
	if fn == nil {
		r.completion.Store(nil)

		return
	}
	r.completion.Store(&fn)
}

// SetInterruptRoutine installs the routine fired after every filled period.
func (r *SPBRecord) SetInterruptRoutine(fn func(*SPBRecord)) {
	if fn == nil {
		r.interrupt.Store(nil)

		return
	}
	r.interrupt.Store(&fn)
}

// Complete is called by drivers when a request ends with code.
func (r *SPBRecord) Complete(code int16) {
	r.SetError(code)
	if fn := r.completion.Load(); fn != nil {
		(*fn)(r)
	}
}

// Interrupt is called by drivers from their I/O thread after each period.
func (r *SPBRecord) Interrupt() {
	if fn := r.interrupt.Load(); fn != nil {
		(*fn)(r)
	}
}
