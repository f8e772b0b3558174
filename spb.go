package snd

import (
	"math"
	"runtime"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SPBCallback is invoked with the SPB whose request completed or whose
// interrupt routine fired. It runs on the goroutine that drains the dispatcher.
type SPBCallback func(spb *SPB) error

// SPB (sound parameter block) owns one native I/O record, embedded by value,
// and the callbacks its completion and interrupt routines lead to.
//
// At most one invocation per routine is pending: a routine firing while its
// previous invocation is still queued is dropped and counted in Dropped. The
// completion and interrupt routines have separate slots, so a queued
// interrupt never costs the final completion.
type SPB struct {
	id      uuid.UUID
	session *Session
	handle  uint64
	token   Token
	rec     SPBRecord

	completion atomic.Pointer[SPBCallback]
	interrupt  atomic.Pointer[SPBCallback]
	pending    [2]atomic.Pointer[SPBCallback] // indexed by slotCompletion, slotInterrupt
	installed  atomic.Bool
	dropped    atomic.Uint64
	closed     atomic.Bool

	cleanup runtime.Cleanup
}

const (
	slotCompletion = iota
	slotInterrupt
)

// Dynamic field names accepted by Field and SetField.
const (
	FieldInputChannel     = "inputChannel"
	FieldCount            = "count"
	FieldMillisecondLimit = "millisecondLimit"
	FieldLastError        = "lastError"
)

// NewSPB creates an SPB with a zeroed record. It always succeeds.
func (s *Session) NewSPB() *SPB {
	b := &SPB{
		id:      uuid.New(),
		session: s,
		token:   s.contexts.Capture(),
	}

	b.handle = s.spbs.insert(b)
	b.rec.SetUserLong(b.handle)
	b.cleanup = runtime.AddCleanup(b, s.forgetSPB, b.handle)

	return b
}

// ID returns the identifier used for this SPB in logs.
func (b *SPB) ID() uuid.UUID {
	return b.id
}

// Record exposes the embedded native record.
func (b *SPB) Record() *SPBRecord {
	return &b.rec
}

// InputChannel returns the input device reference.
func (b *SPB) InputChannel() int32 { return b.rec.InRefNum() }

// SetInputChannel sets the input device reference.
func (b *SPB) SetInputChannel(v int32) { b.rec.SetInRefNum(v) }

// Count returns the byte count of the request.
func (b *SPB) Count() int32 { return b.rec.Count() }

// SetCount sets the byte count of the request.
func (b *SPB) SetCount(v int32) { b.rec.SetCount(v) }

// MillisecondLimit returns the recording time limit.
func (b *SPB) MillisecondLimit() int32 { return b.rec.Milliseconds() }

// SetMillisecondLimit sets the recording time limit.
func (b *SPB) SetMillisecondLimit(v int32) { b.rec.SetMilliseconds(v) }

// LastError returns the result code of the last request.
func (b *SPB) LastError() int16 { return b.rec.Error() }

// Buffer returns the I/O buffer.
func (b *SPB) Buffer() []byte { return b.rec.Buffer() }

// SetBuffer sets the I/O buffer. It must not be changed while recording.
func (b *SPB) SetBuffer(buf []byte) { b.rec.SetBuffer(buf) }

// Dropped returns how many routine firings were discarded because an
// invocation of the same routine was already pending.
func (b *SPB) Dropped() uint64 {
	return b.dropped.Load()
}

// Field reads a numeric record field by name.
func (b *SPB) Field(name string) (int64, error) {
	switch name {
	case FieldInputChannel:
		return int64(b.InputChannel()), nil
	case FieldCount:
		return int64(b.Count()), nil
	case FieldMillisecondLimit:
		return int64(b.MillisecondLimit()), nil
	case FieldLastError:
		return int64(b.LastError()), nil
	default:
		return 0, &Error{Op: "get " + name, Kind: KindType, Detail: "unknown field"}
	}
}

// SetField writes a numeric record field by name. v must be an integer that
// fits in 32 bits; lastError is read-only.
func (b *SPB) SetField(name string, v any) error {
	var set func(int32)
	switch name {
	case FieldInputChannel:
		set = b.SetInputChannel
	case FieldCount:
		set = b.SetCount
	case FieldMillisecondLimit:
		set = b.SetMillisecondLimit
	case FieldLastError:
		return typeError(name, v, "field is read-only")
	default:
		return typeError(name, v, "unknown field")
	}

	n, ok := toInt64(v)
	if !ok {
		return typeError(name, v, "expected an integer, got %T", v)
	}

	if n < math.MinInt32 || n > math.MaxInt32 {
		return typeError(name, v, "value %d out of range", n)
	}

	set(int32(n))

	return nil
}

// SetCompletionCallback sets the callback for completed requests. The native
// completion routine is installed on first use. nil clears the callback.
func (b *SPB) SetCompletionCallback(cb SPBCallback) {
	b.install()
	if cb == nil {
		b.completion.Store(nil)

		return
	}
	b.completion.Store(&cb)
}

// SetInterruptCallback sets the callback for the per-period interrupt routine.
func (b *SPB) SetInterruptCallback(cb SPBCallback) {
	b.install()
	if cb == nil {
		b.interrupt.Store(nil)

		return
	}
	b.interrupt.Store(&cb)
}

func (b *SPB) install() {
	if b.installed.CompareAndSwap(false, true) {
		b.rec.SetCompletionRoutine(b.session.spbCompletion)
		b.rec.SetInterruptRoutine(b.session.spbInterrupt)
	}
}

// StartRecording submits the record to the driver. With async unset it
// returns once the request finished.
func (b *SPB) StartRecording(async bool) error {
	if b.closed.Load() {
		return closedError("record")
	}

	return b.session.driver.Record(&b.rec, async)
}

// PauseRecording pauses an active request.
func (b *SPB) PauseRecording() error {
	if b.closed.Load() {
		return closedError("pause recording")
	}

	return b.session.driver.PauseRecording(&b.rec)
}

// ResumeRecording resumes a paused request.
func (b *SPB) ResumeRecording() error {
	if b.closed.Load() {
		return closedError("resume recording")
	}

	return b.session.driver.ResumeRecording(&b.rec)
}

// StopRecording aborts an active request.
func (b *SPB) StopRecording() error {
	if b.closed.Load() {
		return closedError("stop recording")
	}

	return b.session.driver.StopRecording(&b.rec)
}

// RecordingStatus reports the progress of the active request.
func (b *SPB) RecordingStatus() (RecordingStatus, error) {
	if b.closed.Load() {
		return RecordingStatus{}, closedError("recording status")
	}

	return b.session.driver.RecordingStatus(&b.rec)
}

// Close detaches the record from the SPB before releasing the callbacks, so a
// routine that fires late finds nothing to signal.
func (b *SPB) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	b.cleanup.Stop()
	b.rec.SetUserLong(0)
	b.pending[slotCompletion].Store(nil)
	b.pending[slotInterrupt].Store(nil)
	b.completion.Store(nil)
	b.interrupt.Store(nil)
	b.session.spbs.remove(b.handle)

	b.session.log.Debug("spb closed",
		zap.String("spb", b.id.String()),
		zap.Uint64("dropped", b.dropped.Load()))

	return nil
}

func (s *Session) spbCompletion(rec *SPBRecord) {
	s.spbFired(rec, slotCompletion)
}

func (s *Session) spbInterrupt(rec *SPBRecord) {
	s.spbFired(rec, slotInterrupt)
}

// spbFired is the trampoline behind both SPB routines. It runs on a driver
// thread and only queues work.
func (s *Session) spbFired(rec *SPBRecord, slot int) {
	b := s.spbs.lookup(rec.UserLong())
	if b == nil {
		return
	}

	defer enterContext(s.contexts, b.token)()

	cb := b.completion.Load()
	if slot == slotInterrupt {
		cb = b.interrupt.Load()
	}

	if cb == nil {
		return
	}

	if !b.pending[slot].CompareAndSwap(nil, cb) {
		b.dropped.Add(1)

		return
	}

	s.dispatcher.enqueue("spb callback", func() error {
		return b.dispatch(slot)
	})
}

// dispatch takes the pending callback out of slot and runs it.
func (b *SPB) dispatch(slot int) error {
	cb := b.pending[slot].Swap(nil)
	if cb == nil {
		return nil
	}

	return (*cb)(b)
}

func (s *Session) forgetSPB(handle uint64) {
	s.spbs.remove(handle)
}
