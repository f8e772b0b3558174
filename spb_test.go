package snd_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gen2brain/snd"
)

func TestSPBFieldRoundTrip(t *testing.T) {
	sess, _ := newSession(t)
	b := sess.NewSPB()
	defer b.Close()

	for _, name := range []string{snd.FieldCount, snd.FieldMillisecondLimit, snd.FieldInputChannel} {
		for _, v := range []int64{0, 1, -1, 44100, math.MaxInt32, math.MinInt32} {
			require.NoError(t, b.SetField(name, v), "%s = %d", name, v)

			got, err := b.Field(name)
			require.NoError(t, err)
			assert.Equal(t, v, got, name)
		}
	}

	b.SetCount(4096)
	assert.Equal(t, int32(4096), b.Record().Count())
	b.SetInputChannel(0x0102)
	assert.Equal(t, int32(0x0102), b.Record().InRefNum())
}

func TestSPBSetFieldTypeErrors(t *testing.T) {
	sess, _ := newSession(t)
	b := sess.NewSPB()
	defer b.Close()

	testCases := []struct {
		name  string
		field string
		value any
	}{
		{"string value", snd.FieldCount, "1024"},
		{"float value", snd.FieldMillisecondLimit, 1.5},
		{"nil value", snd.FieldInputChannel, nil},
		{"overflow", snd.FieldCount, int64(math.MaxInt32) + 1},
		{"read-only", snd.FieldLastError, 0},
		{"unknown", "volume", 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := b.SetField(tc.field, tc.value)
			assert.ErrorIs(t, err, snd.ErrType)
		})
	}

	_, err := b.Field("volume")
	assert.ErrorIs(t, err, snd.ErrType)
}

func TestSPBSecondFiringDropped(t *testing.T) {
	sess, drv := newSession(t)
	b := sess.NewSPB()
	defer b.Close()

	var seen []int16
	b.SetCompletionCallback(func(spb *snd.SPB) error {
		seen = append(seen, spb.LastError())

		return nil
	})

	drv.Complete(b.Record(), snd.SPB_ERR_NONE)
	drv.Complete(b.Record(), snd.SPB_ERR_IO)

	assert.Equal(t, uint64(1), b.Dropped())
	assert.Equal(t, 1, sess.Drain())
	require.Len(t, seen, 1)

	// The slot is free again once drained.
	drv.Complete(b.Record(), snd.SPB_ERR_NONE)
	assert.Equal(t, 1, sess.Drain())
	assert.Len(t, seen, 2)
	assert.Equal(t, uint64(1), b.Dropped())
}

func TestSPBInterruptAndCompletion(t *testing.T) {
	sess, drv := newSession(t)
	b := sess.NewSPB()
	defer b.Close()

	var order []string
	b.SetInterruptCallback(func(*snd.SPB) error {
		order = append(order, "interrupt")

		return nil
	})
	b.SetCompletionCallback(func(*snd.SPB) error {
		order = append(order, "completion")

		return nil
	})

	drv.Interrupt(b.Record())
	assert.Equal(t, 1, sess.Drain())

	drv.Complete(b.Record(), snd.SPB_ERR_NONE)
	assert.Equal(t, 1, sess.Drain())

	assert.Equal(t, []string{"interrupt", "completion"}, order)
}

func TestSPBCompletionQueuedBehindInterrupt(t *testing.T) {
	sess, drv := newSession(t)
	b := sess.NewSPB()
	defer b.Close()

	var order []string
	b.SetInterruptCallback(func(*snd.SPB) error {
		order = append(order, "interrupt")

		return nil
	})
	b.SetCompletionCallback(func(spb *snd.SPB) error {
		order = append(order, "completion")
		assert.Equal(t, snd.SPB_ERR_NONE, spb.LastError())

		return nil
	})

	// The last period's interrupt is still queued when the request completes.
	drv.Interrupt(b.Record())
	drv.Complete(b.Record(), snd.SPB_ERR_NONE)

	assert.Equal(t, 2, sess.Drain())
	assert.Equal(t, []string{"interrupt", "completion"}, order)
	assert.Zero(t, b.Dropped())

	// A repeated interrupt is still dropped while its own slot is taken.
	drv.Interrupt(b.Record())
	drv.Interrupt(b.Record())
	drv.Complete(b.Record(), snd.SPB_ERR_NONE)

	assert.Equal(t, 2, sess.Drain())
	assert.Equal(t, []string{"interrupt", "completion", "interrupt", "completion"}, order)
	assert.Equal(t, uint64(1), b.Dropped())
}

func TestSPBWithoutCallbacks(t *testing.T) {
	sess, drv := newSession(t)
	b := sess.NewSPB()
	defer b.Close()

	drv.Complete(b.Record(), snd.SPB_ERR_NONE)
	assert.Zero(t, sess.Drain())

	b.SetCompletionCallback(func(*snd.SPB) error { return nil })
	drv.Interrupt(b.Record())
	assert.Zero(t, sess.Drain(), "no interrupt callback set")
}

func TestSPBRecording(t *testing.T) {
	sess, _ := newSession(t)
	b := sess.NewSPB()
	defer b.Close()

	b.SetBuffer(make([]byte, 1024))
	b.SetMillisecondLimit(500)

	completed := 0
	b.SetCompletionCallback(func(spb *snd.SPB) error {
		completed++
		assert.Equal(t, snd.SPB_ERR_ABORTED, spb.LastError())

		return nil
	})

	require.NoError(t, b.StartRecording(true))

	st, err := b.RecordingStatus()
	require.NoError(t, err)
	assert.True(t, st.Recording)
	assert.Equal(t, uint32(1024), st.TotalBytes)
	assert.Equal(t, uint32(500), st.TotalMilliseconds)

	require.NoError(t, b.PauseRecording())
	st, err = b.RecordingStatus()
	require.NoError(t, err)
	assert.True(t, st.Paused)
	require.NoError(t, b.ResumeRecording())

	require.NoError(t, b.StopRecording())
	assert.Equal(t, 1, sess.Drain())
	assert.Equal(t, 1, completed)

	st, err = b.RecordingStatus()
	require.NoError(t, err)
	assert.False(t, st.Recording)
}

func TestSPBSynchronousRecording(t *testing.T) {
	sess, _ := newSession(t)
	b := sess.NewSPB()
	defer b.Close()

	done := false
	b.SetCompletionCallback(func(*snd.SPB) error {
		done = true

		return nil
	})

	require.NoError(t, b.StartRecording(false))
	assert.Equal(t, 1, sess.Dispatcher().Pending())
	sess.Drain()
	assert.True(t, done)
}

func TestSPBCloseDetachesRecord(t *testing.T) {
	var reported []error
	d := snd.NewDispatcher(snd.WithErrorHandler(func(err error) {
		reported = append(reported, err)
	}))
	sess, drv := newSession(t, snd.WithDispatcher(d))

	b := sess.NewSPB()
	assert.Equal(t, 1, sess.SPBs())
	assert.NotZero(t, b.Record().UserLong())

	b.SetCompletionCallback(func(*snd.SPB) error { return errors.New("late") })

	require.NoError(t, b.Close())
	assert.Zero(t, b.Record().UserLong())
	assert.Zero(t, sess.SPBs())

	drv.Complete(b.Record(), snd.SPB_ERR_NONE)
	assert.Zero(t, sess.Drain())
	assert.Empty(t, reported)

	assert.ErrorIs(t, b.StartRecording(true), snd.ErrClosed)
	assert.NoError(t, b.Close())
}
