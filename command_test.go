package snd_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gen2brain/snd"
)

func TestDecodeCommandShapes(t *testing.T) {
	testCases := []struct {
		name string
		in   any
		want snd.Command
	}{
		{"scalar", 13, snd.Command{Op: 13}},
		{"scalar uint16", snd.CMD_QUIET, snd.Command{Op: snd.CMD_QUIET}},
		{"pair", []int{10, 4}, snd.Command{Op: 10, Param1: 4}},
		{"triple", []int{5, 2, 9}, snd.Command{Op: 5, Param1: 2, Param2: 9}},
		{"array", [3]int32{13, -1, -70000}, snd.Command{Op: 13, Param1: -1, Param2: -70000}},
		{"mixed any", []any{snd.CMD_CALLBACK, int8(7), uint32(42)}, snd.Command{Op: 13, Param1: 7, Param2: 42}},
		{"bytes", []any{81, 0, []byte{1, 2, 3}}, snd.Command{Op: 81, Payload: []byte{1, 2, 3}}},
		{"string", []any{80, 1, "abc"}, snd.Command{Op: 80, Param1: 1, Payload: []byte("abc")}},
		{"passthrough", snd.Command{Op: 3, Param1: 1}, snd.Command{Op: 3, Param1: 1}},
		{"passthrough pointer", &snd.Command{Op: 4}, snd.Command{Op: 4}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := snd.DecodeCommand(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecodeCommandConversionFailures(t *testing.T) {
	testCases := map[string]any{
		"nil":             nil,
		"string":          "not a command",
		"float":           1.5,
		"empty tuple":     []int{},
		"single element":  []int{13},
		"four elements":   []int{1, 2, 3, 4},
		"negative op":     -1,
		"op too large":    math.MaxUint16 + 1,
		"param1 overflow": []int{13, math.MaxInt16 + 1},
		"param2 overflow": []int64{13, 0, math.MaxInt32 + 1},
		"non-integer":     []any{13, "x"},
		"bytes too early": []any{13, []byte{1}, 2},
		"raw bytes":       []byte{13, 0, 0},
		"huge uint64":     uint64(math.MaxUint64),
		"nil command ptr": (*snd.Command)(nil),
	}

	for name, in := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := snd.DecodeCommand(in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, snd.ErrConversion), "want a conversion error, got %v", err)

			var serr *snd.Error
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, "decode command", serr.Op)
		})
	}
}

func TestDecodeCommandRejectsWithoutMutating(t *testing.T) {
	payload := []byte{7, 8}
	tuple := []any{int64(13), math.MaxInt16 + 1, payload}
	ints := []int{81, 0, math.MaxInt32 + 1}
	ops := []uint32{70000, 0}

	_, err := snd.DecodeCommand(tuple)
	require.ErrorIs(t, err, snd.ErrConversion)
	assert.Equal(t, []any{int64(13), math.MaxInt16 + 1, []byte{7, 8}}, tuple)
	assert.Equal(t, []byte{7, 8}, payload)

	_, err = snd.DecodeCommand(ints)
	require.ErrorIs(t, err, snd.ErrConversion)
	assert.Equal(t, []int{81, 0, math.MaxInt32 + 1}, ints)

	_, err = snd.DecodeCommand(ops)
	require.ErrorIs(t, err, snd.ErrConversion)
	assert.Equal(t, []uint32{70000, 0}, ops)
}

func TestDecodeCommandCopiesPayload(t *testing.T) {
	buf := []byte{1, 2, 3}

	cmd, err := snd.DecodeCommand([]any{snd.CMD_BUFFER, 0, buf})
	require.NoError(t, err)

	buf[0] = 99
	assert.Equal(t, []byte{1, 2, 3}, cmd.Payload)
	assert.Zero(t, cmd.Param2)
}

func TestEncodeCommandRoundTrip(t *testing.T) {
	for _, c := range []snd.Command{
		{},
		{Op: 13, Param1: 1, Param2: 42},
		{Op: math.MaxUint16, Param1: math.MinInt16, Param2: math.MinInt32},
		{Op: 10, Param1: math.MaxInt16, Param2: math.MaxInt32},
	} {
		got, err := snd.DecodeCommand(snd.EncodeCommand(c))
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "callback(1, 42)", snd.Command{Op: snd.CMD_CALLBACK, Param1: 1, Param2: 42}.String())
	assert.Equal(t, "buffer(0, <4 bytes>)", snd.Command{Op: snd.CMD_BUFFER, Payload: make([]byte, 4)}.String())
	assert.Equal(t, "cmd(999)", snd.CommandName(999))
}
