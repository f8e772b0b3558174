package snd

import (
	"fmt"
	"math"
	"reflect"
)

// Command is the fixed-layout record consumed by a channel's command queue.
// When Payload is non-nil it occupies the Param2 slot and Param2 is zero.
type Command struct {
	Op      uint16
	Param1  int16
	Param2  int32
	Payload []byte
}

// Command opcodes. The numbering follows the classic Sound Manager command set.
const (
	CMD_NULL       uint16 = 0
	CMD_QUIET      uint16 = 3
	CMD_FLUSH      uint16 = 4
	CMD_REINIT     uint16 = 5
	CMD_WAIT       uint16 = 10 // Param1 is the wait in half-milliseconds.
	CMD_PAUSE      uint16 = 11
	CMD_RESUME     uint16 = 12
	CMD_CALLBACK   uint16 = 13 // Fires the channel completion routine.
	CMD_SYNC       uint16 = 14
	CMD_AVAILABLE  uint16 = 24
	CMD_VERSION    uint16 = 25
	CMD_AMP        uint16 = 43
	CMD_VOLUME     uint16 = 46
	CMD_GET_VOLUME uint16 = 47
	CMD_SOUND      uint16 = 80
	CMD_BUFFER     uint16 = 81 // Payload holds interleaved frames.
	CMD_RATE       uint16 = 82
)

var commandNames = map[uint16]string{
	CMD_NULL:       "null",
	CMD_QUIET:      "quiet",
	CMD_FLUSH:      "flush",
	CMD_REINIT:     "reinit",
	CMD_WAIT:       "wait",
	CMD_PAUSE:      "pause",
	CMD_RESUME:     "resume",
	CMD_CALLBACK:   "callback",
	CMD_SYNC:       "sync",
	CMD_AVAILABLE:  "available",
	CMD_VERSION:    "version",
	CMD_AMP:        "amp",
	CMD_VOLUME:     "volume",
	CMD_GET_VOLUME: "getVolume",
	CMD_SOUND:      "sound",
	CMD_BUFFER:     "buffer",
	CMD_RATE:       "rate",
}

// CommandName returns a human-readable name for an opcode.
func CommandName(op uint16) string {
	if name, ok := commandNames[op]; ok {
		return name
	}

	return fmt.Sprintf("cmd(%d)", op)
}

// String returns a compact representation of the command.
func (c Command) String() string {
	if c.Payload != nil {
		return fmt.Sprintf("%s(%d, <%d bytes>)", CommandName(c.Op), c.Param1, len(c.Payload))
	}

	return fmt.Sprintf("%s(%d, %d)", CommandName(c.Op), c.Param1, c.Param2)
}

// DecodeCommand converts a loosely-typed command value into a Command.
// Accepted shapes, tried in order:
//
//	[]T{op, param1[, param2]}      integers of any Go integer type, or []any of integers
//	[]any{op, param1, []byte|string}  the bytes become the Payload
//	op                              a single integer
//
// A Command or *Command is returned as is. The input is never modified.
func DecodeCommand(v any) (Command, error) {
	switch c := v.(type) {
	case Command:
		return c, nil
	case *Command:
		if c != nil {
			return *c, nil
		}

		return Command{}, conversionError(v, "nil *Command")
	}

	elems, isTuple := tupleElems(v)
	if isTuple {
		if cmd, ok := decodeNumeric(elems); ok {
			return cmd, nil
		}

		if cmd, ok := decodePayload(elems); ok {
			return cmd, nil
		}

		return Command{}, conversionError(v, "expected (op, param1[, param2]) or (op, param1, bytes), got %v", v)
	}

	if op, ok := toInt64(v); ok && op >= 0 && op <= math.MaxUint16 {
		return Command{Op: uint16(op)}, nil
	}

	return Command{}, conversionError(v, "unsupported command value of type %T", v)
}

// EncodeCommand is the inverse of the numeric tuple shape: it returns {op, param1, param2}.
func EncodeCommand(c Command) []int {
	return []int{int(c.Op), int(c.Param1), int(c.Param2)}
}

func decodeNumeric(elems []any) (Command, bool) {
	if len(elems) < 2 || len(elems) > 3 {
		return Command{}, false
	}

	var vals [3]int64
	for i, e := range elems {
		n, ok := toInt64(e)
		if !ok {
			return Command{}, false
		}
		vals[i] = n
	}

	if vals[0] < 0 || vals[0] > math.MaxUint16 ||
		vals[1] < math.MinInt16 || vals[1] > math.MaxInt16 ||
		vals[2] < math.MinInt32 || vals[2] > math.MaxInt32 {
		return Command{}, false
	}

	return Command{Op: uint16(vals[0]), Param1: int16(vals[1]), Param2: int32(vals[2])}, true
}

func decodePayload(elems []any) (Command, bool) {
	if len(elems) != 3 {
		return Command{}, false
	}

	op, ok := toInt64(elems[0])
	if !ok || op < 0 || op > math.MaxUint16 {
		return Command{}, false
	}

	p1, ok := toInt64(elems[1])
	if !ok || p1 < math.MinInt16 || p1 > math.MaxInt16 {
		return Command{}, false
	}

	var payload []byte
	switch b := elems[2].(type) {
	case []byte:
		payload = append([]byte{}, b...)
	case string:
		payload = append([]byte{}, b...)
	default:
		return Command{}, false
	}

	return Command{Op: uint16(op), Param1: int16(p1), Payload: payload}, true
}

// tupleElems unpacks slices and arrays. Byte slices and strings are scalars here.
func tupleElems(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}

	if _, ok := v.([]byte); ok {
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}

	elems := make([]any, rv.Len())
	for i := range elems {
		elems[i] = rv.Index(i).Interface()
	}

	return elems, true
}

func toInt64(v any) (int64, bool) {
	if v == nil {
		return 0, false
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, false
		}

		return int64(u), true
	default:
		return 0, false
	}
}
