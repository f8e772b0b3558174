package snd

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handleTarget struct {
	name string
	_    [64]byte
}

func TestHandleTable(t *testing.T) {
	var tbl handleTable[handleTarget]

	a := &handleTarget{name: "a"}
	b := &handleTarget{name: "b"}

	ha := tbl.insert(a)
	hb := tbl.insert(b)
	require.NotZero(t, ha)
	require.NotEqual(t, ha, hb)
	assert.Equal(t, 2, tbl.len())

	assert.Same(t, a, tbl.lookup(ha))
	assert.Same(t, b, tbl.lookup(hb))
	assert.Nil(t, tbl.lookup(0))
	assert.Nil(t, tbl.lookup(hb+100))

	assert.True(t, tbl.remove(ha))
	assert.False(t, tbl.remove(ha))
	assert.False(t, tbl.remove(0))
	assert.Nil(t, tbl.lookup(ha))
	assert.Equal(t, 1, tbl.len())

	// Handles are never reissued.
	hc := tbl.insert(&handleTarget{name: "c"})
	assert.Greater(t, hc, hb)

	runtime.KeepAlive(b)
}

func TestHandleTableDoesNotRetain(t *testing.T) {
	var tbl handleTable[handleTarget]

	h := tbl.insert(&handleTarget{name: "gone"})

	for range 10 {
		runtime.GC()
		if tbl.lookup(h) == nil {
			return
		}
	}

	t.Fatal("handle table kept its object alive")
}
