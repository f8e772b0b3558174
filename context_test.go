package snd_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gen2brain/snd"
)

// worldProvider tracks a single "current world" the way an embedding runtime
// with per-thread interpreter state would.
type worldProvider struct {
	mu       sync.Mutex
	current  string
	restores []string
}

func (p *worldProvider) Capture() snd.Token {
	p.mu.Lock()
	defer p.mu.Unlock()

	return snd.NewToken(p.current)
}

func (p *worldProvider) Restore(t snd.Token) snd.Token {
	p.mu.Lock()
	defer p.mu.Unlock()

	prior := p.current
	p.current, _ = t.Value().(string)
	p.restores = append(p.restores, p.current)

	return snd.NewToken(prior)
}

func TestTrampolineRestoresContext(t *testing.T) {
	p := &worldProvider{current: "main"}
	sess, drv := newSession(t, snd.WithContextProvider(p))

	ch, err := sess.NewChannel(0, 0, func(*snd.Channel, snd.Command) error { return nil })
	require.NoError(t, err)
	defer ch.Close()

	p.mu.Lock()
	p.current = "interrupt"
	p.mu.Unlock()

	drv.Last().Fire(snd.Command{Op: snd.CMD_CALLBACK})

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Equal(t, []string{"main", "interrupt"}, p.restores)
	assert.Equal(t, "interrupt", p.current)
}

func TestNopContext(t *testing.T) {
	var p snd.NopContext

	tok := p.Capture()
	assert.Nil(t, tok.Value())
	assert.Equal(t, snd.Token{}, p.Restore(snd.NewToken(1)))
}

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("EBUSY")
	err := &snd.Error{
		Op:     "new channel",
		Kind:   snd.KindNativeAllocation,
		Detail: "synth 0, init 0x0",
		Cause:  cause,
	}

	assert.Equal(t, "snd: new channel: native_allocation: synth 0, init 0x0 (caused by: EBUSY)", err.Error())
	assert.ErrorIs(t, err, snd.ErrNativeAllocation)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, snd.ErrType)
	assert.Equal(t, "snd: closed", (&snd.Error{Kind: snd.KindClosed}).Error())
}
