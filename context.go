package snd

// Token is an opaque capture of the execution context a callback must wear
// before it touches host state. The zero Token means "no context".
type Token struct {
	v any
}

// NewToken wraps a provider-specific value.
func NewToken(v any) Token {
	return Token{v: v}
}

// Value returns the wrapped provider-specific value.
func (t Token) Value() any {
	return t.v
}

// ContextProvider captures and restores the ambient execution context.
//
// Capture runs once, on the goroutine that constructs a Channel or SPB.
// Restore runs at the start of every trampoline entered from a driver thread;
// it switches to the captured context and returns the one it replaced, which
// the trampoline hands back to Restore before returning to the driver.
type ContextProvider interface {
	Capture() Token
	Restore(Token) Token
}

// NopContext is the default provider: Go needs no context switch to run a trampoline.
type NopContext struct{}

// Capture returns the zero Token.
func (NopContext) Capture() Token { return Token{} }

// Restore returns the zero Token.
func (NopContext) Restore(Token) Token { return Token{} }

// enterContext switches to captured and returns the function that switches back.
func enterContext(p ContextProvider, captured Token) func() {
	prior := p.Restore(captured)

	return func() {
		p.Restore(prior)
	}
}
