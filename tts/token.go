package tts

import "sync/atomic"

// Token is a playback generation stamp. Every user-initiated transition mints
// a new token; asynchronous work captures the token it was started with and
// checks it again before committing any visible effect. A stale token means
// the work was superseded and must complete silently.
type Token int64

// TokenSource issues strictly increasing tokens. The zero value is ready to
// use and starts at token 0, matching a freshly constructed controller.
type TokenSource struct {
	current atomic.Int64
}

// Next invalidates the live token and returns a fresh one.
func (s *TokenSource) Next() Token {
	return Token(s.current.Add(1))
}

// Live returns the currently valid token.
func (s *TokenSource) Live() Token {
	return Token(s.current.Load())
}

// Valid reports whether t is still the live token.
func (s *TokenSource) Valid(t Token) bool {
	return Token(s.current.Load()) == t
}
