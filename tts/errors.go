package tts

import "errors"

// Common errors for the playback core.
var (
	// ErrEmptyText is returned when play is requested with nothing to speak.
	ErrEmptyText = errors.New("no text to speak")
	// ErrEngineUnavailable is returned when the platform has no speech
	// capability at all.
	ErrEngineUnavailable = errors.New("speech engine is not available")
	// ErrVoiceUnavailable indicates the requested voice is absent from the
	// current voice list. Handled locally by substituting the fallback voice;
	// callers should not surface it.
	ErrVoiceUnavailable = errors.New("requested voice not available")
	// ErrSuperseded indicates async work finished under a stale token.
	ErrSuperseded = errors.New("playback request superseded")
	// ErrBridgeClosed is returned for requests sent after the worker bridge
	// has shut down.
	ErrBridgeClosed = errors.New("worker bridge is closed")
)

// Stable error codes carried by EngineError. These distinguish failures the
// orchestrator reacts to differently: a blocked audio start asks for a user
// gesture, everything else degrades to the fastest engine.
const (
	// CodeAutoplayBlocked: the platform refused to start audio without a
	// fresh user action.
	CodeAutoplayBlocked = "autoplay-blocked"
	// CodeStartTimeout: the fallback engine never signaled start in time.
	CodeStartTimeout = "start-timeout"
	// CodeTransport: a worker action failed or is unsupported.
	CodeTransport = "transport"
	// CodeSynthesis: the neural engine failed to produce audio.
	CodeSynthesis = "synthesis"
	// CodeDownload: a voice-pack download failed.
	CodeDownload = "download"
)

// EngineError is an engine failure with a stable code the orchestrator can
// dispatch on without string matching.
type EngineError struct {
	Code string // one of the Code* constants
	Err  error  // underlying cause, may be nil
	Msg  string // human-readable description
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code
}

// Unwrap returns the underlying error.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError creates an EngineError with the given code and cause.
func NewEngineError(code, msg string, err error) *EngineError {
	return &EngineError{Code: code, Msg: msg, Err: err}
}

// ErrorCode extracts the stable code from err, or "" if err carries none.
func ErrorCode(err error) string {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// IsAutoplayBlocked reports whether err is a blocked audio start, the one
// neural failure that must never be conflated with other errors.
func IsAutoplayBlocked(err error) bool {
	return ErrorCode(err) == CodeAutoplayBlocked
}

// IsStartTimeout reports whether err is a fallback-engine start timeout.
func IsStartTimeout(err error) bool {
	return ErrorCode(err) == CodeStartTimeout
}
