package tts

import (
	"context"
	"time"
)

// Stage identifies what phase of voice preparation a progress report covers.
type Stage string

const (
	// StageDownload covers voice-pack acquisition.
	StageDownload Stage = "download"
	// StagePredict covers synthesis.
	StagePredict Stage = "predict"
)

// ProgressInfo is a progress report from the neural pipeline.
type ProgressInfo struct {
	Stage   Stage
	VoiceID string
	Percent int // 0-100
}

// PlayRequest carries the parameters of a neural play call.
type PlayRequest struct {
	// VoiceID is the requested voice. If it is absent from the engine's
	// voice list the FallbackVoiceID is substituted silently.
	VoiceID         string
	FallbackVoiceID string
	Rate            float64
	OnProgress      func(ProgressInfo)
	// Token is the playback generation this request belongs to. If the
	// session's live token moves past it while the request is in flight,
	// the request completes without side effects.
	Token Token
}

// PlayResult reports a successful neural play.
type PlayResult struct {
	Status    string // "playing", or "superseded" when cancelled silently
	VoiceUsed string // the voice actually used after fallback substitution
}

// StatusPlaying and StatusSuperseded are the PlayResult.Status values.
const (
	StatusPlaying    = "playing"
	StatusSuperseded = "superseded"
)

// NeuralSession is the higher-quality engine: voice packs downloaded on
// demand, synthesis off the main thread, playback through an audio sink.
type NeuralSession interface {
	GetVoices(ctx context.Context) ([]string, error)
	GetStoredVoices(ctx context.Context) (map[string]struct{}, error)
	Play(ctx context.Context, text string, req PlayRequest) (PlayResult, error)
	Pause()
	Resume(rate float64) error
	Stop()
	UnlockAudio(ctx context.Context)
	Flush(ctx context.Context) error
	On(event string, fn Listener)
}

// FallbackSession is the instant platform engine with a smaller surface.
type FallbackSession interface {
	LoadVoices(ctx context.Context, force bool) ([]Voice, error)
	Play(ctx context.Context, text, voiceURI string, rate float64) error
	Pause()
	Resume()
	Stop()
	On(event string, fn Listener)
}

// AudioSink is the playback resource owned by the neural session. One source
// is loaded at a time; loading revokes the previous source.
type AudioSink interface {
	// Load assigns a new audio source, revoking any prior one.
	Load(audio []byte) error
	// Start begins playback of the loaded source. It returns an EngineError
	// with CodeAutoplayBlocked when the platform refuses to start audio.
	Start() error
	Pause() error
	Resume() error
	// Stop halts playback, resets the position and revokes the source.
	Stop() error
	// Revoke releases the current source handle without touching state.
	Revoke()
	Playing() bool
	Paused() bool
	Position() time.Duration
	// Unlock plays and immediately stops a near-zero-duration silent clip so
	// later programmatic starts are permitted. Best effort.
	Unlock() error
	// OnEnded registers the natural end-of-source callback.
	OnEnded(fn func())
	Close() error
}

// StatusOpts accompanies a view status update.
type StatusOpts struct {
	ShowProgress bool
	Progress     int // 0-100
}

// ButtonState describes which transport controls should be enabled. The view
// derives play/pause/resume/stop enablement and the mode-switch lock from
// these three flags.
type ButtonState struct {
	Playing bool
	Paused  bool
	Busy    bool
}

// View is the display surface the orchestrator drives. Implementations must
// be safe to call from any goroutine.
type View interface {
	SetStatus(text string, opts StatusOpts)
	SetButtons(state ButtonState)
	SetVoicePack(status VoicePackStatus)
	ShowModal(message string)
	HideModal()
}

// NopView discards all view updates. Useful for headless operation and tests.
type NopView struct{}

func (NopView) SetStatus(string, StatusOpts)      {}
func (NopView) SetButtons(ButtonState)            {}
func (NopView) SetVoicePack(VoicePackStatus)      {}
func (NopView) ShowModal(string)                  {}
func (NopView) HideModal()                        {}
