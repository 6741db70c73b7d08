package tts

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// activeEngine identifies which session, if any, last received transitions.
type activeEngine int

const (
	activeNone activeEngine = iota
	activeNeural
	activeFallback
)

// Controller is the playback orchestrator: the single source of truth for
// what is currently happening. It selects the active engine session, mints
// and invalidates playback tokens, reconciles asynchronous completions
// against the live token, and drives the derived voice-pack status.
//
// All methods are safe for concurrent use. Engine sessions call back into
// the controller through their event hubs; those callbacks run on whatever
// goroutine the session emits from.
type Controller struct {
	cfg      Config
	neural   NeuralSession
	fallback FallbackSession
	view     View
	logger   *log.Logger

	tokens TokenSource

	mu          sync.Mutex
	machine     *StateMachine
	mode        EngineMode
	pendingMode *EngineMode
	rate        float64
	active      activeEngine
	pack        VoicePackStatus
}

// NewController wires a controller to its engine sessions and view. A nil
// view is replaced with NopView.
func NewController(cfg Config, neural NeuralSession, fallback FallbackSession, view View, logger *log.Logger) *Controller {
	if view == nil {
		view = NopView{}
	}
	if logger == nil {
		logger = log.Default()
	}
	rate := cfg.Rate
	if rate <= 0 {
		rate = 1.0
	}
	c := &Controller{
		cfg:      cfg,
		neural:   neural,
		fallback: fallback,
		view:     view,
		logger:   logger,
		machine:  NewStateMachine(),
		mode:     cfg.Mode,
		rate:     rate,
	}

	// Button enablement follows the state machine, nothing else.
	for _, st := range []PlaybackState{StateIdle, StateBusy, StatePlaying, StatePaused} {
		st := st
		c.machine.OnEnter(st, func() {
			view.SetButtons(ButtonState{
				Playing: st == StatePlaying,
				Paused:  st == StatePaused,
				Busy:    st == StateBusy,
			})
		})
	}

	neural.On(EventPlaying, func(any) { c.onEnginePlaying() })
	neural.On(EventPaused, func(any) { c.onEnginePaused() })
	neural.On(EventEnded, func(any) { c.onEngineEnded() })

	fallback.On(EventStart, func(any) { c.onEnginePlaying() })
	fallback.On(EventResume, func(any) { c.onEnginePlaying() })
	fallback.On(EventPause, func(any) { c.onEnginePaused() })
	fallback.On(EventEnd, func(any) { c.onEngineEnded() })
	fallback.On(EventError, func(payload any) { c.onEngineError(payload) })

	return c
}

// State returns the current playback state.
func (c *Controller) State() PlaybackState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.Current()
}

// Mode returns the currently active engine mode. A deferred switch is not
// reflected until the next play applies it.
func (c *Controller) Mode() EngineMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// VoicePack returns the derived voice-pack status.
func (c *Controller) VoicePack() VoicePackStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pack
}

// Rate returns the speaking rate multiplier.
func (c *Controller) Rate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

// SetRate sets the speaking rate, clamped to 0.5–2.0. Takes effect on the
// next play or resume.
func (c *Controller) SetRate(rate float64) {
	if rate < 0.5 {
		rate = 0.5
	}
	if rate > 2.0 {
		rate = 2.0
	}
	c.mu.Lock()
	c.rate = rate
	c.mu.Unlock()
}

// SetMode switches the engine mode. While playback is underway the switch is
// deferred and applied by the next play; when idle it applies immediately
// and the voice-pack status is recomputed.
func (c *Controller) SetMode(ctx context.Context, mode EngineMode) {
	c.mu.Lock()
	if c.machine.Current() != StateIdle {
		m := mode
		c.pendingMode = &m
		c.mu.Unlock()
		c.logger.Debug("mode switch deferred until next play", "mode", mode)
		return
	}
	c.mode = mode
	c.pendingMode = nil
	c.mu.Unlock()
	c.RefreshVoicePack(ctx)
}

// Play starts speaking text on the engine the active mode selects. A new
// token is minted first, superseding any in-flight work.
func (c *Controller) Play(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}
	token := c.tokens.Next()

	c.mu.Lock()
	if c.pendingMode != nil {
		c.mode = *c.pendingMode
		c.pendingMode = nil
	}
	mode := c.mode
	c.mu.Unlock()

	if mode.Neural() {
		return c.playNeural(ctx, text, mode, token)
	}
	return c.playFallback(ctx, text, token)
}

// Pause invalidates the live token, then delegates to the last active
// engine. In-flight work for the old token completes silently.
func (c *Controller) Pause() {
	c.tokens.Next()
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()

	switch active {
	case activeNeural:
		c.neural.Pause()
	case activeFallback:
		c.fallback.Pause()
	}
}

// Resume invalidates the live token and continues playback on the last
// active engine. It is also the recovery action after an autoplay block:
// the call carries the fresh user gesture the platform wants.
func (c *Controller) Resume(ctx context.Context) error {
	c.tokens.Next()
	c.view.HideModal()
	c.mu.Lock()
	active := c.active
	rate := c.rate
	c.mu.Unlock()

	switch active {
	case activeNeural:
		if err := c.neural.Resume(rate); err != nil {
			if IsAutoplayBlocked(err) {
				c.view.ShowModal("Audio is still blocked. Try again.")
				return nil
			}
			return err
		}
	case activeFallback:
		c.fallback.Resume()
	}
	return nil
}

// Stop invalidates the live token, resets the voice-pack runtime fields,
// stops the last active engine and clears it.
func (c *Controller) Stop() {
	c.tokens.Next()
	c.mu.Lock()
	active := c.active
	c.active = activeNone
	c.pack = VoicePackStatus{}
	c.mu.Unlock()
	c.view.SetVoicePack(VoicePackStatus{})

	switch active {
	case activeNeural:
		c.neural.Stop()
	case activeFallback:
		c.fallback.Stop()
	}

	c.mu.Lock()
	c.machineTo(StateIdle)
	c.mu.Unlock()
	c.view.SetStatus("Ready", StatusOpts{})
}

// RefreshVoicePack recomputes the derived voice-pack status for the active
// mode by querying the stored-voice set.
func (c *Controller) RefreshVoicePack(ctx context.Context) {
	c.mu.Lock()
	mode := c.mode
	c.mu.Unlock()

	if !mode.Neural() {
		c.setPack(VoicePackStatus{})
		return
	}
	voiceID := c.cfg.VoiceFor(mode)
	c.setPack(VoicePackStatus{State: PackChecking, VoiceID: voiceID})

	token := c.tokens.Live()
	stored, err := c.neural.GetStoredVoices(ctx)
	if !c.tokens.Valid(token) {
		return
	}
	if err != nil {
		c.logger.Debug("voice cache check failed", "voice", voiceID, "err", err)
		c.setPack(VoicePackStatus{State: PackError, VoiceID: voiceID})
		return
	}
	if _, ok := stored[voiceID]; ok {
		c.setPack(VoicePackStatus{State: PackCached, VoiceID: voiceID})
		return
	}
	c.setPack(VoicePackStatus{State: PackNotCached, VoiceID: voiceID})
}

func (c *Controller) playNeural(ctx context.Context, text string, mode EngineMode, token Token) error {
	voiceID := c.cfg.VoiceFor(mode)

	c.mu.Lock()
	rate := c.rate
	c.active = activeNeural
	c.machineTo(StateIdle)
	c.machineTo(StateBusy)
	c.pack = VoicePackStatus{State: PackChecking, VoiceID: voiceID}
	c.mu.Unlock()

	c.view.HideModal()
	c.view.SetVoicePack(c.VoicePack())
	c.view.SetStatus(fmt.Sprintf("Preparing %s voice…", mode), StatusOpts{})

	// Satisfy platform gesture requirements while the play gesture is still
	// fresh, before any long-running download begins.
	c.neural.UnlockAudio(ctx)

	res, err := c.neural.Play(ctx, text, PlayRequest{
		VoiceID:         voiceID,
		FallbackVoiceID: c.cfg.FallbackVoiceID,
		Rate:            rate,
		Token:           token,
		OnProgress: func(info ProgressInfo) {
			c.onNeuralProgress(token, info)
		},
	})
	if err != nil {
		return c.neuralFailure(ctx, text, mode, token, err)
	}
	if res.Status == StatusSuperseded || !c.tokens.Valid(token) {
		return nil
	}

	c.setPack(VoicePackStatus{
		State:         PackCached,
		VoiceID:       res.VoiceUsed,
		UsingFallback: res.VoiceUsed != voiceID,
	})
	return nil
}

// neuralFailure implements the degradation policy. An autoplay block pauses
// and asks for a gesture, keeping the mode. Every other failure switches to
// the fastest mode and waits for an explicit new play unless auto-start is
// configured.
func (c *Controller) neuralFailure(ctx context.Context, text string, mode EngineMode, token Token, err error) error {
	if !c.tokens.Valid(token) {
		c.logger.Debug("ignoring failure of superseded play", "err", err)
		return nil
	}

	if IsAutoplayBlocked(err) {
		c.mu.Lock()
		c.machineTo(StatePaused)
		c.mu.Unlock()
		c.view.SetStatus("Paused — audio needs a user action", StatusOpts{})
		c.view.ShowModal("Audio is blocked by the platform. Press Resume to start playback.")
		return nil
	}

	c.logger.Error("neural playback failed", "mode", mode, "err", err)
	c.mu.Lock()
	c.mode = ModeFastest
	c.pendingMode = nil
	c.active = activeNone
	c.pack = VoicePackStatus{}
	c.machineTo(StateIdle)
	auto := c.cfg.AutoStartFallback
	c.mu.Unlock()

	c.view.SetVoicePack(VoicePackStatus{})
	c.view.SetStatus("Ready", StatusOpts{})
	c.view.ShowModal(fmt.Sprintf("The %s voice is unavailable (%v). Switched to fastest mode — press Play to continue.", mode, err))

	if auto {
		return c.playFallback(ctx, text, c.tokens.Next())
	}
	return nil
}

func (c *Controller) playFallback(ctx context.Context, text string, _ Token) error {
	c.mu.Lock()
	rate := c.rate
	c.active = activeFallback
	c.machineTo(StateIdle)
	c.machineTo(StateBusy)
	c.pack = VoicePackStatus{}
	c.mu.Unlock()

	c.view.HideModal()
	c.view.SetVoicePack(VoicePackStatus{})
	c.view.SetStatus("Starting…", StatusOpts{})

	if err := c.fallback.Play(ctx, text, c.cfg.SystemVoiceURI, rate); err != nil {
		c.mu.Lock()
		c.active = activeNone
		c.machineTo(StateIdle)
		c.mu.Unlock()
		c.view.SetStatus("Ready", StatusOpts{})
		c.view.ShowModal(fmt.Sprintf("Speech failed: %v", err))
		return err
	}
	return nil
}

func (c *Controller) onNeuralProgress(token Token, info ProgressInfo) {
	if !c.tokens.Valid(token) {
		return
	}
	switch info.Stage {
	case StageDownload:
		c.setPack(VoicePackStatus{State: PackDownloading, VoiceID: info.VoiceID, Percent: info.Percent})
		c.view.SetStatus(fmt.Sprintf("Downloading voice… %d%%", info.Percent),
			StatusOpts{ShowProgress: true, Progress: info.Percent})
	case StagePredict:
		c.setPack(VoicePackStatus{State: PackSynthesizing, VoiceID: info.VoiceID})
		c.view.SetStatus("Synthesizing…", StatusOpts{ShowProgress: true, Progress: info.Percent})
	}
}

func (c *Controller) onEnginePlaying() {
	c.mu.Lock()
	c.machineTo(StatePlaying)
	c.mu.Unlock()
	c.view.SetStatus("Playing…", StatusOpts{})
}

func (c *Controller) onEnginePaused() {
	c.mu.Lock()
	c.machineTo(StatePaused)
	c.mu.Unlock()
	c.view.SetStatus("Paused", StatusOpts{})
}

func (c *Controller) onEngineEnded() {
	c.mu.Lock()
	c.active = activeNone
	c.machineTo(StateIdle)
	c.mu.Unlock()
	c.view.SetStatus("Ready", StatusOpts{})
}

func (c *Controller) onEngineError(payload any) {
	c.logger.Error("engine reported an error", "err", payload)
	c.mu.Lock()
	c.active = activeNone
	c.machineTo(StateIdle)
	c.mu.Unlock()
	c.view.SetStatus("Ready", StatusOpts{})
	c.view.ShowModal(fmt.Sprintf("Speech failed: %v", payload))
}

func (c *Controller) setPack(p VoicePackStatus) {
	c.mu.Lock()
	c.pack = p
	c.mu.Unlock()
	c.view.SetVoicePack(p)
}

// machineTo attempts a transition and logs rejected ones. Callers hold c.mu.
func (c *Controller) machineTo(to PlaybackState) {
	from := c.machine.Current()
	if !c.machine.Transition(to) {
		c.logger.Debug("invalid playback transition", "from", from, "to", to)
	}
}
