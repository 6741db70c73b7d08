// Package neural implements the higher-quality engine session: voice packs
// acquired on demand, synthesis performed off the main thread through the
// worker bridge, playback through an audio sink.
package neural

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/voicebox/tts"
	"github.com/dgnsrekt/voicebox/tts/bridge"
)

// Session owns one playback sink and the transport to the synthesis worker.
// It implements tts.NeuralSession.
type Session struct {
	bridge *bridge.Bridge
	sink   tts.AudioSink
	hub    *tts.EventHub
	logger *log.Logger

	// playToken is the session's live token. Play adopts the caller's token;
	// Stop advances it, which turns any in-flight play into a silent no-op.
	playToken atomic.Int64

	suppressEvents atomic.Bool
	unlocked       atomic.Bool
	currentRate    atomic.Uint64 // float64 bits
	currentVoice   atomic.Value  // string
}

// New creates a neural session on top of a worker bridge and an audio sink.
func New(b *bridge.Bridge, sink tts.AudioSink, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.Default()
	}
	s := &Session{
		bridge: b,
		sink:   sink,
		hub:    tts.NewEventHub(),
		logger: logger,
	}
	s.setRate(1.0)
	sink.OnEnded(func() {
		if s.suppressEvents.Load() {
			return
		}
		s.hub.Emit(tts.EventEnded, nil)
	})
	return s
}

// On registers an event listener. Registration is append-only for the
// session's lifetime.
func (s *Session) On(event string, fn tts.Listener) {
	s.hub.On(event, fn)
}

// GetVoices lists the identifiers the synthesis library offers.
func (s *Session) GetVoices(ctx context.Context) ([]string, error) {
	raw, err := s.bridge.Send(ctx, bridge.ActionVoices, bridge.Payload{}, nil)
	if err != nil {
		return nil, err
	}
	return tts.NormalizeVoiceList(raw), nil
}

// GetStoredVoices returns the deduplicated set of cached voice identifiers.
// The worker passes the library's raw listing through; every accepted wire
// shape normalizes to the same set here.
func (s *Session) GetStoredVoices(ctx context.Context) (map[string]struct{}, error) {
	raw, err := s.bridge.Send(ctx, bridge.ActionStored, bridge.Payload{}, nil)
	if err != nil {
		return nil, err
	}
	return tts.NormalizeVoiceSet(raw), nil
}

// Flush clears all cached voice assets.
func (s *Session) Flush(ctx context.Context) error {
	_, err := s.bridge.Send(ctx, bridge.ActionFlush, bridge.Payload{}, nil)
	return err
}

// UnlockAudio runs the one-time silent-clip maneuver that satisfies platform
// gesture requirements before background work begins. All session events are
// suppressed while it runs. Failure is swallowed; a later real play retries
// the natural unlock path.
func (s *Session) UnlockAudio(context.Context) {
	if s.unlocked.Load() {
		return
	}
	s.suppressEvents.Store(true)
	defer s.suppressEvents.Store(false)
	if err := s.sink.Unlock(); err != nil {
		// Non-fatal; the unlocked flag stays false so a later real play
		// retries the natural unlock path.
		s.logger.Debug("audio unlock failed, playback may still be blocked", "err", err)
		return
	}
	s.unlocked.Store(true)
}

// Play resolves the effective voice, ensures its pack is downloaded,
// synthesizes the text and starts playback — unless the supplied token has
// been superseded during the awaited work, in which case it resolves without
// side effects.
func (s *Session) Play(ctx context.Context, text string, req tts.PlayRequest) (tts.PlayResult, error) {
	s.playToken.Store(int64(req.Token))
	if req.Rate > 0 {
		s.setRate(req.Rate)
	}

	voices, err := s.GetVoices(ctx)
	if err != nil {
		return tts.PlayResult{}, err
	}
	voiceID := req.FallbackVoiceID
	for _, v := range voices {
		if v == req.VoiceID {
			voiceID = req.VoiceID
			break
		}
	}
	s.currentVoice.Store(voiceID)

	if err := s.downloadIfNeeded(ctx, voiceID, req.OnProgress); err != nil {
		return tts.PlayResult{}, err
	}

	audio, err := s.synthesize(ctx, text, voiceID, req.OnProgress)
	if err != nil {
		return tts.PlayResult{}, err
	}

	if s.playToken.Load() != int64(req.Token) {
		// Superseded while downloading or synthesizing: silent cancellation.
		return tts.PlayResult{Status: tts.StatusSuperseded, VoiceUsed: voiceID}, nil
	}

	if err := s.sink.Load(audio); err != nil {
		return tts.PlayResult{}, fmt.Errorf("failed to load audio: %w", err)
	}
	if err := s.sink.Start(); err != nil {
		if tts.IsAutoplayBlocked(err) {
			return tts.PlayResult{}, err
		}
		return tts.PlayResult{}, fmt.Errorf("failed to start playback: %w", err)
	}
	if !s.suppressEvents.Load() {
		s.hub.Emit(tts.EventPlaying, nil)
	}
	return tts.PlayResult{Status: tts.StatusPlaying, VoiceUsed: voiceID}, nil
}

// Pause pauses playback if audio is actually playing.
func (s *Session) Pause() {
	if !s.sink.Playing() {
		return
	}
	if err := s.sink.Pause(); err != nil {
		return
	}
	if !s.suppressEvents.Load() {
		s.hub.Emit(tts.EventPaused, nil)
	}
}

// Resume continues playback of the held source at the given rate. The
// source position is preserved; nothing is re-synthesized.
func (s *Session) Resume(rate float64) error {
	if rate > 0 {
		s.setRate(rate)
	}
	if err := s.sink.Resume(); err != nil {
		return err
	}
	if !s.suppressEvents.Load() {
		s.hub.Emit(tts.EventPlaying, nil)
	}
	return nil
}

// Stop unconditionally advances the live token, releases the held audio
// source and emits a terminal ended event exactly once. The sink's own
// end-of-source signal is cancelled by the revocation, so no duplicate
// arrives afterwards.
func (s *Session) Stop() {
	s.playToken.Add(1)
	_ = s.sink.Stop()
	s.hub.Emit(tts.EventEnded, nil)
}

func (s *Session) downloadIfNeeded(ctx context.Context, voiceID string, onProgress func(tts.ProgressInfo)) error {
	stored, err := s.GetStoredVoices(ctx)
	if err != nil {
		return err
	}
	if _, ok := stored[voiceID]; ok {
		return nil
	}
	_, err = s.bridge.Send(ctx, bridge.ActionDownload, bridge.Payload{VoiceID: voiceID}, s.forward(onProgress))
	if err != nil {
		return tts.NewEngineError(tts.CodeDownload, fmt.Sprintf("voice download failed: %v", err), err)
	}
	return nil
}

func (s *Session) synthesize(ctx context.Context, text, voiceID string, onProgress func(tts.ProgressInfo)) ([]byte, error) {
	raw, err := s.bridge.Send(ctx, bridge.ActionPredict,
		bridge.Payload{Text: text, VoiceID: voiceID, Rate: s.rate()}, s.forward(onProgress))
	if err != nil {
		return nil, tts.NewEngineError(tts.CodeSynthesis, fmt.Sprintf("synthesis failed: %v", err), err)
	}
	audio, ok := raw.([]byte)
	if !ok || len(audio) == 0 {
		return nil, tts.NewEngineError(tts.CodeSynthesis, "synthesis returned no audio", errors.New("empty predict result"))
	}
	return audio, nil
}

// forward relays bridge progress to the caller and to progress listeners.
func (s *Session) forward(onProgress func(tts.ProgressInfo)) func(tts.ProgressInfo) {
	return func(info tts.ProgressInfo) {
		if !s.suppressEvents.Load() {
			s.hub.Emit(tts.EventProgress, info)
		}
		if onProgress != nil {
			onProgress(info)
		}
	}
}

func (s *Session) setRate(rate float64) {
	s.currentRate.Store(math.Float64bits(rate))
}

func (s *Session) rate() float64 {
	return math.Float64frombits(s.currentRate.Load())
}
