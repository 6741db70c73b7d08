// Package system implements the instant fallback engine on top of the
// platform's native speech command. No downloads, no model files; the first
// utterance can start immediately.
package system

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/voicebox/tts"
)

// startTimeout bounds how long a play call waits for speech to begin before
// reporting a start timeout.
const startTimeout = 3 * time.Second

// voiceRetryDelay is how long LoadVoices waits before its single re-fetch
// when the first listing comes back empty. Some platforms populate the voice
// list asynchronously shortly after first use.
const voiceRetryDelay = 120 * time.Millisecond

// Session is the fallback engine session. It implements tts.FallbackSession.
type Session struct {
	backend backend
	hub     *tts.EventHub
	logger  *log.Logger

	startTimeout time.Duration

	mu           sync.Mutex
	voices       []tts.Voice
	voicesLoaded bool
	current      speaker
	paused       bool
}

// New detects the platform speech command and creates a session around it.
// It fails with tts.ErrEngineUnavailable when the host has none.
func New(logger *log.Logger) (*Session, error) {
	b, err := detectBackend()
	if err != nil {
		return nil, err
	}
	return newSession(b, logger), nil
}

func newSession(b backend, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.Default()
	}
	return &Session{
		backend:      b,
		hub:          tts.NewEventHub(),
		logger:       logger,
		startTimeout: startTimeout,
	}
}

// On registers an event listener. Registration is append-only for the
// session's lifetime.
func (s *Session) On(event string, fn tts.Listener) {
	s.hub.On(event, fn)
}

// LoadVoices returns the platform's voice list. The list is fetched once and
// memoized; force discards the memo. An empty first listing is retried once
// after a short delay before being accepted as the answer.
func (s *Session) LoadVoices(ctx context.Context, force bool) ([]tts.Voice, error) {
	s.mu.Lock()
	if s.voicesLoaded && !force {
		cached := append([]tts.Voice(nil), s.voices...)
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	voices, err := s.backend.voices(ctx)
	if err != nil {
		return nil, err
	}
	if len(voices) == 0 {
		select {
		case <-time.After(voiceRetryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		voices, err = s.backend.voices(ctx)
		if err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	s.voices = voices
	s.voicesLoaded = true
	s.mu.Unlock()
	return append([]tts.Voice(nil), voices...), nil
}

// Play cancels any current utterance and starts speaking text. It returns
// once speech has begun, with an EngineError carrying CodeStartTimeout if
// the platform never signals start in time. An empty voiceURI uses the
// platform default voice, as does an identifier matching no listed voice.
func (s *Session) Play(ctx context.Context, text, voiceURI string, rate float64) error {
	if strings.TrimSpace(text) == "" {
		return tts.ErrEmptyText
	}
	voiceURI = s.resolveVoice(ctx, voiceURI)
	// Cancel the previous utterance without events; its end belongs to the
	// new play, not to the listener.
	s.cancel(false)

	type started struct {
		sp  speaker
		err error
	}
	ch := make(chan started, 1)
	go func() {
		sp, err := s.backend.speak(text, voiceURI, rate)
		ch <- started{sp: sp, err: err}
	}()

	select {
	case st := <-ch:
		if st.err != nil {
			return fmt.Errorf("failed to start speech: %w", st.err)
		}
		s.adopt(st.sp)
		s.hub.Emit(tts.EventStart, nil)
		return nil
	case <-time.After(s.startTimeout):
		// Reap the late speaker if it ever materializes.
		go func() {
			if st := <-ch; st.sp != nil {
				st.sp.Stop()
			}
		}()
		return tts.NewEngineError(tts.CodeStartTimeout, "speech did not start in time", nil)
	case <-ctx.Done():
		go func() {
			if st := <-ch; st.sp != nil {
				st.sp.Stop()
			}
		}()
		return ctx.Err()
	}
}

// resolveVoice binds the requested identifier against the platform voice
// list. An identifier matching no voice's URI becomes "", the platform
// default; handing the platform command an unknown voice would fail the
// whole utterance instead.
func (s *Session) resolveVoice(ctx context.Context, voiceURI string) string {
	if voiceURI == "" {
		return ""
	}
	voices, err := s.LoadVoices(ctx, false)
	if err != nil {
		// Cannot validate; let the platform decide.
		s.logger.Debug("voice listing failed, passing identifier through", "voice", voiceURI, "err", err)
		return voiceURI
	}
	for _, v := range voices {
		if v.URI == voiceURI {
			return voiceURI
		}
	}
	s.logger.Debug("voice not listed, using platform default", "voice", voiceURI)
	return ""
}

// Pause suspends the current utterance if the backend supports it. Tracked
// on the session's own flag; best effort beyond that.
func (s *Session) Pause() {
	s.mu.Lock()
	if s.current == nil || s.paused || !s.backend.pausable() {
		s.mu.Unlock()
		return
	}
	if err := s.current.Suspend(); err != nil {
		s.logger.Debug("failed to pause speech", "err", err)
		s.mu.Unlock()
		return
	}
	s.paused = true
	s.mu.Unlock()
	s.hub.Emit(tts.EventPause, nil)
}

// Resume continues a paused utterance.
func (s *Session) Resume() {
	s.mu.Lock()
	if s.current == nil || !s.paused {
		s.mu.Unlock()
		return
	}
	if err := s.current.Resume(); err != nil {
		s.logger.Debug("failed to resume speech", "err", err)
		s.mu.Unlock()
		return
	}
	s.paused = false
	s.mu.Unlock()
	s.hub.Emit(tts.EventResume, nil)
}

// Stop cancels the current utterance. The cancelled utterance reports a
// single end event, matching the natural-completion path.
func (s *Session) Stop() {
	s.cancel(true)
}

func (s *Session) cancel(emit bool) {
	s.mu.Lock()
	sp := s.current
	s.current = nil
	s.paused = false
	s.mu.Unlock()
	if sp == nil {
		return
	}
	sp.Stop()
	if emit {
		s.hub.Emit(tts.EventEnd, nil)
	}
}

// adopt installs a started speaker as current and watches it to completion.
func (s *Session) adopt(sp speaker) {
	s.mu.Lock()
	s.current = sp
	s.paused = false
	s.mu.Unlock()

	go func() {
		err := sp.Wait()
		s.mu.Lock()
		if s.current != sp {
			// Cancelled; events already handled by the canceller.
			s.mu.Unlock()
			return
		}
		s.current = nil
		s.paused = false
		s.mu.Unlock()
		if err != nil {
			s.hub.Emit(tts.EventError, err)
			return
		}
		s.hub.Emit(tts.EventEnd, nil)
	}()
}
