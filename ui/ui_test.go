package ui

import (
	"context"
	"io"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/voicebox/tts"
)

func TestDeriveControls(t *testing.T) {
	tests := []struct {
		name    string
		buttons tts.ButtonState
		want    controls
	}{
		{
			"idle",
			tts.ButtonState{},
			controls{play: true, pause: false, resume: false, stop: false, mode: true},
		},
		{
			"busy",
			tts.ButtonState{Busy: true},
			controls{play: false, pause: false, resume: false, stop: true, mode: false},
		},
		{
			"playing",
			tts.ButtonState{Playing: true},
			controls{play: false, pause: true, resume: false, stop: true, mode: true},
		},
		{
			"paused",
			tts.ButtonState{Paused: true},
			controls{play: true, pause: false, resume: true, stop: true, mode: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := deriveControls(tt.buttons); got != tt.want {
				t.Errorf("deriveControls(%+v) = %+v, want %+v", tt.buttons, got, tt.want)
			}
		})
	}
}

func newTestModel(t *testing.T) Model {
	t.Helper()
	ctrl := tts.NewController(tts.DefaultConfig(), nopNeural{}, nopFallback{}, nil, log.New(io.Discard))
	m := NewModel(ctrl, "hello world", log.New(io.Discard))
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return updated.(Model)
}

func TestStatusMessageUpdatesModel(t *testing.T) {
	m := newTestModel(t)

	updated, _ := m.Update(StatusMsg{Text: "Downloading voice… 42%", ShowProgress: true, Progress: 42})
	m = updated.(Model)

	if m.status != "Downloading voice… 42%" {
		t.Errorf("status = %q", m.status)
	}
	if !m.showProgress || m.progressPct != 42 {
		t.Errorf("progress = %v/%d, want shown at 42", m.showProgress, m.progressPct)
	}
	if !strings.Contains(m.View(), "Downloading voice…") {
		t.Error("view does not render the status text")
	}
}

func TestModalShowAndDismiss(t *testing.T) {
	m := newTestModel(t)

	updated, _ := m.Update(ModalMsg{Message: "Audio is blocked."})
	m = updated.(Model)
	if !strings.Contains(m.View(), "Audio is blocked.") {
		t.Error("view does not render the modal")
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = updated.(Model)
	if strings.Contains(m.View(), "Audio is blocked.") {
		t.Error("esc did not dismiss the modal")
	}
}

func TestHideModalMessage(t *testing.T) {
	m := newTestModel(t)
	updated, _ := m.Update(ModalMsg{Message: "something failed"})
	m = updated.(Model)
	updated, _ = m.Update(HideModalMsg{})
	m = updated.(Model)
	if m.modal != "" {
		t.Errorf("modal = %q, want cleared", m.modal)
	}
}

func TestButtonsMessageDrivesControlsLine(t *testing.T) {
	m := newTestModel(t)

	updated, _ := m.Update(ButtonsMsg(tts.ButtonState{Playing: true}))
	m = updated.(Model)

	line := m.controlsLine()
	if !strings.Contains(line, "[pause]") || !strings.Contains(line, "[stop]") {
		t.Errorf("controls line = %q, missing transport labels", line)
	}
}

func TestVoicePackBadgeRendered(t *testing.T) {
	m := newTestModel(t)

	updated, _ := m.Update(VoicePackMsg(tts.VoicePackStatus{State: tts.PackCached, VoiceID: "en_US-amy-medium"}))
	m = updated.(Model)

	if !strings.Contains(m.View(), "Cached ✓ (en_US-amy-medium)") {
		t.Error("view does not render the voice-pack badge")
	}
}

func TestViewAttachDropsEarlyUpdates(t *testing.T) {
	v := NewView()
	// Must not panic before Attach.
	v.SetStatus("early", tts.StatusOpts{})
	v.SetButtons(tts.ButtonState{})
	v.SetVoicePack(tts.VoicePackStatus{})
	v.ShowModal("early")
	v.HideModal()
}

// Minimal engine stubs; the model tests never reach the engines.

type nopNeural struct{}

func (nopNeural) GetVoices(ctx context.Context) ([]string, error) { return nil, nil }
func (nopNeural) GetStoredVoices(ctx context.Context) (map[string]struct{}, error) {
	return nil, nil
}
func (nopNeural) Play(ctx context.Context, text string, req tts.PlayRequest) (tts.PlayResult, error) {
	return tts.PlayResult{Status: tts.StatusPlaying, VoiceUsed: req.VoiceID}, nil
}
func (nopNeural) Pause()                            {}
func (nopNeural) Resume(float64) error              { return nil }
func (nopNeural) Stop()                             {}
func (nopNeural) UnlockAudio(ctx context.Context)   {}
func (nopNeural) Flush(ctx context.Context) error   { return nil }
func (nopNeural) On(string, tts.Listener)           {}

type nopFallback struct{}

func (nopFallback) LoadVoices(ctx context.Context, force bool) ([]tts.Voice, error) {
	return nil, nil
}
func (nopFallback) Play(ctx context.Context, text, voiceURI string, rate float64) error {
	return nil
}
func (nopFallback) Pause()                  {}
func (nopFallback) Resume()                 {}
func (nopFallback) Stop()                   {}
func (nopFallback) On(string, tts.Listener) {}
