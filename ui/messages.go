package ui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dgnsrekt/voicebox/tts"
)

// Message types for the Bubble Tea command pattern. The playback controller
// pushes display updates through the View adapter; key handling issues
// commands that call back into the controller.

// StatusMsg updates the status line.
type StatusMsg struct {
	Text         string
	ShowProgress bool
	Progress     int
}

// ButtonsMsg updates transport control enablement.
type ButtonsMsg tts.ButtonState

// VoicePackMsg updates the voice-pack badge.
type VoicePackMsg tts.VoicePackStatus

// ModalMsg shows a dismissible message over the main view.
type ModalMsg struct {
	Message string
}

// HideModalMsg dismisses the modal.
type HideModalMsg struct{}

// PlayDoneMsg is sent when a play command completes.
type PlayDoneMsg struct {
	Err error
}

// ResumeDoneMsg is sent when a resume command completes.
type ResumeDoneMsg struct {
	Err error
}

// View forwards controller display updates into a running Bubble Tea
// program. It implements tts.View and is safe to call from any goroutine;
// updates arriving before Attach are dropped, matching a display that has
// not been composed yet.
type View struct {
	mu sync.RWMutex
	p  *tea.Program
}

// NewView creates an unattached view adapter.
func NewView() *View {
	return &View{}
}

// Attach binds the adapter to the running program.
func (v *View) Attach(p *tea.Program) {
	v.mu.Lock()
	v.p = p
	v.mu.Unlock()
}

func (v *View) send(msg tea.Msg) {
	v.mu.RLock()
	p := v.p
	v.mu.RUnlock()
	if p != nil {
		p.Send(msg)
	}
}

func (v *View) SetStatus(text string, opts tts.StatusOpts) {
	v.send(StatusMsg{Text: text, ShowProgress: opts.ShowProgress, Progress: opts.Progress})
}

func (v *View) SetButtons(state tts.ButtonState) {
	v.send(ButtonsMsg(state))
}

func (v *View) SetVoicePack(status tts.VoicePackStatus) {
	v.send(VoicePackMsg(status))
}

func (v *View) ShowModal(message string) {
	v.send(ModalMsg{Message: message})
}

func (v *View) HideModal() {
	v.send(HideModalMsg{})
}

// playCmd runs a play call off the update loop; neural playback can spend
// seconds downloading and synthesizing.
func playCmd(ctrl *tts.Controller, text string) tea.Cmd {
	return func() tea.Msg {
		err := ctrl.Play(context.Background(), text)
		return PlayDoneMsg{Err: err}
	}
}

// resumeCmd runs a resume call off the update loop.
func resumeCmd(ctrl *tts.Controller) tea.Cmd {
	return func() tea.Msg {
		err := ctrl.Resume(context.Background())
		return ResumeDoneMsg{Err: err}
	}
}
