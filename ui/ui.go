// Package ui is the terminal front end: a text box, transport controls and
// the derived status displays, driven entirely by controller events.
package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/muesli/reflow/truncate"

	"github.com/dgnsrekt/voicebox/tts"
)

const minWidth = 24

type keyMap struct {
	Play        key.Binding
	PauseResume key.Binding
	Stop        key.Binding
	Mode        key.Binding
	RateUp      key.Binding
	RateDown    key.Binding
	Dismiss     key.Binding
	Quit        key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Play: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("ctrl+r", "play"),
		),
		PauseResume: key.NewBinding(
			key.WithKeys("ctrl+p"),
			key.WithHelp("ctrl+p", "pause/resume"),
		),
		Stop: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("ctrl+s", "stop"),
		),
		Mode: key.NewBinding(
			key.WithKeys("ctrl+t"),
			key.WithHelp("ctrl+t", "mode"),
		),
		RateUp: key.NewBinding(
			key.WithKeys("ctrl+up"),
			key.WithHelp("ctrl+↑", "faster"),
		),
		RateDown: key.NewBinding(
			key.WithKeys("ctrl+down"),
			key.WithHelp("ctrl+↓", "slower"),
		),
		Dismiss: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "dismiss"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "quit"),
		),
	}
}

// controls is the derived enablement of the four transport actions plus the
// mode-switch lock.
type controls struct {
	play   bool
	pause  bool
	resume bool
	stop   bool
	mode   bool
}

// deriveControls computes enablement from the controller's button state:
// play while nothing is underway, pause while playing, resume while paused,
// stop whenever anything is active, and mode switching locked while busy.
func deriveControls(b tts.ButtonState) controls {
	return controls{
		play:   !b.Playing && !b.Busy,
		pause:  b.Playing,
		resume: b.Paused,
		stop:   b.Playing || b.Paused || b.Busy,
		mode:   !b.Busy,
	}
}

// Model is the application's Bubble Tea model.
type Model struct {
	ctrl   *tts.Controller
	logger *log.Logger

	input       textarea.Model
	progressBar progress.Model
	keys        keyMap

	width  int
	height int

	status       string
	showProgress bool
	progressPct  int
	buttons      tts.ButtonState
	pack         tts.VoicePackStatus
	modal        string
}

// NewModel builds the model around a playback controller. Initial text is
// placed in the text box ready to speak.
func NewModel(ctrl *tts.Controller, initialText string, logger *log.Logger) Model {
	if logger == nil {
		logger = log.Default()
	}
	ta := textarea.New()
	ta.Placeholder = "Type something to speak…"
	ta.SetValue(initialText)
	ta.Focus()

	return Model{
		ctrl:        ctrl,
		logger:      logger,
		input:       ta,
		progressBar: progress.New(progress.WithDefaultGradient()),
		keys:        defaultKeyMap(),
		status:      "Ready",
	}
}

// NewProgram wraps the model in a program. Attach the controller's View
// adapter to the returned program before calling Run.
func NewProgram(m Model) *tea.Program {
	return tea.NewProgram(m, tea.WithAltScreen())
}

func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.SetWidth(max(msg.Width-4, minWidth))
		m.progressBar.Width = max(msg.Width-8, minWidth)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StatusMsg:
		m.status = msg.Text
		m.showProgress = msg.ShowProgress
		m.progressPct = msg.Progress
		return m, nil

	case ButtonsMsg:
		m.buttons = tts.ButtonState(msg)
		return m, nil

	case VoicePackMsg:
		m.pack = tts.VoicePackStatus(msg)
		return m, nil

	case ModalMsg:
		m.modal = msg.Message
		return m, nil

	case HideModalMsg:
		m.modal = ""
		return m, nil

	case PlayDoneMsg:
		if msg.Err != nil {
			m.logger.Debug("play finished with error", "err", msg.Err)
		}
		return m, nil

	case ResumeDoneMsg:
		if msg.Err != nil {
			m.logger.Debug("resume finished with error", "err", msg.Err)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ctl := deriveControls(m.buttons)

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.ctrl.Stop()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Dismiss):
		if m.modal != "" {
			m.modal = ""
			return m, nil
		}

	case key.Matches(msg, m.keys.Play):
		if ctl.play {
			return m, playCmd(m.ctrl, m.input.Value())
		}
		return m, nil

	case key.Matches(msg, m.keys.PauseResume):
		if ctl.pause {
			m.ctrl.Pause()
		} else if ctl.resume {
			m.modal = ""
			return m, resumeCmd(m.ctrl)
		}
		return m, nil

	case key.Matches(msg, m.keys.Stop):
		if ctl.stop {
			m.ctrl.Stop()
		}
		return m, nil

	case key.Matches(msg, m.keys.Mode):
		if ctl.mode {
			m.cycleMode()
		}
		return m, nil

	case key.Matches(msg, m.keys.RateUp):
		m.ctrl.SetRate(m.ctrl.Rate() + 0.1)
		return m, nil

	case key.Matches(msg, m.keys.RateDown):
		m.ctrl.SetRate(m.ctrl.Rate() - 0.1)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) cycleMode() {
	next := tts.ModeFastest
	switch m.ctrl.Mode() {
	case tts.ModeFastest:
		next = tts.ModeBalanced
	case tts.ModeBalanced:
		next = tts.ModeBest
	case tts.ModeBest:
		next = tts.ModeFastest
	}
	m.ctrl.SetMode(context.Background(), next)
}

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing…"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("voicebox"))
	b.WriteString("\n\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	if m.showProgress {
		b.WriteString(m.progressBar.ViewAs(float64(m.progressPct) / 100))
		b.WriteString("\n")
	}
	b.WriteString(m.modeLine())
	b.WriteString("\n")
	b.WriteString(m.controlsLine())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("ctrl+r play · ctrl+p pause/resume · ctrl+s stop · ctrl+t mode · ctrl+↑/↓ rate · ctrl+c quit"))

	if m.modal != "" {
		b.WriteString("\n\n")
		b.WriteString(modalStyle.Render(
			errorStyle.Render(truncate.StringWithTail(m.modal, uint(max(m.width-8, minWidth)), "…")) +
				"\n\n" + helpStyle.Render("esc to dismiss")))
	}
	return b.String()
}

func (m Model) statusLine() string {
	text := truncate.StringWithTail(m.status, uint(max(m.width-4, minWidth)), "…")
	return statusStyle.Render(text)
}

func (m Model) modeLine() string {
	line := modeStyle.Render(fmt.Sprintf("mode: %s", m.ctrl.Mode())) +
		badgeStyle.Render(fmt.Sprintf("  rate: %.1fx", m.ctrl.Rate()))
	if badge := m.pack.String(); badge != "" {
		line += badgeStyle.Render("  voice pack: " + badge)
	}
	return line
}

func (m Model) controlsLine() string {
	ctl := deriveControls(m.buttons)
	render := func(label string, enabled bool) string {
		if enabled {
			return statusStyle.Render(label)
		}
		return disabledStyle.Render(label)
	}
	return strings.Join([]string{
		render("[play]", ctl.play),
		render("[pause]", ctl.pause),
		render("[resume]", ctl.resume),
		render("[stop]", ctl.stop),
		render("[mode]", ctl.mode),
	}, " ")
}
