package audio

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgnsrekt/voicebox/tts"
)

// MockPlayer implements tts.AudioSink without producing sound. It tracks the
// calls made against it and can simulate a blocked device, which is how
// tests exercise the autoplay-block path.
type MockPlayer struct {
	mu      sync.Mutex
	state   PlayerState
	loaded  []byte
	onEnded func()

	// BlockStarts makes Start and Resume fail with an autoplay-block code
	// until Unlock is called.
	BlockStarts bool
	// FailUnlock makes Unlock fail, leaving the sink blocked.
	FailUnlock bool

	unlocked bool

	LoadCount   atomic.Int64
	StartCount  atomic.Int64
	PauseCount  atomic.Int64
	ResumeCount atomic.Int64
	StopCount   atomic.Int64
	RevokeCount atomic.Int64
	UnlockCount atomic.Int64
}

// NewMockPlayer creates a mock sink in the stopped state.
func NewMockPlayer() *MockPlayer {
	return &MockPlayer{state: StateStopped}
}

func (m *MockPlayer) Load(audio []byte) error {
	m.LoadCount.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateClosed {
		return errors.New("player is closed")
	}
	m.loaded = audio
	return nil
}

func (m *MockPlayer) Start() error {
	m.StartCount.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BlockStarts && !m.unlocked {
		return tts.NewEngineError(tts.CodeAutoplayBlocked, "audio device not ready: user action required", nil)
	}
	if m.loaded == nil {
		return errors.New("no audio loaded")
	}
	m.state = StatePlaying
	return nil
}

func (m *MockPlayer) Pause() error {
	m.PauseCount.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StatePlaying {
		m.state = StatePaused
	}
	return nil
}

func (m *MockPlayer) Resume() error {
	m.ResumeCount.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BlockStarts && !m.unlocked {
		return tts.NewEngineError(tts.CodeAutoplayBlocked, "audio device not ready: user action required", nil)
	}
	// A loaded source a blocked Start left behind is started by the resume.
	if m.state == StateStopped && m.loaded != nil {
		m.state = StatePlaying
		return nil
	}
	if m.state == StatePaused {
		m.state = StatePlaying
	}
	return nil
}

func (m *MockPlayer) Stop() error {
	m.StopCount.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = nil
	if m.state != StateClosed {
		m.state = StateStopped
	}
	return nil
}

func (m *MockPlayer) Revoke() {
	m.RevokeCount.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = nil
}

func (m *MockPlayer) Playing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StatePlaying
}

func (m *MockPlayer) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StatePaused
}

func (m *MockPlayer) Position() time.Duration { return 0 }

func (m *MockPlayer) Unlock() error {
	m.UnlockCount.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailUnlock {
		return errors.New("unlock failed")
	}
	m.unlocked = true
	return nil
}

func (m *MockPlayer) OnEnded(fn func()) {
	m.mu.Lock()
	m.onEnded = fn
	m.mu.Unlock()
}

// FinishPlayback simulates the natural end of the loaded source.
func (m *MockPlayer) FinishPlayback() {
	m.mu.Lock()
	m.loaded = nil
	m.state = StateStopped
	fn := m.onEnded
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Loaded returns the currently loaded audio, nil after stop or revoke.
func (m *MockPlayer) Loaded() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

func (m *MockPlayer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateClosed
	return nil
}
