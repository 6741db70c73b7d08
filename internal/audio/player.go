// Package audio provides the playback sink for synthesized speech.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/dgnsrekt/voicebox/tts"
)

// PlayerState represents the current state of the sink.
type PlayerState int32

const (
	StateStopped PlayerState = iota
	StatePlaying
	StatePaused
	StateClosed
)

// source is the currently loaded audio with its data kept alive for the
// duration of playback.
type source struct {
	data     []byte // must stay referenced while the oto player reads it
	reader   *bytes.Reader
	duration time.Duration
}

// Config contains configuration for the sink.
type Config struct {
	SampleRate int // 22050 piper output is resampled upstream; 44100 or 48000 here
	Channels   int // 1 = mono, 2 = stereo
	BufferSize int
	// ReadyTimeout bounds how long Start waits for the audio device before
	// reporting a blocked start. Defaults to 2s.
	ReadyTimeout time.Duration
}

// DefaultConfig returns the default sink configuration.
func DefaultConfig() Config {
	return Config{
		SampleRate:   44100,
		Channels:     1,
		BufferSize:   4096,
		ReadyTimeout: 2 * time.Second,
	}
}

// Player implements tts.AudioSink on top of oto. It owns exactly one source
// handle at a time; the handle is revoked before reassignment and on every
// terminal transition.
type Player struct {
	context *oto.Context
	ready   <-chan struct{}

	mu      sync.Mutex
	player  *oto.Player
	current *source

	state    atomic.Int32
	unlocked atomic.Bool

	startTime  time.Time
	pausedAt   time.Duration
	totalPause time.Duration

	onEnded  func()
	endedMu  sync.Mutex
	watchGen uint64 // invalidates end watchers from prior sources

	sampleRate   int
	channels     int
	readyTimeout time.Duration
}

// NewPlayer creates a sink. The audio device may not be usable immediately;
// Start reports a blocked start until the device becomes ready or Unlock
// succeeds.
func NewPlayer(cfg Config) (*Player, error) {
	if cfg.SampleRate != 44100 && cfg.SampleRate != 48000 {
		return nil, fmt.Errorf("sample rate must be 44100 or 48000 Hz, got %d", cfg.SampleRate)
	}
	if cfg.Channels != 1 && cfg.Channels != 2 {
		return nil, fmt.Errorf("channels must be 1 or 2, got %d", cfg.Channels)
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 2 * time.Second
	}

	op := &oto.NewContextOptions{
		SampleRate:   cfg.SampleRate,
		ChannelCount: cfg.Channels,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio context: %w", err)
	}

	p := &Player{
		context:      ctx,
		ready:        ready,
		sampleRate:   cfg.SampleRate,
		channels:     cfg.Channels,
		readyTimeout: cfg.ReadyTimeout,
	}
	p.state.Store(int32(StateStopped))
	return p, nil
}

// Load assigns a new source, revoking any prior one.
func (p *Player) Load(audio []byte) error {
	if len(audio) == 0 {
		return errors.New("audio data is empty")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if PlayerState(p.state.Load()) == StateClosed {
		return errors.New("player is closed")
	}

	p.revokeLocked()

	// Copy so we own the data for the lifetime of playback.
	data := make([]byte, len(audio))
	copy(data, audio)
	samples := len(data) / (p.channels * 2)
	p.current = &source{
		data:     data,
		reader:   bytes.NewReader(data),
		duration: time.Duration(samples) * time.Second / time.Duration(p.sampleRate),
	}
	return nil
}

// Start begins playback of the loaded source. A device that has not become
// ready is reported as a blocked start with a stable code so the caller can
// prompt for a user action instead of treating it as a synthesis failure.
func (p *Player) Start() error {
	if !p.waitReady() {
		p.unlocked.Store(false)
		return tts.NewEngineError(tts.CodeAutoplayBlocked,
			"audio device not ready: user action required", nil)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return errors.New("no audio loaded")
	}

	if p.player != nil {
		p.player.Close() //nolint:errcheck
	}
	if _, err := p.current.reader.Seek(0, 0); err != nil {
		return fmt.Errorf("failed to rewind source: %w", err)
	}
	p.player = p.context.NewPlayer(p.current.reader)
	p.startTime = time.Now()
	p.pausedAt = 0
	p.totalPause = 0
	p.player.Play()
	p.state.Store(int32(StatePlaying))
	p.watchGen++
	go p.watchEnd(p.watchGen, p.current.duration)
	return nil
}

// Pause pauses playback.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if PlayerState(p.state.Load()) != StatePlaying {
		return nil
	}
	if p.player != nil {
		p.player.Pause()
	}
	p.pausedAt = p.positionLocked()
	p.state.Store(int32(StatePaused))
	return nil
}

// Resume continues playback from the paused position on the same source. A
// source that is loaded but never started (a blocked Start leaves exactly
// that) is started instead, so the resume gesture recovers from an autoplay
// block.
func (p *Player) Resume() error {
	if !p.waitReady() {
		p.unlocked.Store(false)
		return tts.NewEngineError(tts.CodeAutoplayBlocked,
			"audio device not ready: user action required", nil)
	}
	p.mu.Lock()
	if PlayerState(p.state.Load()) == StateStopped && p.current != nil {
		p.mu.Unlock()
		return p.Start()
	}
	defer p.mu.Unlock()
	if PlayerState(p.state.Load()) != StatePaused {
		return nil
	}
	if p.player != nil {
		p.player.Play()
	}
	p.totalPause = time.Since(p.startTime) - p.pausedAt
	p.state.Store(int32(StatePlaying))
	return nil
}

// Stop halts playback, resets the position and revokes the source.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revokeLocked()
	if PlayerState(p.state.Load()) != StateClosed {
		p.state.Store(int32(StateStopped))
	}
	return nil
}

// Revoke releases the current source handle without a state transition.
func (p *Player) Revoke() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revokeLocked()
}

func (p *Player) revokeLocked() {
	p.watchGen++ // cancel any end watcher for the old source
	if p.player != nil {
		p.player.Pause()
		p.player.Close() //nolint:errcheck
		p.player = nil
	}
	p.current = nil
	p.pausedAt = 0
	p.totalPause = 0
}

// Playing reports whether audio is actively playing.
func (p *Player) Playing() bool {
	return PlayerState(p.state.Load()) == StatePlaying
}

// Paused reports whether playback is paused.
func (p *Player) Paused() bool {
	return PlayerState(p.state.Load()) == StatePaused
}

// Position returns the playback position within the current source.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *Player) positionLocked() time.Duration {
	switch PlayerState(p.state.Load()) {
	case StatePlaying:
		pos := time.Since(p.startTime) - p.totalPause
		if p.current != nil && pos > p.current.duration {
			pos = p.current.duration
		}
		return pos
	case StatePaused:
		return p.pausedAt
	default:
		return 0
	}
}

// Unlock plays and immediately stops a near-zero-duration silent clip to
// force device initialization ahead of background work. Failure is reported
// but leaves the sink usable; a later Start retries the natural path.
func (p *Player) Unlock() error {
	if p.unlocked.Load() {
		return nil
	}
	if !p.waitReady() {
		return errors.New("audio device not ready")
	}

	// One sample of silence, mirroring the smallest valid clip the platform
	// will accept.
	silence := make([]byte, p.channels*2)
	p.mu.Lock()
	player := p.context.NewPlayer(bytes.NewReader(silence))
	player.Play()
	player.Pause()
	player.Close() //nolint:errcheck
	p.mu.Unlock()

	p.unlocked.Store(true)
	return nil
}

// OnEnded registers the natural end-of-source callback. It fires exactly
// once per source, and never for sources cut short by Stop or Revoke.
func (p *Player) OnEnded(fn func()) {
	p.endedMu.Lock()
	p.onEnded = fn
	p.endedMu.Unlock()
}

// Close releases the audio device.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revokeLocked()
	p.state.Store(int32(StateClosed))
	return nil
}

func (p *Player) waitReady() bool {
	select {
	case <-p.ready:
		return true
	case <-time.After(p.readyTimeout):
		return false
	}
}

// watchEnd polls for the natural end of the given source generation. Pause
// stretches the deadline; Stop/Revoke/Start bump the generation and the
// watcher exits silently, which is what suppresses the spurious "paused"
// signal platforms issue when a source finishes on its own.
func (p *Player) watchEnd(gen uint64, duration time.Duration) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		p.mu.Lock()
		if p.watchGen != gen {
			p.mu.Unlock()
			return
		}
		state := PlayerState(p.state.Load())
		if state == StatePaused {
			p.mu.Unlock()
			continue
		}
		if state != StatePlaying {
			p.mu.Unlock()
			return
		}
		finished := p.player != nil && !p.player.IsPlaying()
		if !finished && p.positionLocked() < duration {
			p.mu.Unlock()
			continue
		}
		p.revokeLocked()
		p.state.Store(int32(StateStopped))
		p.mu.Unlock()

		p.endedMu.Lock()
		fn := p.onEnded
		p.endedMu.Unlock()
		if fn != nil {
			fn()
		}
		return
	}
}
