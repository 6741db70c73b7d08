package audio

import (
	"testing"

	"github.com/dgnsrekt/voicebox/tts"
)

func TestMockPlayerLifecycle(t *testing.T) {
	m := NewMockPlayer()

	if err := m.Load([]byte{1, 2, 3}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !m.Playing() {
		t.Error("expected Playing() after Start")
	}

	if err := m.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if !m.Paused() {
		t.Error("expected Paused() after Pause")
	}

	if err := m.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !m.Playing() {
		t.Error("expected Playing() after Resume")
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if m.Playing() || m.Paused() {
		t.Error("expected stopped state after Stop")
	}
	if m.Loaded() != nil {
		t.Error("expected Stop to revoke the source")
	}
}

func TestMockPlayerStartWithoutLoad(t *testing.T) {
	m := NewMockPlayer()
	if err := m.Start(); err == nil {
		t.Error("expected error starting with no source loaded")
	}
}

func TestMockPlayerBlockedUntilUnlock(t *testing.T) {
	m := NewMockPlayer()
	m.BlockStarts = true

	if err := m.Load([]byte{1}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	err := m.Start()
	if !tts.IsAutoplayBlocked(err) {
		t.Fatalf("expected autoplay-block error, got %v", err)
	}

	if err := m.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if err := m.Start(); err != nil {
		t.Errorf("Start after Unlock: %v", err)
	}
}

func TestMockPlayerResumeBlocked(t *testing.T) {
	m := NewMockPlayer()

	if err := m.Load([]byte{1}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	m.BlockStarts = true
	if err := m.Resume(); !tts.IsAutoplayBlocked(err) {
		t.Fatalf("expected autoplay-block error, got %v", err)
	}
	if !m.Paused() {
		t.Error("expected the sink to stay paused after a blocked resume")
	}
}

func TestMockPlayerResumeStartsBlockedSource(t *testing.T) {
	m := NewMockPlayer()
	m.BlockStarts = true

	if err := m.Load([]byte{1}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := m.Start(); !tts.IsAutoplayBlocked(err) {
		t.Fatalf("expected autoplay-block error, got %v", err)
	}

	m.BlockStarts = false
	if err := m.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !m.Playing() {
		t.Error("expected Resume to start the source a blocked Start left loaded")
	}
}

func TestMockPlayerFailUnlock(t *testing.T) {
	m := NewMockPlayer()
	m.BlockStarts = true
	m.FailUnlock = true

	if err := m.Unlock(); err == nil {
		t.Fatal("expected Unlock to fail")
	}
	if err := m.Load([]byte{1}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := m.Start(); !tts.IsAutoplayBlocked(err) {
		t.Errorf("expected the sink to remain blocked, got %v", err)
	}
}

func TestMockPlayerFinishPlayback(t *testing.T) {
	m := NewMockPlayer()

	var ended int
	m.OnEnded(func() { ended++ })

	if err := m.Load([]byte{1}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	m.FinishPlayback()

	if ended != 1 {
		t.Errorf("expected 1 end callback, got %d", ended)
	}
	if m.Playing() {
		t.Error("expected stopped state after natural end")
	}
	if m.Loaded() != nil {
		t.Error("expected the source to be cleared after natural end")
	}
}

func TestMockPlayerCounts(t *testing.T) {
	m := NewMockPlayer()

	_ = m.Load([]byte{1})
	_ = m.Start()
	_ = m.Pause()
	_ = m.Resume()
	_ = m.Stop()
	m.Revoke()
	_ = m.Unlock()

	if got := m.LoadCount.Load(); got != 1 {
		t.Errorf("LoadCount = %d", got)
	}
	if got := m.StartCount.Load(); got != 1 {
		t.Errorf("StartCount = %d", got)
	}
	if got := m.PauseCount.Load(); got != 1 {
		t.Errorf("PauseCount = %d", got)
	}
	if got := m.ResumeCount.Load(); got != 1 {
		t.Errorf("ResumeCount = %d", got)
	}
	if got := m.StopCount.Load(); got != 1 {
		t.Errorf("StopCount = %d", got)
	}
	if got := m.RevokeCount.Load(); got != 1 {
		t.Errorf("RevokeCount = %d", got)
	}
	if got := m.UnlockCount.Load(); got != 1 {
		t.Errorf("UnlockCount = %d", got)
	}
}

func TestMockPlayerClosed(t *testing.T) {
	m := NewMockPlayer()
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := m.Load([]byte{1}); err == nil {
		t.Error("expected Load to fail on a closed sink")
	}
}
