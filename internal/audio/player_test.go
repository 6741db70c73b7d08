package audio

import (
	"sync"
	"testing"
	"time"
)

// Only invalid configurations are table-tested here: they fail validation
// before the audio context exists, and the platform allows one context per
// process. Valid creation goes through getTestPlayer.
func TestPlayerConfigRejected(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{
			name: "invalid sample rate",
			config: Config{
				SampleRate: 22050,
				Channels:   1,
				BufferSize: 4096,
			},
		},
		{
			name: "invalid channels",
			config: Config{
				SampleRate: 44100,
				Channels:   3,
				BufferSize: 4096,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewPlayer(tt.config); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.SampleRate != 44100 {
		t.Errorf("expected sample rate 44100, got %d", config.SampleRate)
	}
	if config.Channels != 1 {
		t.Errorf("expected 1 channel, got %d", config.Channels)
	}
	if config.ReadyTimeout <= 0 {
		t.Errorf("expected a positive ready timeout, got %v", config.ReadyTimeout)
	}
}

// Shared test player: the platform audio context can only be created once
// per process.
var (
	testPlayer     *Player
	testPlayerOnce sync.Once
	testPlayerErr  error
)

func getTestPlayer(t *testing.T) *Player {
	testPlayerOnce.Do(func() {
		testPlayer, testPlayerErr = NewPlayer(DefaultConfig())
	})

	if testPlayerErr != nil {
		t.Skipf("cannot create audio player (no audio device?): %v", testPlayerErr)
	}

	_ = testPlayer.Stop()
	return testPlayer
}

// generateTestAudio produces 16-bit PCM test data of the given duration.
func generateTestAudio(sampleRate, channels int, duration time.Duration) []byte {
	samples := int(duration.Seconds() * float64(sampleRate))
	data := make([]byte, samples*channels*2)
	for i := 0; i < len(data); i += 2 {
		sample := int16((i / 2) % 1000)
		data[i] = byte(sample)
		data[i+1] = byte(sample >> 8)
	}
	return data
}

func TestPlayerInitialState(t *testing.T) {
	player := getTestPlayer(t)

	if player.Playing() {
		t.Error("expected Playing() false initially")
	}
	if player.Paused() {
		t.Error("expected Paused() false initially")
	}
	if player.Position() != 0 {
		t.Errorf("expected initial position 0, got %v", player.Position())
	}
}

func TestPlayerLoadEmpty(t *testing.T) {
	player := getTestPlayer(t)

	if err := player.Load(nil); err == nil {
		t.Error("expected error loading empty audio")
	}
}

func TestPlayerStartWithoutLoad(t *testing.T) {
	player := getTestPlayer(t)

	err := player.Start()
	if err == nil {
		t.Error("expected error starting with no source loaded")
		_ = player.Stop()
	}
}

func TestPlayerLifecycle(t *testing.T) {
	player := getTestPlayer(t)
	audio := generateTestAudio(44100, 1, 500*time.Millisecond)

	if err := player.Load(audio); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := player.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !player.Playing() {
		t.Error("expected Playing() true after Start")
	}

	if err := player.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if !player.Paused() {
		t.Error("expected Paused() true after Pause")
	}
	pos := player.Position()

	if err := player.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !player.Playing() {
		t.Error("expected Playing() true after Resume")
	}
	if player.Position() < pos {
		t.Errorf("position went backwards across resume: %v -> %v", pos, player.Position())
	}

	if err := player.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if player.Playing() || player.Paused() {
		t.Error("expected stopped state after Stop")
	}
	if player.Position() != 0 {
		t.Errorf("expected position reset after Stop, got %v", player.Position())
	}
}

func TestPlayerResumeStartsLoadedSource(t *testing.T) {
	player := getTestPlayer(t)
	audio := generateTestAudio(44100, 1, 300*time.Millisecond)

	// A blocked Start leaves a loaded source in the stopped state; Resume is
	// the gesture that recovers it.
	if err := player.Load(audio); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := player.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !player.Playing() {
		t.Error("expected Playing() after resuming a loaded, never-started source")
	}
	_ = player.Stop()
}

func TestPlayerResumeWithoutSourceIsNoop(t *testing.T) {
	player := getTestPlayer(t)

	if err := player.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if player.Playing() || player.Paused() {
		t.Error("expected Resume with no source to change nothing")
	}
}

func TestPlayerLoadRevokesPrior(t *testing.T) {
	player := getTestPlayer(t)
	audio := generateTestAudio(44100, 1, 200*time.Millisecond)

	if err := player.Load(audio); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := player.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Reassigning the source must halt the running one.
	if err := player.Load(audio); err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if player.Playing() {
		_ = player.Stop()
	}
	_ = player.Stop()
}

func TestPlayerNaturalEndFiresOnce(t *testing.T) {
	player := getTestPlayer(t)

	ended := make(chan struct{}, 4)
	player.OnEnded(func() { ended <- struct{}{} })
	defer player.OnEnded(nil)

	audio := generateTestAudio(44100, 1, 100*time.Millisecond)
	if err := player.Load(audio); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := player.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-ended:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for natural end")
	}
	select {
	case <-ended:
		t.Error("end callback fired more than once")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestPlayerStopSuppressesEndCallback(t *testing.T) {
	player := getTestPlayer(t)

	ended := make(chan struct{}, 1)
	player.OnEnded(func() { ended <- struct{}{} })
	defer player.OnEnded(nil)

	audio := generateTestAudio(44100, 1, 500*time.Millisecond)
	if err := player.Load(audio); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := player.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := player.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	select {
	case <-ended:
		t.Error("end callback fired for a source cut short by Stop")
	case <-time.After(800 * time.Millisecond):
	}
}
