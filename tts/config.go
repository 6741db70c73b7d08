package tts

// Config carries the playback core's settings. The command layer fills it
// from flags, the config file and VOICEBOX_* environment variables.
type Config struct {
	// Mode is the engine mode active at startup.
	Mode EngineMode
	// Rate is the speaking rate multiplier, 0.5–2.0.
	Rate float64

	// BalancedVoiceID and BestVoiceID are the neural voices the two neural
	// modes target. FallbackVoiceID substitutes silently when the target is
	// absent from the engine's voice list.
	BalancedVoiceID string
	BestVoiceID     string
	FallbackVoiceID string

	// SystemVoiceURI binds the fastest mode to a platform voice; empty uses
	// the platform default.
	SystemVoiceURI string

	// AutoStartFallback restarts playback on the fastest engine immediately
	// after a neural failure instead of waiting for a fresh play action.
	// Off by default: gesture-constrained platforms reject the auto-start.
	AutoStartFallback bool
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Mode:            ModeFastest,
		Rate:            1.0,
		BalancedVoiceID: "en_US-amy-medium",
		BestVoiceID:     "en_US-lessac-high",
		FallbackVoiceID: "en_US-amy-low",
	}
}

// VoiceFor returns the neural voice identifier the mode targets, or "" for
// modes the neural engine does not serve.
func (c Config) VoiceFor(mode EngineMode) string {
	switch mode {
	case ModeBalanced:
		return c.BalancedVoiceID
	case ModeBest:
		return c.BestVoiceID
	}
	return ""
}
