package tts

import "fmt"

// PackState is the derived readiness of the active mode's voice pack.
type PackState int

const (
	// PackNone: the active mode does not use voice packs.
	PackNone PackState = iota
	// PackChecking: cache state is being queried.
	PackChecking
	// PackCached: the effective voice is stored locally.
	PackCached
	// PackNotCached: the effective voice will be downloaded on next play.
	PackNotCached
	// PackDownloading: a download is in flight.
	PackDownloading
	// PackSynthesizing: synthesis is in flight.
	PackSynthesizing
	// PackError: the cache state could not be determined.
	PackError
)

// VoicePackStatus is derived, never stored authoritatively. It is recomputed
// whenever the mode, the chosen voice or the pipeline stage changes.
type VoicePackStatus struct {
	State         PackState
	VoiceID       string // the effective voice the status refers to
	Percent       int    // download progress, meaningful for PackDownloading
	UsingFallback bool   // the desired voice was substituted
}

// String renders the status the way the status badge shows it.
func (s VoicePackStatus) String() string {
	switch s.State {
	case PackChecking:
		return "Checking…"
	case PackCached:
		if s.UsingFallback {
			return fmt.Sprintf("Cached ✓ (using fallback: %s)", s.VoiceID)
		}
		return fmt.Sprintf("Cached ✓ (%s)", s.VoiceID)
	case PackNotCached:
		if s.UsingFallback {
			return fmt.Sprintf("Fallback not cached (will download: %s)", s.VoiceID)
		}
		return fmt.Sprintf("Not cached (will download: %s)", s.VoiceID)
	case PackDownloading:
		if s.UsingFallback {
			return fmt.Sprintf("Downloading (fallback)… %d%%", s.Percent)
		}
		return fmt.Sprintf("Downloading… %d%%", s.Percent)
	case PackSynthesizing:
		return "Synthesizing…"
	case PackError:
		return "Status unknown (cache check failed)"
	default:
		return ""
	}
}
