// Package bridge multiplexes typed requests to an isolated synthesis worker
// and correlates replies, including intermediate progress, back to callers.
package bridge

import "context"

// Action names the operations the worker supports.
type Action string

const (
	// ActionVoices lists the identifiers the synthesis library offers.
	ActionVoices Action = "voices"
	// ActionStored lists the identifiers cached locally.
	ActionStored Action = "stored"
	// ActionDownload fetches and caches one voice's assets.
	ActionDownload Action = "download"
	// ActionPredict synthesizes one utterance into encoded audio.
	ActionPredict Action = "predict"
	// ActionFlush clears all cached voice assets.
	ActionFlush Action = "flush"
)

// Payload carries the request parameters. Fields not relevant to an action
// are left zero.
type Payload struct {
	Text    string
	VoiceID string
	Rate    float64
}

// ProgressFunc receives 0-100 progress percentages from long-running client
// operations.
type ProgressFunc func(percent int)

// Client is the canonical capability surface of the remote synthesis
// library, decided once at construction rather than probed per call. Voices
// and Stored return the library's raw wire shape; normalization happens at
// the layers that consume them.
type Client interface {
	// Voices lists available voice references in wire shape.
	Voices(ctx context.Context) (any, error)
	// Stored lists locally cached voice references in wire shape.
	Stored(ctx context.Context) (any, error)
	// Download fetches and caches one voice's assets.
	Download(ctx context.Context, voiceID string, progress ProgressFunc) error
	// Synthesize converts text to encoded audio with the given voice.
	Synthesize(ctx context.Context, text, voiceID string, rate float64, progress ProgressFunc) ([]byte, error)
	// Flush clears every cached voice asset.
	Flush(ctx context.Context) error
}

// ClientFactory establishes a handle to the synthesis library. The worker
// calls it lazily on the first action and caches the result; a failed
// establishment is surfaced to that caller and forgotten so the next request
// can retry.
type ClientFactory func(ctx context.Context) (Client, error)
