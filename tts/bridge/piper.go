package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/voicebox/internal/voicepack"
)

// DefaultVoiceBaseURL is where voice indexes and model assets are fetched
// from by default (piper's published voice repository layout).
const DefaultVoiceBaseURL = "https://huggingface.co/rhasspy/piper-voices/resolve/main"

// PiperConfig configures the production synthesis client.
type PiperConfig struct {
	// Binary is the piper executable. Defaults to "piper" on PATH.
	Binary string
	// BaseURL overrides the voice asset repository.
	BaseURL string
	// SynthTimeout bounds one synthesis run. Defaults to 30s.
	SynthTimeout time.Duration
	// DownloadsPerMinute rate-limits asset fetches. Defaults to 10.
	DownloadsPerMinute int
}

// PiperClient implements Client against a local piper binary, fetching voice
// packs over HTTP on demand and caching them in a voicepack.Store.
type PiperClient struct {
	cfg     PiperConfig
	store   *voicepack.Store
	http    *http.Client
	limiter *rate.Limiter
	logger  *log.Logger

	mu     sync.Mutex
	voices map[string]any // remote voice index, fetched once
}

// NewPiperClient creates a synthesis client backed by store. It validates
// that the piper binary exists so a missing installation surfaces on the
// first worker action rather than mid-play.
func NewPiperClient(cfg PiperConfig, store *voicepack.Store, logger *log.Logger) (*PiperClient, error) {
	if cfg.Binary == "" {
		cfg.Binary = "piper"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultVoiceBaseURL
	}
	if cfg.SynthTimeout <= 0 {
		cfg.SynthTimeout = 30 * time.Second
	}
	if cfg.DownloadsPerMinute <= 0 {
		cfg.DownloadsPerMinute = 10
	}
	if logger == nil {
		logger = log.Default()
	}

	if _, err := exec.LookPath(cfg.Binary); err != nil {
		return nil, fmt.Errorf("piper binary not found: %w", err)
	}

	return &PiperClient{
		cfg:     cfg,
		store:   store,
		http:    &http.Client{Timeout: 5 * time.Minute},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.DownloadsPerMinute)), 2),
		logger:  logger,
	}, nil
}

// Voices returns the remote voice index in its wire shape: a mapping keyed
// by voice identifier. The index is fetched once and reused.
func (c *PiperClient) Voices(ctx context.Context) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.voices != nil {
		return c.voices, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/voices.json", nil)
	if err != nil {
		return nil, fmt.Errorf("unable to build voice index request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch voice index: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("voice index request failed: HTTP %d", resp.StatusCode)
	}

	var index map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&index); err != nil {
		return nil, fmt.Errorf("unable to decode voice index: %w", err)
	}
	c.voices = index
	c.logger.Debug("fetched voice index", "count", len(index))
	return index, nil
}

// Stored lists cached voice identifiers.
func (c *PiperClient) Stored(context.Context) (any, error) {
	return c.store.Stored(), nil
}

// Download fetches one voice's model assets into the store, reporting
// percentages as bytes arrive.
func (c *PiperClient) Download(ctx context.Context, voiceID string, progress ProgressFunc) error {
	if c.store.Has(voiceID) {
		if progress != nil {
			progress(100)
		}
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	url := c.modelURL(voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("unable to build download request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("unable to download voice %s: %w", voiceID, err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("voice download failed: HTTP %d", resp.StatusCode)
	}

	start := time.Now()
	data, err := readAllProgress(resp.Body, resp.ContentLength, progress)
	if err != nil {
		return fmt.Errorf("voice download interrupted: %w", err)
	}
	c.logger.Debug("downloaded voice pack",
		"voice", voiceID,
		"size", humanize.Bytes(uint64(len(data))),
		"took", time.Since(start).Round(time.Millisecond))

	return c.store.Put(voiceID, data)
}

// Synthesize runs the piper binary over the cached model and returns raw
// PCM16 audio. Subprocess stdin is wired before Start to avoid races.
func (c *PiperClient) Synthesize(ctx context.Context, text, voiceID string, rateMul float64, progress ProgressFunc) ([]byte, error) {
	model, err := c.store.ModelPath(voiceID)
	if err != nil {
		return nil, fmt.Errorf("voice %s not usable: %w", voiceID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.SynthTimeout)
	defer cancel()

	args := []string{"--model", model, "--output-raw"}
	if rateMul > 0 && rateMul != 1.0 {
		// piper's length_scale stretches phoneme durations; the inverse of
		// the requested speed multiplier.
		args = append(args, "--length_scale", fmt.Sprintf("%.3f", 1.0/rateMul))
	}

	cmd := exec.CommandContext(ctx, c.cfg.Binary, args...)
	cmd.Stdin = strings.NewReader(text)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if progress != nil {
		progress(0)
	}
	stopTicks := estimateTicks(ctx, len(text), progress)
	err = cmd.Run()
	stopTicks()

	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("synthesis timed out after %v", c.cfg.SynthTimeout)
	}
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("synthesis failed: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("synthesis failed: %w", err)
	}
	if progress != nil {
		progress(100)
	}
	return stdout.Bytes(), nil
}

// Flush clears every cached voice pack.
func (c *PiperClient) Flush(context.Context) error {
	return c.store.Flush()
}

func (c *PiperClient) modelURL(voiceID string) string {
	// Voice ids look like "en_US-lessac-medium"; assets live under
	// <base>/<lang>/<locale>/<name>/<quality>/<id>.onnx.
	parts := strings.SplitN(voiceID, "-", 3)
	if len(parts) != 3 {
		return fmt.Sprintf("%s/%s.onnx", c.cfg.BaseURL, voiceID)
	}
	locale := parts[0]
	lang := strings.SplitN(locale, "_", 2)[0]
	return fmt.Sprintf("%s/%s/%s/%s/%s/%s.onnx", c.cfg.BaseURL, lang, locale, parts[1], parts[2], voiceID)
}

// readAllProgress drains r, reporting percentages against total when known.
func readAllProgress(r io.Reader, total int64, progress ProgressFunc) ([]byte, error) {
	var buf bytes.Buffer
	chunk := make([]byte, 64*1024)
	var read int64
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			read += int64(n)
			if progress != nil && total > 0 {
				progress(int(read * 100 / total))
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	if progress != nil {
		progress(100)
	}
	return buf.Bytes(), nil
}

// estimateTicks emits coarse synthesis progress while the subprocess runs,
// scaled to text length, capped below completion. Returns a stop func.
func estimateTicks(ctx context.Context, textLen int, progress ProgressFunc) func() {
	if progress == nil {
		return func() {}
	}
	// Rough synthesis throughput guess; only drives the progress bar.
	expected := time.Duration(textLen) * 8 * time.Millisecond
	if expected < 500*time.Millisecond {
		expected = 500 * time.Millisecond
	}
	done := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(expected / 20)
		defer ticker.Stop()
		start := time.Now()
		for {
			select {
			case <-ticker.C:
				pct := int(time.Since(start) * 95 / expected)
				if pct > 95 {
					pct = 95
				}
				progress(pct)
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}
