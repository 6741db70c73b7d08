package bridge

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/voicebox/tts"
)

type stubClient struct {
	voices any

	mu        sync.Mutex
	downloads []string
	flushes   int
}

func (s *stubClient) Voices(context.Context) (any, error) { return s.voices, nil }
func (s *stubClient) Stored(context.Context) (any, error) { return []string{}, nil }

func (s *stubClient) Download(_ context.Context, voiceID string, progress ProgressFunc) error {
	s.mu.Lock()
	s.downloads = append(s.downloads, voiceID)
	s.mu.Unlock()
	if progress != nil {
		progress(-5)  // clamped to 0
		progress(150) // clamped to 100
	}
	return nil
}

func (s *stubClient) Synthesize(_ context.Context, text, _ string, _ float64, _ ProgressFunc) ([]byte, error) {
	return []byte(text), nil
}

func (s *stubClient) Flush(context.Context) error {
	s.mu.Lock()
	s.flushes++
	s.mu.Unlock()
	return nil
}

func pipeWith(t *testing.T, factory ClientFactory) *Bridge {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	b := Pipe(ctx, factory, log.New(io.Discard))
	t.Cleanup(b.Close)
	return b
}

func TestWorkerNormalizesVoicesWireShape(t *testing.T) {
	client := &stubClient{voices: []any{
		map[string]any{"key": "a"},
		map[string]any{"voiceId": "b"},
		"c",
	}}
	b := pipeWith(t, func(context.Context) (Client, error) { return client, nil })

	data, err := b.Send(context.Background(), ActionVoices, Payload{}, nil)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	got, ok := data.([]string)
	if !ok {
		t.Fatalf("data type = %T, want []string", data)
	}
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("voices = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("voices[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestWorkerClampsProgress(t *testing.T) {
	client := &stubClient{}
	b := pipeWith(t, func(context.Context) (Client, error) { return client, nil })

	var mu sync.Mutex
	var percents []int
	_, err := b.Send(context.Background(), ActionDownload, Payload{VoiceID: "a"}, func(info tts.ProgressInfo) {
		mu.Lock()
		percents = append(percents, info.Percent)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(percents) != 2 || percents[0] != 0 || percents[1] != 100 {
		t.Errorf("percents = %v, want [0 100]", percents)
	}
}

func TestWorkerRetriesClientEstablishment(t *testing.T) {
	attempts := 0
	client := &stubClient{voices: []string{"a"}}
	b := pipeWith(t, func(context.Context) (Client, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("library offline")
		}
		return client, nil
	})

	if _, err := b.Send(context.Background(), ActionVoices, Payload{}, nil); err == nil {
		t.Fatal("first Send() should surface the establishment failure")
	}
	if _, err := b.Send(context.Background(), ActionVoices, Payload{}, nil); err != nil {
		t.Fatalf("second Send() error = %v, want retry to succeed", err)
	}
	if attempts != 2 {
		t.Errorf("factory attempts = %d, want 2", attempts)
	}
}

func TestWorkerCachesClientAfterSuccess(t *testing.T) {
	attempts := 0
	client := &stubClient{voices: []string{"a"}}
	b := pipeWith(t, func(context.Context) (Client, error) {
		attempts++
		return client, nil
	})

	for i := 0; i < 3; i++ {
		if _, err := b.Send(context.Background(), ActionVoices, Payload{}, nil); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}
	if attempts != 1 {
		t.Errorf("factory attempts = %d, want 1 (handle cached)", attempts)
	}
}

func TestWorkerPredictReturnsAudio(t *testing.T) {
	client := &stubClient{}
	b := pipeWith(t, func(context.Context) (Client, error) { return client, nil })

	data, err := b.Send(context.Background(), ActionPredict, Payload{Text: "hello", VoiceID: "a", Rate: 1.2}, nil)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	audio, ok := data.([]byte)
	if !ok || string(audio) != "hello" {
		t.Errorf("audio = %v, want bytes of the text", data)
	}
}

func TestWorkerFlush(t *testing.T) {
	client := &stubClient{}
	b := pipeWith(t, func(context.Context) (Client, error) { return client, nil })

	if _, err := b.Send(context.Background(), ActionFlush, Payload{}, nil); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	client.mu.Lock()
	defer client.mu.Unlock()
	if client.flushes != 1 {
		t.Errorf("flushes = %d, want 1", client.flushes)
	}
}

func TestWorkerUnknownAction(t *testing.T) {
	client := &stubClient{}
	b := pipeWith(t, func(context.Context) (Client, error) { return client, nil })

	_, err := b.Send(context.Background(), Action("transmogrify"), Payload{}, nil)
	if tts.ErrorCode(err) != tts.CodeTransport {
		t.Errorf("error = %v, want transport code", err)
	}
}
