package bridge

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/voicebox/tts"
)

// harness pairs a bridge with hand-fed reply channels so tests control the
// worker side of the protocol directly.
type harness struct {
	bridge   *Bridge
	requests chan Request
	replies  chan Reply
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	requests := make(chan Request, 8)
	replies := make(chan Reply, 8)
	b := New(requests, replies, log.New(io.Discard))
	t.Cleanup(b.Close)
	return &harness{bridge: b, requests: requests, replies: replies}
}

func (h *harness) nextRequest(t *testing.T) Request {
	t.Helper()
	select {
	case req := <-h.requests:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("no request dispatched")
		return Request{}
	}
}

func TestSendResolvesOnResponse(t *testing.T) {
	h := newHarness(t)

	done := make(chan struct{})
	var data any
	var err error
	go func() {
		data, err = h.bridge.Send(context.Background(), ActionVoices, Payload{}, nil)
		close(done)
	}()

	req := h.nextRequest(t)
	if req.Action != ActionVoices {
		t.Errorf("action = %q, want %q", req.Action, ActionVoices)
	}
	h.replies <- Reply{ID: req.ID, Type: ReplyResponse, Data: []string{"a"}}
	<-done

	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	got, ok := data.([]string)
	if !ok || len(got) != 1 || got[0] != "a" {
		t.Errorf("data = %v, want [a]", data)
	}
}

func TestProgressForwardedWithoutResolving(t *testing.T) {
	h := newHarness(t)

	var mu sync.Mutex
	var progress []int
	done := make(chan struct{})
	go func() {
		_, _ = h.bridge.Send(context.Background(), ActionDownload, Payload{VoiceID: "a"}, func(info tts.ProgressInfo) {
			mu.Lock()
			progress = append(progress, info.Percent)
			mu.Unlock()
		})
		close(done)
	}()

	req := h.nextRequest(t)
	for _, pct := range []int{10, 60} {
		h.replies <- Reply{ID: req.ID, Type: ReplyProgress, Data: tts.ProgressInfo{Stage: tts.StageDownload, Percent: pct}}
	}

	select {
	case <-done:
		t.Fatal("Send resolved on a progress reply")
	case <-time.After(50 * time.Millisecond):
	}

	h.replies <- Reply{ID: req.ID, Type: ReplyResponse, Data: true}
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(progress) != 2 || progress[0] != 10 || progress[1] != 60 {
		t.Errorf("progress = %v, want [10 60]", progress)
	}
}

func TestErrorRejectsWithTransportCode(t *testing.T) {
	h := newHarness(t)

	done := make(chan error, 1)
	go func() {
		_, err := h.bridge.Send(context.Background(), ActionPredict, Payload{Text: "hi"}, nil)
		done <- err
	}()

	req := h.nextRequest(t)
	h.replies <- Reply{ID: req.ID, Type: ReplyError, Data: "model exploded"}

	err := <-done
	if err == nil {
		t.Fatal("Send() error = nil, want transport error")
	}
	if tts.ErrorCode(err) != tts.CodeTransport {
		t.Errorf("code = %q, want %q", tts.ErrorCode(err), tts.CodeTransport)
	}
	if err.Error() != "model exploded" {
		t.Errorf("message = %q, want the worker's description", err.Error())
	}
}

func TestUnmatchedReplyDropped(t *testing.T) {
	h := newHarness(t)

	// A reply nobody asked for must be swallowed without disturbing the
	// next real call.
	h.replies <- Reply{ID: 999, Type: ReplyResponse, Data: "stray"}

	done := make(chan error, 1)
	go func() {
		_, err := h.bridge.Send(context.Background(), ActionFlush, Payload{}, nil)
		done <- err
	}()

	req := h.nextRequest(t)
	h.replies <- Reply{ID: req.ID, Type: ReplyResponse, Data: true}
	if err := <-done; err != nil {
		t.Fatalf("Send() after stray reply error = %v", err)
	}
}

func TestRequestIDsStrictlyIncrease(t *testing.T) {
	h := newHarness(t)

	var prev uint64
	for i := 0; i < 5; i++ {
		done := make(chan struct{})
		go func() {
			_, _ = h.bridge.Send(context.Background(), ActionStored, Payload{}, nil)
			close(done)
		}()
		req := h.nextRequest(t)
		if req.ID <= prev {
			t.Fatalf("request id %d not greater than previous %d", req.ID, prev)
		}
		prev = req.ID
		h.replies <- Reply{ID: req.ID, Type: ReplyResponse, Data: nil}
		<-done
	}
}

func TestSendAfterClose(t *testing.T) {
	h := newHarness(t)
	h.bridge.Close()
	_, err := h.bridge.Send(context.Background(), ActionVoices, Payload{}, nil)
	if !errors.Is(err, tts.ErrBridgeClosed) {
		t.Errorf("Send() error = %v, want ErrBridgeClosed", err)
	}
}

func TestSendHonorsContext(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := h.bridge.Send(ctx, ActionPredict, Payload{Text: "hi"}, nil)
		done <- err
	}()
	h.nextRequest(t)
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Send() error = %v, want context.Canceled", err)
	}
}
