package bridge

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/voicebox/tts"
)

// Worker is the isolated execution context for synthesis work. It owns the
// single shared handle to the synthesis library, services one request at a
// time in arrival order, and posts replies (including progress) back on its
// reply channel. It never shares memory with the orchestrator side.
type Worker struct {
	requests <-chan Request
	replies  chan<- Reply

	factory ClientFactory
	client  Client

	logger *log.Logger
}

// NewWorker creates a worker that will obtain its synthesis client lazily
// from factory on the first action.
func NewWorker(requests <-chan Request, replies chan<- Reply, factory ClientFactory, logger *log.Logger) *Worker {
	if logger == nil {
		logger = log.Default()
	}
	return &Worker{
		requests: requests,
		replies:  replies,
		factory:  factory,
		logger:   logger,
	}
}

// Run services requests until ctx is done or the request channel closes.
// It is intended to run on its own goroutine.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case req, ok := <-w.requests:
			if !ok {
				return
			}
			w.serve(ctx, req)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) serve(ctx context.Context, req Request) {
	data, err := w.dispatch(ctx, req)
	if err != nil {
		w.logger.Debug("worker action failed", "action", req.Action, "id", req.ID, "err", err)
		w.post(Reply{ID: req.ID, Type: ReplyError, Data: err.Error()})
		return
	}
	w.post(Reply{ID: req.ID, Type: ReplyResponse, Data: data})
}

func (w *Worker) dispatch(ctx context.Context, req Request) (any, error) {
	client, err := w.ensureClient(ctx)
	if err != nil {
		return nil, err
	}

	switch req.Action {
	case ActionVoices:
		raw, err := client.Voices(ctx)
		if err != nil {
			return nil, err
		}
		// Normalize here so every caller sees plain identifiers regardless
		// of the library's wire shape.
		return tts.NormalizeVoiceList(raw), nil

	case ActionStored:
		return client.Stored(ctx)

	case ActionDownload:
		err := client.Download(ctx, req.Payload.VoiceID, w.progress(req, tts.StageDownload))
		if err != nil {
			return nil, err
		}
		return true, nil

	case ActionPredict:
		return client.Synthesize(ctx, req.Payload.Text, req.Payload.VoiceID, req.Payload.Rate,
			w.progress(req, tts.StagePredict))

	case ActionFlush:
		if err := client.Flush(ctx); err != nil {
			return nil, err
		}
		return true, nil

	default:
		return nil, fmt.Errorf("unknown action: %s", req.Action)
	}
}

// ensureClient establishes the shared library handle on first use. A failed
// establishment is returned to the current caller and the handle stays nil,
// so a later request retries instead of hitting a poisoned cache.
func (w *Worker) ensureClient(ctx context.Context) (Client, error) {
	if w.client != nil {
		return w.client, nil
	}
	client, err := w.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("synthesis client unavailable: %w", err)
	}
	w.client = client
	return client, nil
}

func (w *Worker) progress(req Request, stage tts.Stage) ProgressFunc {
	return func(percent int) {
		if percent < 0 {
			percent = 0
		}
		if percent > 100 {
			percent = 100
		}
		w.post(Reply{
			ID:   req.ID,
			Type: ReplyProgress,
			Data: tts.ProgressInfo{Stage: stage, VoiceID: req.Payload.VoiceID, Percent: percent},
		})
	}
}

func (w *Worker) post(reply Reply) {
	w.replies <- reply
}

// Pipe builds a connected bridge/worker pair and starts the worker, the
// usual way a session obtains its transport.
func Pipe(ctx context.Context, factory ClientFactory, logger *log.Logger) *Bridge {
	requests := make(chan Request, 8)
	replies := make(chan Reply, 8)
	worker := NewWorker(requests, replies, factory, logger)
	go worker.Run(ctx)
	return New(requests, replies, logger)
}
