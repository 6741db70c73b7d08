package bridge

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/voicebox/tts"
)

// ReplyType classifies worker replies.
type ReplyType string

const (
	// ReplyProgress is an intermediate progress report; the pending request
	// stays registered.
	ReplyProgress ReplyType = "progress"
	// ReplyResponse fulfills the pending request.
	ReplyResponse ReplyType = "response"
	// ReplyError rejects the pending request.
	ReplyError ReplyType = "error"
)

// Request is the message posted to the worker.
type Request struct {
	ID      uint64
	Action  Action
	Payload Payload
}

// Reply is the message the worker posts back. For ReplyProgress, Data is a
// tts.ProgressInfo; for ReplyResponse it is the action's result; for
// ReplyError it is a string describing the failure.
type Reply struct {
	ID   uint64
	Type ReplyType
	Data any
}

type result struct {
	data any
	err  error
}

// pendingRequest correlates a request id to its completion channel and
// optional progress callback. Removed on the first terminal reply; progress
// replies leave it in place.
type pendingRequest struct {
	done       chan result
	onProgress func(tts.ProgressInfo)
}

// Bridge sends typed commands to the worker and resolves correlated calls as
// replies arrive. Request ids are strictly increasing for the life of the
// bridge.
type Bridge struct {
	requests chan<- Request
	replies  <-chan Reply

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]*pendingRequest
	closed  bool

	logger *log.Logger
	done   chan struct{}
}

// New wires a bridge to a worker's request and reply channels and starts the
// reply dispatch loop.
func New(requests chan<- Request, replies <-chan Reply, logger *log.Logger) *Bridge {
	if logger == nil {
		logger = log.Default()
	}
	b := &Bridge{
		requests: requests,
		replies:  replies,
		pending:  make(map[uint64]*pendingRequest),
		logger:   logger,
		done:     make(chan struct{}),
	}
	go b.dispatch()
	return b
}

// Send posts an action to the worker and blocks until a terminal reply
// arrives or ctx is done. Progress replies are forwarded to onProgress
// without resolving the call. onProgress may be nil.
func (b *Bridge) Send(ctx context.Context, action Action, payload Payload, onProgress func(tts.ProgressInfo)) (any, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, tts.ErrBridgeClosed
	}
	b.nextID++
	id := b.nextID
	pr := &pendingRequest{
		done:       make(chan result, 1),
		onProgress: onProgress,
	}
	b.pending[id] = pr
	b.mu.Unlock()

	select {
	case b.requests <- Request{ID: id, Action: action, Payload: payload}:
	case <-ctx.Done():
		b.forget(id)
		return nil, ctx.Err()
	case <-b.done:
		b.forget(id)
		return nil, tts.ErrBridgeClosed
	}

	select {
	case res := <-pr.done:
		return res.data, res.err
	case <-ctx.Done():
		// The worker keeps computing; its eventual reply finds no pending
		// entry and is dropped.
		b.forget(id)
		return nil, ctx.Err()
	case <-b.done:
		return nil, tts.ErrBridgeClosed
	}
}

// Close stops the dispatch loop and rejects future sends. In-flight calls
// fail with ErrBridgeClosed.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()
	close(b.done)
}

func (b *Bridge) forget(id uint64) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

func (b *Bridge) dispatch() {
	for {
		select {
		case reply, ok := <-b.replies:
			if !ok {
				return
			}
			b.handle(reply)
		case <-b.done:
			return
		}
	}
}

func (b *Bridge) handle(reply Reply) {
	b.mu.Lock()
	pr, ok := b.pending[reply.ID]
	if !ok {
		b.mu.Unlock()
		// Defensive: should not occur under correct sequencing.
		b.logger.Debug("dropping reply for unknown request", "id", reply.ID, "type", reply.Type)
		return
	}
	if reply.Type != ReplyProgress {
		delete(b.pending, reply.ID)
	}
	b.mu.Unlock()

	switch reply.Type {
	case ReplyProgress:
		if pr.onProgress != nil {
			if info, ok := reply.Data.(tts.ProgressInfo); ok {
				pr.onProgress(info)
			}
		}
	case ReplyResponse:
		pr.done <- result{data: reply.Data}
	case ReplyError:
		msg, _ := reply.Data.(string)
		if msg == "" {
			msg = "worker action failed"
		}
		pr.done <- result{err: tts.NewEngineError(tts.CodeTransport, msg, nil)}
	}
}
