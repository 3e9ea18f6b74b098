package dispatch

import (
	"fmt"
	"log/slog"
	"sync"

	"shelfscan/internal/logging"
)

// Consumer is the live context a handler delivers to. Concrete callbacks
// assert the richer interface they need.
type Consumer any

// Callbacks turns classified outcomes into domain events for a consumer.
// Implementations must not block for long; they run on whichever goroutine
// is delivering.
type Callbacks interface {
	OnStart(c Consumer, req *Request)
	OnProgress(c Consumer, req *Request, percent int)
	OnSuccess(c Consumer, req *Request, body []byte)
	OnFailure(c Consumer, req *Request, status int, reason string)
	OnException(c Consumer, req *Request, err error)
}

type event struct {
	req     *Request
	outcome Outcome
}

// Handler receives outcomes for the requests enqueued with it. While bound it
// delivers each event to the consumer; while unbound it buffers them. Events
// reach the consumer in enqueue order of their requests: events of a request
// are held back until every earlier request of this handler has delivered its
// terminal outcome or been withdrawn.
//
// A single mutex guards the binding, the buffer and the ordering state.
// Callbacks run outside it, one at a time, so they may enqueue, cancel, bind
// or unbind without deadlocking.
type Handler struct {
	name      string
	callbacks Callbacks
	logger    *slog.Logger
	metrics   *Metrics

	mu         sync.Mutex
	bound      bool
	consumer   Consumer
	delivering bool
	ready      []event
	held       map[uint64][]event
	finished   map[uint64]bool
	nextSeq    uint64
	head       uint64
}

// HandlerOption configures optional Handler behavior.
type HandlerOption func(*Handler)

// WithHandlerMetrics reports the buffered event count for this handler.
func WithHandlerMetrics(m *Metrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

// NewHandler constructs an unbound handler.
func NewHandler(name string, callbacks Callbacks, logger *slog.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		name:      name,
		callbacks: callbacks,
		logger:    logging.NewComponentLogger(logger, "handler").With(logging.String(logging.FieldHandler, name)),
		held:      make(map[uint64][]event),
		finished:  make(map[uint64]bool),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Name() string { return h.name }

// Bind attaches consumer, displacing any previous one, and flushes buffered
// events to it before any newer event is delivered.
func (h *Handler) Bind(consumer Consumer) {
	h.update(func() {
		h.bound = true
		h.consumer = consumer
	})
}

// Unbind detaches the current consumer. Later events are buffered.
//
// Unbind does not wait for a callback that is already running: one event
// taken off the buffer before Unbind may still reach the old consumer while
// Unbind returns. No further event reaches it. Unbind may be called from a
// callback, in which case that callback is the last one the consumer sees.
func (h *Handler) Unbind() {
	h.mu.Lock()
	h.bound = false
	h.consumer = nil
	h.mu.Unlock()
}

func (h *Handler) Bound() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bound
}

// Buffered returns the number of events accepted but not yet delivered.
func (h *Handler) Buffered() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bufferedLocked()
}

func (h *Handler) bufferedLocked() int {
	n := len(h.ready)
	for _, evs := range h.held {
		n += len(evs)
	}
	return n
}

// reserve assigns the ordering slot for a newly enqueued request.
func (h *Handler) reserve() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	seq := h.nextSeq
	h.nextSeq++
	return seq
}

// deliver accepts an outcome for the request holding slot seq.
func (h *Handler) deliver(req *Request, seq uint64, outcome Outcome) {
	h.update(func() {
		if seq < h.head {
			h.logger.Warn("dropping outcome for completed request",
				logging.String(logging.FieldRequestID, req.ID()),
				logging.String(logging.FieldOutcome, outcome.Kind.String()),
				logging.String(logging.FieldEventType, "late_outcome_dropped"),
			)
			return
		}
		if h.finished[seq] {
			h.logger.Warn("dropping outcome after terminal outcome",
				logging.String(logging.FieldRequestID, req.ID()),
				logging.String(logging.FieldOutcome, outcome.Kind.String()),
				logging.String(logging.FieldEventType, "late_outcome_dropped"),
			)
			return
		}
		ev := event{req: req, outcome: outcome}
		if seq == h.head {
			h.ready = append(h.ready, ev)
			if outcome.Terminal() {
				h.advance()
			}
			return
		}
		h.held[seq] = append(h.held[seq], ev)
		if outcome.Terminal() {
			h.finished[seq] = true
		}
	})
}

// withdraw releases the slot of a request that will never produce an outcome.
func (h *Handler) withdraw(seq uint64) {
	h.update(func() {
		if seq < h.head {
			return
		}
		delete(h.held, seq)
		if seq == h.head {
			h.advance()
			return
		}
		h.finished[seq] = true
	})
}

// advance moves past the head slot and releases every slot that has been
// waiting on it. Caller holds h.mu.
func (h *Handler) advance() {
	for {
		h.head++
		if evs, ok := h.held[h.head]; ok {
			h.ready = append(h.ready, evs...)
			delete(h.held, h.head)
		}
		if !h.finished[h.head] {
			return
		}
		delete(h.finished, h.head)
	}
}

// update applies fn under the lock and, if the handler is bound and nobody
// else is delivering, becomes the deliverer until the ready queue is empty.
func (h *Handler) update(fn func()) {
	h.mu.Lock()
	fn()
	h.metrics.setBuffered(h.name, h.bufferedLocked())
	if !h.bound || h.delivering || len(h.ready) == 0 {
		h.mu.Unlock()
		return
	}
	h.delivering = true
	h.mu.Unlock()
	h.drain()
}

func (h *Handler) drain() {
	for {
		h.mu.Lock()
		if !h.bound || len(h.ready) == 0 {
			h.delivering = false
			h.mu.Unlock()
			return
		}
		ev := h.ready[0]
		h.ready[0] = event{}
		h.ready = h.ready[1:]
		if len(h.ready) == 0 {
			h.ready = nil
		}
		consumer := h.consumer
		h.metrics.setBuffered(h.name, h.bufferedLocked())
		h.mu.Unlock()

		h.dispatch(consumer, ev)
	}
}

func (h *Handler) dispatch(consumer Consumer, ev event) {
	if h.callbacks == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(h.logger, "handler callback panicked", "callback_panic",
				logging.String(logging.FieldRequestID, ev.req.ID()),
				logging.String(logging.FieldCorrelationID, ev.req.CorrelationID()),
				logging.String(logging.FieldOutcome, ev.outcome.Kind.String()),
				logging.String("panic", fmt.Sprint(r)),
				logging.String(logging.FieldErrorHint, "report this as a bug"),
			)
		}
	}()

	o := ev.outcome
	switch o.Kind {
	case KindStarted:
		h.callbacks.OnStart(consumer, ev.req)
	case KindProgress:
		h.callbacks.OnProgress(consumer, ev.req, o.Percent)
	case KindSuccess:
		h.callbacks.OnSuccess(consumer, ev.req, o.Body)
	case KindFailure:
		h.callbacks.OnFailure(consumer, ev.req, o.Status, o.Reason)
	case KindException:
		h.callbacks.OnException(consumer, ev.req, o.Err)
	}
}
