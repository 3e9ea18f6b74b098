package dispatch

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"shelfscan/internal/logging"
	"shelfscan/internal/services"
)

const (
	defaultWorkers = 2
	defaultTimeout = 15 * time.Second
)

// Queue is a thread-safe FIFO of pending requests served by a fixed pool of
// workers. Every accepted request yields exactly one terminal outcome to its
// handler unless it is cancelled before a worker picks it up.
type Queue struct {
	transport Transport
	workers   int
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *Metrics
	sampler   *logging.ProgressSampler

	mu      sync.Mutex
	items   *list.List
	index   map[string]*list.Element
	closed  bool
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	wake    chan struct{}
}

// Enqueuer is the part of Queue that request builders depend on.
type Enqueuer interface {
	Enqueue(req *Request, handler *Handler) error
	Cancel(requestID string) bool
}

var _ Enqueuer = (*Queue)(nil)

type entry struct {
	req      *Request
	handler  *Handler
	seq      uint64
	enqueued time.Time
	done     atomic.Bool
}

// Option configures optional Queue behavior.
type Option func(*Queue)

func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithTimeout bounds each transport call.
func WithTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

// NewQueue constructs a stopped queue. Requests may be enqueued before Start.
func NewQueue(transport Transport, opts ...Option) *Queue {
	q := &Queue{
		transport: transport,
		workers:   defaultWorkers,
		timeout:   defaultTimeout,
		logger:    logging.NewNop(),
		items:     list.New(),
		index:     make(map[string]*list.Element),
		sampler:   logging.NewProgressSampler(25),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = logging.NewComponentLogger(q.logger, "dispatch")
	q.wake = make(chan struct{}, q.workers)
	return q
}

// Enqueue hands req to the queue on behalf of handler. It never blocks on I/O.
func (q *Queue) Enqueue(req *Request, handler *Handler) error {
	if err := req.validate(); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler", ErrInvalidRequest)
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	if _, dup := q.index[req.ID()]; dup {
		q.mu.Unlock()
		return fmt.Errorf("%w: request %s already queued", ErrInvalidRequest, req.ID())
	}
	e := &entry{req: req, handler: handler, seq: handler.reserve(), enqueued: time.Now()}
	q.index[req.ID()] = q.items.PushBack(e)
	pending := q.items.Len()
	q.mu.Unlock()

	q.metrics.requestEnqueued(pending)
	q.signal()
	q.logger.Debug("request enqueued",
		logging.String(logging.FieldRequestID, req.ID()),
		logging.String(logging.FieldCorrelationID, req.CorrelationID()),
		logging.String(logging.FieldHandler, handler.Name()),
		logging.Int("pending", pending),
	)
	return nil
}

// Cancel withdraws a request that no worker has started. It reports whether
// the request was withdrawn; a running request completes normally.
func (q *Queue) Cancel(requestID string) bool {
	q.mu.Lock()
	elem, ok := q.index[requestID]
	if !ok {
		q.mu.Unlock()
		return false
	}
	e := q.items.Remove(elem).(*entry)
	delete(q.index, requestID)
	pending := q.items.Len()
	q.mu.Unlock()

	e.handler.withdraw(e.seq)
	q.metrics.requestCancelled(pending)
	q.logger.Debug("request cancelled",
		logging.String(logging.FieldRequestID, requestID),
		logging.String(logging.FieldCorrelationID, e.req.CorrelationID()),
	)
	return true
}

// Pending returns the number of requests waiting for a worker.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Start launches the workers.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if q.running {
		return errors.New("dispatch queue already running")
	}
	if q.transport == nil {
		return fmt.Errorf("%w: dispatch queue has no transport", services.ErrConfiguration)
	}
	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.running = true
	q.wg.Add(q.workers)
	for i := 0; i < q.workers; i++ {
		go q.runWorker(runCtx)
	}
	q.logger.Debug("dispatch queue started", logging.Int("workers", q.workers))
	return nil
}

// Stop cancels in-flight requests, waits for the workers to exit and delivers
// ErrQueueClosed to every request that never ran. It is safe to call more
// than once.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	cancel := q.cancel
	q.running = false
	q.cancel = nil
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	q.wg.Wait()

	q.mu.Lock()
	var orphaned []*entry
	for elem := q.items.Front(); elem != nil; elem = elem.Next() {
		orphaned = append(orphaned, elem.Value.(*entry))
	}
	q.items.Init()
	clear(q.index)
	q.mu.Unlock()

	q.metrics.setPending(0)
	for _, e := range orphaned {
		e.handler.deliver(e.req, e.seq, Exception(ErrQueueClosed))
		q.metrics.observe(KindException, 0)
	}
	if len(orphaned) > 0 {
		q.logger.Info("dispatch queue stopped with pending requests", logging.Int("abandoned", len(orphaned)))
	}
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) pop() *entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	elem := q.items.Front()
	if elem == nil {
		return nil
	}
	e := q.items.Remove(elem).(*entry)
	delete(q.index, e.req.ID())
	q.metrics.setPending(q.items.Len())
	return e
}

func (q *Queue) runWorker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		e := q.pop()
		if e == nil {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
			}
			continue
		}
		q.execute(ctx, e)
	}
}

func (q *Queue) execute(ctx context.Context, e *entry) {
	req := e.req
	reqCtx := services.WithRequestID(ctx, req.ID())
	reqCtx = services.WithCorrelationID(reqCtx, req.CorrelationID())
	reqCtx = services.WithHandler(reqCtx, e.handler.Name())
	logger := logging.WithContext(reqCtx, q.logger)

	start := time.Now()
	e.handler.deliver(req, e.seq, Started())
	outcome := q.invoke(reqCtx, e, logger)
	e.done.Store(true)
	q.sampler.Forget(req.ID())
	elapsed := time.Since(start)
	q.metrics.observe(outcome.Kind, elapsed)
	e.handler.deliver(req, e.seq, outcome)

	attrs := []logging.Attr{
		logging.String(logging.FieldOutcome, outcome.Kind.String()),
		logging.Duration("elapsed", elapsed),
		logging.Duration("queued", start.Sub(e.enqueued)),
	}
	switch outcome.Kind {
	case KindSuccess:
		logger.Debug("request succeeded", logging.Args(attrs...)...)
	case KindFailure:
		attrs = append(attrs, logging.Int("status", outcome.Status))
		logger.Info("request failed", logging.Args(attrs...)...)
	default:
		attrs = append(attrs, logging.Error(outcome.Err))
		logging.WarnWithContext(logger, "request raised exception", "request_exception", append(attrs,
			logging.String(logging.FieldErrorHint, services.Classify(outcome.Err)))...)
	}
}

// invoke calls the transport and classifies its result. Transport panics are
// converted to an Exception.
func (q *Queue) invoke(ctx context.Context, e *entry, logger *slog.Logger) (outcome Outcome) {
	callCtx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			outcome = Exception(fmt.Errorf("%w: transport panic: %v", services.ErrTransport, r))
		}
	}()

	progress := func(percent int) {
		if e.done.Load() {
			return
		}
		p := Progress(percent)
		if q.sampler.ShouldLog(e.req.ID(), p.Percent) {
			logger.Debug("request progress", logging.Int("percent", p.Percent))
		}
		e.handler.deliver(e.req, e.seq, p)
	}

	resp, err := q.transport.Do(callCtx, e.req, progress)
	return classify(ctx, callCtx, resp, err)
}

func classify(parent, callCtx context.Context, resp *Response, err error) Outcome {
	if err != nil {
		switch {
		case parent.Err() != nil:
			return Exception(fmt.Errorf("%w: %w", ErrQueueClosed, err))
		case errors.Is(err, context.DeadlineExceeded), errors.Is(callCtx.Err(), context.DeadlineExceeded):
			if errors.Is(err, services.ErrTimeout) {
				return Exception(err)
			}
			return Exception(services.Wrap(services.ErrTimeout, "dispatch", "execute", "request timed out", err))
		case hasMarker(err):
			return Exception(err)
		default:
			return Exception(services.Wrap(services.ErrTransport, "dispatch", "execute", "", err))
		}
	}
	if resp == nil || resp.StatusCode < 100 {
		return Exception(ErrInvalidResponse)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		out := Failure(resp.StatusCode, statusReason(resp))
		out.Body = resp.Body
		return out
	}
	return Success(resp.Body)
}

func hasMarker(err error) bool {
	for _, marker := range []error{
		services.ErrTransport, services.ErrTimeout, services.ErrProtocol, services.ErrParse,
		services.ErrAuthorizationDenied, services.ErrValidation, services.ErrConfiguration, services.ErrNotFound,
	} {
		if errors.Is(err, marker) {
			return true
		}
	}
	return false
}

// statusReason strips the numeric prefix net/http puts on Status.
func statusReason(resp *Response) string {
	reason := strings.TrimSpace(resp.Status)
	if code, rest, ok := strings.Cut(reason, " "); ok && code == fmt.Sprint(resp.StatusCode) {
		reason = strings.TrimSpace(rest)
	}
	return reason
}
