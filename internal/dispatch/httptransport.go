package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"shelfscan/internal/logging"
	"shelfscan/internal/services"
)

// ErrCircuitOpen reports a request refused because its host failed repeatedly.
var ErrCircuitOpen = fmt.Errorf("%w: circuit open", services.ErrTransport)

const maxResponseBytes = 16 << 20

var (
	sharedClientOnce sync.Once
	sharedClient     *http.Client
)

// SharedClient returns the process-wide HTTP client, creating it on first use.
func SharedClient() *http.Client {
	sharedClientOnce.Do(func() {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.MaxIdleConnsPerHost = 8
		transport.IdleConnTimeout = 90 * time.Second
		sharedClient = &http.Client{Transport: transport}
	})
	return sharedClient
}

// HTTPOptions tunes the HTTP transport.
type HTTPOptions struct {
	UserAgent       string
	RatePerSecond   float64
	Burst           int
	BreakerFailures int
	BreakerCooldown time.Duration
	// Client overrides the shared client.
	Client *http.Client
	Logger *slog.Logger
}

// HTTPTransport executes requests over HTTP with a token bucket and circuit
// breaker per host.
type HTTPTransport struct {
	opts   HTTPOptions
	logger *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewHTTPTransport(opts HTTPOptions) *HTTPTransport {
	return &HTTPTransport{
		opts:     opts,
		logger:   logging.NewComponentLogger(opts.Logger, "http"),
		limiters: make(map[string]*rate.Limiter),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (t *HTTPTransport) client() *http.Client {
	if t.opts.Client != nil {
		return t.opts.Client
	}
	return SharedClient()
}

// Do implements Transport.
func (t *HTTPTransport) Do(ctx context.Context, req *Request, progress func(int)) (*Response, error) {
	target, err := url.Parse(req.Target())
	if err != nil || target.Host == "" {
		return nil, services.Wrap(services.ErrValidation, "http", string(req.Method()), "invalid target "+req.Target(), err)
	}
	host := target.Host

	if limiter := t.limiter(host); limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, services.Wrap(services.ErrTimeout, "http", "rate limit", "wait for request slot on "+host, err)
		}
	}

	result, err := t.breaker(host).Execute(func() (interface{}, error) {
		return t.roundTrip(ctx, req, progress)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s: %w", ErrCircuitOpen, host, err)
	}
	if err != nil {
		return nil, err
	}
	return result.(*Response), nil
}

func (t *HTTPTransport) roundTrip(ctx context.Context, req *Request, progress func(int)) (*Response, error) {
	var body io.Reader
	if data := req.Body(); data != nil {
		body = bytes.NewReader(data)
	}
	httpReq, err := http.NewRequestWithContext(ctx, string(req.Method()), req.Target(), body)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "http", string(req.Method()), "build request", err)
	}
	for key, value := range req.Header() {
		httpReq.Header.Set(key, value)
	}
	if ct := req.ContentType(); ct != "" {
		httpReq.Header.Set("Content-Type", ct)
	}
	if t.opts.UserAgent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", t.opts.UserAgent)
	}

	resp, err := t.client().Do(httpReq)
	if err != nil {
		return nil, services.Wrap(services.ErrTransport, "http", string(req.Method()), httpReq.URL.Host, err)
	}
	defer resp.Body.Close()

	data, err := readWithProgress(resp.Body, resp.ContentLength, progress)
	if err != nil {
		return nil, services.Wrap(services.ErrTransport, "http", string(req.Method()), "read response body", err)
	}
	if len(data) > maxResponseBytes {
		return nil, services.Wrap(services.ErrTransport, "http", string(req.Method()), "response exceeds limit", nil)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header.Clone(),
		Body:       data,
	}, nil
}

// readWithProgress reads at most one byte past maxResponseBytes so the caller
// can tell an oversized body from one that fits exactly.
func readWithProgress(r io.Reader, length int64, progress func(int)) ([]byte, error) {
	r = io.LimitReader(r, maxResponseBytes+1)
	if length <= 0 || progress == nil {
		return io.ReadAll(r)
	}
	var buf bytes.Buffer
	buf.Grow(int(min(length, maxResponseBytes+1)))
	chunk := make([]byte, 32<<10)
	last := -1
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			if pct := int(int64(buf.Len()) * 100 / length); pct != last {
				last = pct
				progress(pct)
			}
		}
		if errors.Is(err, io.EOF) {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (t *HTTPTransport) limiter(host string) *rate.Limiter {
	if t.opts.RatePerSecond <= 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	limiter, ok := t.limiters[host]
	if !ok {
		burst := t.opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(t.opts.RatePerSecond), burst)
		t.limiters[host] = limiter
	}
	return limiter
}

func (t *HTTPTransport) breaker(host string) *gobreaker.CircuitBreaker {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cb, ok := t.breakers[host]; ok {
		return cb
	}
	failures := uint32(max(t.opts.BreakerFailures, 0))
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Timeout:     t.opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return failures > 0 && counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			t.logger.Warn("circuit breaker state changed",
				logging.String("host", name),
				logging.String("from", from.String()),
				logging.String("to", to.String()),
				logging.String(logging.FieldEventType, "circuit_state_changed"),
				logging.String(logging.FieldErrorHint, "check network connectivity to "+name),
			)
		},
	})
	t.breakers[host] = cb
	return cb
}

// BreakerState reports the breaker state for host, "closed" if none exists yet.
func (t *HTTPTransport) BreakerState(host string) string {
	t.mu.Lock()
	cb, ok := t.breakers[host]
	t.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed.String()
	}
	return cb.State().String()
}
