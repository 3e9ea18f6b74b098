package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/google/uuid"

	"shelfscan/internal/services"
)

var (
	// ErrInvalidRequest reports a request rejected at build or enqueue time.
	ErrInvalidRequest = fmt.Errorf("%w: invalid request", services.ErrValidation)
	// ErrQueueClosed is delivered to requests still pending when the queue stops.
	ErrQueueClosed = errors.New("dispatch queue closed")
	// ErrInvalidResponse reports a transport that returned neither a response nor an error.
	ErrInvalidResponse = fmt.Errorf("%w: invalid or missing response", services.ErrTransport)
)

// Method is the HTTP verb of a request.
type Method string

const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodPut    Method = "PUT"
	MethodDelete Method = "DELETE"
)

func (m Method) valid() bool {
	switch m {
	case MethodGet, MethodPost, MethodPut, MethodDelete:
		return true
	default:
		return false
	}
}

// Request describes one outbound call. It is immutable once built: accessors
// hand out copies.
type Request struct {
	id            string
	method        Method
	target        string
	header        map[string]string
	body          []byte
	contentType   string
	correlationID string
	extra         map[string]string
}

func (r *Request) ID() string            { return r.id }
func (r *Request) Method() Method        { return r.method }
func (r *Request) Target() string        { return r.target }
func (r *Request) ContentType() string   { return r.contentType }
func (r *Request) CorrelationID() string { return r.correlationID }

// Header returns a copy of the request headers.
func (r *Request) Header() map[string]string { return maps.Clone(r.header) }

// Body returns a copy of the request body, or nil when there is none.
func (r *Request) Body() []byte {
	if r.body == nil {
		return nil
	}
	return append([]byte(nil), r.body...)
}

// Extra returns a copy of the opaque data carried for the handler.
func (r *Request) Extra() map[string]string { return maps.Clone(r.extra) }

// ExtraValue returns one extra entry.
func (r *Request) ExtraValue(key string) string { return r.extra[key] }

func (r *Request) validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil request", ErrInvalidRequest)
	}
	if !r.method.valid() {
		return fmt.Errorf("%w: unsupported method %q", ErrInvalidRequest, r.method)
	}
	if strings.TrimSpace(r.target) == "" {
		return fmt.Errorf("%w: missing target", ErrInvalidRequest)
	}
	return nil
}

// RequestBuilder assembles a Request. The first error encountered is reported
// by Build.
type RequestBuilder struct {
	req Request
	err error
}

// NewRequest starts a request for method and target.
func NewRequest(method Method, target string) *RequestBuilder {
	return &RequestBuilder{req: Request{
		method: Method(strings.ToUpper(string(method))),
		target: strings.TrimSpace(target),
		header: map[string]string{},
		extra:  map[string]string{},
	}}
}

func (b *RequestBuilder) Header(key, value string) *RequestBuilder {
	if key = strings.TrimSpace(key); key != "" {
		b.req.header[key] = value
	}
	return b
}

func (b *RequestBuilder) Body(contentType string, body []byte) *RequestBuilder {
	b.req.contentType = contentType
	b.req.body = append([]byte(nil), body...)
	return b
}

// JSON encodes v as the request body.
func (b *RequestBuilder) JSON(v any) *RequestBuilder {
	data, err := json.Marshal(v)
	if err != nil {
		if b.err == nil {
			b.err = fmt.Errorf("%w: encode body: %w", ErrInvalidRequest, err)
		}
		return b
	}
	return b.Body("application/json", data)
}

func (b *RequestBuilder) Correlation(id string) *RequestBuilder {
	b.req.correlationID = id
	return b
}

func (b *RequestBuilder) Extra(key, value string) *RequestBuilder {
	b.req.extra[key] = value
	return b
}

// Build validates and returns the request. Each call yields a request with a
// fresh ID.
func (b *RequestBuilder) Build() (*Request, error) {
	if b.err != nil {
		return nil, b.err
	}
	req := b.req
	req.header = maps.Clone(b.req.header)
	req.extra = maps.Clone(b.req.extra)
	req.body = b.req.Body()
	if err := req.validate(); err != nil {
		return nil, err
	}
	req.id = uuid.NewString()
	return &req, nil
}
