package dispatch

import (
	"context"
	"net/http"
)

// Response is the raw result of executing a request.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

// Transport executes a request. progress receives percentages while the body
// streams in and may be ignored by implementations that cannot report it.
type Transport interface {
	Do(ctx context.Context, req *Request, progress func(percent int)) (*Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req *Request, progress func(percent int)) (*Response, error)

func (f TransportFunc) Do(ctx context.Context, req *Request, progress func(int)) (*Response, error) {
	return f(ctx, req, progress)
}
