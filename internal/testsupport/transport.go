package testsupport

import (
	"context"
	"strings"
	"sync"

	"shelfscan/internal/dispatch"
)

// Transport is a scripted dispatch.Transport. Responses are matched by the
// longest registered target prefix; unmatched requests get a 404.
type Transport struct {
	mu        sync.Mutex
	responses map[string]Reply
	requests  []*dispatch.Request
}

// Reply is the scripted result for a target prefix.
type Reply struct {
	Status int
	Body   string
	Err    error
}

func NewTransport() *Transport {
	return &Transport{responses: make(map[string]Reply)}
}

// Respond registers a reply for targets starting with prefix.
func (t *Transport) Respond(prefix string, reply Reply) *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.responses[prefix] = reply
	return t
}

// Requests returns the requests seen so far.
func (t *Transport) Requests() []*dispatch.Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*dispatch.Request(nil), t.requests...)
}

func (t *Transport) Do(_ context.Context, req *dispatch.Request, _ func(int)) (*dispatch.Response, error) {
	t.mu.Lock()
	t.requests = append(t.requests, req)
	var (
		best  string
		reply = Reply{Status: 404}
	)
	for prefix, r := range t.responses {
		if strings.HasPrefix(req.Target(), prefix) && len(prefix) >= len(best) {
			best, reply = prefix, r
		}
	}
	t.mu.Unlock()

	if reply.Err != nil {
		return nil, reply.Err
	}
	return &dispatch.Response{StatusCode: reply.Status, Body: []byte(reply.Body)}, nil
}
