package googlebooks

import (
	"net/url"
	"strings"

	"shelfscan/internal/config"
	"shelfscan/internal/dispatch"
	"shelfscan/internal/isbn"
	"shelfscan/internal/services"
)

const (
	// CorrelationPrefix prefixes the correlation identifier of every lookup.
	CorrelationPrefix = "lookup:"
	// ExtraISBN is the request extra holding the normalized ISBN.
	ExtraISBN = "isbn"
)

// Client builds lookup requests and hands them to the queue.
type Client struct {
	queue   dispatch.Enqueuer
	handler *dispatch.Handler
	baseURL string
	apiKey  string
}

// New creates a lookup client that enqueues on queue for handler.
func New(cfg config.GoogleBooks, queue dispatch.Enqueuer, handler *dispatch.Handler) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "googlebooks", "new client", "base url required", nil)
	}
	if queue == nil || handler == nil {
		return nil, services.Wrap(services.ErrConfiguration, "googlebooks", "new client", "queue and handler required", nil)
	}
	return &Client{
		queue:   queue,
		handler: handler,
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(cfg.APIKey),
	}, nil
}

// CorrelationID returns the correlation identifier used for code.
func CorrelationID(code string) string {
	return CorrelationPrefix + code
}

// Lookup enqueues a search for raw and returns the request identifier, which
// can be passed to the queue's Cancel.
func (c *Client) Lookup(raw string) (string, error) {
	code := isbn.Normalize(raw)
	if !isbn.Valid(code) {
		return "", services.Wrap(services.ErrValidation, "googlebooks", "lookup", "invalid isbn "+raw, nil)
	}

	query := url.Values{}
	query.Set("q", "isbn:"+code)
	if c.apiKey != "" {
		query.Set("key", c.apiKey)
	}
	req, err := dispatch.NewRequest(dispatch.MethodGet, c.baseURL+"/volumes?"+query.Encode()).
		Header("Accept", "application/json").
		Correlation(CorrelationID(code)).
		Extra(ExtraISBN, code).
		Build()
	if err != nil {
		return "", err
	}
	if err := c.queue.Enqueue(req, c.handler); err != nil {
		return "", err
	}
	return req.ID(), nil
}
