package googlebooks_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"shelfscan/internal/dispatch"
	"shelfscan/internal/googlebooks"
	"shelfscan/internal/logging"
	"shelfscan/internal/records"
	"shelfscan/internal/services"
	"shelfscan/internal/testsupport"
)

type result struct {
	id   string
	code string
	rec  *records.Record
	err  error
}

type consumer struct {
	mu      sync.Mutex
	results []result
}

func (c *consumer) PostLookupResult(requestID, code string, rec *records.Record, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, result{id: requestID, code: code, rec: rec, err: err})
}

func (c *consumer) snapshot() []result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]result(nil), c.results...)
}

const volume = `{"kind":"books#volumes","totalItems":1,"items":[{"volumeInfo":{"title":"Go","authors":["A"]}}]}`

func newClient(t *testing.T, transport dispatch.Transport, apiKey string) (*googlebooks.Client, *dispatch.Handler) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithGoogleBooksURL("https://books.test/v1/"))
	cfg.GoogleBooks.APIKey = apiKey
	handler := googlebooks.NewHandler(logging.NewNop())
	client, err := googlebooks.New(cfg.GoogleBooks, testsupport.StartQueue(t, transport), handler)
	if err != nil {
		t.Fatalf("googlebooks.New: %v", err)
	}
	return client, handler
}

func TestLookupBuildsRequestAndPostsRecord(t *testing.T) {
	transport := testsupport.NewTransport().Respond("https://books.test/v1/volumes", testsupport.Reply{Status: 200, Body: volume})
	client, handler := newClient(t, transport, "gb-key")
	c := &consumer{}
	handler.Bind(c)

	id, err := client.Lookup("978-0-306-40615-7")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	testsupport.WaitFor(t, "lookup result", func() bool { return len(c.snapshot()) == 1 })

	got := c.snapshot()[0]
	if got.err != nil || got.code != "9780306406157" || got.rec == nil || got.rec.Title != "Go" {
		t.Fatalf("result = %+v", got)
	}
	if got.id != id {
		t.Fatalf("result request id = %q, want %q", got.id, id)
	}

	reqs := transport.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected one request, got %d", len(reqs))
	}
	req := reqs[0]
	if req.ID() != id || req.Method() != dispatch.MethodGet {
		t.Fatalf("request = %s %s", req.Method(), req.ID())
	}
	if req.CorrelationID() != "lookup:9780306406157" || req.ExtraValue(googlebooks.ExtraISBN) != "9780306406157" {
		t.Fatalf("correlation = %q extra = %v", req.CorrelationID(), req.Extra())
	}
	if !strings.Contains(req.Target(), "q=isbn%3A9780306406157") || !strings.Contains(req.Target(), "key=gb-key") {
		t.Fatalf("target = %q", req.Target())
	}
}

func TestLookupRejectsInvalidISBN(t *testing.T) {
	client, _ := newClient(t, testsupport.NewTransport(), "")
	if _, err := client.Lookup("12345"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLookupReportsFailuresAndExceptions(t *testing.T) {
	transport := testsupport.NewTransport().
		Respond("https://books.test/v1/volumes?q=isbn%3A9780306406157", testsupport.Reply{Status: 503}).
		Respond("https://books.test/v1/volumes?q=isbn%3A0306406152", testsupport.Reply{Err: errors.New("dial refused")}).
		Respond("https://books.test/v1/volumes?q=isbn%3A080442957X", testsupport.Reply{Status: 200, Body: `{"kind":"books#volumes","totalItems":0}`})
	client, handler := newClient(t, transport, "")
	c := &consumer{}

	for _, code := range []string{"9780306406157", "0306406152", "080442957X"} {
		if _, err := client.Lookup(code); err != nil {
			t.Fatalf("Lookup(%s): %v", code, err)
		}
	}
	handler.Bind(c)
	testsupport.WaitFor(t, "three results", func() bool { return len(c.snapshot()) == 3 })

	got := c.snapshot()
	var status *services.StatusError
	if got[0].code != "9780306406157" || !errors.As(got[0].err, &status) || status.Code != 503 {
		t.Fatalf("failure result = %+v", got[0])
	}
	if got[1].code != "0306406152" || !errors.Is(got[1].err, services.ErrTransport) {
		t.Fatalf("exception result = %+v", got[1])
	}
	if got[2].code != "080442957X" || !errors.Is(got[2].err, services.ErrNotFound) || got[2].rec != nil {
		t.Fatalf("not found result = %+v", got[2])
	}
}

func TestLookupOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/volumes" || r.URL.Query().Get("q") != "isbn:0306406152" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(volume))
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithGoogleBooksURL(srv.URL))
	transport := dispatch.NewHTTPTransport(dispatch.HTTPOptions{Client: srv.Client(), Logger: logging.NewNop()})
	handler := googlebooks.NewHandler(logging.NewNop())
	client, err := googlebooks.New(cfg.GoogleBooks, testsupport.StartQueue(t, transport), handler)
	if err != nil {
		t.Fatalf("googlebooks.New: %v", err)
	}
	c := &consumer{}
	handler.Bind(c)

	if _, err := client.Lookup("0306406152"); err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	testsupport.WaitFor(t, "lookup result", func() bool { return len(c.snapshot()) == 1 })
	if got := c.snapshot()[0]; got.err != nil || got.rec.Creators[0].Name != "A" {
		t.Fatalf("result = %+v", got)
	}
}
