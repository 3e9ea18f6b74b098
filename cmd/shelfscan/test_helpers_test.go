package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"shelfscan/internal/config"
	"shelfscan/internal/testsupport"
)

const volumesBody = `{
  "kind": "books#volumes",
  "totalItems": 1,
  "items": [{
    "volumeInfo": {
      "title": "Signal Processing",
      "authors": ["Ada Example"],
      "publisher": "Example Press",
      "publishedDate": "1984",
      "industryIdentifiers": [{"type": "ISBN_13", "identifier": "9780306406157"}],
      "language": "en"
    }
  }]
}`

const keyBody = `<key key="test-key"><access library="1" write="1"/><access group="42" write="1"/></key>`

// fakeServices serves the Zotero and Google Books endpoints the CLI talks to.
type fakeServices struct {
	server *httptest.Server

	mu      sync.Mutex
	keyBody string
	uploads []string
	hits    map[string]int
}

func newFakeServices(t *testing.T) *fakeServices {
	t.Helper()
	f := &fakeServices{keyBody: keyBody, hits: make(map[string]int)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /zotero/users/12345/keys/test-key", func(w http.ResponseWriter, r *http.Request) {
		f.hit("keys")
		f.mu.Lock()
		body := f.keyBody
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/xml")
		io.WriteString(w, body)
	})
	mux.HandleFunc("GET /zotero/users/12345/groups", func(w http.ResponseWriter, r *http.Request) {
		f.hit("groups")
		io.WriteString(w, `[{"id":42,"data":{"name":"Reading Group"}}]`)
	})
	mux.HandleFunc("POST /zotero/users/12345/items", f.upload)
	mux.HandleFunc("POST /zotero/groups/42/items", f.upload)
	mux.HandleFunc("POST /zotero/users/12345/collections", func(w http.ResponseWriter, r *http.Request) {
		f.hit("collections")
		io.WriteString(w, `{"success":{"0":"COLL1234"},"unchanged":{},"failed":{}}`)
	})
	mux.HandleFunc("GET /books/volumes", func(w http.ResponseWriter, r *http.Request) {
		f.hit("volumes")
		switch r.URL.Query().Get("q") {
		case "isbn:9780306406157", "isbn:0306406152":
			io.WriteString(w, volumesBody)
		default:
			io.WriteString(w, `{"kind":"books#volumes","totalItems":0}`)
		}
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeServices) upload(w http.ResponseWriter, r *http.Request) {
	f.hit("items")
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.uploads = append(f.uploads, r.URL.Path+" "+string(body))
	f.mu.Unlock()
	io.WriteString(w, `{"success":{"0":"ITEM0001"},"unchanged":{},"failed":{}}`)
}

func (f *fakeServices) hit(name string) {
	f.mu.Lock()
	f.hits[name]++
	f.mu.Unlock()
}

func (f *fakeServices) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[name]
}

func (f *fakeServices) uploaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.uploads...)
}

func (f *fakeServices) setKeyBody(body string) {
	f.mu.Lock()
	f.keyBody = body
	f.mu.Unlock()
}

type cliTestEnv struct {
	cfg        *config.Config
	services   *fakeServices
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	services := newFakeServices(t)
	cfg := testsupport.NewConfig(t,
		testsupport.WithZoteroURL(services.server.URL+"/zotero"),
		testsupport.WithGoogleBooksURL(services.server.URL+"/books"),
	)
	cfg.Logging.Level = "error"
	cfg.Dispatch.RatePerSecond = 100
	cfg.Dispatch.Burst = 100

	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, services: services, configPath: configPath}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	testsupport.WriteFile(t, path, data)
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
