package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

const checkTimeout = 5 * time.Second

// probeISBN is looked up to confirm the lookup service answers.
const probeISBN = "9780306406157"

var checkClient = &http.Client{Timeout: checkTimeout}

// CheckZotero verifies that the remote library is reachable and the API key
// belongs to the configured user.
func CheckZotero(ctx context.Context, baseURL, userID, apiKey string) Result {
	const name = "Zotero"

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	switch {
	case base == "":
		return Result{Name: name, Detail: "missing url"}
	case strings.TrimSpace(userID) == "":
		return Result{Name: name, Detail: "missing user id"}
	case strings.TrimSpace(apiKey) == "":
		return Result{Name: name, Detail: "missing api key"}
	}

	target := base + "/users/" + url.PathEscape(strings.TrimSpace(userID)) + "/keys/" + url.PathEscape(strings.TrimSpace(apiKey))
	// Same unversioned request the client issues for the key's access document.
	status, err := probe(ctx, target, map[string]string{
		"Zotero-API-Key": strings.TrimSpace(apiKey),
	})
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("key check failed (%s)", summarizeError(err))}
	}
	switch status {
	case http.StatusOK:
		return Result{Name: name, Passed: true, Detail: "Reachable, key valid"}
	case http.StatusForbidden, http.StatusNotFound:
		return Result{Name: name, Detail: "key rejected (invalid api key or user id)"}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("key check failed (%d)", status)}
	}
}

// CheckGoogleBooks verifies that the lookup service answers a volume search.
func CheckGoogleBooks(ctx context.Context, baseURL, apiKey string) Result {
	const name = "Google Books"

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing url"}
	}
	query := url.Values{}
	query.Set("q", "isbn:"+probeISBN)
	query.Set("maxResults", "1")
	if key := strings.TrimSpace(apiKey); key != "" {
		query.Set("key", key)
	}

	status, err := probe(ctx, base+"/volumes?"+query.Encode(), nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("search failed (%s)", summarizeError(err))}
	}
	switch status {
	case http.StatusOK:
		return Result{Name: name, Passed: true, Detail: "Reachable"}
	case http.StatusBadRequest, http.StatusForbidden:
		return Result{Name: name, Detail: "search rejected (check api key)"}
	case http.StatusTooManyRequests:
		return Result{Name: name, Detail: "quota exhausted"}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("search failed (%d)", status)}
	}
}

func probe(ctx context.Context, target string, header map[string]string) (int, error) {
	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, target, nil)
	if err != nil {
		return 0, err
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := checkClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// summarizeError produces a human-readable summary for failed probes.
func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return "unreachable"
	}
	return err.Error()
}
