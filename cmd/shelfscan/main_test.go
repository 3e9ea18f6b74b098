package main

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"shelfscan/internal/services"
)

func TestCLILookupPendingUpload(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"lookup", "978-0-306-40615-7"}, env.configPath)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	requireContains(t, out, "9780306406157")
	requireContains(t, out, "Signal Processing")
	requireContains(t, out, "stored")

	out, _, err = runCLI(t, []string{"pending", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	var items []pendingItem
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatalf("decode pending output %q: %v", out, err)
	}
	if len(items) != 1 || items[0].ISBN != "9780306406157" || items[0].Title != "Signal Processing" || items[0].Status != "pending" {
		t.Fatalf("pending = %+v", items)
	}

	out, _, err = runCLI(t, []string{"upload"}, env.configPath)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	requireContains(t, out, "Uploaded 1 of 1 item(s) to library")
	uploads := env.services.uploaded()
	if len(uploads) != 1 || !strings.HasPrefix(uploads[0], "/zotero/users/12345/items ") {
		t.Fatalf("uploads = %v", uploads)
	}
	requireContains(t, uploads[0], `"title":"Signal Processing"`)

	out, _, err = runCLI(t, []string{"pending"}, env.configPath)
	if err != nil {
		t.Fatalf("pending after upload: %v", err)
	}
	requireContains(t, out, "No pending items")
}

func TestCLILookupReportsFailures(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"lookup", "--json", "0306406152", "080442957X"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "1 of 2 lookups failed") {
		t.Fatalf("expected partial failure, got %v", err)
	}
	var results []lookupResult
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("decode lookup output %q: %v", out, err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %+v", results)
	}
	if results[0].ISBN != "0306406152" || results[0].Error != "" || results[0].ItemID == 0 {
		t.Fatalf("first result = %+v", results[0])
	}
	if results[1].ISBN != "080442957X" || results[1].Error != "not found" {
		t.Fatalf("second result = %+v", results[1])
	}
}

func TestCLILookupPrintsMetrics(t *testing.T) {
	env := setupCLITestEnv(t)

	out, errOut, err := runCLI(t, []string{"lookup", "--json", "--metrics", "9780306406157"}, env.configPath)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	var results []lookupResult
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("metrics leaked into JSON output %q: %v", out, err)
	}
	requireContains(t, errOut, "Metric")
	requireContains(t, errOut, "requests_enqueued_total")
	requireContains(t, errOut, "outcomes_total")
	requireContains(t, errOut, "kind=success")
	requireContains(t, errOut, "request_duration_seconds_count")

	quiet := setupCLITestEnv(t)
	_, errOut, err = runCLI(t, []string{"lookup", "9780306406157"}, quiet.configPath)
	if err != nil {
		t.Fatalf("lookup without metrics: %v", err)
	}
	if strings.Contains(errOut, "requests_enqueued_total") {
		t.Fatalf("metrics printed without --metrics: %q", errOut)
	}
}

func TestGatherMetricRows(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shelfscan", Subsystem: "dispatch", Name: "outcomes_total", Help: "h",
	}, []string{"kind"})
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "other_gauge", Help: "h"})
	reg.MustRegister(counter, gauge)
	counter.WithLabelValues("success").Add(2)
	counter.WithLabelValues("failure").Inc()
	gauge.Set(3)

	rows, err := gatherMetricRows(reg)
	if err != nil {
		t.Fatalf("gatherMetricRows: %v", err)
	}
	want := []metricRow{
		{Name: "other_gauge", Value: 3},
		{Name: "outcomes_total", Labels: "kind=failure", Value: 1},
		{Name: "outcomes_total", Labels: "kind=success", Value: 2},
	}
	if len(rows) != len(want) {
		t.Fatalf("rows = %+v", rows)
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Fatalf("row %d = %+v, want %+v", i, rows[i], want[i])
		}
	}
}

func TestCLILookupRejectsInvalidISBN(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"lookup", "12345"}, env.configPath)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if n := env.services.count("volumes"); n != 0 {
		t.Fatalf("expected no lookups, got %d", n)
	}
}

func TestCLIUploadToGroup(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"upload", "--group", "42", "9780306406157"}, env.configPath)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	requireContains(t, out, "Signal Processing")
	requireContains(t, out, "Uploaded 1 of 1 item(s) to group:42")
	uploads := env.services.uploaded()
	if len(uploads) != 1 || !strings.HasPrefix(uploads[0], "/zotero/groups/42/items ") {
		t.Fatalf("uploads = %v", uploads)
	}
}

func TestCLIUploadWithoutWriteAccess(t *testing.T) {
	env := setupCLITestEnv(t)
	env.services.setKeyBody(`<key key="test-key"><access library="1"/></key>`)

	_, _, err := runCLI(t, []string{"upload"}, env.configPath)
	if !errors.Is(err, services.ErrAuthorizationDenied) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	if n := env.services.count("items"); n != 0 {
		t.Fatalf("expected no uploads, got %d", n)
	}
}

func TestCLIUploadNothingPending(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"upload"}, env.configPath)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	requireContains(t, out, "Nothing to upload")
}

func TestCLIPermissionsAreStored(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"permissions", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("permissions: %v", err)
	}
	var views []permissionView
	if err := json.Unmarshal([]byte(out), &views); err != nil {
		t.Fatalf("decode permissions %q: %v", out, err)
	}
	if len(views) != 2 || views[0].Scope != "library" || views[1].Scope != "group:42" {
		t.Fatalf("permissions = %+v", views)
	}
	requireContains(t, views[0].Permissions, "write")

	if _, _, err := runCLI(t, []string{"permissions"}, env.configPath); err != nil {
		t.Fatalf("permissions again: %v", err)
	}
	if n := env.services.count("keys"); n != 1 {
		t.Fatalf("expected stored permissions to be reused, key fetched %d times", n)
	}

	if _, _, err := runCLI(t, []string{"permissions", "--refresh"}, env.configPath); err != nil {
		t.Fatalf("permissions --refresh: %v", err)
	}
	if n := env.services.count("keys"); n != 2 {
		t.Fatalf("expected refresh to fetch, key fetched %d times", n)
	}

	out, _, err = runCLI(t, []string{"permissions", "--erase"}, env.configPath)
	if err != nil {
		t.Fatalf("permissions --erase: %v", err)
	}
	requireContains(t, out, "Stored permissions erased")
	if _, _, err := runCLI(t, []string{"permissions"}, env.configPath); err != nil {
		t.Fatalf("permissions after erase: %v", err)
	}
	if n := env.services.count("keys"); n != 3 {
		t.Fatalf("expected erase to force a fetch, key fetched %d times", n)
	}
}

func TestCLIPermissionsDenied(t *testing.T) {
	env := setupCLITestEnv(t)
	env.services.setKeyBody(`<key key="test-key"><access library="1"/></key>`)

	_, _, err := runCLI(t, []string{"permissions"}, env.configPath)
	if !errors.Is(err, services.ErrAuthorizationDenied) {
		t.Fatalf("expected authorization error, got %v", err)
	}
}

func TestCLIGroups(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"groups", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("groups: %v", err)
	}
	var views []targetView
	if err := json.Unmarshal([]byte(out), &views); err != nil {
		t.Fatalf("decode groups %q: %v", out, err)
	}
	if len(views) != 2 {
		t.Fatalf("groups = %+v", views)
	}
	if views[0].Target != "library" || views[0].Title != "My Library" {
		t.Fatalf("library target = %+v", views[0])
	}
	if views[1].Target != "group:42" || views[1].Title != "Reading Group" {
		t.Fatalf("group target = %+v", views[1])
	}
}

func TestCLICollection(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"collection", "To Read"}, env.configPath)
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	requireContains(t, out, `Created collection "To Read" (key COLL1234)`)
}

func TestCLIDiscard(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"lookup", "9780306406157"}, env.configPath); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	out, _, err := runCLI(t, []string{"pending", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	var items []pendingItem
	if err := json.Unmarshal([]byte(out), &items); err != nil || len(items) != 1 {
		t.Fatalf("pending = %q, %v", out, err)
	}

	out, _, err = runCLI(t, []string{"discard", "abc"}, env.configPath)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v (%s)", err, out)
	}

	out, _, err = runCLI(t, []string{"discard", strconv.FormatInt(items[0].ID, 10)}, env.configPath)
	if err != nil {
		t.Fatalf("discard: %v", err)
	}
	requireContains(t, out, "Discarded 1 item(s)")
}

func TestCLIRequiresZoteroAccount(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Zotero.UserID = ""
	env.cfg.Zotero.APIKey = ""
	writeTestConfig(t, env.configPath, env.cfg)
	t.Setenv("ZOTERO_USER_ID", "")
	t.Setenv("ZOTERO_API_KEY", "")

	_, _, err := runCLI(t, []string{"pending"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "zotero.user_id and zotero.api_key are required") {
		t.Fatalf("expected missing account error, got %v", err)
	}
}

func TestCLIStatus(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v\n%s", err, out)
	}
	requireContains(t, out, "== Configuration ==")
	requireContains(t, out, env.configPath)
	requireContains(t, out, "[OK] User 12345")
	requireContains(t, out, "== Checks ==")
	requireContains(t, out, "Zotero")
	requireContains(t, out, "Reachable, key valid")
	requireContains(t, out, "== Records ==")
	requireContains(t, out, "Pending items:")
}
