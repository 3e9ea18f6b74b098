package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"shelfscan/internal/access"
	"shelfscan/internal/dispatch"
	"shelfscan/internal/googlebooks"
	"shelfscan/internal/logging"
	"shelfscan/internal/services"
	"shelfscan/internal/session"
	"shelfscan/internal/store"
	"shelfscan/internal/testsupport"
	"shelfscan/internal/zotero"
)

const (
	zoteroURL = "https://zotero.test"
	booksURL  = "https://books.test/v1"
	volume    = `{"kind":"books#volumes","totalItems":1,"items":[{"volumeInfo":{"title":"Go","authors":["A"],"pageCount":12}}]}`
)

type fixture struct {
	store     *store.Store
	key       store.Key
	transport *testsupport.Transport
	queue     *dispatch.Queue
	zotero    *dispatch.Handler
	books     *dispatch.Handler
	session   *session.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithZoteroURL(zoteroURL), testsupport.WithGoogleBooksURL(booksURL))
	st := testsupport.MustOpenStore(t, cfg)
	key := testsupport.SaveKey(t, st, cfg)
	transport := testsupport.NewTransport()
	q := testsupport.StartQueue(t, transport)
	nop := logging.NewNop()

	zh := zotero.NewHandler(zotero.HandlerDeps{Access: st, Groups: st, Logger: nop})
	gh := googlebooks.NewHandler(nop)
	ref := access.KeyRef{ID: key.ID, Key: key.Key}
	account, err := zotero.NewAccount(cfg.Zotero, ref)
	if err != nil {
		t.Fatalf("NewAccount: %v", err)
	}
	zc, err := zotero.New(cfg.Zotero, account, q, zh)
	if err != nil {
		t.Fatalf("zotero.New: %v", err)
	}
	gc, err := googlebooks.New(cfg.GoogleBooks, q, gh)
	if err != nil {
		t.Fatalf("googlebooks.New: %v", err)
	}
	s, err := session.New(session.Deps{Key: ref, Store: st, Library: zc, Lookups: gc, Queue: q, Logger: nop})
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	zh.Bind(s)
	gh.Bind(s)
	t.Cleanup(func() {
		zh.Unbind()
		gh.Unbind()
	})
	return &fixture{store: st, key: key, transport: transport, queue: q, zotero: zh, books: gh, session: s}
}

func next(t *testing.T, s *session.Session, want session.EventKind) session.Event {
	t.Helper()
	select {
	case ev := <-s.Events():
		if ev.Kind != want {
			t.Fatalf("event = %s (%+v), want %s", ev.Kind, ev, want)
		}
		return ev
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s event", want)
		return session.Event{}
	}
}

func quiet(t *testing.T, s *session.Session) {
	t.Helper()
	select {
	case ev := <-s.Events():
		t.Fatalf("unexpected event %s (%+v)", ev.Kind, ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func writable(entries ...access.Entry) *access.Access {
	acc := access.New(access.UnpersistedKey("test-key"), entries)
	return &acc
}

func TestNewRequiresPersistedKey(t *testing.T) {
	_, err := session.New(session.Deps{Key: access.UnpersistedKey("k")})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLookupAuthorizationsFetchesAndLoadsGroups(t *testing.T) {
	f := newFixture(t)
	f.transport.
		Respond(zoteroURL+"/users/12345/keys/test-key", testsupport.Reply{Status: 200, Body: `
			<key key="test-key"><access library="1" write="1"/><access group="42" write="1"/></key>`}).
		Respond(zoteroURL+"/users/12345/groups", testsupport.Reply{Status: 200, Body: `[{"id":42,"data":{"name":"Reading Group"}}]`})

	if err := f.session.LookupAuthorizations(context.Background()); err != nil {
		t.Fatalf("LookupAuthorizations: %v", err)
	}

	perms := next(t, f.session, session.EventPermissions)
	if !perms.Access.CanWriteLibrary() || perms.Access.Key().ID != f.key.ID {
		t.Fatalf("access = %+v", perms.Access)
	}
	placeholder := next(t, f.session, session.EventGroups)
	if !placeholder.Fetching || placeholder.Targets[access.ScopeLibrary] != session.LibraryTitle || placeholder.Targets[42] != "<42>" {
		t.Fatalf("targets = %v", placeholder.Targets)
	}
	titled := next(t, f.session, session.EventGroups)
	if titled.Targets[42] != "Reading Group" {
		t.Fatalf("targets = %v", titled.Targets)
	}
	if got := f.session.Targets(); len(got) != 2 {
		t.Fatalf("Targets = %v", got)
	}

	entries, err := f.store.QueryScopesForKey(context.Background(), f.key.ID)
	if err != nil || len(entries) != 2 {
		t.Fatalf("stored scopes = %v, %v", entries, err)
	}
}

func TestLookupAuthorizationsUsesStoredAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.store.InsertOrReplaceScopes(ctx, f.key.ID, []access.Entry{{Scope: access.ScopeLibrary, Perm: access.Read | access.Write}}); err != nil {
		t.Fatalf("InsertOrReplaceScopes: %v", err)
	}

	if err := f.session.LookupAuthorizations(ctx); err != nil {
		t.Fatalf("LookupAuthorizations: %v", err)
	}
	next(t, f.session, session.EventPermissions)
	groups := next(t, f.session, session.EventGroups)
	if groups.Fetching || len(groups.Targets) != 1 || groups.Targets[access.ScopeLibrary] != session.LibraryTitle {
		t.Fatalf("targets = %v", groups.Targets)
	}
	if n := len(f.transport.Requests()); n != 0 {
		t.Fatalf("expected no remote requests, got %d", n)
	}
}

func TestReadOnlyKeyIsDenied(t *testing.T) {
	f := newFixture(t)
	f.transport.Respond(zoteroURL+"/users/12345/keys/", testsupport.Reply{Status: 200, Body: `<key key="test-key"><access library="1"/></key>`})

	if err := f.session.RefreshPermissions(); err != nil {
		t.Fatalf("RefreshPermissions: %v", err)
	}
	ev := next(t, f.session, session.EventDenied)
	if !errors.Is(ev.Err, services.ErrAuthorizationDenied) || ev.Access == nil {
		t.Fatalf("denied event = %+v", ev)
	}
	if f.session.Access() != nil {
		t.Fatal("read-only access must not be kept")
	}
}

func TestUnreachablePermissionsAreDeniedAndSurfaced(t *testing.T) {
	f := newFixture(t)
	f.transport.Respond(zoteroURL+"/users/12345/keys/", testsupport.Reply{Status: 503})

	if err := f.session.RefreshPermissions(); err != nil {
		t.Fatalf("RefreshPermissions: %v", err)
	}
	denied := next(t, f.session, session.EventDenied)
	if !errors.Is(denied.Err, session.ErrPermissionsUnavailable) {
		t.Fatalf("denied = %+v", denied)
	}
	failure := next(t, f.session, session.EventFailure)
	if failure.RequestID != zotero.IDPermissions || !services.Retryable(failure.Err) {
		t.Fatalf("failure = %+v", failure)
	}
}

func TestScanStoresLookedUpItem(t *testing.T) {
	f := newFixture(t)
	f.transport.Respond(booksURL+"/volumes", testsupport.Reply{Status: 200, Body: volume})

	f.books.Unbind()
	if err := f.session.Scan("978-0-306-40615-7"); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if err := f.session.Scan("9780306406157"); err != nil {
		t.Fatalf("duplicate Scan: %v", err)
	}
	if got := f.session.Pending(); len(got) != 1 || got[0].ISBN != "9780306406157" || got[0].RequestID == "" {
		t.Fatalf("Pending = %+v", got)
	}
	f.books.Bind(f.session)

	ev := next(t, f.session, session.EventLookup)
	if ev.Err != nil || ev.Record.Title != "Go" || ev.ItemID == 0 {
		t.Fatalf("lookup = %+v", ev)
	}
	quiet(t, f.session)
	if n := len(f.transport.Requests()); n != 1 {
		t.Fatalf("duplicate scan issued %d requests", n)
	}
	if len(f.session.Pending()) != 0 {
		t.Fatal("answered lookup still pending")
	}
	items, err := f.store.PendingItems(context.Background(), f.key.ID)
	if err != nil || len(items) != 1 || items[0].ISBN != "9780306406157" {
		t.Fatalf("items = %+v, %v", items, err)
	}
}

func TestScanRejectsInvalidISBN(t *testing.T) {
	f := newFixture(t)
	if err := f.session.Scan("9780306406158"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFailedLookupStaysPendingUntilRescanned(t *testing.T) {
	f := newFixture(t)
	f.transport.Respond(booksURL+"/volumes", testsupport.Reply{Status: 500})

	if err := f.session.Scan("0306406152"); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	ev := next(t, f.session, session.EventLookup)
	if ev.Err == nil {
		t.Fatal("expected lookup failure")
	}
	pending := f.session.Pending()
	if len(pending) != 1 || pending[0].Status != "status 500: Internal Server Error" {
		t.Fatalf("Pending = %+v", pending)
	}

	f.transport.Respond(booksURL+"/volumes", testsupport.Reply{Status: 200, Body: volume})
	if err := f.session.Scan("0306406152"); err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if ev := next(t, f.session, session.EventLookup); ev.Err != nil {
		t.Fatalf("retry = %+v", ev)
	}
	if len(f.session.Pending()) != 0 {
		t.Fatal("retried lookup still pending")
	}
}

func TestCancelledLookupResultIsDiscarded(t *testing.T) {
	f := newFixture(t)
	f.transport.Respond(booksURL+"/volumes", testsupport.Reply{Status: 200, Body: volume})

	f.books.Unbind()
	if err := f.session.Scan("0306406152"); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	testsupport.WaitFor(t, "buffered result", func() bool { return f.books.Buffered() == 2 })
	if !f.session.CancelLookup("0-306-40615-2") {
		t.Fatal("CancelLookup reported nothing pending")
	}
	if f.session.CancelLookup("0306406152") {
		t.Fatal("second CancelLookup should report nothing pending")
	}
	f.books.Bind(f.session)

	quiet(t, f.session)
	items, err := f.store.PendingItems(context.Background(), f.key.ID)
	if err != nil || len(items) != 0 {
		t.Fatalf("items = %+v, %v", items, err)
	}
}

func TestRescanIgnoresResultOfCancelledRequest(t *testing.T) {
	f := newFixture(t)
	stale := `{"kind":"books#volumes","totalItems":1,"items":[{"volumeInfo":{"title":"Stale"}}]}`
	fresh := `{"kind":"books#volumes","totalItems":1,"items":[{"volumeInfo":{"title":"Fresh"}}]}`
	f.transport.Respond(booksURL+"/volumes", testsupport.Reply{Status: 200, Body: stale})

	f.books.Unbind()
	if err := f.session.Scan("0306406152"); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	testsupport.WaitFor(t, "first result", func() bool { return f.books.Buffered() == 2 })
	if !f.session.CancelLookup("0306406152") {
		t.Fatal("CancelLookup reported nothing pending")
	}

	f.transport.Respond(booksURL+"/volumes", testsupport.Reply{Status: 200, Body: fresh})
	if err := f.session.Scan("0306406152"); err != nil {
		t.Fatalf("rescan: %v", err)
	}
	testsupport.WaitFor(t, "second result", func() bool { return f.books.Buffered() == 4 })
	f.books.Bind(f.session)

	ev := next(t, f.session, session.EventLookup)
	if ev.Err != nil || ev.Record == nil || ev.Record.Title != "Fresh" {
		t.Fatalf("lookup = %+v", ev)
	}
	quiet(t, f.session)
	items, err := f.store.PendingItems(context.Background(), f.key.ID)
	if err != nil || len(items) != 1 {
		t.Fatalf("items = %+v, %v", items, err)
	}
}

func TestUploadMarksItemsAndSkipsInFlight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.transport.Respond(zoteroURL+"/users/12345/items", testsupport.Reply{Status: 200, Body: `{"success":{"0":"AAAA","1":"BBBB"}}`})

	f.session.PostPermissions(writable(access.Entry{Scope: access.ScopeLibrary, Perm: access.Read | access.Write}))
	next(t, f.session, session.EventPermissions)
	next(t, f.session, session.EventGroups)

	for _, code := range []string{"0306406152", "9780306406157"} {
		if _, err := f.store.AddItem(ctx, f.key.ID, code, []byte(`{"itemType":"book","title":"T `+code+`"}`)); err != nil {
			t.Fatalf("AddItem: %v", err)
		}
	}

	f.zotero.Unbind()
	n, err := f.session.Upload(ctx, zotero.Library())
	if err != nil || n != 2 {
		t.Fatalf("Upload = %d, %v", n, err)
	}
	if n, err := f.session.Upload(ctx, zotero.Library()); err != nil || n != 0 {
		t.Fatalf("second Upload = %d, %v", n, err)
	}
	f.zotero.Bind(f.session)

	ev := next(t, f.session, session.EventUpload)
	if ev.Err != nil || len(ev.Upload.Uploaded) != 2 {
		t.Fatalf("upload = %+v", ev.Upload)
	}
	items, err := f.store.PendingItems(ctx, f.key.ID)
	if err != nil || len(items) != 0 {
		t.Fatalf("pending after upload = %+v, %v", items, err)
	}
}

func TestUploadFailureMarksItemsFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.transport.Respond(zoteroURL+"/users/12345/items", testsupport.Reply{Status: 403})

	f.session.PostPermissions(writable(access.Entry{Scope: access.ScopeLibrary, Perm: access.Read | access.Write}))
	next(t, f.session, session.EventPermissions)
	next(t, f.session, session.EventGroups)

	item, err := f.store.AddItem(ctx, f.key.ID, "0306406152", []byte(`{"itemType":"book","title":"T"}`))
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if _, err := f.session.Upload(ctx, zotero.Library()); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	ev := next(t, f.session, session.EventUpload)
	if ev.Err == nil || ev.Upload.Failed[item.ID] == "" {
		t.Fatalf("upload = %+v", ev.Upload)
	}
	got, err := f.store.ItemByID(ctx, item.ID)
	if err != nil || got.Status != store.ItemFailed || got.ErrorMessage != "status 403: Forbidden" {
		t.Fatalf("item = %+v, %v", got, err)
	}
}

func TestUploadRequiresWriteAccess(t *testing.T) {
	f := newFixture(t)
	if _, err := f.session.Upload(context.Background(), zotero.Library()); !errors.Is(err, services.ErrAuthorizationDenied) {
		t.Fatalf("no access: %v", err)
	}

	f.session.PostPermissions(writable(access.Entry{Scope: access.ScopeLibrary, Perm: access.Read | access.Write}))
	next(t, f.session, session.EventPermissions)
	next(t, f.session, session.EventGroups)
	if _, err := f.session.Upload(context.Background(), zotero.Group(42)); !errors.Is(err, services.ErrAuthorizationDenied) {
		t.Fatalf("unwritable group: %v", err)
	}
}

func TestErasePermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.store.InsertOrReplaceScopes(ctx, f.key.ID, []access.Entry{{Scope: access.ScopeLibrary, Perm: access.Read | access.Write}}); err != nil {
		t.Fatalf("InsertOrReplaceScopes: %v", err)
	}
	if err := f.session.LookupAuthorizations(ctx); err != nil {
		t.Fatalf("LookupAuthorizations: %v", err)
	}
	next(t, f.session, session.EventPermissions)
	next(t, f.session, session.EventGroups)

	if err := f.session.ErasePermissions(ctx); err != nil {
		t.Fatalf("ErasePermissions: %v", err)
	}
	if f.session.Access() != nil || len(f.session.Targets()) != 0 {
		t.Fatal("in-memory access survived erase")
	}
	entries, err := f.store.QueryScopesForKey(ctx, f.key.ID)
	if err != nil || len(entries) != 0 {
		t.Fatalf("stored scopes = %v, %v", entries, err)
	}
}

func TestNewCollectionEvent(t *testing.T) {
	f := newFixture(t)
	f.transport.Respond(zoteroURL+"/users/12345/collections", testsupport.Reply{Status: 200, Body: `{"success":{"0":"COLL"}}`})
	if err := f.session.NewCollection("Shelf", ""); err != nil {
		t.Fatalf("NewCollection: %v", err)
	}
	if ev := next(t, f.session, session.EventCollection); ev.Collection != "COLL" || ev.Err != nil {
		t.Fatalf("collection = %+v", ev)
	}
}
