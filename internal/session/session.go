package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"maps"
	"sort"
	"strconv"
	"sync"
	"time"

	"shelfscan/internal/access"
	"shelfscan/internal/googlebooks"
	"shelfscan/internal/isbn"
	"shelfscan/internal/logging"
	"shelfscan/internal/records"
	"shelfscan/internal/services"
	"shelfscan/internal/store"
	"shelfscan/internal/zotero"
)

// LibraryTitle is the display title of the personal library target.
const LibraryTitle = "My Library"

const (
	defaultEventBuffer  = 256
	defaultStoreTimeout = 5 * time.Second
)

// ErrPermissionsUnavailable is reported with EventDenied when the key's
// access could not be fetched or read.
var ErrPermissionsUnavailable = errors.New("permissions unavailable")

// Store is the record store a session reads and writes.
type Store interface {
	access.Store
	ErasePermissions(ctx context.Context, keyID int64) error
	GroupTitles(ctx context.Context, ids []int) (map[int]string, error)
	MissingGroups(ctx context.Context, ids []int) ([]int, error)
	UpsertGroupTitles(ctx context.Context, titles map[int]string) error
	AddItem(ctx context.Context, keyID int64, isbn string, payload []byte) (store.Item, error)
	PendingItems(ctx context.Context, keyID int64) ([]store.Item, error)
	MarkItems(ctx context.Context, ids []int64, status store.ItemStatus, message string) error
	DeleteItems(ctx context.Context, ids []int64) (int64, error)
}

// Library issues remote library requests. *zotero.Client implements it.
type Library interface {
	GetPermissions() (string, error)
	GetGroups() (string, error)
	AddItems(recs []records.Record, itemIDs []int64, target zotero.Target, acc access.Access) (string, error)
	NewCollection(name, parent string) (string, error)
}

// Lookups issues ISBN lookups. *googlebooks.Client implements it.
type Lookups interface {
	Lookup(code string) (string, error)
}

// Canceler withdraws queued requests. *dispatch.Queue implements it.
type Canceler interface {
	Cancel(requestID string) bool
}

// Deps are the collaborators of a Session.
type Deps struct {
	Key     access.KeyRef
	Store   Store
	Library Library
	Lookups Lookups
	Queue   Canceler
	Logger  *slog.Logger
	// EventBuffer sizes the events channel. Events are dropped, with a
	// warning, when nobody drains it.
	EventBuffer int
}

// PendingLookup is an ISBN whose lookup has not produced an item.
type PendingLookup struct {
	ISBN      string
	RequestID string
	// Status is empty while the lookup is in flight and holds a short failure
	// reason afterwards.
	Status string
	Err    error
}

// Session implements zotero.Consumer and googlebooks.Consumer.
type Session struct {
	key     access.KeyRef
	store   Store
	library Library
	lookups Lookups
	queue   Canceler
	logger  *slog.Logger
	events  chan Event

	mu        sync.Mutex
	access    *access.Access
	targets   map[int]string
	pending   map[string]*PendingLookup
	uploading map[int64]struct{}
}

var (
	_ zotero.Consumer      = (*Session)(nil)
	_ googlebooks.Consumer = (*Session)(nil)
)

// New creates a session for a persisted key.
func New(deps Deps) (*Session, error) {
	if !deps.Key.Persisted() {
		return nil, services.Wrap(services.ErrValidation, "session", "new", "key must be saved before a session starts", nil)
	}
	if deps.Store == nil || deps.Library == nil || deps.Lookups == nil || deps.Queue == nil {
		return nil, services.Wrap(services.ErrConfiguration, "session", "new", "missing collaborator", nil)
	}
	buffer := deps.EventBuffer
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	return &Session{
		key:       deps.Key,
		store:     deps.Store,
		library:   deps.Library,
		lookups:   deps.Lookups,
		queue:     deps.Queue,
		logger:    logging.NewComponentLogger(deps.Logger, "session"),
		events:    make(chan Event, buffer),
		targets:   make(map[int]string),
		pending:   make(map[string]*PendingLookup),
		uploading: make(map[int64]struct{}),
	}, nil
}

// Events delivers session events in the order they happen.
func (s *Session) Events() <-chan Event { return s.events }

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		logging.WarnWithContext(s.logger, "session event dropped", "event_dropped",
			logging.String("kind", ev.Kind.String()),
		)
	}
}

func (s *Session) storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), defaultStoreTimeout)
}

// Access returns the current access, or nil before permissions are known.
func (s *Session) Access() *access.Access {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.access
}

// Targets returns the upload targets known so far, keyed by scope.
func (s *Session) Targets() map[int]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.targets)
}

// LookupAuthorizations loads the key's access from the store, fetching it
// from the remote library when nothing is stored.
func (s *Session) LookupAuthorizations(ctx context.Context) error {
	acc, err := access.FromStore(ctx, s.store, s.key)
	if err != nil {
		return err
	}
	if acc.Len() == 0 {
		s.logger.Debug("no stored permissions, fetching")
		_, err := s.library.GetPermissions()
		return err
	}
	s.PostPermissions(&acc)
	return nil
}

// RefreshPermissions fetches the key's access again.
func (s *Session) RefreshPermissions() error {
	_, err := s.library.GetPermissions()
	return err
}

// ErasePermissions forgets the stored and in-memory access of the key.
func (s *Session) ErasePermissions(ctx context.Context) error {
	if err := s.store.ErasePermissions(ctx, s.key.ID); err != nil {
		return err
	}
	s.mu.Lock()
	s.access = nil
	s.targets = make(map[int]string)
	s.mu.Unlock()
	return nil
}

// PostPermissions implements zotero.Consumer. Access that cannot write
// anywhere is reported as EventDenied.
func (s *Session) PostPermissions(acc *access.Access) {
	if acc == nil || !acc.CanWrite() {
		s.mu.Lock()
		s.access = nil
		s.targets = make(map[int]string)
		s.mu.Unlock()

		err := ErrPermissionsUnavailable
		if acc != nil {
			err = services.Wrap(services.ErrAuthorizationDenied, "session", "permissions", "key cannot write to any library", nil)
		}
		s.emit(Event{Kind: EventDenied, Access: acc, Err: err})
		return
	}

	held := *acc
	s.mu.Lock()
	s.access = &held
	s.mu.Unlock()
	s.emit(Event{Kind: EventPermissions, Access: &held})
	s.loadGroups(held)
}

// loadGroups rebuilds the upload targets for acc. Groups without a stored
// title get a "<id>" placeholder until the group listing arrives.
func (s *Session) loadGroups(acc access.Access) {
	targets := make(map[int]string)
	if acc.CanWriteLibrary() {
		targets[access.ScopeLibrary] = LibraryTitle
	}

	ids := acc.GroupIDs()
	allGroups := acc.Perm(access.ScopeAllGroups) != access.None
	fetch := allGroups
	if len(ids) > 0 {
		ctx, cancel := s.storeContext()
		known, err := s.store.GroupTitles(ctx, ids)
		if err != nil {
			s.logger.Warn("group titles unavailable", logging.Error(err))
		}
		maps.Copy(targets, known)

		missing, err := s.store.MissingGroups(ctx, ids)
		if err != nil {
			s.logger.Warn("group lookup failed", logging.Error(err))
		}
		if len(missing) > 0 {
			placeholders := make(map[int]string, len(missing))
			for _, id := range missing {
				placeholders[id] = "<" + strconv.Itoa(id) + ">"
			}
			if err := s.store.UpsertGroupTitles(ctx, placeholders); err != nil {
				s.logger.Warn("group placeholders not stored", logging.Error(err))
			}
			maps.Copy(targets, placeholders)
			fetch = true
		}
		cancel()
	}

	s.mu.Lock()
	s.targets = targets
	snapshot := maps.Clone(targets)
	s.mu.Unlock()
	s.emit(Event{Kind: EventGroups, Targets: snapshot, Fetching: fetch})

	if fetch {
		if _, err := s.library.GetGroups(); err != nil {
			s.logger.Warn("group listing not requested", logging.Error(err))
			s.emit(Event{Kind: EventFailure, RequestID: zotero.IDGroups, Err: err})
		}
	}
}

// PostGroups implements zotero.Consumer.
func (s *Session) PostGroups(titles map[int]string) {
	s.mu.Lock()
	if s.access == nil {
		s.mu.Unlock()
		return
	}
	allGroups := s.access.Perm(access.ScopeAllGroups) != access.None
	for id, title := range titles {
		if allGroups || s.access.Perm(id) != access.None {
			s.targets[id] = title
		}
	}
	snapshot := maps.Clone(s.targets)
	s.mu.Unlock()
	s.emit(Event{Kind: EventGroups, Targets: snapshot})
}

// Scan starts a lookup for raw. Scanning an ISBN that is already in flight
// is ignored; scanning one whose lookup failed retries it.
func (s *Session) Scan(raw string) error {
	code := isbn.Normalize(raw)
	if !isbn.Valid(code) {
		return services.Wrap(services.ErrValidation, "session", "scan", "invalid isbn "+raw, nil)
	}

	s.mu.Lock()
	if p, ok := s.pending[code]; ok && p.Err == nil {
		s.mu.Unlock()
		s.logger.Debug("duplicate scan ignored", logging.String("isbn", code))
		return nil
	}
	defer s.mu.Unlock()

	// The lock is held across enqueueing so the result, which needs it too,
	// always finds the request id recorded.
	id, err := s.lookups.Lookup(code)
	if err != nil {
		delete(s.pending, code)
		return err
	}
	s.pending[code] = &PendingLookup{ISBN: code, RequestID: id}
	return nil
}

// CancelLookup forgets a pending ISBN and withdraws its request if no worker
// has started it. A result that still arrives is discarded.
func (s *Session) CancelLookup(raw string) bool {
	code := isbn.Normalize(raw)
	s.mu.Lock()
	p, ok := s.pending[code]
	delete(s.pending, code)
	s.mu.Unlock()
	if !ok {
		return false
	}
	if p.RequestID != "" {
		s.queue.Cancel(p.RequestID)
	}
	return true
}

// Pending lists lookups that have not produced an item, sorted by ISBN.
func (s *Session) Pending() []PendingLookup {
	s.mu.Lock()
	out := make([]PendingLookup, 0, len(s.pending))
	for _, p := range s.pending {
		out = append(out, *p)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ISBN < out[j].ISBN })
	return out
}

// PostLookupResult implements googlebooks.Consumer. Results of requests that
// are no longer the live lookup for code are discarded.
func (s *Session) PostLookupResult(requestID, code string, rec *records.Record, err error) {
	s.mu.Lock()
	p, ok := s.pending[code]
	if !ok || p.RequestID != requestID {
		s.mu.Unlock()
		s.logger.Debug("discarding result for cancelled lookup",
			logging.String("isbn", code),
			logging.String(logging.FieldRequestID, requestID),
		)
		return
	}
	if err != nil || rec == nil {
		if err == nil {
			err = services.Wrap(services.ErrNotFound, "session", "lookup", "no record for "+code, nil)
		}
		p.Err = err
		p.Status = services.Classify(err)
		s.mu.Unlock()
		s.emit(Event{Kind: EventLookup, ISBN: code, Err: err})
		return
	}
	delete(s.pending, code)
	s.mu.Unlock()

	payload, err := json.Marshal(rec)
	var item store.Item
	if err == nil {
		ctx, cancel := s.storeContext()
		item, err = s.store.AddItem(ctx, s.key.ID, code, payload)
		cancel()
	}
	if err != nil {
		logging.ErrorWithContext(s.logger, "looked-up item not stored", "item_store_failed",
			logging.String("isbn", code),
			logging.Error(err),
		)
	}
	s.emit(Event{Kind: EventLookup, ISBN: code, Record: rec, ItemID: item.ID, Err: err})
}

// Upload sends every pending item that is not already being uploaded to
// target. It returns how many items were submitted.
func (s *Session) Upload(ctx context.Context, target zotero.Target) (int, error) {
	acc := s.Access()
	if acc == nil || !acc.CanWriteScope(target.Scope()) {
		return 0, services.Wrap(services.ErrAuthorizationDenied, "session", "upload", "no write access to "+target.String(), nil)
	}

	items, err := s.store.PendingItems(ctx, s.key.ID)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	recs := make([]records.Record, 0, len(items))
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if _, busy := s.uploading[item.ID]; busy {
			continue
		}
		rec, err := records.Decode(item.Payload)
		if err != nil {
			s.logger.Warn("skipping unreadable item", logging.Int64("item_id", item.ID), logging.Error(err))
			continue
		}
		recs = append(recs, rec)
		ids = append(ids, item.ID)
	}
	for _, id := range ids {
		s.uploading[id] = struct{}{}
	}
	s.mu.Unlock()

	if len(ids) == 0 {
		return 0, nil
	}
	if _, err := s.library.AddItems(recs, ids, target, *acc); err != nil {
		s.release(ids)
		return 0, err
	}
	return len(ids), nil
}

func (s *Session) release(ids []int64) {
	s.mu.Lock()
	for _, id := range ids {
		delete(s.uploading, id)
	}
	s.mu.Unlock()
}

// PostUploadResult implements zotero.Consumer.
func (s *Session) PostUploadResult(res zotero.UploadResult) {
	failedIDs := make([]int64, 0, len(res.Failed))
	for id := range res.Failed {
		failedIDs = append(failedIDs, id)
	}
	s.release(res.Uploaded)
	s.release(failedIDs)

	ctx, cancel := s.storeContext()
	defer cancel()
	if err := s.store.MarkItems(ctx, res.Uploaded, store.ItemUploaded, ""); err != nil {
		logging.ErrorWithContext(s.logger, "uploaded items not marked", "item_store_failed", logging.Error(err))
	}
	byReason := make(map[string][]int64)
	for id, reason := range res.Failed {
		byReason[reason] = append(byReason[reason], id)
	}
	for reason, ids := range byReason {
		if err := s.store.MarkItems(ctx, ids, store.ItemFailed, reason); err != nil {
			logging.ErrorWithContext(s.logger, "failed items not marked", "item_store_failed", logging.Error(err))
		}
	}
	s.emit(Event{Kind: EventUpload, Upload: &res, Err: res.Err})
}

// Discard deletes stored items, whatever their status.
func (s *Session) Discard(ctx context.Context, ids []int64) (int64, error) {
	return s.store.DeleteItems(ctx, ids)
}

// NewCollection asks the remote library to create a collection.
func (s *Session) NewCollection(name, parent string) error {
	_, err := s.library.NewCollection(name, parent)
	return err
}

// PostCollection implements zotero.Consumer.
func (s *Session) PostCollection(key string, err error) {
	s.emit(Event{Kind: EventCollection, Collection: key, Err: err})
}

// PostFailure implements zotero.Consumer.
func (s *Session) PostFailure(id string, err error) {
	logging.WarnWithContext(s.logger, "remote library request failed", "request_failed",
		logging.String(logging.FieldCorrelationID, id),
		logging.String("reason", services.Classify(err)),
		logging.Error(err),
	)
	s.emit(Event{Kind: EventFailure, RequestID: id, Err: err})
}
