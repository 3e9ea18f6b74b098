package zotero

import (
	"context"
	"log/slog"
	"time"

	"shelfscan/internal/access"
	"shelfscan/internal/dispatch"
	"shelfscan/internal/logging"
	"shelfscan/internal/services"
)

// HandlerName identifies the remote library handler in logs and metrics.
const HandlerName = "zotero"

const defaultStoreTimeout = 5 * time.Second

// Consumer receives remote library results.
type Consumer interface {
	// PostPermissions receives the key's access, or nil when it could not be
	// fetched or parsed.
	PostPermissions(acc *access.Access)
	PostGroups(titles map[int]string)
	PostUploadResult(res UploadResult)
	PostCollection(key string, err error)
	// PostFailure reports a failed request by correlation identifier.
	PostFailure(id string, err error)
}

// UploadResult reports the outcome of one AddItems call. Err is set when the
// whole request failed; otherwise Failed lists items the server rejected.
type UploadResult struct {
	Target   Target
	Uploaded []int64
	Failed   map[int64]string
	Err      error
}

// GroupStore persists group titles.
type GroupStore interface {
	UpsertGroupTitles(ctx context.Context, titles map[int]string) error
}

// HandlerDeps are the collaborators of the handler. Nil stores skip
// persistence.
type HandlerDeps struct {
	Access       access.Store
	Groups       GroupStore
	Logger       *slog.Logger
	StoreTimeout time.Duration
	Options      []dispatch.HandlerOption
}

type callbacks struct {
	deps   HandlerDeps
	logger *slog.Logger
}

// NewHandler returns an unbound handler routing remote library outcomes to
// the Consumer bound at delivery time.
func NewHandler(deps HandlerDeps) *dispatch.Handler {
	if deps.StoreTimeout <= 0 {
		deps.StoreTimeout = defaultStoreTimeout
	}
	cb := &callbacks{deps: deps, logger: logging.NewComponentLogger(deps.Logger, "zotero")}

	routes := dispatch.NewRoutes().
		Handle(IDPermissions, dispatch.Route{
			OnSuccess:   cb.permissions,
			OnFailure:   cb.failure(cb.permissionsFailed),
			OnException: cb.exception(cb.permissionsFailed),
		}).
		Handle(IDGroups, dispatch.Route{
			OnSuccess:   cb.groups,
			OnFailure:   cb.failure(cb.surface),
			OnException: cb.exception(cb.surface),
		}).
		Handle(IDAddItems, dispatch.Route{
			OnSuccess:   cb.uploaded,
			OnFailure:   cb.failure(cb.uploadFailed),
			OnException: cb.exception(cb.uploadFailed),
		}).
		Handle(IDNewCollection, dispatch.Route{
			OnSuccess:   cb.collection,
			OnFailure:   cb.failure(cb.collectionFailed),
			OnException: cb.exception(cb.collectionFailed),
		})
	return dispatch.NewHandler(HandlerName, routes, cb.logger, deps.Options...)
}

func (cb *callbacks) consumer(c dispatch.Consumer, req *dispatch.Request) (Consumer, bool) {
	consumer, ok := c.(Consumer)
	if !ok {
		cb.logger.Warn("bound consumer does not accept remote library results",
			logging.String(logging.FieldCorrelationID, req.CorrelationID()),
			logging.String(logging.FieldEventType, "consumer_mismatch"),
		)
	}
	return consumer, ok
}

func (cb *callbacks) storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), cb.deps.StoreTimeout)
}

type failFunc func(c Consumer, req *dispatch.Request, err error)

func (cb *callbacks) failure(fn failFunc) func(dispatch.Consumer, *dispatch.Request, int, string) {
	return func(c dispatch.Consumer, req *dispatch.Request, status int, reason string) {
		if consumer, ok := cb.consumer(c, req); ok {
			fn(consumer, req, &services.StatusError{Code: status, Reason: reason})
		}
	}
}

func (cb *callbacks) exception(fn failFunc) func(dispatch.Consumer, *dispatch.Request, error) {
	return func(c dispatch.Consumer, req *dispatch.Request, err error) {
		if consumer, ok := cb.consumer(c, req); ok {
			fn(consumer, req, err)
		}
	}
}

func (cb *callbacks) surface(c Consumer, req *dispatch.Request, err error) {
	c.PostFailure(req.CorrelationID(), err)
}

func (cb *callbacks) permissions(c dispatch.Consumer, req *dispatch.Request, body []byte) {
	consumer, ok := cb.consumer(c, req)
	if !ok {
		return
	}
	acc, err := access.ParsePermissions(body)
	if err != nil {
		logging.WarnWithContext(cb.logger, "key descriptor could not be parsed", "permissions_parse_failed",
			logging.String(logging.FieldRequestID, req.ID()),
			logging.Error(err),
		)
		consumer.PostPermissions(nil)
		return
	}
	if cb.deps.Access != nil {
		ctx, cancel := cb.storeContext()
		stored, err := acc.WriteToStore(ctx, cb.deps.Access)
		cancel()
		if err != nil {
			logging.WarnWithContext(cb.logger, "permissions not persisted", "permissions_store_failed",
				logging.Error(err),
			)
		} else {
			acc = stored
		}
	}
	consumer.PostPermissions(&acc)
}

func (cb *callbacks) permissionsFailed(c Consumer, req *dispatch.Request, err error) {
	c.PostPermissions(nil)
	c.PostFailure(req.CorrelationID(), err)
}

func (cb *callbacks) groups(c dispatch.Consumer, req *dispatch.Request, body []byte) {
	consumer, ok := cb.consumer(c, req)
	if !ok {
		return
	}
	titles, err := ParseGroups(body)
	if err != nil {
		consumer.PostFailure(req.CorrelationID(), err)
		return
	}
	if cb.deps.Groups != nil && len(titles) > 0 {
		ctx, cancel := cb.storeContext()
		err := cb.deps.Groups.UpsertGroupTitles(ctx, titles)
		cancel()
		if err != nil {
			logging.WarnWithContext(cb.logger, "group titles not persisted", "groups_store_failed",
				logging.Error(err),
			)
		}
	}
	consumer.PostGroups(titles)
}

func (cb *callbacks) uploaded(c dispatch.Consumer, req *dispatch.Request, body []byte) {
	consumer, ok := cb.consumer(c, req)
	if !ok {
		return
	}
	target, _ := ParseTarget(req.ExtraValue(ExtraTarget))
	res := UploadResult{Target: target}
	ids := parseItemIDs(req.ExtraValue(ExtraItemIDs))

	write, err := parseWriteResponse(body)
	if err != nil {
		cb.logger.Debug("write response not itemized, treating batch as uploaded", logging.Error(err))
		res.Uploaded = ids
		consumer.PostUploadResult(res)
		return
	}
	for i, id := range ids {
		if reason, failed := write.failed(i); failed {
			if res.Failed == nil {
				res.Failed = make(map[int64]string)
			}
			res.Failed[id] = reason
			continue
		}
		res.Uploaded = append(res.Uploaded, id)
	}
	cb.logger.Info("items uploaded",
		logging.String("target", target.String()),
		logging.Int("uploaded", len(res.Uploaded)),
		logging.Int("failed", len(res.Failed)),
	)
	consumer.PostUploadResult(res)
}

func (cb *callbacks) uploadFailed(c Consumer, req *dispatch.Request, err error) {
	target, _ := ParseTarget(req.ExtraValue(ExtraTarget))
	ids := parseItemIDs(req.ExtraValue(ExtraItemIDs))
	failed := make(map[int64]string, len(ids))
	reason := services.Classify(err)
	for _, id := range ids {
		failed[id] = reason
	}
	c.PostUploadResult(UploadResult{Target: target, Failed: failed, Err: err})
}

func (cb *callbacks) collection(c dispatch.Consumer, req *dispatch.Request, body []byte) {
	consumer, ok := cb.consumer(c, req)
	if !ok {
		return
	}
	write, err := parseWriteResponse(body)
	if err != nil {
		consumer.PostCollection("", err)
		return
	}
	if reason, failed := write.failed(0); failed {
		consumer.PostCollection("", services.Wrap(services.ErrProtocol, "zotero", "new collection", reason, nil))
		return
	}
	consumer.PostCollection(write.Success["0"], nil)
}

func (cb *callbacks) collectionFailed(c Consumer, _ *dispatch.Request, err error) {
	c.PostCollection("", err)
}
