package googlebooks

import (
	"log/slog"

	"shelfscan/internal/dispatch"
	"shelfscan/internal/logging"
	"shelfscan/internal/records"
	"shelfscan/internal/services"
)

// HandlerName identifies the lookup handler in logs and metrics.
const HandlerName = "googlebooks"

// Consumer receives lookup results. requestID is the id Lookup returned for
// the request; rec is nil whenever err is not.
type Consumer interface {
	PostLookupResult(requestID, code string, rec *records.Record, err error)
}

// NewHandler returns an unbound handler that translates lookup outcomes for
// the Consumer bound at delivery time.
func NewHandler(logger *slog.Logger, opts ...dispatch.HandlerOption) *dispatch.Handler {
	logger = logging.NewComponentLogger(logger, "googlebooks")
	routes := dispatch.NewRoutes().HandlePrefix(CorrelationPrefix, dispatch.Route{
		OnSuccess: func(c dispatch.Consumer, req *dispatch.Request, body []byte) {
			code := req.ExtraValue(ExtraISBN)
			recs, err := Translate(code, body)
			if err != nil {
				logger.Info("lookup produced no record",
					logging.String(logging.FieldCorrelationID, req.CorrelationID()),
					logging.Error(err),
				)
				post(logger, c, req, nil, err)
				return
			}
			if len(recs) > 1 {
				logger.Debug("lookup matched several volumes, keeping the first",
					logging.String("isbn", code),
					logging.Int("volumes", len(recs)),
				)
			}
			rec := recs[0]
			post(logger, c, req, &rec, nil)
		},
		OnFailure: func(c dispatch.Consumer, req *dispatch.Request, status int, reason string) {
			post(logger, c, req, nil, &services.StatusError{Code: status, Reason: reason})
		},
		OnException: func(c dispatch.Consumer, req *dispatch.Request, err error) {
			post(logger, c, req, nil, err)
		},
	})
	return dispatch.NewHandler(HandlerName, routes, logger, opts...)
}

func post(logger *slog.Logger, c dispatch.Consumer, req *dispatch.Request, rec *records.Record, err error) {
	code := req.ExtraValue(ExtraISBN)
	consumer, ok := c.(Consumer)
	if !ok {
		logger.Warn("bound consumer does not accept lookup results",
			logging.String("isbn", code),
			logging.String(logging.FieldEventType, "consumer_mismatch"),
		)
		return
	}
	consumer.PostLookupResult(req.ID(), code, rec, err)
}
