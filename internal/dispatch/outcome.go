package dispatch

import (
	"fmt"
	"net/http"

	"shelfscan/internal/services"
)

// Kind tags an Outcome.
type Kind int

const (
	KindStarted Kind = iota + 1
	KindProgress
	KindSuccess
	KindFailure
	KindException
)

func (k Kind) String() string {
	switch k {
	case KindStarted:
		return "started"
	case KindProgress:
		return "progress"
	case KindSuccess:
		return "success"
	case KindFailure:
		return "failure"
	case KindException:
		return "exception"
	default:
		return "unknown"
	}
}

// Outcome is one classified event for a request. Started and Progress may
// appear any number of times; exactly one terminal outcome follows.
type Outcome struct {
	Kind    Kind
	Percent int
	Body    []byte
	Status  int
	Reason  string
	Err     error
}

func Started() Outcome { return Outcome{Kind: KindStarted} }

func Progress(percent int) Outcome {
	percent = max(0, min(percent, 100))
	return Outcome{Kind: KindProgress, Percent: percent}
}

func Success(body []byte) Outcome { return Outcome{Kind: KindSuccess, Body: body} }

// Failure reports a response with an error status. An empty reason falls back
// to the standard status text.
func Failure(status int, reason string) Outcome {
	if reason == "" {
		reason = http.StatusText(status)
	}
	return Outcome{Kind: KindFailure, Status: status, Reason: reason}
}

// Exception reports a request that produced no usable response. The error is
// never nil.
func Exception(err error) Outcome {
	if err == nil {
		err = fmt.Errorf("%w: request failed without detail", services.ErrTransport)
	}
	return Outcome{Kind: KindException, Err: err}
}

// Terminal reports whether the outcome ends the request.
func (o Outcome) Terminal() bool {
	return o.Kind == KindSuccess || o.Kind == KindFailure || o.Kind == KindException
}

// Error returns the failure as an error value: a *services.StatusError for
// Failure, the wrapped error for Exception, nil otherwise.
func (o Outcome) Error() error {
	switch o.Kind {
	case KindFailure:
		return &services.StatusError{Code: o.Status, Reason: o.Reason}
	case KindException:
		return o.Err
	default:
		return nil
	}
}
