package lifecycle

import (
	"errors"
	"fmt"
)

// ErrNilValue is reported when a callback returns nil from a stage that
// requires a value.
var ErrNilValue = errors.New("callback returned nil")

// FaultKind tells where a failure came from.
type FaultKind int

const (
	// FaultUpstream is a failure outside the chain: validation, catalog,
	// rendering, encoding or cancellation.
	FaultUpstream FaultKind = iota
	// FaultCallback is an error or panic raised by a registered callback.
	FaultCallback
)

// String returns the label used in logs and metrics.
func (k FaultKind) String() string {
	if k == FaultCallback {
		return "callback"
	}
	return "upstream"
}

// CallbackError wraps an error raised by a callback during dispatch.
type CallbackError struct {
	Stage Stage
	Index int
	Name  string
	Err   error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("callback %d (%s) at %s: %v", e.Index, e.Name, e.Stage, e.Err)
}

func (e *CallbackError) Unwrap() error { return e.Err }

// Failure is delivered to Callback.Failed when a request aborts.
type Failure struct {
	Kind FaultKind
	// Stage is the stage that was running when the request failed, or zero
	// if the failure happened between stages.
	Stage Stage
	// Callback names the failing callback for FaultCallback failures.
	Callback string
	Err      error
}

// NewFailure classifies err. Errors carrying a *CallbackError are callback
// faults, everything else is an upstream fault attributed to stage.
func NewFailure(stage Stage, err error) Failure {
	var cbErr *CallbackError
	if errors.As(err, &cbErr) {
		return Failure{Kind: FaultCallback, Stage: cbErr.Stage, Callback: cbErr.Name, Err: err}
	}
	return Failure{Kind: FaultUpstream, Stage: stage, Err: err}
}

func (f Failure) Error() string {
	if f.Err == nil {
		return f.Kind.String() + " failure"
	}
	return f.Err.Error()
}

func (f Failure) Unwrap() error { return f.Err }
