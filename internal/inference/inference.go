// Package inference talks to the language models that produce assistant
// replies.  A Gateway turns an ordered history into one completion; the
// Router picks the concrete gateway from the model registry.
package inference

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Turn is one entry of the history sent to a model.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Reply is a completed generation and the time it took.
type Reply struct {
	Text    string
	Elapsed time.Duration
}

// Gateway generates a reply for model from history.  Implementations return
// *Error for every failure.
type Gateway interface {
	Generate(ctx context.Context, model string, history []Turn) (Reply, error)
}

// ErrorKind classifies gateway failures.
type ErrorKind string

const (
	KindTimeout          ErrorKind = "timeout"
	KindRemote           ErrorKind = "remote_error"
	KindUnsupportedModel ErrorKind = "unsupported_model"
)

// Error is returned by every gateway.
type Error struct {
	Kind  ErrorKind
	Model string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("inference %s (%s): %v", e.Kind, e.Model, e.Err)
	}
	return fmt.Sprintf("inference %s (%s)", e.Kind, e.Model)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k ErrorKind) bool {
	var ie *Error
	return errors.As(err, &ie) && ie.Kind == k
}

// classify wraps a transport error, telling deadlines apart from
// everything else.
func classify(model string, err error) *Error {
	var ie *Error
	if errors.As(err, &ie) {
		return ie
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &Error{Kind: KindTimeout, Model: model, Err: err}
	}
	return &Error{Kind: KindRemote, Model: model, Err: err}
}
