// Package identity resolves credentials to a principal.  Three providers
// exist: email and password, an emailed one-time code, and a Google ID
// token.  None of them issue tokens; that is the HTTP layer's job.
package identity

import (
	"context"
	"errors"

	"github.com/iliyamo/ollama-chat-backend/internal/model"
)

// Kind selects the provider for a credential.
type Kind string

const (
	KindPassword Kind = "password"
	KindOTP      Kind = "otp"
	KindGoogle   Kind = "google"
)

// Credential is what a client presents.  Which fields matter depends on
// Kind.
type Credential struct {
	Kind     Kind
	Email    string
	Password string
	Code     string
	IDToken  string
}

// Authenticator resolves a credential to a principal.
type Authenticator interface {
	Authenticate(ctx context.Context, c Credential) (model.Principal, error)
}

var (
	// ErrInvalidCredential covers unknown accounts and wrong secrets alike.
	ErrInvalidCredential = errors.New("invalid credentials")
	// ErrNotVerified is returned when the provider has not verified the
	// account's email address.
	ErrNotVerified = errors.New("email not verified")
	// ErrUnavailable means the provider is not configured or its backing
	// service is down.
	ErrUnavailable = errors.New("identity provider unavailable")
)

// Chain dispatches a credential to the provider registered for its kind.
type Chain map[Kind]Authenticator

func (c Chain) Authenticate(ctx context.Context, cred Credential) (model.Principal, error) {
	a, ok := c[cred.Kind]
	if !ok || a == nil {
		return model.Principal{}, ErrUnavailable
	}
	return a.Authenticate(ctx, cred)
}

// Publisher delivers events such as OTP mail.  service.Publisher satisfies
// it.
type Publisher interface {
	Publish(ctx context.Context, queue string, event any) error
}
