package identity

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/iliyamo/ollama-chat-backend/internal/model"
	"github.com/iliyamo/ollama-chat-backend/internal/repository"
	"github.com/iliyamo/ollama-chat-backend/internal/utils"
)

// Password checks an email and password against the stored bcrypt hash.
type Password struct {
	Users repository.UserStore
}

func (p Password) Authenticate(ctx context.Context, c Credential) (model.Principal, error) {
	email := strings.ToLower(strings.TrimSpace(c.Email))
	if email == "" || c.Password == "" {
		return model.Principal{}, ErrInvalidCredential
	}
	u, err := p.Users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Principal{}, ErrInvalidCredential
	}
	if err != nil {
		return model.Principal{}, err
	}
	if !utils.VerifyPassword(u.PasswordHash, c.Password) {
		return model.Principal{}, ErrInvalidCredential
	}
	return login(ctx, p.Users, u)
}

// login records the authentication and returns the principal.
func login(ctx context.Context, users repository.UserStore, u model.User) (model.Principal, error) {
	if err := users.TouchLogin(ctx, u.ID, time.Now()); err != nil {
		return model.Principal{}, err
	}
	return model.Principal{UserID: u.ID, Role: u.Role}, nil
}
