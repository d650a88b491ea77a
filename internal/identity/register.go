package identity

import (
	"context"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/iliyamo/ollama-chat-backend/internal/model"
	"github.com/iliyamo/ollama-chat-backend/internal/repository"
	"github.com/iliyamo/ollama-chat-backend/internal/utils"
)

// InputError reports a malformed registration field.
type InputError struct{ Msg string }

func (e *InputError) Error() string { return e.Msg }

const minPasswordLen = 6

// Register validates the fields and creates a password account with role
// user.  Duplicate handles or emails surface as repository.ErrUsernameExists
// or repository.ErrEmailExists.
func Register(ctx context.Context, users repository.UserStore, bcryptCost int, username, email, password string) (model.User, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	if n := utf8.RuneCountInString(username); n < 3 || n > 50 {
		return model.User{}, &InputError{Msg: "username must be 3-50 characters"}
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return model.User{}, &InputError{Msg: "invalid email"}
	}
	if len(password) < minPasswordLen {
		return model.User{}, &InputError{Msg: "password must be at least 6 characters"}
	}
	hash, err := utils.HashPassword(password, bcryptCost)
	if err != nil {
		return model.User{}, err
	}
	return users.Create(ctx, username, email, hash, model.RoleUser)
}
