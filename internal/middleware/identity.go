package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ollama-chat-backend/internal/model"
)

const (
	principalKey = "principal"
	userIDKey    = "user_id"
	roleKey      = "role"
)

func setPrincipal(c echo.Context, p model.Principal) {
	c.Set(principalKey, p)
	c.Set(userIDKey, strconv.FormatUint(p.UserID, 10))
	c.Set(roleKey, string(p.Role))
}

// Principal returns the authenticated caller.  ok is false on routes not
// behind JWTAuth.
func Principal(c echo.Context) (model.Principal, bool) {
	p, ok := c.Get(principalKey).(model.Principal)
	return p, ok
}

// currentUserID is the decimal user id, or "anon".
func currentUserID(c echo.Context) string {
	if s, ok := c.Get(userIDKey).(string); ok && s != "" {
		return s
	}
	return "anon"
}
