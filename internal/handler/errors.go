package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/iliyamo/ollama-chat-backend/internal/identity"
	"github.com/iliyamo/ollama-chat-backend/internal/inference"
	"github.com/iliyamo/ollama-chat-backend/internal/repository"
	"github.com/iliyamo/ollama-chat-backend/internal/service"
)

// statusOf maps a domain error to an HTTP status and the message shown to
// the client.  Internal failures never leak their text.
func statusOf(err error) (int, string) {
	var inErr *identity.InputError
	var infErr *inference.Error
	switch {
	case errors.As(err, &inErr):
		return http.StatusBadRequest, inErr.Msg
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, identity.ErrInvalidCredential):
		return http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, identity.ErrNotVerified):
		return http.StatusForbidden, "email not verified"
	case errors.Is(err, identity.ErrUnavailable):
		return http.StatusServiceUnavailable, "sign-in method unavailable"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, repository.ErrEmailExists):
		return http.StatusConflict, "email already exists"
	case errors.Is(err, repository.ErrUsernameExists):
		return http.StatusConflict, "username already exists"
	case errors.As(err, &infErr):
		if infErr.Kind == inference.KindTimeout {
			return http.StatusGatewayTimeout, "model timed out"
		}
		if infErr.Kind == inference.KindUnsupportedModel {
			return http.StatusBadGateway, "model is not available on the backend"
		}
		return http.StatusBadGateway, "model backend error"
	}
	return http.StatusInternalServerError, "internal error"
}

// fail writes err as {"error": ...} plus any extra fields.  5xx causes are
// logged with the request logger.
func fail(c echo.Context, err error, extra echo.Map) error {
	status, msg := statusOf(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(c.Request().Context()).Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	body := echo.Map{"error": msg}
	for k, v := range extra {
		body[k] = v
	}
	return c.JSON(status, body)
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}
