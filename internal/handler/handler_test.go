package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/ollama-chat-backend/internal/identity"
	"github.com/iliyamo/ollama-chat-backend/internal/inference"
	"github.com/iliyamo/ollama-chat-backend/internal/model"
	"github.com/iliyamo/ollama-chat-backend/internal/repository"
	"github.com/iliyamo/ollama-chat-backend/internal/service"
)

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&identity.InputError{Msg: "bad"}, http.StatusBadRequest},
		{errors.Wrap(service.ErrValidation, "message"), http.StatusBadRequest},
		{identity.ErrInvalidCredential, http.StatusUnauthorized},
		{identity.ErrNotVerified, http.StatusForbidden},
		{errors.Wrap(identity.ErrUnavailable, "dial"), http.StatusServiceUnavailable},
		{service.ErrForbidden, http.StatusForbidden},
		{service.ErrNotFound, http.StatusNotFound},
		{service.ErrConflict, http.StatusConflict},
		{repository.ErrEmailExists, http.StatusConflict},
		{repository.ErrUsernameExists, http.StatusConflict},
		{&inference.Error{Kind: inference.KindTimeout}, http.StatusGatewayTimeout},
		{&inference.Error{Kind: inference.KindRemote}, http.StatusBadGateway},
		{&inference.Error{Kind: inference.KindUnsupportedModel}, http.StatusBadGateway},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		got, msg := statusOf(tc.err)
		assert.Equal(t, tc.want, got, tc.err.Error())
		assert.NotEmpty(t, msg)
	}
	_, msg := statusOf(errors.New("dial tcp 10.0.0.1:3306: refused"))
	assert.Equal(t, "internal error", msg)
}

func TestParsePage(t *testing.T) {
	e := echo.New()
	get := func(q string) (model.Page, bool) {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?"+q, nil), httptest.NewRecorder())
		return parsePage(c)
	}

	p, ok := get("")
	assert.True(t, ok)
	assert.Equal(t, model.Page{}, p)

	p, ok = get("after=4&limit=10")
	assert.True(t, ok)
	assert.Equal(t, model.Page{After: 4, Limit: 10}, p)

	p, _ = get("limit=100000")
	assert.Equal(t, maxPageLimit, p.Limit)

	for _, q := range []string{"after=-1", "limit=x", "after=1.5"} {
		_, ok = get(q)
		assert.False(t, ok, q)
	}
}
