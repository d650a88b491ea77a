package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// Health is a liveness probe for load balancers.  It returns a plain text
// "ok".
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// ReadyHandler reports whether the backing services answer.  Nil
// dependencies are not configured and are skipped.
type ReadyHandler struct {
	DB    *sql.DB
	Redis *redis.Client
}

// Ready handles GET /readyz.  MySQL is required; Redis only degrades
// rate limiting and OTP sign-in, so its failure is reported but not fatal.
func (h *ReadyHandler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := echo.Map{}
	if h.DB != nil {
		checks["mysql"] = "ok"
		if err := h.DB.PingContext(ctx); err != nil {
			checks["mysql"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	if h.Redis != nil {
		checks["redis"] = "ok"
		if err := h.Redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
		}
	} else {
		checks["redis"] = "disabled"
	}
	return c.JSON(status, checks)
}
