package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestLogger logs each HTTP request with structured fields.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			logger.Info("http request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
			)

			return err
		}
	}
}

// CronAuth guards the drain endpoints with a bearer secret. An empty
// configured secret leaves them open, which suits local development.
func CronAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if secret == "" {
				return next(c)
			}

			header := c.Request().Header.Get("Authorization")
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" ||
				subtle.ConstantTimeCompare([]byte(parts[1]), []byte(secret)) != 1 {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid cron secret")
			}
			return next(c)
		}
	}
}
