package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout puts a deadline on each request context. The websocket
// endpoint is long-lived and is left alone, as is every route listed in
// commits, given as "METHOD /route/path" in the router's pattern form. Those
// routes write state that must not outlive a 504 already sent to the client.
// When the deadline passes before the handler returns, the client gets 504.
func RequestTimeout(timeout time.Duration, commits ...string) echo.MiddlewareFunc {
	skip := make(map[string]bool, len(commits))
	for _, r := range commits {
		skip[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if timeout <= 0 || strings.HasSuffix(c.Request().URL.Path, "/ws") ||
				skip[c.Request().Method+" "+c.Path()] {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			done := make(chan error, 1)
			go func() {
				done <- next(c)
			}()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					if c.Response().Committed {
						return nil
					}
					return echo.NewHTTPError(http.StatusGatewayTimeout, "request timed out")
				}
				return ctx.Err()
			}
		}
	}
}
