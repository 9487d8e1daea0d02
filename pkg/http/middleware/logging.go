package middleware

import (
	"log"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestLogging logs one line per request. Metrics scrapes are skipped to
// keep the log readable.
func RequestLogging() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			if req.URL.Path == "/metrics" {
				return err
			}
			log.Printf("[%s] %s %s - %d (%s)",
				req.Method,
				req.RequestURI,
				c.RealIP(),
				c.Response().Status,
				time.Since(start),
			)
			return err
		}
	}
}
