package middleware

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/phonewallet/internal/metrics"
)

// HTTPMetrics records request counts and latency per matched route. Returned
// errors are counted with the status the error handler will send.
func HTTPMetrics(m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}
		m.RecordHTTPRequest(c.Route().Path, c.Method(), status, time.Since(start))
		return err
	}
}
