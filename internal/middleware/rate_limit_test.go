package middleware

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rateLimitedApp(t *testing.T, limit int) (*fiber.App, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	app := fiber.New()
	app.Post("/wallets", PhoneRateLimit(cache, limit, nil), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app, mr
}

func postPhone(t *testing.T, app *fiber.App, phone string) int {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/wallets", strings.NewReader(`{"phone":"`+phone+`"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestPhoneRateLimit(t *testing.T) {
	app, mr := rateLimitedApp(t, 2)

	assert.Equal(t, fiber.StatusOK, postPhone(t, app, "+15550001111"))
	// Formatting differences count against the same phone.
	assert.Equal(t, fiber.StatusOK, postPhone(t, app, "+1 555 000 1111"))
	assert.Equal(t, fiber.StatusTooManyRequests, postPhone(t, app, "+15550001111"))

	assert.Equal(t, fiber.StatusOK, postPhone(t, app, "+15550002222"), "limits are per phone")

	mr.FastForward(61 * time.Second)
	assert.Equal(t, fiber.StatusOK, postPhone(t, app, "+15550001111"), "window expires")
}

func TestPhoneRateLimitWithoutRedis(t *testing.T) {
	app := fiber.New()
	app.Post("/wallets", PhoneRateLimit(nil, 1, nil), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	for i := 0; i < 3; i++ {
		assert.Equal(t, fiber.StatusOK, postPhone(t, app, "+15550001111"))
	}
}

func TestPhoneRateLimitFailsOpen(t *testing.T) {
	app, mr := rateLimitedApp(t, 1)
	mr.Close()
	assert.Equal(t, fiber.StatusOK, postPhone(t, app, "+15550001111"))
	assert.Equal(t, fiber.StatusOK, postPhone(t, app, "+15550001111"))
}
