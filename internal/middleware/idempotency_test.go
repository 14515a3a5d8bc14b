package middleware

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/phonewallet/internal/logging"
)

func setupTestApp(t *testing.T) (*fiber.App, *atomic.Int32) {
	t.Helper()
	mr := miniredis.RunT(t)

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	var calls atomic.Int32
	app := fiber.New()
	idem := Idempotency(cache, time.Minute, logging.Discard())
	app.Post("/transactions", idem, func(c *fiber.Ctx) error {
		n := calls.Add(1)
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"submission": n})
	})
	app.Post("/wallets", idem, func(c *fiber.Ctx) error {
		calls.Add(1)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
	})
	app.Post("/failing", idem, func(c *fiber.Ctx) error {
		calls.Add(1)
		return fiber.NewError(fiber.StatusServiceUnavailable, "ledger unavailable")
	})

	return app, &calls
}

func post(t *testing.T, app *fiber.App, path, key string) (int, string, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body), resp.Header.Get(replayedHeader)
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	app, _ := setupTestApp(t)

	status, _, _ := post(t, app, "/transactions", "")
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected %d got %d", fiber.StatusBadRequest, status)
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	app, calls := setupTestApp(t)

	status, payload, replayed := post(t, app, "/transactions", "abc123")
	if status != fiber.StatusAccepted {
		t.Fatalf("expected status %d got %d", fiber.StatusAccepted, status)
	}
	if replayed != "" {
		t.Fatalf("first response must not be marked replayed")
	}

	status, cachedPayload, replayed := post(t, app, "/transactions", "abc123")
	if status != fiber.StatusAccepted {
		t.Fatalf("expected cached status %d got %d", fiber.StatusAccepted, status)
	}
	if cachedPayload != payload {
		t.Fatalf("expected cached payload %s got %s", payload, cachedPayload)
	}
	if replayed != "true" {
		t.Fatalf("expected replayed header, got %q", replayed)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("handler ran %d times", got)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(cachedPayload), &decoded); err != nil {
		t.Fatalf("cached payload invalid json: %v", err)
	}
}

func TestIdempotencyKeysAreScopedToRoute(t *testing.T) {
	app, calls := setupTestApp(t)

	post(t, app, "/transactions", "shared")
	status, _, replayed := post(t, app, "/wallets", "shared")
	if status != fiber.StatusOK || replayed != "" {
		t.Fatalf("expected fresh response from second route, got %d replayed=%q", status, replayed)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected both handlers to run, got %d", got)
	}
}

func TestIdempotencyReleasesKeyOnError(t *testing.T) {
	app, calls := setupTestApp(t)

	for i := 0; i < 2; i++ {
		status, _, _ := post(t, app, "/failing", "retry-me")
		if status != fiber.StatusServiceUnavailable {
			t.Fatalf("attempt %d: expected %d got %d", i, fiber.StatusServiceUnavailable, status)
		}
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("failed requests must not be replayed, handler ran %d times", got)
	}
}
