package fiber

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prospecthq/billingsync/pkg/entitlement"
	"github.com/prospecthq/billingsync/storage/memory"
)

func newReader(t *testing.T, subs ...*entitlement.Subscription) *entitlement.Reader {
	t.Helper()
	store := memory.New()
	for _, sub := range subs {
		require.NoError(t, store.UpsertSubscription(context.Background(), sub))
	}
	reader, err := entitlement.NewReader(store)
	require.NoError(t, err)
	return reader
}

func serve(t *testing.T, cfg Config, header map[string]string) *http.Response {
	t.Helper()
	app := fiber.New()
	app.Get("/reports", RequireEntitlement(cfg), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/reports", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestRequireEntitlement_AllowsEntitled(t *testing.T) {
	reader := newReader(t, &entitlement.Subscription{
		OwnerID: "owner_a", ProviderSubscriptionID: "sub_1",
		Status: entitlement.StatusActive, UpdatedAt: time.Now().UTC(),
	})

	resp := serve(t, Config{
		Reader:     reader,
		GetOwnerID: FromHeader("X-Owner-ID"),
	}, map[string]string{"X-Owner-ID": "owner_a"})

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRequireEntitlement_DeniesWithoutSubscription(t *testing.T) {
	resp := serve(t, Config{
		Reader:     newReader(t),
		GetOwnerID: FromHeader("X-Owner-ID"),
	}, map[string]string{"X-Owner-ID": "owner_a"})

	assert.Equal(t, fiber.StatusPaymentRequired, resp.StatusCode)
}

func TestRequireEntitlement_DeniesCanceled(t *testing.T) {
	reader := newReader(t, &entitlement.Subscription{
		OwnerID: "owner_a", ProviderSubscriptionID: "sub_1",
		Status: entitlement.StatusCanceled, UpdatedAt: time.Now().UTC(),
	})

	resp := serve(t, Config{
		Reader:     reader,
		GetOwnerID: FromHeader("X-Owner-ID"),
	}, map[string]string{"X-Owner-ID": "owner_a"})

	assert.Equal(t, fiber.StatusPaymentRequired, resp.StatusCode)
}

func TestRequireEntitlement_RejectsAnonymous(t *testing.T) {
	resp := serve(t, Config{
		Reader:     newReader(t),
		GetOwnerID: FromHeader("X-Owner-ID"),
	}, nil)

	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRequireEntitlement_FromLocals(t *testing.T) {
	reader := newReader(t, &entitlement.Subscription{
		OwnerID: "owner_a", ProviderSubscriptionID: "sub_1",
		Status: entitlement.StatusActive, UpdatedAt: time.Now().UTC(),
	})

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("ownerID", "owner_a")
		return c.Next()
	})
	app.Get("/reports", RequireEntitlement(Config{
		Reader:     reader,
		GetOwnerID: FromLocals("ownerID"),
	}), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/reports", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRequireEntitlement_PanicsWithoutReader(t *testing.T) {
	assert.Panics(t, func() {
		RequireEntitlement(Config{GetOwnerID: FromHeader("X-Owner-ID")})
	})
}
