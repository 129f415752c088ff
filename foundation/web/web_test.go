package web_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"syscall"
	"testing"

	"github.com/ardanlabs/utxochain/foundation/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApp_HandleAndRespond(t *testing.T) {
	var order []string
	mw := func(name string) web.Middleware {
		return func(next web.Handler) web.Handler {
			return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
				order = append(order, name)
				return next(ctx, w, r)
			}
		}
	}

	app := web.NewApp(make(chan os.Signal, 1), mw("app"))

	h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		v, err := web.GetValues(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, v.TraceID)

		resp := struct {
			Address string `json:"address"`
		}{
			Address: web.Param(r, "address"),
		}
		return web.Respond(ctx, w, resp, http.StatusOK)
	}
	app.Handle(http.MethodGet, "v1", "/accounts/:address", h, mw("route"))

	r := httptest.NewRequest(http.MethodGet, "/v1/accounts/0xF01813E4B85e178A83e29B8E7bF26BD830a25f32", nil)
	w := httptest.NewRecorder()
	app.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"address":"0xF01813E4B85e178A83e29B8E7bF26BD830a25f32"}`, w.Body.String())
	assert.Equal(t, []string{"app", "route"}, order)
}

func TestApp_ShutdownError(t *testing.T) {
	shutdown := make(chan os.Signal, 1)
	app := web.NewApp(shutdown)

	app.Handle(http.MethodGet, "", "/broken", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return fmt.Errorf("ledger: %w", web.NewShutdownError("integrity"))
	})
	app.Handle(http.MethodGet, "", "/pipe", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return fmt.Errorf("%w: %w", syscall.EPIPE, web.NewShutdownError("write"))
	})

	app.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/pipe", nil))

	select {
	case <-shutdown:
		t.Fatal("a dropped client should not stop the service")
	default:
	}

	app.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/broken", nil))

	select {
	case sig := <-shutdown:
		assert.Equal(t, syscall.SIGTERM, sig)
	default:
		t.Fatal("a shutdown error should signal the service to stop")
	}

	assert.True(t, web.IsShutdown(fmt.Errorf("wrapped: %w", web.NewShutdownError("x"))))
	assert.False(t, web.IsShutdown(errors.New("x")))
}

func TestDecode_UnknownField(t *testing.T) {
	var v struct {
		Amount uint64 `json:"amount"`
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":10}`))
	require.NoError(t, web.Decode(r, &v))
	assert.Equal(t, uint64(10), v.Amount)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":10,"tip":1}`))
	require.Error(t, web.Decode(r, &v))
}

func TestRespond_NoContent(t *testing.T) {
	app := web.NewApp(make(chan os.Signal, 1))
	app.Handle(http.MethodGet, "", "/empty", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	app.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/empty", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}
