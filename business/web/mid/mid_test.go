package mid_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/ardanlabs/utxochain/business/web/errs"
	"github.com/ardanlabs/utxochain/business/web/mid"
	"github.com/ardanlabs/utxochain/foundation/validate"
	"github.com/ardanlabs/utxochain/foundation/web"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newApp() *web.App {
	log := zap.NewNop().Sugar()

	return web.NewApp(
		make(chan os.Signal, 1),
		mid.Logger(log),
		mid.Errors(log),
		mid.Metrics(),
		mid.Panics(),
	)
}

func serve(app *web.App, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	app.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestErrors(t *testing.T) {
	app := newApp()

	app.Handle(http.MethodGet, "", "/trusted", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return errs.NewTrusted(errors.New("insufficient funds"), http.StatusBadRequest)
	})
	app.Handle(http.MethodGet, "", "/fields", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return validate.FieldErrors{{Field: "to", Error: "to is a required field"}}
	})
	app.Handle(http.MethodGet, "", "/internal", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return errors.New("leveldb: closed")
	})
	app.Handle(http.MethodGet, "", "/panic", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		panic("boom")
	})

	w := serve(app, "/trusted")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"insufficient funds"}`, w.Body.String())

	w = serve(app, "/fields")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"data validation error","fields":{"to":"to is a required field"}}`, w.Body.String())

	w = serve(app, "/internal")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error"}`, w.Body.String(), "internal details are not leaked")

	w = serve(app, "/panic")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestCors(t *testing.T) {
	app := newApp()
	app.Handle(http.MethodGet, "", "/cors", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}, mid.Cors("*"))

	w := serve(app, "/cors")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
