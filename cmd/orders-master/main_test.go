package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-orders-master/httpapi"
)

func TestPurgeCommand(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"target":"counts","removed":2}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out

	err := app.Run([]string{"orders-master", "purge", "--server", srv.URL + "/", "--target", "counts", "--scope", "staff:8"})
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/cache/purge", got.URL.Path)
	assert.Equal(t, "counts", got.URL.Query().Get("target"))
	assert.Equal(t, "staff:8", got.URL.Query().Get("scope"))
	assert.Equal(t, "admin", got.Header.Get(httpapi.HeaderRole))
	assert.JSONEq(t, `{"target":"counts","removed":2}`, out.String())
}

func TestPurgeCommand_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"forbidden"}}`, http.StatusForbidden)
	}))
	defer srv.Close()

	app := newApp()
	app.Writer = &bytes.Buffer{}
	err := app.Run([]string{"orders-master", "purge", "--server", srv.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestSchemaCommand(t *testing.T) {
	t.Setenv("ORDERS_DB_DSN", "file:schema_cmd?mode=memory&cache=shared")
	t.Setenv("ORDERS_LOG_LEVEL", "error")

	app := newApp()
	require.NoError(t, app.Run([]string{"orders-master", "schema", "--layout", "legacy"}))
}

func TestSchemaCommand_InvalidLayout(t *testing.T) {
	t.Setenv("ORDERS_DB_DSN", "file:schema_bad?mode=memory&cache=shared")

	app := newApp()
	require.Error(t, app.Run([]string{"orders-master", "schema", "--layout", "flat"}))
}
