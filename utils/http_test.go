package utils

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONRequest(t *testing.T) {
	t.Run("sets marker headers", func(t *testing.T) {
		req, err := NewJSONRequest(context.Background(), http.MethodGet, "http://example.com/x", nil)
		require.NoError(t, err)
		assert.Equal(t, AjaxHeaderValue, req.Header.Get(AjaxHeader))
		assert.Equal(t, "application/json", req.Header.Get("Accept"))
		assert.Empty(t, req.Header.Get("Content-Type"))
		assert.Nil(t, req.Body)
	})

	t.Run("body is replayable via GetBody", func(t *testing.T) {
		req, err := NewJSONRequest(context.Background(), http.MethodPost, "http://example.com/x",
			map[string]string{"id": "42"})
		require.NoError(t, err)
		require.NotNil(t, req.GetBody)

		first, err := io.ReadAll(req.Body)
		require.NoError(t, err)

		replay, err := req.GetBody()
		require.NoError(t, err)
		second, err := io.ReadAll(replay)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.JSONEq(t, `{"id":"42"}`, string(second))
	})
}

func TestDecodeJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token":"abc"}`))
	}))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)

	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, DecodeJSON(resp, &out))
	assert.Equal(t, "abc", out.Token)
}
