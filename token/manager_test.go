package token

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/bookline/bookline/clientcore/apperrors"
	"github.com/bookline/bookline/clientcore/utils"
)

func newTokenServer(t *testing.T, tokens ...string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, utils.AjaxHeaderValue, r.Header.Get(utils.AjaxHeader))
		n := calls.Add(1)
		idx := int(n) - 1
		if idx >= len(tokens) {
			idx = len(tokens) - 1
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"` + tokens[idx] + `"}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestManager_AcquireOrder(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("prefers cached token", func(t *testing.T) {
		srv, calls := newTokenServer(t, "net-token")
		m := NewManager(srv.URL, srv.Client(), nil, logger)

		_, err := m.Acquire(context.Background())
		require.NoError(t, err)

		tok, err := m.Acquire(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "net-token", tok)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("falls back to mirror before network", func(t *testing.T) {
		srv, calls := newTokenServer(t, "net-token")
		mirror := NewMemoryMirror()
		mirror.SetToken("mirrored")
		m := NewManager(srv.URL, srv.Client(), mirror, logger)

		tok, err := m.Acquire(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "mirrored", tok)
		assert.Equal(t, int32(0), calls.Load())
	})

	t.Run("fetches from network last", func(t *testing.T) {
		srv, calls := newTokenServer(t, "net-token")
		m := NewManager(srv.URL, srv.Client(), nil, logger)

		tok, err := m.Acquire(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "net-token", tok)
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestManager_RefreshUpdatesMirror(t *testing.T) {
	srv, _ := newTokenServer(t, "first", "second")
	mirror := NewMemoryMirror()
	m := NewManager(srv.URL, srv.Client(), mirror, zaptest.NewLogger(t))

	_, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", mirror.Token())

	tok, err := m.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second", tok)
	assert.Equal(t, "second", mirror.Token())
}

func TestManager_AcquireNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := NewManager(srv.URL, srv.Client(), nil, zaptest.NewLogger(t))
	_, err := m.Acquire(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsNetworkError(err))
}

// replayServer rejects the first n mutating calls with the token-expired
// status, then accepts.
func replayServer(t *testing.T, rejections int) (*httptest.Server, *atomic.Int32, *atomic.Int32) {
	t.Helper()
	var tokenCalls, apiCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/csrf", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		_, _ = w.Write([]byte(`{"token":"t"}`))
	})
	mux.HandleFunc("/update", func(w http.ResponseWriter, r *http.Request) {
		n := apiCalls.Add(1)
		if int(n) <= rejections {
			w.WriteHeader(StatusTokenExpired)
			return
		}
		assert.Equal(t, "t", r.Header.Get(HeaderName))
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &tokenCalls, &apiCalls
}

func TestManager_DoReplaysExactlyOnce(t *testing.T) {
	t.Run("one rejection then success", func(t *testing.T) {
		srv, tokenCalls, apiCalls := replayServer(t, 1)
		m := NewManager(srv.URL+"/csrf", srv.Client(), nil, zaptest.NewLogger(t))

		req, err := utils.NewJSONRequest(context.Background(), http.MethodPost, srv.URL+"/update",
			map[string]string{"name": "Taro"})
		require.NoError(t, err)

		resp, err := m.Do(req)
		require.NoError(t, err)
		utils.DrainBody(resp)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, int32(2), apiCalls.Load())
		// one acquire plus one refresh
		assert.Equal(t, int32(2), tokenCalls.Load())
	})

	t.Run("replay also rejected is terminal", func(t *testing.T) {
		srv, tokenCalls, apiCalls := replayServer(t, 2)
		m := NewManager(srv.URL+"/csrf", srv.Client(), nil, zaptest.NewLogger(t))

		req, err := utils.NewJSONRequest(context.Background(), http.MethodPost, srv.URL+"/update", nil)
		require.NoError(t, err)

		_, err = m.Do(req)
		require.Error(t, err)
		assert.True(t, apperrors.IsTokenRejectedError(err))
		assert.Equal(t, int32(2), apiCalls.Load(), "no second replay")
		assert.Equal(t, int32(2), tokenCalls.Load(), "no second refresh")
	})
}

func TestManager_DoReplaysBody(t *testing.T) {
	var got atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/csrf", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token":"t"}`))
	})
	first := true
	mux.HandleFunc("/update", func(w http.ResponseWriter, r *http.Request) {
		if first {
			first = false
			w.WriteHeader(StatusTokenExpired)
			return
		}
		buf := new(strings.Builder)
		_, _ = io.Copy(buf, r.Body)
		got.Store(buf.String())
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m := NewManager(srv.URL+"/csrf", srv.Client(), nil, zaptest.NewLogger(t))
	req, err := utils.NewJSONRequest(context.Background(), http.MethodPost, srv.URL+"/update",
		map[string]string{"id": "42"})
	require.NoError(t, err)

	resp, err := m.Do(req)
	require.NoError(t, err)
	utils.DrainBody(resp)
	assert.JSONEq(t, `{"id":"42"}`, got.Load().(string))
}

func TestManager_Invalidate(t *testing.T) {
	srv, calls := newTokenServer(t, "a", "b")
	mirror := NewMemoryMirror()
	m := NewManager(srv.URL, srv.Client(), mirror, zaptest.NewLogger(t))

	_, err := m.Acquire(context.Background())
	require.NoError(t, err)

	m.Invalidate()
	assert.Empty(t, mirror.Token())

	tok, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "b", tok)
	assert.Equal(t, int32(2), calls.Load())
}
