package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/bookline/bookline/clientcore/config"
	"github.com/bookline/bookline/clientcore/guard"
	"github.com/bookline/bookline/clientcore/models"
)

func testConfig(serverURL string) *config.Config {
	return &config.Config{
		Environment: "development",
		Server: config.ServerConfig{
			BaseURL:        serverURL,
			TokenPath:      "/api/v1/csrf-token",
			LogoutPath:     "/api/v1/logout",
			RequestTimeout: 5 * time.Second,
		},
		Session: config.SessionConfig{
			InactivityTimeout: 15 * time.Minute,
			WarningLead:       2 * time.Minute,
			SettleDelay:       30 * time.Millisecond,
		},
		OAuth: config.OAuthConfig{
			AuthURL:     "https://login.example.com/authorize",
			ClientID:    "client-id",
			RedirectURI: "http://127.0.0.1:8732/return",
			Scopes:      []string{"profile"},
		},
		Storage: config.StorageConfig{Backend: "memory"},
	}
}

func TestNewDependencies_WiresEverything(t *testing.T) {
	deps, err := NewDependencies(context.Background(),
		testConfig("http://localhost:9"), zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	defer deps.Close()

	assert.NotNil(t, deps.Store)
	assert.NotNil(t, deps.Tokens)
	assert.NotNil(t, deps.API)
	assert.NotNil(t, deps.Bridge)
	assert.NotNil(t, deps.Consumer)
	assert.NotNil(t, deps.Provider)
	assert.NotNil(t, deps.Guard)
}

func TestDependencies_EndToEndResolveAndLogout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/external-login/check", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"authenticated":false}`))
	})
	mux.HandleFunc("/api/v1/session/consumer", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"authenticated":true,"profile":{"id":"42","display_name":"Taro"}}`))
	})
	mux.HandleFunc("/api/v1/session/provider", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"authenticated":false}`))
	})
	mux.HandleFunc("/api/v1/csrf-token", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token":"tok"}`))
	})
	mux.HandleFunc("/api/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	deps, err := NewDependencies(context.Background(),
		testConfig(srv.URL), zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	defer deps.Close()

	require.NoError(t, deps.ResolveAll(context.Background()))

	assert.True(t, deps.Consumer.CurrentPrincipal().IsAuthenticated())
	assert.False(t, deps.Provider.CurrentPrincipal().IsAuthenticated())

	// The guard waits out the settle window, then renders.
	time.Sleep(50 * time.Millisecond)
	decision := deps.Guard.Decide(models.PrincipalConsumer, "/chats")
	assert.Equal(t, guard.DecisionRender, decision.Kind)

	require.NoError(t, deps.Logout(context.Background()))
	assert.False(t, deps.Consumer.CurrentPrincipal().IsAuthenticated())

	decision = deps.Guard.Decide(models.PrincipalConsumer, "/chats")
	assert.Equal(t, guard.DecisionRedirect, decision.Kind)
}
