package token

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/bookline/bookline/clientcore/apperrors"
	"github.com/bookline/bookline/clientcore/utils"
)

// HeaderName is the request header carrying the anti-forgery token
const HeaderName = "X-CSRF-Token"

// StatusTokenExpired is the status code the server reserves for a stale
// anti-forgery token. The client has no view of token expiry; it is
// detected reactively through this code.
const StatusTokenExpired = 419

// Mirror is the synchronously readable cell the token is mirrored into,
// the equivalent of page metadata: any component can read the current
// token without going through the manager.
type Mirror interface {
	Token() string
	SetToken(token string)
}

// MemoryMirror is the default in-process Mirror
type MemoryMirror struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryMirror creates an empty mirror
func NewMemoryMirror() *MemoryMirror {
	return &MemoryMirror{}
}

// Token returns the mirrored token, or empty when none has been acquired
func (m *MemoryMirror) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// SetToken replaces the mirrored token
func (m *MemoryMirror) SetToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
}

// tokenResponse is the token endpoint's response shape
type tokenResponse struct {
	Token string `json:"token"`
}

// Manager acquires and refreshes the anti-forgery token and attaches it
// to every mutating request. The cache is per process, not shared: a
// refresh in one process must not invalidate another process's in-flight
// request.
type Manager struct {
	endpoint string
	client   *http.Client
	mirror   Mirror
	logger   *zap.Logger

	mu     sync.Mutex
	cached string
}

// NewManager creates a token manager against the given token endpoint
func NewManager(endpoint string, client *http.Client, mirror Mirror, logger *zap.Logger) *Manager {
	if client == nil {
		client = http.DefaultClient
	}
	if mirror == nil {
		mirror = NewMemoryMirror()
	}
	return &Manager{
		endpoint: endpoint,
		client:   client,
		mirror:   mirror,
		logger:   logger,
	}
}

// Acquire returns a token, checking in order: the in-memory cache, the
// mirror, then the token endpoint.
func (m *Manager) Acquire(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.cached != "" {
		token := m.cached
		m.mu.Unlock()
		return token, nil
	}
	m.mu.Unlock()

	if token := m.mirror.Token(); token != "" {
		m.mu.Lock()
		m.cached = token
		m.mu.Unlock()
		return token, nil
	}

	return m.fetch(ctx)
}

// Refresh forces a network fetch, replacing the cache and the mirror so
// any component reading the mirror synchronously sees the new value.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	return m.fetch(ctx)
}

func (m *Manager) fetch(ctx context.Context) (string, error) {
	req, err := utils.NewJSONRequest(ctx, http.MethodGet, m.endpoint, nil)
	if err != nil {
		return "", apperrors.WrapNetwork("failed to build token request", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return "", apperrors.WrapNetwork("token endpoint unreachable", err)
	}
	if resp.StatusCode != http.StatusOK {
		utils.DrainBody(resp)
		return "", apperrors.WrapNetwork(
			fmt.Sprintf("token endpoint returned %d", resp.StatusCode), nil)
	}

	var body tokenResponse
	if err := utils.DecodeJSON(resp, &body); err != nil {
		return "", apperrors.WrapNetwork("failed to decode token response", err)
	}
	if body.Token == "" {
		return "", apperrors.ErrTokenMissing
	}

	m.mu.Lock()
	m.cached = body.Token
	m.mu.Unlock()
	m.mirror.SetToken(body.Token)

	m.logger.Debug("anti-forgery token refreshed")
	return body.Token, nil
}

// Do attaches the current token to a mutating request and executes it.
// If the server answers with StatusTokenExpired, the manager refreshes
// exactly once and replays the request with the new token; a second
// rejection is terminal. There is no further retry, so a permanently
// misconfigured server cannot cause a loop.
func (m *Manager) Do(req *http.Request) (*http.Response, error) {
	tok, err := m.Acquire(req.Context())
	if err != nil {
		return nil, err
	}
	req.Header.Set(HeaderName, tok)
	req.Header.Set(utils.AjaxHeader, utils.AjaxHeaderValue)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, apperrors.WrapNetwork("request failed", err)
	}
	if resp.StatusCode != StatusTokenExpired {
		return resp, nil
	}
	utils.DrainBody(resp)

	m.logger.Warn("anti-forgery token rejected, refreshing once",
		zap.String("url", req.URL.String()))

	tok, err = m.Refresh(req.Context())
	if err != nil {
		return nil, err
	}

	replay, err := cloneRequest(req)
	if err != nil {
		return nil, apperrors.NewDomainError(apperrors.ErrorTypeInternal, "failed to replay request", err)
	}
	replay.Header.Set(HeaderName, tok)

	resp, err = m.client.Do(replay)
	if err != nil {
		return nil, apperrors.WrapNetwork("request replay failed", err)
	}
	if resp.StatusCode == StatusTokenExpired {
		utils.DrainBody(resp)
		return nil, apperrors.NewDomainError(apperrors.ErrorTypeTokenRejected,
			"anti-forgery token rejected after refresh", nil).WithDetail("url", req.URL.String())
	}
	return resp, nil
}

// Invalidate drops the cached token, forcing the next Acquire to consult
// the mirror or the network. Used on logout.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.cached = ""
	m.mu.Unlock()
	m.mirror.SetToken("")
}

// cloneRequest re-materializes a request body via GetBody so the replay
// carries the same payload
func cloneRequest(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		clone.Body = body
	}
	return clone, nil
}
