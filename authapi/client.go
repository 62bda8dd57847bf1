package authapi

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/bookline/bookline/clientcore/apperrors"
	"github.com/bookline/bookline/clientcore/models"
	"github.com/bookline/bookline/clientcore/token"
	"github.com/bookline/bookline/clientcore/utils"
)

// Client talks to the authentication server. Every request carries
// credentials (the http.Client's cookie jar) and the ajax marker;
// mutating requests additionally flow through the token manager.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     *token.Manager
	logger     *zap.Logger
}

// NewClient creates an auth server client
func NewClient(baseURL string, httpClient *http.Client, tokens *token.Manager, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		tokens:     tokens,
		logger:     logger,
	}
}

// sessionCheckResponse is the same-origin session check response shape
type sessionCheckResponse struct {
	Authenticated bool            `json:"authenticated"`
	Profile       *models.Profile `json:"profile,omitempty"`
}

// ExternalLoginResult is the third-party-login check response shape
type ExternalLoginResult struct {
	Success       bool            `json:"success"`
	Authenticated bool            `json:"authenticated"`
	UserType      string          `json:"user_type"`
	User          *models.Profile `json:"user,omitempty"`
}

// SessionCheck asks whether a same-origin session exists for the given
// principal type. Returns nil when not authenticated.
func (c *Client) SessionCheck(ctx context.Context, t models.PrincipalType) (*models.Profile, error) {
	url := fmt.Sprintf("%s/api/v1/session/%s", c.baseURL, t)

	var body sessionCheckResponse
	if err := c.getJSON(ctx, url, &body); err != nil {
		return nil, err
	}
	if !body.Authenticated {
		return nil, nil
	}
	return body.Profile, nil
}

// ExternalLoginCheck asks whether a third-party-login-derived session
// already exists for the given principal type.
func (c *Client) ExternalLoginCheck(ctx context.Context, t models.PrincipalType) (*ExternalLoginResult, error) {
	url := fmt.Sprintf("%s/api/v1/external-login/check?type=%s", c.baseURL, t)

	var body ExternalLoginResult
	if err := c.getJSON(ctx, url, &body); err != nil {
		return nil, err
	}
	return &body, nil
}

// FetchProfile re-fetches a profile by identifier, used to re-validate a
// persisted snapshot before trusting it.
func (c *Client) FetchProfile(ctx context.Context, t models.PrincipalType, id string) (*models.Profile, error) {
	url := fmt.Sprintf("%s/api/v1/profiles/%s/%s", c.baseURL, t, id)

	var body models.Profile
	if err := c.getJSON(ctx, url, &body); err != nil {
		return nil, err
	}
	return &body, nil
}

// Logout notifies the server that the session should be torn down,
// including any server-side third-party session. Mutating, so it flows
// through the token manager.
func (c *Client) Logout(ctx context.Context, t models.PrincipalType) error {
	url := fmt.Sprintf("%s/api/v1/logout?type=%s", c.baseURL, t)

	req, err := utils.NewJSONRequest(ctx, http.MethodPost, url, nil)
	if err != nil {
		return apperrors.WrapNetwork("failed to build logout request", err)
	}

	resp, err := c.tokens.Do(req)
	if err != nil {
		return err
	}
	utils.DrainBody(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperrors.WrapNetwork(
			fmt.Sprintf("logout returned %d", resp.StatusCode), nil)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := utils.NewJSONRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return apperrors.WrapNetwork("failed to build request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.WrapNetwork("auth server unreachable", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		utils.DrainBody(resp)
		return apperrors.ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		utils.DrainBody(resp)
		return apperrors.WrapNetwork(
			fmt.Sprintf("auth server returned %d for %s", resp.StatusCode, url), nil)
	}
	return utils.DecodeJSON(resp, out)
}
