package oauthbridge

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/bookline/bookline/clientcore/apperrors"
	"github.com/bookline/bookline/clientcore/models"
	"github.com/bookline/bookline/clientcore/storage"
	"github.com/bookline/bookline/clientcore/utils"
)

// ResumeStateVersion is the current payload schema version. Payloads
// with a higher version than this fail safe: they are discarded rather
// than half-read.
const ResumeStateVersion = 1

// ResumeState is the in-progress form data serialized before the
// full-page redirect to the external login provider. The redirect is a
// process boundary: no in-memory state survives it, durable storage is
// the only channel across.
type ResumeState struct {
	Version         int                  `json:"version"`
	PrincipalType   models.PrincipalType `json:"principal_type" validate:"required,oneof=consumer provider"`
	Form            map[string]string    `json:"form,omitempty"`
	ImageRefs       []string             `json:"image_refs,omitempty"`
	UploadSessionID string               `json:"upload_session_id,omitempty"`
	// WizardStep distinguishes "returning into step N of a registration
	// wizard" from "returning into a standalone login" (0).
	WizardStep int       `json:"wizard_step,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// InWizard reports whether the return lands inside a multi-step wizard
func (s *ResumeState) InWizard() bool {
	return s != nil && s.WizardStep > 0
}

// Identity holds the attributes the external provider reports back
type Identity struct {
	ExternalID  string `json:"external_id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar,omitempty"`
}

// Empty reports whether no identity attribute was delivered at all
// (provider error or user cancellation)
func (i *Identity) Empty() bool {
	return i == nil || (i.ExternalID == "" && i.Email == "" && i.DisplayName == "" && i.AvatarURL == "")
}

// Bridge persists in-progress registration state across the external
// login redirect and restores it on return.
type Bridge struct {
	store  storage.Store
	oauth  *oauth2.Config
	logger *zap.Logger
}

// NewBridge creates a Bridge. oauth may carry an empty endpoint when the
// host never initiates logins (resume-only usage).
func NewBridge(store storage.Store, oauth *oauth2.Config, logger *zap.Logger) *Bridge {
	return &Bridge{
		store:  store,
		oauth:  oauth,
		logger: logger,
	}
}

// Begin serializes the pending state into durable storage and returns
// the provider authorization URL the host must navigate to. The
// upload-session identifier rides along so uploaded-but-unsubmitted
// assets are not orphaned.
func (b *Bridge) Begin(ctx context.Context, state *ResumeState) (string, error) {
	state.Version = ResumeStateVersion
	if state.CreatedAt.IsZero() {
		state.CreatedAt = time.Now()
	}
	if err := utils.ValidateStruct(state); err != nil {
		return "", apperrors.WrapError(apperrors.ErrorTypeValidation, "invalid resume state", err)
	}

	raw, err := json.Marshal(state)
	if err != nil {
		return "", apperrors.WrapState("failed to serialize resume state", err)
	}
	if err := b.store.Set(storage.KeyResumeState, string(raw)); err != nil {
		return "", apperrors.WrapState("failed to persist resume state", err)
	}

	nonce := uuid.NewString()
	authURL := b.oauth.AuthCodeURL(nonce, oauth2.AccessTypeOnline)

	b.logger.Info("external login started",
		zap.String("principal_type", string(state.PrincipalType)),
		zap.Int("wizard_step", state.WizardStep))
	return authURL, nil
}

// Resume restores pending state after the provider redirected back.
// The navigation-state channel is preferred; query parameters are the
// fallback. The stored entry is cleared either way. A missing identity
// is not an error: the host flow decides whether that is fatal for its
// current step. A nil returned state means a standalone login with no
// pending wizard.
func (b *Bridge) Resume(navIdentity *Identity, query url.Values) (*Identity, *ResumeState, error) {
	state, err := b.takeStoredState()
	if err != nil {
		return nil, nil, err
	}

	identity := navIdentity
	if identity.Empty() {
		identity = identityFromQuery(query)
	}
	if identity.Empty() {
		if state != nil {
			b.logger.Warn("external login returned without identity attributes")
		}
		return nil, state, nil
	}

	b.logger.Info("external login resumed",
		zap.String("external_id", identity.ExternalID),
		zap.Bool("in_wizard", state.InWizard()))
	return identity, state, nil
}

// HasPending reports whether a resume payload is waiting in storage
func (b *Bridge) HasPending() bool {
	_, ok, err := b.store.Get(storage.KeyResumeState)
	return err == nil && ok
}

// Clear drops any stored resume payload
func (b *Bridge) Clear() error {
	return b.store.Delete(storage.KeyResumeState)
}

// takeStoredState reads and removes the stored payload. Unknown future
// versions are discarded so an older binary never misreads fields added
// later.
func (b *Bridge) takeStoredState() (*ResumeState, error) {
	raw, ok, err := b.store.Get(storage.KeyResumeState)
	if err != nil {
		return nil, apperrors.WrapState("failed to read resume state", err)
	}
	if !ok {
		return nil, nil
	}
	// Single-shot: the payload must not survive a reload and resubmit.
	if err := b.store.Delete(storage.KeyResumeState); err != nil {
		b.logger.Warn("failed to clear resume state", zap.Error(err))
	}

	var state ResumeState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		b.logger.Warn("discarding unreadable resume state", zap.Error(err))
		return nil, apperrors.WrapState("resume state unreadable", err)
	}
	if state.Version > ResumeStateVersion {
		b.logger.Warn("discarding resume state from a newer schema",
			zap.Int("version", state.Version))
		return nil, apperrors.ErrStateVersionUnknown
	}
	return &state, nil
}

// identityFromQuery reads identity attributes from redirect query
// parameters, with an optional unverified id_token as a fallback source
// for the display name and email. The token is display data here, not a
// credential: the server re-validates identity on the final submission.
func identityFromQuery(query url.Values) *Identity {
	if query == nil {
		return nil
	}
	identity := &Identity{
		ExternalID:  query.Get("external_id"),
		Email:       query.Get("email"),
		DisplayName: query.Get("display_name"),
		AvatarURL:   query.Get("avatar"),
	}

	if idToken := query.Get("id_token"); idToken != "" {
		if claims := unverifiedClaims(idToken); claims != nil {
			if identity.ExternalID == "" {
				identity.ExternalID, _ = claims["sub"].(string)
			}
			if identity.Email == "" {
				identity.Email, _ = claims["email"].(string)
			}
			if identity.DisplayName == "" {
				identity.DisplayName, _ = claims["name"].(string)
			}
			if identity.AvatarURL == "" {
				identity.AvatarURL, _ = claims["picture"].(string)
			}
		}
	}

	if identity.Empty() {
		return nil
	}
	return identity
}

func unverifiedClaims(idToken string) jwt.MapClaims {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return nil
	}
	return claims
}
