package storage

import (
	"github.com/bookline/bookline/clientcore/models"
)

// Well-known keys. The store is shared, file-system-like storage readable
// by any concurrently running app process; writers do not lock, last
// write wins.
const (
	// KeyLastActivity holds the RFC3339 timestamp of the last user interaction
	KeyLastActivity = "last_activity_at"

	// KeyExternalLoginSuppressed suppresses external-login checks
	// immediately after an explicit logout
	KeyExternalLoginSuppressed = "external_login_suppressed"

	// KeyResumeState holds the serialized OAuth resume payload
	KeyResumeState = "oauth_resume_state"

	snapshotKeyPrefix = "principal_snapshot:"
)

// SnapshotKey returns the persisted-snapshot key for a principal type
func SnapshotKey(t models.PrincipalType) string {
	return snapshotKeyPrefix + string(t)
}

// Store abstracts durable client key/value storage so that state can live
// in-memory (tests), in a shared JSON file (default), or in a shared
// database (multi-process deployments).
type Store interface {
	// Get retrieves a value by key. The second return is false when the
	// key is absent.
	Get(key string) (string, bool, error)
	// Set creates or replaces the value for a key.
	Set(key, value string) error
	// Delete removes a key. Deleting an absent key is not an error.
	Delete(key string) error
}
