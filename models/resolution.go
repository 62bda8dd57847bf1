package models

// ResolutionPhase represents where a resolver is in its lifecycle.
// Suspended replaces a bare time-flag: it is entered on every explicit
// assignment and left by an explicit resume event after the settle delay,
// so the race window is a first-class transition.
type ResolutionPhase string

const (
	PhaseIdle      ResolutionPhase = "idle"
	PhaseResolving ResolutionPhase = "resolving"
	PhaseSuspended ResolutionPhase = "suspended"
	PhaseResolved  ResolutionPhase = "resolved"
)

// ResolutionState is the externally visible resolver state
type ResolutionState struct {
	Phase          ResolutionPhase `json:"phase"`
	Loading        bool            `json:"loading"`
	HasCheckedOnce bool            `json:"has_checked_once"`
}

// Snapshot represents the durable, tab-independent mirror of the last
// known authenticated profile. It is a fallback source of truth only:
// its identifier is re-validated against the server before use.
type Snapshot struct {
	Type    PrincipalType `json:"type"`
	Profile Profile       `json:"profile"`
}
