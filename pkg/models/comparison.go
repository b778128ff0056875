package models

// Decision is the outcome of comparing a path's local and remote versions
// against what was recorded at the last pass.
type Decision struct {
	Path   string
	Action Action
	Reason DecisionReason
}

// DecisionReason explains why an action was chosen
type DecisionReason string

const (
	// ReasonIdentical means both fingerprints agree on a first sync
	ReasonIdentical DecisionReason = "identical"
	// ReasonUnchanged means neither side moved since the last pass
	ReasonUnchanged DecisionReason = "unchanged"
	// ReasonLocalChanged means only the local fingerprint moved
	ReasonLocalChanged DecisionReason = "local-changed"
	// ReasonRemoteChanged means only the remote fingerprint moved
	ReasonRemoteChanged DecisionReason = "remote-changed"
	// ReasonBothChanged means both fingerprints moved
	ReasonBothChanged DecisionReason = "both-changed"
	// ReasonLocalNewer means first sync, local modification time is later
	ReasonLocalNewer DecisionReason = "local-newer"
	// ReasonRemoteNewer means first sync, remote is later or equal
	ReasonRemoteNewer DecisionReason = "remote-newer"
	// ReasonLocalOnly means the path is absent on the server
	ReasonLocalOnly DecisionReason = "local-only"
	// ReasonRemoteOnly means the path is absent locally
	ReasonRemoteOnly DecisionReason = "remote-only"
)
