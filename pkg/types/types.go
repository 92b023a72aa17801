package types

import (
	"time"
)

// TrackedNode is a user's subscription to a ledger worker address
type TrackedNode struct {
	ID      string
	Address string // base58 public key, immutable after creation
	Owner   string
	Name    string
	Notes   string

	// Last reconciled status. Only the reconciliation engine or an explicit
	// manual override writes these fields.
	Liveness    Liveness
	JobState    JobState
	LastChecked time.Time

	// LastKnownLiveness is the most recent liveness that was not unknown.
	// It is written in the same transaction as Liveness.
	LastKnownLiveness Liveness

	// Wallet balances as of BalanceCheckedAt. LowBalance records that the
	// SOL balance was below the alert threshold at that check.
	SOLBalance       float64
	NOSBalance       float64
	LowBalance       bool
	BalanceCheckedAt time.Time

	CreatedAt time.Time
}

// EffectiveLiveness returns the liveness transitions are measured against:
// the stored liveness, or the last definite one when the stored value is
// unknown.
func (n *TrackedNode) EffectiveLiveness() Liveness {
	if n.Liveness == LivenessUnknown || n.Liveness == "" {
		if n.LastKnownLiveness == "" {
			return LivenessUnknown
		}
		return n.LastKnownLiveness
	}
	return n.Liveness
}

// DisplayName returns the node name, falling back to a shortened address
func (n *TrackedNode) DisplayName() string {
	if n.Name != "" {
		return n.Name
	}
	if len(n.Address) > 12 {
		return n.Address[:6] + "…" + n.Address[len(n.Address)-4:]
	}
	return n.Address
}

// Liveness is the coarse online/offline classification of a node
type Liveness string

const (
	LivenessOnline  Liveness = "online"
	LivenessOffline Liveness = "offline"
	LivenessUnknown Liveness = "unknown"
)

// Valid reports whether l is one of the known liveness values
func (l Liveness) Valid() bool {
	switch l {
	case LivenessOnline, LivenessOffline, LivenessUnknown:
		return true
	}
	return false
}

// JobState is the coarse job activity of a node
type JobState string

const (
	JobStateIdle    JobState = "idle"
	JobStateQueued  JobState = "queued"
	JobStateRunning JobState = "running"
)

// Valid reports whether s is one of the known job states
func (s JobState) Valid() bool {
	switch s {
	case JobStateIdle, JobStateQueued, JobStateRunning:
		return true
	}
	return false
}

// OrIdle maps the zero value to idle
func (s JobState) OrIdle() JobState {
	if s == "" {
		return JobStateIdle
	}
	return s
}

// JobPhase is the raw job state reported by the ledger
type JobPhase int

const (
	JobPhaseQueued  JobPhase = 0
	JobPhaseRunning JobPhase = 1
	JobPhaseDone    JobPhase = 2 // done or stopped
)

// Terminal reports whether the job has finished
func (p JobPhase) Terminal() bool {
	return p == JobPhaseDone
}

func (p JobPhase) String() string {
	switch p {
	case JobPhaseQueued:
		return "queued"
	case JobPhaseRunning:
		return "running"
	case JobPhaseDone:
		return "done"
	}
	return "invalid"
}

// JobSummary is one entry of the ledger job enumeration
type JobSummary struct {
	JobID string
}

// RawLedgerJob is a job record fetched from the ledger. It is never persisted.
type RawLedgerJob struct {
	JobID string
	// NodeAddress is the associated worker address. Empty when the ledger
	// record had no association or an unparseable one.
	NodeAddress string
	State       JobPhase
}

// AccountInfo is the ledger's view of a worker account
type AccountInfo struct {
	Address    string
	Registered bool // recognized by the ledger as a worker
	SOLBalance float64
	NOSBalance float64
}

// ReconciliationResult is produced once per node per batch
type ReconciliationResult struct {
	NodeID         string
	Liveness       Liveness
	JobState       JobState
	ActiveJobCount int
	CheckedAt      time.Time
	// Balance is nil when the account was not read in this batch
	Balance *BalanceUpdate
	Err     error
}

// BalanceUpdate is a wallet balance reading taken during a batch
type BalanceUpdate struct {
	SOL       float64
	NOS       float64
	Low       bool // SOL below the configured threshold
	CheckedAt time.Time
}

// NotificationPreference holds per-user delivery flags
type NotificationPreference struct {
	Owner              string
	NotifyOffline      bool
	NotifyOnline       bool
	NotifyJobStarted   bool
	NotifyJobCompleted bool
	NotifyLowBalance   bool
	Vibration          bool
	Sound              bool
}

// DefaultNotificationPreference returns the preferences used for owners
// that never saved any
func DefaultNotificationPreference(owner string) *NotificationPreference {
	return &NotificationPreference{
		Owner:              owner,
		NotifyOffline:      true,
		NotifyOnline:       true,
		NotifyJobStarted:   true,
		NotifyJobCompleted: true,
		NotifyLowBalance:   true,
		Vibration:          true,
		Sound:              true,
	}
}

// EventType is the kind of user-visible transition
type EventType string

const (
	EventOffline      EventType = "offline"
	EventOnline       EventType = "online"
	EventJobStarted   EventType = "job_started"
	EventJobCompleted EventType = "job_completed"
	EventLowBalance   EventType = "low_balance"
)

// NotificationEvent is one user-visible transition of one node
type NotificationEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Owner     string    `json:"owner"`
	NodeID    string    `json:"node_id"`
	NodeName  string    `json:"node_name"`
	Address   string    `json:"address"`
	Message   string    `json:"message"`
	Vibration bool      `json:"vibration"`
	Sound     bool      `json:"sound"`
	Timestamp time.Time `json:"timestamp"`
}

// BatchErrorScope says which unit of work an error belongs to
type BatchErrorScope string

const (
	ScopeBatch    BatchErrorScope = "batch"
	ScopeJob      BatchErrorScope = "job"
	ScopeNode     BatchErrorScope = "node"
	ScopeRegistry BatchErrorScope = "registry"
)

// BatchError describes one discarded unit of work
type BatchError struct {
	Scope   BatchErrorScope `json:"scope"`
	NodeID  string          `json:"node_id,omitempty"`
	JobID   string          `json:"job_id,omitempty"`
	Kind    string          `json:"kind"`
	Message string          `json:"message"`
}

// BatchReport is the outcome of one reconciliation pass
type BatchReport struct {
	Results      map[string]*ReconciliationResult
	UpdatedCount int
	ErrorCount   int
	Errors       []BatchError

	// Err is set when the batch failed as a whole; Results is then empty
	Err error

	StartedAt  time.Time
	FinishedAt time.Time
}

// Failed reports whether the batch aborted before producing results
func (r *BatchReport) Failed() bool {
	return r.Err != nil
}

// AddError appends a per-unit error and bumps ErrorCount
func (r *BatchReport) AddError(e BatchError) {
	r.Errors = append(r.Errors, e)
	r.ErrorCount++
}

// StatusUpdate is the set of fields written back per node per batch
type StatusUpdate struct {
	Liveness    Liveness
	JobState    JobState
	LastChecked time.Time
	// Balance is written with the status when set; nil keeps the stored one
	Balance *BalanceUpdate
}
