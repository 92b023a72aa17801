package status

import (
	"github.com/cuemby/nodewatch/pkg/ledger"
	"github.com/cuemby/nodewatch/pkg/types"
)

// Status is the derived view of one node from a set of ledger jobs
type Status struct {
	Liveness   types.Liveness
	JobState   types.JobState
	ActiveJobs int

	// NeedsAccount is set when no matched job is in a non-terminal state,
	// so liveness can only be settled by an account lookup.
	NeedsAccount bool
}

// Derive computes the status of the node at address from jobs. Jobs with a
// missing or undecodable node association are ignored. Derive does no I/O.
func Derive(address string, jobs []*types.RawLedgerJob) Status {
	s := Status{
		Liveness: types.LivenessUnknown,
		JobState: types.JobStateIdle,
	}

	node, err := ledger.NormalizeAddress(address)
	if err != nil {
		s.NeedsAccount = true
		return s
	}

	var running, queued, active bool
	for _, job := range jobs {
		if job == nil || job.NodeAddress == "" {
			continue
		}
		addr, err := ledger.NormalizeAddress(job.NodeAddress)
		if err != nil || addr != node {
			continue
		}

		s.ActiveJobs++
		switch job.State {
		case types.JobPhaseRunning:
			running = true
		case types.JobPhaseQueued:
			queued = true
		}
		if !job.State.Terminal() {
			active = true
		}
	}

	// running > queued > idle
	switch {
	case running:
		s.JobState = types.JobStateRunning
	case queued:
		s.JobState = types.JobStateQueued
	}

	if active {
		s.Liveness = types.LivenessOnline
	} else {
		s.NeedsAccount = true
	}
	return s
}

// ResolveLiveness settles liveness from an account lookup. It returns
// s.Liveness unchanged when no lookup was needed. A failed lookup always
// yields unknown, never offline.
func ResolveLiveness(s Status, info *types.AccountInfo, err error) types.Liveness {
	if !s.NeedsAccount {
		return s.Liveness
	}
	if err != nil || info == nil {
		return types.LivenessUnknown
	}
	if info.Registered {
		return types.LivenessOnline
	}
	return types.LivenessOffline
}
