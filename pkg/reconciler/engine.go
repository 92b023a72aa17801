package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/nodewatch/pkg/ledger"
	"github.com/cuemby/nodewatch/pkg/log"
	"github.com/cuemby/nodewatch/pkg/metrics"
	"github.com/cuemby/nodewatch/pkg/notify"
	"github.com/cuemby/nodewatch/pkg/storage"
	"github.com/cuemby/nodewatch/pkg/types"
	"github.com/rs/zerolog"
)

// dispatchTimeout bounds notification delivery after statuses are written
const dispatchTimeout = 30 * time.Second

// Registry is the node store the engine reads snapshots from and writes
// statuses to
type Registry interface {
	ListTrackedNodes(owner string) ([]*types.TrackedNode, error)
	UpdateStatus(id string, update types.StatusUpdate) error
}

// PreferenceSource provides per-owner notification preferences
type PreferenceSource interface {
	GetPreferences(owner string) (*types.NotificationPreference, error)
}

// Engine runs batches for one owner at a time: snapshot, reconcile, write
// back, notify
type Engine struct {
	registry Registry
	prefs    PreferenceSource
	runner   *Runner
	notifier *notify.Notifier
	logger   zerolog.Logger

	mu   sync.Mutex
	runs map[string]*ownerRun
}

type ownerRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates a reconciliation engine
func NewEngine(registry Registry, prefs PreferenceSource, runner *Runner, notifier *notify.Notifier) *Engine {
	if notifier == nil {
		notifier = notify.NewNotifier(nil)
	}
	return &Engine{
		registry: registry,
		prefs:    prefs,
		runner:   runner,
		notifier: notifier,
		logger:   log.WithComponent("reconciler"),
		runs:     make(map[string]*ownerRun),
	}
}

// acquire makes the caller the only run for owner. An in-flight run is
// cancelled and waited for first, so two runs never read the same snapshot.
func (e *Engine) acquire(ctx context.Context, owner string) (context.Context, func()) {
	runCtx, cancel := context.WithCancel(ctx)
	cur := &ownerRun{cancel: cancel, done: make(chan struct{})}

	e.mu.Lock()
	prev := e.runs[owner]
	e.runs[owner] = cur
	e.mu.Unlock()

	if prev != nil {
		e.logger.Debug().Str("owner", owner).Msg("Superseding in-flight batch")
		prev.cancel()
		<-prev.done
	}

	return runCtx, func() {
		cancel()
		e.mu.Lock()
		if e.runs[owner] == cur {
			delete(e.runs, owner)
		}
		e.mu.Unlock()
		close(cur.done)
	}
}

// Refresh runs one batch over owner's tracked nodes and returns the report.
// A new Refresh for the same owner supersedes one still in flight.
//
// Cancellation is honoured until the ledger phase completes. Once results
// exist every status write is attempted, each atomic per node, and events
// for written nodes are delivered.
func (e *Engine) Refresh(ctx context.Context, owner string) *types.BatchReport {
	timer := metrics.NewTimer()
	runCtx, release := e.acquire(ctx, owner)
	defer release()

	logger := e.logger.With().Str("owner", owner).Logger()

	nodes, err := e.registry.ListTrackedNodes(owner)
	if err != nil {
		report := &types.BatchReport{
			Results:    map[string]*types.ReconciliationResult{},
			Err:        fmt.Errorf("list tracked nodes: %w", err),
			StartedAt:  time.Now(),
			FinishedAt: time.Now(),
		}
		report.AddError(types.BatchError{Scope: types.ScopeRegistry, Kind: "storage", Message: err.Error()})
		logger.Error().Err(err).Msg("Failed to list tracked nodes")
		e.finish(report, timer)
		return report
	}
	if len(nodes) == 0 {
		now := time.Now()
		return &types.BatchReport{Results: map[string]*types.ReconciliationResult{}, StartedAt: now, FinishedAt: now}
	}

	report := e.runner.Run(runCtx, nodes)
	if report.Failed() {
		e.finish(report, timer)
		return report
	}

	prefs, err := e.prefs.GetPreferences(owner)
	if err != nil || prefs == nil {
		logger.Warn().Err(err).Msg("Failed to load preferences, using defaults")
		prefs = types.DefaultNotificationPreference(owner)
	}

	var events []types.NotificationEvent
	for _, node := range nodes {
		res, ok := report.Results[node.ID]
		if !ok {
			continue
		}

		err := e.registry.UpdateStatus(node.ID, types.StatusUpdate{
			Liveness:    res.Liveness,
			JobState:    res.JobState,
			LastChecked: res.CheckedAt,
			Balance:     res.Balance,
		})
		if err != nil {
			kind := "storage"
			if errors.Is(err, storage.ErrNotFound) {
				// Deleted while the batch ran
				kind = "not_found"
			}
			report.AddError(types.BatchError{Scope: types.ScopeRegistry, NodeID: node.ID, Kind: kind, Message: err.Error()})
			metrics.BatchUnitErrorsTotal.WithLabelValues(string(types.ScopeRegistry), kind).Inc()
			logger.Warn().Err(err).Str("node_id", node.ID).Msg("Failed to write node status")
			delete(report.Results, node.ID)
			continue
		}

		if res.Liveness != node.Liveness || res.JobState != node.JobState.OrIdle() {
			report.UpdatedCount++
		}
		events = append(events, notify.Detect(node, res, prefs)...)
	}

	if len(events) > 0 {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
		e.notifier.Dispatch(dctx, owner, events)
		cancel()
	}

	e.finish(report, timer)
	logger.Info().
		Int("nodes", len(nodes)).
		Int("updated", report.UpdatedCount).
		Int("errors", report.ErrorCount).
		Int("events", len(events)).
		Dur("duration", timer.Duration()).
		Msg("Reconciliation batch complete")
	return report
}

func (e *Engine) finish(report *types.BatchReport, timer *metrics.Timer) {
	report.FinishedAt = time.Now()
	timer.ObserveDuration(metrics.ReconciliationDuration)

	outcome := "ok"
	switch {
	case errors.Is(report.Err, context.Canceled), errors.Is(report.Err, context.DeadlineExceeded):
		outcome = KindCancelled
	case report.Err != nil:
		outcome = "failed"
	}
	metrics.ReconciliationCyclesTotal.WithLabelValues(outcome).Inc()
	metrics.NodesUpdatedTotal.Add(float64(report.UpdatedCount))

	switch {
	case ledger.IsKind(report.Err, ledger.KindUnavailable):
		metrics.UpdateComponent(metrics.ComponentLedger, false, report.Err.Error())
	case report.Err == nil:
		metrics.UpdateComponent(metrics.ComponentLedger, true, "")
	}
}
