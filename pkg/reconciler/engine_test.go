package reconciler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuemby/nodewatch/pkg/ledger"
	"github.com/cuemby/nodewatch/pkg/metrics"
	"github.com/cuemby/nodewatch/pkg/notify"
	"github.com/cuemby/nodewatch/pkg/storage"
	"github.com/cuemby/nodewatch/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineFixture struct {
	store      storage.Store
	ledger     *fakeLedger
	dispatcher *recordingDispatcher
	engine     *Engine
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &engineFixture{
		store:      store,
		ledger:     newFakeLedger(),
		dispatcher: &recordingDispatcher{},
	}
	runner := NewRunner(f.ledger, Config{JobLimit: 50, Concurrency: 4})
	f.engine = NewEngine(store, store, runner, notify.NewNotifier(f.dispatcher))
	return f
}

// seed stores a node for alice with the given previous status
func (f *engineFixture) seed(t *testing.T, seed byte, l types.Liveness, s types.JobState) *types.TrackedNode {
	t.Helper()
	n := &types.TrackedNode{Owner: "alice", Address: testAddress(seed), Name: "rig"}
	require.NoError(t, f.store.CreateNode(n))
	require.NoError(t, f.store.UpdateStatus(n.ID, types.StatusUpdate{
		Liveness:    l,
		JobState:    s,
		LastChecked: time.Now().Add(-time.Minute),
	}))
	got, err := f.store.GetNode(n.ID)
	require.NoError(t, err)
	return got
}

func (f *engineFixture) get(t *testing.T, id string) *types.TrackedNode {
	t.Helper()
	n, err := f.store.GetNode(id)
	require.NoError(t, err)
	return n
}

func TestEngine_UnknownIsNotOffline(t *testing.T) {
	f := newEngineFixture(t)
	n := f.seed(t, 1, types.LivenessOnline, types.JobStateIdle)
	f.ledger.failAccount(n.Address, ledger.KindTransient)

	report := f.engine.Refresh(context.Background(), "alice")

	require.False(t, report.Failed())
	assert.Equal(t, 1, report.ErrorCount)
	assert.Empty(t, f.dispatcher.Events())

	got := f.get(t, n.ID)
	assert.Equal(t, types.LivenessUnknown, got.Liveness)
	assert.Equal(t, types.JobStateIdle, got.JobState)
	assert.Equal(t, types.LivenessOnline, got.LastKnownLiveness)
	assert.True(t, got.LastChecked.After(n.LastChecked))
}

func TestEngine_JobCompletedOnIdleWorker(t *testing.T) {
	f := newEngineFixture(t)
	n := f.seed(t, 1, types.LivenessOnline, types.JobStateRunning)
	f.ledger.setAccount(n.Address, true)

	report := f.engine.Refresh(context.Background(), "alice")

	require.False(t, report.Failed())
	assert.Equal(t, 0, report.ErrorCount)
	assert.Equal(t, 1, report.UpdatedCount)

	got := f.get(t, n.ID)
	assert.Equal(t, types.LivenessOnline, got.Liveness)
	assert.Equal(t, types.JobStateIdle, got.JobState)

	events := f.dispatcher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, types.EventJobCompleted, events[0].Type)
	assert.Equal(t, n.ID, events[0].NodeID)
}

func TestEngine_JobCompletedDisabled(t *testing.T) {
	f := newEngineFixture(t)
	n := f.seed(t, 1, types.LivenessOnline, types.JobStateRunning)
	f.ledger.setAccount(n.Address, true)

	prefs := types.DefaultNotificationPreference("alice")
	prefs.NotifyJobCompleted = false
	require.NoError(t, f.store.SetPreferences(prefs))

	f.engine.Refresh(context.Background(), "alice")
	assert.Empty(t, f.dispatcher.Events())
	assert.Equal(t, types.JobStateIdle, f.get(t, n.ID).JobState)
}

func TestEngine_TopLevelFailureMutatesNothing(t *testing.T) {
	f := newEngineFixture(t)
	n := f.seed(t, 1, types.LivenessOnline, types.JobStateRunning)
	f.ledger.listErr = errors.New("dial tcp: connection refused")

	report := f.engine.Refresh(context.Background(), "alice")

	require.True(t, report.Failed())
	assert.True(t, ledger.IsKind(report.Err, ledger.KindUnavailable))
	assert.Empty(t, report.Results)
	assert.Equal(t, 0, report.UpdatedCount)
	assert.Empty(t, f.dispatcher.Events())

	got := f.get(t, n.ID)
	assert.Equal(t, n.Liveness, got.Liveness)
	assert.Equal(t, n.JobState, got.JobState)
	assert.True(t, n.LastChecked.Equal(got.LastChecked))
}

func TestEngine_NoDuplicateOfflineAlerts(t *testing.T) {
	f := newEngineFixture(t)
	n := f.seed(t, 1, types.LivenessOnline, types.JobStateIdle)
	f.ledger.setAccount(n.Address, false)

	for i := 0; i < 3; i++ {
		report := f.engine.Refresh(context.Background(), "alice")
		require.False(t, report.Failed())
		if i == 0 {
			assert.Equal(t, 1, report.UpdatedCount)
		} else {
			assert.Equal(t, 0, report.UpdatedCount)
		}
	}

	// A transient outage in between does not re-alert either
	f.ledger.failAccount(n.Address, ledger.KindTransient)
	f.engine.Refresh(context.Background(), "alice")
	delete(f.ledger.accountErrs, n.Address)
	f.engine.Refresh(context.Background(), "alice")

	assert.Equal(t, 1, f.dispatcher.count(types.EventOffline))
	assert.Equal(t, types.LivenessOffline, f.get(t, n.ID).Liveness)
}

func TestEngine_PartialFailureIsolation(t *testing.T) {
	f := newEngineFixture(t)
	a := f.seed(t, 1, types.LivenessOnline, types.JobStateIdle)
	b := f.seed(t, 2, types.LivenessOnline, types.JobStateIdle)
	c := f.seed(t, 3, types.LivenessOnline, types.JobStateIdle)

	f.ledger.addJob("j1", a.Address, types.JobPhaseQueued)
	f.ledger.failJob("j2", ledger.KindMalformed) // a's running job
	f.ledger.addJob("j3", b.Address, types.JobPhaseRunning)
	f.ledger.setAccount(c.Address, true)

	report := f.engine.Refresh(context.Background(), "alice")
	require.False(t, report.Failed())
	assert.GreaterOrEqual(t, report.ErrorCount, 1)

	// a: idle -> queued, b: idle -> running, c unchanged
	assert.Equal(t, 2, report.UpdatedCount)
	assert.Equal(t, types.JobStateQueued, f.get(t, a.ID).JobState)
	assert.Equal(t, types.JobStateRunning, f.get(t, b.ID).JobState)
	assert.Equal(t, types.JobStateIdle, f.get(t, c.ID).JobState)
	assert.Equal(t, types.LivenessOnline, f.get(t, c.ID).Liveness)

	assert.Equal(t, 1, f.dispatcher.count(types.EventJobStarted))
}

func TestEngine_NodeDeletedMidBatch(t *testing.T) {
	f := newEngineFixture(t)
	a := f.seed(t, 1, types.LivenessOffline, types.JobStateIdle)
	b := f.seed(t, 2, types.LivenessOffline, types.JobStateIdle)
	f.ledger.setAccount(a.Address, true)
	f.ledger.setAccount(b.Address, true)

	registry := &hookRegistry{Store: f.store, beforeUpdate: func(id string) {
		if id == a.ID {
			_ = f.store.DeleteNode(id)
		}
	}}
	engine := NewEngine(registry, f.store, f.engine.runner, notify.NewNotifier(f.dispatcher))

	report := engine.Refresh(context.Background(), "alice")
	require.False(t, report.Failed())

	assert.Equal(t, 1, report.UpdatedCount)
	assert.Equal(t, 1, report.ErrorCount)
	assert.Equal(t, types.ScopeRegistry, report.Errors[0].Scope)
	assert.Equal(t, "not_found", report.Errors[0].Kind)
	assert.NotContains(t, report.Results, a.ID)

	events := f.dispatcher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, b.ID, events[0].NodeID)
	assert.Equal(t, types.EventOnline, events[0].Type)
}

func TestEngine_NoNodes(t *testing.T) {
	f := newEngineFixture(t)

	report := f.engine.Refresh(context.Background(), "nobody")
	assert.False(t, report.Failed())
	assert.Empty(t, report.Results)
	assert.Equal(t, int32(0), f.ledger.listCalls)
}

func TestEngine_NewRunSupersedesInFlight(t *testing.T) {
	f := newEngineFixture(t)
	n := f.seed(t, 1, types.LivenessOnline, types.JobStateIdle)
	f.ledger.setAccount(n.Address, false)
	f.ledger.blockList = true

	first := make(chan *types.BatchReport, 1)
	go func() {
		first <- f.engine.Refresh(context.Background(), "alice")
	}()

	select {
	case <-f.ledger.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first batch never reached the ledger")
	}

	second := f.engine.Refresh(context.Background(), "alice")

	var firstReport *types.BatchReport
	select {
	case firstReport = <-first:
	case <-time.After(5 * time.Second):
		t.Fatal("superseded batch did not return")
	}

	require.True(t, firstReport.Failed())
	assert.ErrorIs(t, firstReport.Err, context.Canceled)
	assert.Empty(t, firstReport.Results)

	require.False(t, second.Failed())
	assert.Equal(t, 1, second.UpdatedCount)
	assert.Equal(t, 1, f.dispatcher.count(types.EventOffline))
	assert.Equal(t, types.LivenessOffline, f.get(t, n.ID).Liveness)
}

func TestEngine_CallerCancellation(t *testing.T) {
	f := newEngineFixture(t)
	n := f.seed(t, 1, types.LivenessOnline, types.JobStateIdle)
	f.ledger.setAccount(n.Address, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := f.engine.Refresh(ctx, "alice")
	require.True(t, report.Failed())
	assert.ErrorIs(t, report.Err, context.Canceled)
	assert.Empty(t, report.Results)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, 1, report.ErrorCount)
	assert.Equal(t, types.ScopeBatch, report.Errors[0].Scope)
	assert.Equal(t, KindCancelled, report.Errors[0].Kind)
	assert.Equal(t, types.LivenessOnline, f.get(t, n.ID).Liveness)
	assert.Empty(t, f.dispatcher.Events())
}

func TestEngine_LowBalanceAlertsOnce(t *testing.T) {
	f := newEngineFixture(t)
	n := f.seed(t, 1, types.LivenessOnline, types.JobStateRunning)
	f.ledger.addJob("j1", n.Address, types.JobPhaseRunning)
	f.ledger.setBalance(n.Address, true, 0.02, 5)

	report := f.engine.Refresh(context.Background(), "alice")
	require.False(t, report.Failed())
	assert.Zero(t, f.dispatcher.count(types.EventLowBalance))
	stored := f.get(t, n.ID)
	assert.InDelta(t, 0.02, stored.SOLBalance, 1e-12)
	assert.InDelta(t, 5, stored.NOSBalance, 1e-12)
	assert.False(t, stored.LowBalance)

	// Crossing below the threshold alerts once and persists the flag
	f.ledger.setBalance(n.Address, true, 0.003, 5)
	for i := 0; i < 3; i++ {
		report = f.engine.Refresh(context.Background(), "alice")
		require.False(t, report.Failed())
	}
	assert.Equal(t, 1, f.dispatcher.count(types.EventLowBalance))
	stored = f.get(t, n.ID)
	assert.True(t, stored.LowBalance)
	assert.InDelta(t, 0.003, stored.SOLBalance, 1e-12)
	assert.False(t, stored.BalanceCheckedAt.IsZero())

	// A top-up rearms the alert
	f.ledger.setBalance(n.Address, true, 1, 5)
	f.engine.Refresh(context.Background(), "alice")
	f.ledger.setBalance(n.Address, true, 0.001, 5)
	f.engine.Refresh(context.Background(), "alice")
	assert.Equal(t, 2, f.dispatcher.count(types.EventLowBalance))
	assert.Zero(t, f.dispatcher.count(types.EventJobCompleted))
}

func reconciliationSamples(t *testing.T) uint64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, metrics.ReconciliationDuration.Write(&m))
	return m.GetHistogram().GetSampleCount()
}

func TestEngine_RecordsBatchMetrics(t *testing.T) {
	f := newEngineFixture(t)
	n := f.seed(t, 1, types.LivenessOnline, types.JobStateIdle)
	f.ledger.setAccount(n.Address, true)

	samples := reconciliationSamples(t)
	okCycles := testutil.ToFloat64(metrics.ReconciliationCyclesTotal.WithLabelValues("ok"))

	report := f.engine.Refresh(context.Background(), "alice")
	require.False(t, report.Failed())

	assert.Equal(t, samples+1, reconciliationSamples(t))
	assert.Equal(t, okCycles+1, testutil.ToFloat64(metrics.ReconciliationCyclesTotal.WithLabelValues("ok")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cancelled := testutil.ToFloat64(metrics.ReconciliationCyclesTotal.WithLabelValues(KindCancelled))
	f.engine.Refresh(ctx, "alice")
	assert.Equal(t, samples+2, reconciliationSamples(t))
	assert.Equal(t, cancelled+1, testutil.ToFloat64(metrics.ReconciliationCyclesTotal.WithLabelValues(KindCancelled)))
}
