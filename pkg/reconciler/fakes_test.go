package reconciler

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/cuemby/nodewatch/pkg/ledger"
	"github.com/cuemby/nodewatch/pkg/storage"
	"github.com/cuemby/nodewatch/pkg/types"
)

func testAddress(seed byte) string {
	return base58.Encode(bytes.Repeat([]byte{seed}, 32))
}

// fakeLedger serves canned jobs and accounts with per-call failure injection
type fakeLedger struct {
	mu          sync.Mutex
	order       []string
	jobs        map[string]*types.RawLedgerJob
	jobErrs     map[string]error
	accounts    map[string]*types.AccountInfo
	accountErrs map[string]error
	listErr     error

	// blockList makes the next ListJobs wait for ctx; entered is closed
	// once it is waiting
	blockList bool
	entered   chan struct{}

	delay       time.Duration
	inflight    int32
	maxInflight int32
	detailCalls int32
	listCalls   int32
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		jobs:        make(map[string]*types.RawLedgerJob),
		jobErrs:     make(map[string]error),
		accounts:    make(map[string]*types.AccountInfo),
		accountErrs: make(map[string]error),
		entered:     make(chan struct{}),
	}
}

func (f *fakeLedger) addJob(id, node string, phase types.JobPhase) {
	f.order = append(f.order, id)
	f.jobs[id] = &types.RawLedgerJob{JobID: id, NodeAddress: node, State: phase}
}

func (f *fakeLedger) failJob(id string, kind ledger.Kind) {
	f.order = append(f.order, id)
	f.jobErrs[id] = &ledger.Error{Op: ledger.OpJobDetail, Kind: kind, Key: id}
}

// setAccount registers an account holding a comfortable balance
func (f *fakeLedger) setAccount(address string, registered bool) {
	f.setBalance(address, registered, 1.5, 100)
}

func (f *fakeLedger) setBalance(address string, registered bool, sol, nos float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[address] = &types.AccountInfo{Address: address, Registered: registered, SOLBalance: sol, NOSBalance: nos}
}

func (f *fakeLedger) failAccount(address string, kind ledger.Kind) {
	f.accountErrs[address] = &ledger.Error{Op: ledger.OpAccountInfo, Kind: kind, Key: address}
}

func (f *fakeLedger) track() func() {
	n := atomic.AddInt32(&f.inflight, 1)
	for {
		peak := atomic.LoadInt32(&f.maxInflight)
		if n <= peak || atomic.CompareAndSwapInt32(&f.maxInflight, peak, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return func() { atomic.AddInt32(&f.inflight, -1) }
}

func (f *fakeLedger) ListJobs(ctx context.Context, limit int) ([]types.JobSummary, error) {
	atomic.AddInt32(&f.listCalls, 1)

	f.mu.Lock()
	block := f.blockList
	f.blockList = false
	f.mu.Unlock()
	if block {
		close(f.entered)
		<-ctx.Done()
		return nil, &ledger.Error{Op: ledger.OpListJobs, Kind: ledger.KindTransient, Err: ctx.Err()}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []types.JobSummary
	for _, id := range f.order {
		if len(out) == limit {
			break
		}
		out = append(out, types.JobSummary{JobID: id})
	}
	return out, nil
}

func (f *fakeLedger) GetJobDetail(ctx context.Context, job types.JobSummary) (*types.RawLedgerJob, error) {
	defer f.track()()
	atomic.AddInt32(&f.detailCalls, 1)
	if err := f.jobErrs[job.JobID]; err != nil {
		return nil, err
	}
	j, ok := f.jobs[job.JobID]
	if !ok {
		return nil, &ledger.Error{Op: ledger.OpJobDetail, Kind: ledger.KindNotFound, Key: job.JobID}
	}
	cp := *j
	return &cp, nil
}

func (f *fakeLedger) GetAccountInfo(ctx context.Context, address string) (*types.AccountInfo, error) {
	defer f.track()()
	if err := f.accountErrs[address]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	info, ok := f.accounts[address]
	f.mu.Unlock()
	if !ok {
		return nil, &ledger.Error{Op: ledger.OpAccountInfo, Kind: ledger.KindNotFound, Key: address}
	}
	cp := *info
	return &cp, nil
}

// recordingDispatcher remembers delivered events
type recordingDispatcher struct {
	mu     sync.Mutex
	events []types.NotificationEvent
}

func (r *recordingDispatcher) Send(ctx context.Context, userID string, event types.NotificationEvent) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return 1, nil
}

func (r *recordingDispatcher) Events() []types.NotificationEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.NotificationEvent(nil), r.events...)
}

func (r *recordingDispatcher) count(t types.EventType) int {
	n := 0
	for _, e := range r.Events() {
		if e.Type == t {
			n++
		}
	}
	return n
}

// hookRegistry runs beforeUpdate ahead of every status write
type hookRegistry struct {
	storage.Store
	beforeUpdate func(id string)
}

func (h *hookRegistry) UpdateStatus(id string, update types.StatusUpdate) error {
	if h.beforeUpdate != nil {
		h.beforeUpdate(id)
	}
	return h.Store.UpdateStatus(id, update)
}
