package reconciler

import (
	"context"
	"time"

	"github.com/cuemby/nodewatch/pkg/ledger"
	"github.com/cuemby/nodewatch/pkg/log"
	"github.com/cuemby/nodewatch/pkg/metrics"
	"github.com/cuemby/nodewatch/pkg/status"
	"github.com/cuemby/nodewatch/pkg/types"
	"github.com/remeh/sizedwaitgroup"
	"github.com/rs/zerolog"
)

// Config bounds one reconciliation batch
type Config struct {
	// JobLimit caps how many jobs are enumerated per batch
	JobLimit int

	// Concurrency caps in-flight ledger calls
	Concurrency int

	// LowBalanceSOL is the SOL balance below which a node is flagged low.
	// Zero selects DefaultLowBalanceSOL.
	LowBalanceSOL float64
}

// KindCancelled is the batch error kind of a run stopped by its context
const KindCancelled = "cancelled"

// DefaultLowBalanceSOL is roughly the fee reserve a worker needs to keep
// posting job results
const DefaultLowBalanceSOL = 0.006

// DefaultConfig returns the default batch bounds
func DefaultConfig() Config {
	return Config{
		JobLimit:      ledger.DefaultJobLimit,
		Concurrency:   8,
		LowBalanceSOL: DefaultLowBalanceSOL,
	}
}

// Runner performs one reconciliation pass over a set of nodes. It reads
// from the ledger only; writing results back is the Engine's job.
type Runner struct {
	ledger ledger.Client
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time
}

// NewRunner creates a batch runner
func NewRunner(client ledger.Client, cfg Config) *Runner {
	if cfg.JobLimit <= 0 {
		cfg.JobLimit = ledger.DefaultJobLimit
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.LowBalanceSOL <= 0 {
		cfg.LowBalanceSOL = DefaultLowBalanceSOL
	}
	return &Runner{
		ledger: client,
		cfg:    cfg,
		logger: log.WithComponent("runner"),
		now:    time.Now,
	}
}

// Run reconciles nodes against one job enumeration. It never fails on a
// single job or node: those errors are recorded in the report and the
// batch continues. If the enumeration itself fails, or ctx is cancelled,
// report.Err is set and Results is empty.
func (r *Runner) Run(ctx context.Context, nodes []*types.TrackedNode) *types.BatchReport {
	report := &types.BatchReport{
		Results:   make(map[string]*types.ReconciliationResult, len(nodes)),
		StartedAt: r.now(),
	}
	defer func() { report.FinishedAt = r.now() }()

	summaries, err := r.ledger.ListJobs(ctx, r.cfg.JobLimit)
	if err != nil {
		if ctx.Err() != nil {
			return r.abort(report, ctx.Err())
		}
		report.Err = ledger.Unavailable(err)
		r.addError(report, types.BatchError{
			Scope:   types.ScopeBatch,
			Kind:    ledger.KindUnavailable.String(),
			Message: err.Error(),
		})
		r.logger.Error().Err(err).Msg("Job enumeration failed, batch aborted")
		return report
	}

	jobs := r.fetchJobs(ctx, summaries, report)
	if ctx.Err() != nil {
		return r.abort(report, ctx.Err())
	}

	statuses := make([]status.Status, len(nodes))
	for i, node := range nodes {
		statuses[i] = status.Derive(node.Address, jobs)
	}

	accounts := r.lookupAccounts(ctx, nodes)
	if ctx.Err() != nil {
		return r.abort(report, ctx.Err())
	}

	checkedAt := r.now()
	for i, node := range nodes {
		s := statuses[i]
		res := &types.ReconciliationResult{
			NodeID:         node.ID,
			Liveness:       s.Liveness,
			JobState:       s.JobState,
			ActiveJobCount: s.ActiveJobs,
			CheckedAt:      checkedAt,
		}
		lookup := accounts[i]
		if lookup.err == nil && lookup.info != nil {
			res.Balance = &types.BalanceUpdate{
				SOL:       lookup.info.SOLBalance,
				NOS:       lookup.info.NOSBalance,
				Low:       lookup.info.SOLBalance < r.cfg.LowBalanceSOL,
				CheckedAt: checkedAt,
			}
		}
		if s.NeedsAccount {
			res.Liveness = status.ResolveLiveness(s, lookup.info, lookup.err)
			if lookup.err != nil {
				res.Err = lookup.err
				r.addError(report, types.BatchError{
					Scope:   types.ScopeNode,
					NodeID:  node.ID,
					Kind:    ledger.KindOf(lookup.err).String(),
					Message: lookup.err.Error(),
				})
				r.logger.Warn().
					Err(lookup.err).
					Str("node_id", node.ID).
					Str("address", node.Address).
					Msg("Account lookup failed, liveness unknown")
			}
		} else if lookup.err != nil {
			// Liveness is already decided by jobs, so only the balance is stale
			r.logger.Debug().
				Err(lookup.err).
				Str("node_id", node.ID).
				Msg("Balance lookup failed, keeping stored balance")
		}
		report.Results[node.ID] = res
	}

	return report
}

// fetchJobs loads every job detail with bounded concurrency. Failed jobs are
// recorded and contribute nothing.
func (r *Runner) fetchJobs(ctx context.Context, summaries []types.JobSummary, report *types.BatchReport) []*types.RawLedgerJob {
	details := make([]*types.RawLedgerJob, len(summaries))
	errs := make([]error, len(summaries))

	swg := sizedwaitgroup.New(r.cfg.Concurrency)
	for i, summary := range summaries {
		if err := swg.AddWithContext(ctx); err != nil {
			break
		}
		go func(i int, summary types.JobSummary) {
			defer swg.Done()
			details[i], errs[i] = r.ledger.GetJobDetail(ctx, summary)
		}(i, summary)
	}
	swg.Wait()

	if ctx.Err() != nil {
		return nil
	}

	jobs := make([]*types.RawLedgerJob, 0, len(details))
	for i, job := range details {
		if errs[i] != nil {
			r.addError(report, types.BatchError{
				Scope:   types.ScopeJob,
				JobID:   summaries[i].JobID,
				Kind:    ledger.KindOf(errs[i]).String(),
				Message: errs[i].Error(),
			})
			r.logger.Warn().
				Err(errs[i]).
				Str("job_id", summaries[i].JobID).
				Str("kind", ledger.KindOf(errs[i]).String()).
				Msg("Job detail fetch failed, skipping job")
			continue
		}
		if job != nil {
			jobs = append(jobs, job)
		}
	}
	return jobs
}

type accountLookup struct {
	info *types.AccountInfo
	err  error
}

// lookupAccounts reads every node's account. Undecided nodes need it for
// liveness; all of them need it for the balance reading.
func (r *Runner) lookupAccounts(ctx context.Context, nodes []*types.TrackedNode) []accountLookup {
	lookups := make([]accountLookup, len(nodes))

	swg := sizedwaitgroup.New(r.cfg.Concurrency)
	for i, node := range nodes {
		if err := swg.AddWithContext(ctx); err != nil {
			break
		}
		go func(i int, address string) {
			defer swg.Done()
			info, err := r.ledger.GetAccountInfo(ctx, address)
			lookups[i] = accountLookup{info: info, err: err}
		}(i, node.Address)
	}
	swg.Wait()
	return lookups
}

// abort discards partial work. The report then carries a single batch
// error, so callers see why it failed.
func (r *Runner) abort(report *types.BatchReport, err error) *types.BatchReport {
	report.Err = err
	report.Results = map[string]*types.ReconciliationResult{}
	report.Errors = nil
	report.ErrorCount = 0
	r.addError(report, types.BatchError{
		Scope:   types.ScopeBatch,
		Kind:    KindCancelled,
		Message: err.Error(),
	})
	r.logger.Info().Err(err).Msg("Batch cancelled")
	return report
}

func (r *Runner) addError(report *types.BatchReport, e types.BatchError) {
	report.AddError(e)
	metrics.BatchUnitErrorsTotal.WithLabelValues(string(e.Scope), e.Kind).Inc()
}
