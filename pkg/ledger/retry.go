package ledger

import (
	"context"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/cuemby/nodewatch/pkg/log"
	"github.com/cuemby/nodewatch/pkg/types"
	"github.com/rs/zerolog"
)

// RetryPolicy bounds how transient ledger failures are retried
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first
	Attempts uint

	// Delay is the initial backoff, doubled after each failure
	Delay time.Duration

	// MaxDelay caps a single backoff
	MaxDelay time.Duration
}

// DefaultRetryPolicy returns three attempts with 500ms..5s backoff
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: 3,
		Delay:    500 * time.Millisecond,
		MaxDelay: 5 * time.Second,
	}
}

// NoRetry makes a single attempt
func NoRetry() RetryPolicy {
	return RetryPolicy{Attempts: 1}
}

type retryingClient struct {
	next   Client
	policy RetryPolicy
	logger zerolog.Logger
}

// WithRetry wraps next so that calls failing with KindTransient are retried
// according to policy. Other kinds fail immediately.
func WithRetry(next Client, policy RetryPolicy) Client {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	return &retryingClient{
		next:   next,
		policy: policy,
		logger: log.WithComponent("ledger"),
	}
}

func (c *retryingClient) options(ctx context.Context, op, key string) []retry.Option {
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(c.policy.Attempts),
		retry.Delay(c.policy.Delay),
		retry.MaxDelay(c.policy.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return KindOf(err) == KindTransient
		}),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug().
				Str("op", op).
				Str("key", key).
				Uint("attempt", n+1).
				Err(err).
				Msg("Ledger call failed, retrying")
		}),
	}
}

func (c *retryingClient) ListJobs(ctx context.Context, limit int) ([]types.JobSummary, error) {
	return retry.DoWithData(func() ([]types.JobSummary, error) {
		return c.next.ListJobs(ctx, limit)
	}, c.options(ctx, OpListJobs, "")...)
}

func (c *retryingClient) GetJobDetail(ctx context.Context, job types.JobSummary) (*types.RawLedgerJob, error) {
	return retry.DoWithData(func() (*types.RawLedgerJob, error) {
		return c.next.GetJobDetail(ctx, job)
	}, c.options(ctx, OpJobDetail, job.JobID)...)
}

func (c *retryingClient) GetAccountInfo(ctx context.Context, address string) (*types.AccountInfo, error) {
	return retry.DoWithData(func() (*types.AccountInfo, error) {
		return c.next.GetAccountInfo(ctx, address)
	}, c.options(ctx, OpAccountInfo, address)...)
}
