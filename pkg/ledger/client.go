package ledger

import (
	"context"

	"github.com/cuemby/nodewatch/pkg/types"
)

// DefaultJobLimit caps how many jobs one batch enumerates
const DefaultJobLimit = 50

// Client is the I/O boundary to the ledger indexer. Every call may fail
// independently with an *Error; implementations hold no cache between calls.
type Client interface {
	// ListJobs enumerates at most limit job summaries
	ListJobs(ctx context.Context, limit int) ([]types.JobSummary, error)

	// GetJobDetail fetches one job. A record with a missing or unparseable
	// node association is returned with an empty NodeAddress, not an error.
	GetJobDetail(ctx context.Context, job types.JobSummary) (*types.RawLedgerJob, error)

	// GetAccountInfo looks up a worker account
	GetAccountInfo(ctx context.Context, address string) (*types.AccountInfo, error)
}
