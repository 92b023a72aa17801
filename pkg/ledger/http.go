package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cuemby/nodewatch/pkg/log"
	"github.com/cuemby/nodewatch/pkg/metrics"
	"github.com/cuemby/nodewatch/pkg/types"
	"github.com/rs/zerolog"
)

// maxBodyBytes bounds how much of a response is read
const maxBodyBytes = 4 << 20

// HTTPClient talks to a ledger indexer over its JSON API
type HTTPClient struct {
	// Endpoint is the indexer base URL (e.g., "https://indexer.nosana.io")
	Endpoint string

	// Timeout bounds each individual call
	Timeout time.Duration

	// Client is the HTTP client to use
	Client *http.Client

	logger zerolog.Logger
}

// NewHTTPClient creates an indexer client for endpoint
func NewHTTPClient(endpoint string) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid ledger endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid ledger endpoint %q: scheme must be http or https", endpoint)
	}
	return &HTTPClient{
		Endpoint: u.String(),
		Timeout:  15 * time.Second,
		Client:   &http.Client{},
		logger:   log.WithComponent("ledger"),
	}, nil
}

// WithTimeout sets the per-call timeout
func (c *HTTPClient) WithTimeout(timeout time.Duration) *HTTPClient {
	c.Timeout = timeout
	return c
}

type jobListEntry struct {
	Address string `json:"address"`
}

type jobDetail struct {
	Address string      `json:"address"`
	Node    interface{} `json:"node"`
	State   interface{} `json:"state"`
}

type nodeAccount struct {
	Address    string  `json:"address"`
	Registered bool    `json:"registered"`
	SOLBalance float64 `json:"solBalance"`
	NOSBalance float64 `json:"nosBalance"`
}

// ListJobs enumerates at most limit job summaries
func (c *HTTPClient) ListJobs(ctx context.Context, limit int) ([]types.JobSummary, error) {
	if limit <= 0 {
		limit = DefaultJobLimit
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))

	var entries []jobListEntry
	if err := c.get(ctx, OpListJobs, "", "/jobs?"+q.Encode(), &entries); err != nil {
		return nil, err
	}

	// The indexer may ignore the limit; never enumerate more than asked.
	if len(entries) > limit {
		entries = entries[:limit]
	}
	jobs := make([]types.JobSummary, 0, len(entries))
	for _, e := range entries {
		id := strings.TrimSpace(e.Address)
		if id == "" {
			continue
		}
		jobs = append(jobs, types.JobSummary{JobID: id})
	}
	return jobs, nil
}

// GetJobDetail fetches one job record
func (c *HTTPClient) GetJobDetail(ctx context.Context, job types.JobSummary) (*types.RawLedgerJob, error) {
	var d jobDetail
	if err := c.get(ctx, OpJobDetail, job.JobID, "/jobs/"+url.PathEscape(job.JobID), &d); err != nil {
		return nil, err
	}

	phase, err := parsePhase(d.State)
	if err != nil {
		return nil, newError(OpJobDetail, KindMalformed, job.JobID, err)
	}

	// A non-string association counts as missing.
	node, _ := d.Node.(string)
	return &types.RawLedgerJob{
		JobID:       job.JobID,
		NodeAddress: strings.TrimSpace(node),
		State:       phase,
	}, nil
}

// GetAccountInfo looks up a worker account
func (c *HTTPClient) GetAccountInfo(ctx context.Context, address string) (*types.AccountInfo, error) {
	var acct nodeAccount
	if err := c.get(ctx, OpAccountInfo, address, "/nodes/"+url.PathEscape(address), &acct); err != nil {
		return nil, err
	}
	c.logger.Debug().
		Str("address", address).
		Bool("registered", acct.Registered).
		Float64("sol", acct.SOLBalance).
		Float64("nos", acct.NOSBalance).
		Msg("Account info fetched")

	return &types.AccountInfo{
		Address:    address,
		Registered: acct.Registered,
		SOLBalance: acct.SOLBalance,
		NOSBalance: acct.NOSBalance,
	}, nil
}

// get performs one bounded GET and decodes the JSON body into out
func (c *HTTPClient) get(ctx context.Context, op, key, path string, out interface{}) (err error) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDurationVec(metrics.LedgerRequestDuration, op)
		outcome := "ok"
		if err != nil {
			outcome = KindOf(err).String()
		}
		metrics.LedgerRequestsTotal.WithLabelValues(op, outcome).Inc()
	}()

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint+path, nil)
	if err != nil {
		return newError(op, KindMalformed, key, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		// Timeouts, refused connections and cancellations are all retryable.
		return newError(op, KindTransient, key, err)
	}
	defer resp.Body.Close()

	if kind, bad := classifyStatus(resp.StatusCode); bad {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return errorf(op, kind, key, "HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return newError(op, KindTransient, key, err)
	}
	if err := sonic.Unmarshal(body, out); err != nil {
		return errorf(op, KindMalformed, key, "decode response: %v", err)
	}
	return nil
}

func classifyStatus(code int) (Kind, bool) {
	switch {
	case code >= 200 && code < 300:
		return KindUnknown, false
	case code == http.StatusNotFound:
		return KindNotFound, true
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout, code >= 500:
		return KindTransient, true
	default:
		return KindMalformed, true
	}
}

var errBadState = errors.New("unrecognized job state")

// parsePhase accepts the integer encoding (0 queued, 1 running, 2 done) and
// the symbolic names the ledger has been observed to return.
func parsePhase(v interface{}) (types.JobPhase, error) {
	switch s := v.(type) {
	case float64:
		if s != math.Trunc(s) {
			return 0, fmt.Errorf("%w: %v", errBadState, s)
		}
		return phaseFromInt(int64(s))
	case string:
		name := strings.ToUpper(strings.TrimSpace(s))
		switch name {
		case "QUEUED":
			return types.JobPhaseQueued, nil
		case "RUNNING":
			return types.JobPhaseRunning, nil
		case "COMPLETED", "DONE", "STOPPED":
			return types.JobPhaseDone, nil
		}
		if n, err := strconv.ParseInt(name, 10, 64); err == nil {
			return phaseFromInt(n)
		}
		return 0, fmt.Errorf("%w: %q", errBadState, s)
	case nil:
		return 0, fmt.Errorf("%w: missing", errBadState)
	default:
		return 0, fmt.Errorf("%w: %T", errBadState, v)
	}
}

func phaseFromInt(n int64) (types.JobPhase, error) {
	switch types.JobPhase(n) {
	case types.JobPhaseQueued, types.JobPhaseRunning, types.JobPhaseDone:
		return types.JobPhase(n), nil
	}
	return 0, fmt.Errorf("%w: %d", errBadState, n)
}
