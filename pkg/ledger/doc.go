/*
Package ledger is the read-only boundary to the ledger indexer.

The Client interface exposes three calls: job enumeration, job detail and
worker account lookup. HTTPClient implements it against the indexer's JSON
API. Every call is bounded by a per-call timeout and fails independently
with an *Error carrying a Kind:

	KindNotFound     the ledger has no record
	KindTransient    timeout, rate limit, 5xx, connection failure
	KindMalformed    the record fails validation
	KindUnavailable  job enumeration failed; the whole batch is void

Retries are not built in. Wrap a client with WithRetry to retry transient
failures with exponential backoff:

	client, _ := ledger.NewHTTPClient("https://indexer.nosana.io")
	c := ledger.WithRetry(client, ledger.DefaultRetryPolicy())

Worker addresses are base58 encoded 32-byte public keys. Use SameAddress to
compare them; it rejects anything that does not decode.
*/
package ledger
