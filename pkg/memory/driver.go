package memory

import "context"

// Driver is the authoritative memory store contract. A Driver owns the record
// table and all lookup indices; after every mutating operation completes the
// indices are consistent with the table, and a failed mutation leaves both
// untouched.
//
// Implementations emit an eventstream event for every completed mutation
// (created, updated, deleted, accessed, pruned, error); that stream is the
// only externally visible side channel besides return values.
type Driver interface {
	// Store validates the request, fills in embedding and importance when
	// absent, and inserts the record into the table and every index
	// atomically. Returns a ValidationError naming the offending field on
	// malformed input.
	Store(ctx context.Context, req *StoreRequest) (*Record, error)

	// Retrieve returns the existing, non-expired records among ids. Missing
	// or expired ids are skipped silently. Access bookkeeping (count and
	// last-accessed time) is updated for every returned record.
	Retrieve(ctx context.Context, ids []string) ([]*Record, error)

	// Update applies a partial update, recomputing the embedding when content
	// changes and bumping the version. Returns NotFoundError for unknown ids.
	Update(ctx context.Context, req *UpdateRequest) (*Record, error)

	// Delete removes a record and its index entries. Reports whether a
	// record existed.
	Delete(ctx context.Context, id string) (bool, error)

	// Search filters, scores and paginates records per the query.
	Search(ctx context.Context, query *Query) (*SearchResult, error)

	// Prune deletes records per the criteria's strategy, preservation lists
	// and hard limits. DryRun computes the same result without mutating.
	Prune(ctx context.Context, criteria *PruneCriteria) (*PruneResult, error)

	// Bulk applies create/update/delete items independently; one item's
	// failure never aborts the others.
	Bulk(ctx context.Context, items []BulkItem) (*BulkResult, error)

	// Health reports capacity and quality signals.
	Health(ctx context.Context) (*Health, error)

	// Metrics reports operation latency percentiles and storage efficiency.
	Metrics(ctx context.Context) (*PerformanceMetrics, error)

	// Close releases driver resources.
	Close() error
}
