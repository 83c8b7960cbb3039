// Package query holds the read-side contracts for the query API (C8): the
// filter grammar accepted by GET /logs and the aggregate shapes returned by
// the registry/session/client/method summaries.
package query

import "time"

// MatchOp is the comparison mode for a multi-select string filter.
type MatchOp string

const (
	// OpIs matches a field exactly, case-sensitive.
	OpIs MatchOp = "is"
	// OpContains matches a substring, case-insensitive.
	OpContains MatchOp = "contains"
)

// StringFilter is a multi-select filter over one string column: values are
// OR'd together, the operator decides match semantics for all of them.
type StringFilter struct {
	Op     MatchOp
	Values []string
}

// NumericFilter is a filter over one numeric column. Eq values are OR'd;
// Gt/Lt/Gte/Lte are single-valued and AND with everything else.
type NumericFilter struct {
	Eq  []int64
	Gt  *int64
	Lt  *int64
	Gte *int64
	Lte *int64
}

// LogQueryOptions is the input to C1's query operation, per §4.8.
type LogQueryOptions struct {
	ServerName  *StringFilter
	SessionID   *StringFilter
	ClientName  *StringFilter
	Method      *StringFilter
	DurationMs  *NumericFilter
	Tokens      *NumericFilter
	SearchQueries []string
	After       *time.Time
	Before      *time.Time
	Limit       int
	Order       string // "asc" | "desc"
}

// DefaultLimit and MaxLimit bound §4.8's 1-1000, default 100 rule.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// LogRow is one persisted logs row, per §4.8's column list.
type LogRow struct {
	ID            int64
	Timestamp     time.Time
	Method        string
	JSONRPCID     *string
	ServerName    string
	SessionID     string
	DurationMs    int64
	HTTPStatus    int
	RequestJSON   *string
	ResponseJSON  *string
	ErrorJSON     *string
	ClientName    *string
	ClientVersion *string
	ClientTitle   *string
	ServerVersion *string
	ServerTitle   *string
	UserAgent     *string
	ClientIP      *string
}

// QueryResult is C1's query response, including the pagination metadata
// described in §4.8's "fetch limit+1" contract.
type QueryResult struct {
	Rows            []LogRow
	HasMore         bool
	OldestTimestamp *time.Time
	NewestTimestamp *time.Time
}

// ServerAggregate is one GET /servers entry.
type ServerAggregate struct {
	ServerName     string
	LogCount       int64
	SessionCount   int64
	Status         string // "online" | "deleted"
	URL            string
	Health         string
	LastHealthCheck *time.Time
}

// SessionAggregate is one GET /sessions entry.
type SessionAggregate struct {
	SessionID  string
	ServerName string
	LogCount   int64
	StartTime  time.Time
	EndTime    time.Time
}

// ClientAggregate is one GET /clients entry.
type ClientAggregate struct {
	ClientName    string
	ClientVersion string
}
