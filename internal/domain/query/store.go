package query

import "context"

// Reader is the read side of C1 as seen by the query API (C8).
type Reader interface {
	Query(ctx context.Context, opts LogQueryOptions) (QueryResult, error)
	GetServers(ctx context.Context) ([]ServerAggregate, error)
	GetSessions(ctx context.Context, serverName string) ([]SessionAggregate, error)
	GetClients(ctx context.Context) ([]ClientAggregate, error)
	GetMethods(ctx context.Context, serverName string) ([]string, error)
	ClearAll(ctx context.Context) error
}
