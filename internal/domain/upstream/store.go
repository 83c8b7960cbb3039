package upstream

import "context"

// Store is the registry contract (C9): get/list/add/update/remove over
// McpServer, keyed by case-insensitive name. Mutations are serialized by
// the implementation; readers observe a consistent snapshot.
type Store interface {
	// Get looks up a server by name (case-insensitive). Returns
	// ErrUpstreamNotFound if absent.
	Get(ctx context.Context, name string) (*McpServer, error)
	// List returns every registered server, in no particular order.
	List(ctx context.Context) ([]McpServer, error)
	// Add registers a new server. Returns ErrUpstreamExists if the
	// case-folded name is already taken.
	Add(ctx context.Context, s *McpServer) error
	// Update replaces a server's record in place. Returns
	// ErrUpstreamNotFound if the name isn't registered.
	Update(ctx context.Context, s *McpServer) error
	// Remove deletes a server from the registry. It does not touch any
	// captures already written for that name.
	Remove(ctx context.Context, name string) error
	// Touch records a successful exchange: increments ExchangeCount and
	// bumps LastActivity to now.
	Touch(ctx context.Context, name string) error
	// SetHealth records the result of a C7 health probe.
	SetHealth(ctx context.Context, name string, h Health) error
}
