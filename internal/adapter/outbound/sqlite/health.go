package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mcpwatch/gateway/internal/domain/upstream"
)

// UpsertServerHealth serves C7's write-through to durable storage, and
// C9's optional co-location of the registry snapshot with the logs
// database, per §4.7/§4.8.
func (d *DB) UpsertServerHealth(ctx context.Context, name string, health upstream.Health, lastCheck time.Time, url string) error {
	_, err := d.writer.ExecContext(ctx, `
		INSERT INTO registered_servers (name, url, health, last_health_check)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			url = excluded.url,
			health = excluded.health,
			last_health_check = excluded.last_health_check`,
		name, url, string(health), formatTime(lastCheck),
	)
	if err != nil {
		return fmt.Errorf("upsert server health: %w", err)
	}
	return nil
}

// GetRegisteredServers returns the durable registry snapshot, if C9 is
// co-located with C1.
func (d *DB) GetRegisteredServers(ctx context.Context) ([]upstream.McpServer, error) {
	rows, err := d.reader.QueryContext(ctx, `SELECT name, url, health, last_health_check FROM registered_servers`)
	if err != nil {
		return nil, fmt.Errorf("get registered servers: %w", err)
	}
	defer rows.Close()

	var out []upstream.McpServer
	for rows.Next() {
		var srv upstream.McpServer
		var lastCheck sql.NullString
		if err := rows.Scan(&srv.Name, &srv.URL, &srv.Health, &lastCheck); err != nil {
			return nil, err
		}
		if lastCheck.Valid {
			t := parseTime(lastCheck.String)
			srv.LastHealthCheck = &t
		}
		out = append(out, srv)
	}
	return out, rows.Err()
}
