package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/mcpwatch/gateway/internal/domain/query"
)

// Query implements query.Reader's GET /logs operation, per §4.8.
func (d *DB) Query(ctx context.Context, opts query.LogQueryOptions) (query.QueryResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = query.DefaultLimit
	}
	if limit > query.MaxLimit {
		limit = query.MaxLimit
	}
	order := "DESC"
	if strings.EqualFold(opts.Order, "asc") {
		order = "ASC"
	}

	where, args := buildWhere(opts)

	sqlStr := fmt.Sprintf(`
		SELECT id, timestamp, method, jsonrpc_id, server_name, session_id,
		       duration_ms, http_status, request_json, response_json, error_json,
		       client_name, client_version, client_title, server_version,
		       server_title, user_agent, client_ip
		FROM logs
		%s
		ORDER BY timestamp %s, id %s
		LIMIT ?`, where, order, order)
	args = append(args, limit+1)

	rows, err := d.reader.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return query.QueryResult{}, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	var result query.QueryResult
	for rows.Next() {
		row, err := scanLogRow(rows)
		if err != nil {
			return query.QueryResult{}, fmt.Errorf("scan log row: %w", err)
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return query.QueryResult{}, err
	}

	if len(result.Rows) > limit {
		result.HasMore = true
		result.Rows = result.Rows[:limit]
	}
	if len(result.Rows) > 0 {
		oldest := result.Rows[len(result.Rows)-1].Timestamp
		newest := result.Rows[0].Timestamp
		if order == "ASC" {
			oldest, newest = newest, oldest
		}
		result.OldestTimestamp = &oldest
		result.NewestTimestamp = &newest
	}
	return result, nil
}

// buildWhere translates LogQueryOptions into a parameterized WHERE clause.
func buildWhere(opts query.LogQueryOptions) (string, []any) {
	var clauses []string
	var args []any

	addStringFilter := func(column string, f *query.StringFilter) {
		if f == nil || len(f.Values) == 0 {
			return
		}
		var ors []string
		for _, v := range f.Values {
			if f.Op == query.OpContains {
				ors = append(ors, fmt.Sprintf("LOWER(%s) LIKE ?", column))
				args = append(args, "%"+strings.ToLower(v)+"%")
			} else {
				ors = append(ors, fmt.Sprintf("%s = ?", column))
				args = append(args, v)
			}
		}
		clauses = append(clauses, "("+strings.Join(ors, " OR ")+")")
	}

	addStringFilter("server_name", opts.ServerName)
	addStringFilter("session_id", opts.SessionID)
	addStringFilter("client_name", opts.ClientName)
	addStringFilter("method", opts.Method)

	addNumericFilter := func(column string, f *query.NumericFilter) {
		if f == nil {
			return
		}
		if len(f.Eq) > 0 {
			var ors []string
			for _, v := range f.Eq {
				ors = append(ors, fmt.Sprintf("%s = ?", column))
				args = append(args, v)
			}
			clauses = append(clauses, "("+strings.Join(ors, " OR ")+")")
		}
		if f.Gt != nil {
			clauses = append(clauses, fmt.Sprintf("%s > ?", column))
			args = append(args, *f.Gt)
		}
		if f.Lt != nil {
			clauses = append(clauses, fmt.Sprintf("%s < ?", column))
			args = append(args, *f.Lt)
		}
		if f.Gte != nil {
			clauses = append(clauses, fmt.Sprintf("%s >= ?", column))
			args = append(args, *f.Gte)
		}
		if f.Lte != nil {
			clauses = append(clauses, fmt.Sprintf("%s <= ?", column))
			args = append(args, *f.Lte)
		}
	}

	addNumericFilter("duration_ms", opts.DurationMs)
	addNumericFilter("tokens", opts.Tokens)

	for _, term := range opts.SearchQueries {
		clauses = append(clauses, "(LOWER(COALESCE(request_json,'')) LIKE ? OR LOWER(COALESCE(response_json,'')) LIKE ?)")
		needle := "%" + strings.ToLower(term) + "%"
		args = append(args, needle, needle)
	}

	if opts.After != nil {
		clauses = append(clauses, "timestamp > ?")
		args = append(args, formatTime(*opts.After))
	}
	if opts.Before != nil {
		clauses = append(clauses, "timestamp < ?")
		args = append(args, formatTime(*opts.Before))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func scanLogRow(rows *sql.Rows) (query.LogRow, error) {
	var row query.LogRow
	var ts string
	var jsonrpcID, requestJSON, responseJSON, errorJSON sql.NullString
	var clientName, clientVersion, clientTitle, serverVersion, serverTitle, userAgent, clientIP sql.NullString

	err := rows.Scan(
		&row.ID, &ts, &row.Method, &jsonrpcID, &row.ServerName, &row.SessionID,
		&row.DurationMs, &row.HTTPStatus, &requestJSON, &responseJSON, &errorJSON,
		&clientName, &clientVersion, &clientTitle, &serverVersion, &serverTitle,
		&userAgent, &clientIP,
	)
	if err != nil {
		return row, err
	}

	row.Timestamp = parseTime(ts)
	row.JSONRPCID = strPtr(jsonrpcID)
	row.RequestJSON = strPtr(requestJSON)
	row.ResponseJSON = strPtr(responseJSON)
	row.ErrorJSON = strPtr(errorJSON)
	row.ClientName = strPtr(clientName)
	row.ClientVersion = strPtr(clientVersion)
	row.ClientTitle = strPtr(clientTitle)
	row.ServerVersion = strPtr(serverVersion)
	row.ServerTitle = strPtr(serverTitle)
	row.UserAgent = strPtr(userAgent)
	row.ClientIP = strPtr(clientIP)
	return row, nil
}

// GetServers implements the §4.8 aggregation, joined with the registry so
// a server with no logs still appears (counts 0) and a server with logs
// but no registry entry is marked "deleted".
func (d *DB) GetServers(ctx context.Context) ([]query.ServerAggregate, error) {
	rows, err := d.reader.QueryContext(ctx, `
		SELECT r.name, r.url, r.health, r.last_health_check,
		       COALESCE(l.log_count, 0), COALESCE(l.session_count, 0)
		FROM registered_servers r
		LEFT JOIN (
			SELECT server_name, COUNT(*) AS log_count, COUNT(DISTINCT session_id) AS session_count
			FROM logs GROUP BY server_name
		) l ON l.server_name = r.name

		UNION ALL

		SELECT l.server_name, '', 'unknown', NULL, l.log_count, l.session_count
		FROM (
			SELECT server_name, COUNT(*) AS log_count, COUNT(DISTINCT session_id) AS session_count
			FROM logs GROUP BY server_name
		) l
		WHERE l.server_name NOT IN (SELECT name FROM registered_servers)`)
	if err != nil {
		return nil, fmt.Errorf("get servers: %w", err)
	}
	defer rows.Close()

	registered := make(map[string]bool)
	regRows, err := d.reader.QueryContext(ctx, `SELECT name FROM registered_servers`)
	if err == nil {
		for regRows.Next() {
			var name string
			if regRows.Scan(&name) == nil {
				registered[name] = true
			}
		}
		regRows.Close()
	}

	var out []query.ServerAggregate
	for rows.Next() {
		var agg query.ServerAggregate
		var lastCheck sql.NullString
		if err := rows.Scan(&agg.ServerName, &agg.URL, &agg.Health, &lastCheck, &agg.LogCount, &agg.SessionCount); err != nil {
			return nil, err
		}
		if t := strPtr(lastCheck); t != nil {
			parsed := parseTime(*t)
			agg.LastHealthCheck = &parsed
		}
		if registered[agg.ServerName] {
			agg.Status = "online"
		} else {
			agg.Status = "deleted"
		}
		out = append(out, agg)
	}
	return out, rows.Err()
}

// GetSessions implements the §4.8 per-session aggregation, ordered by
// MIN(timestamp) DESC.
func (d *DB) GetSessions(ctx context.Context, serverName string) ([]query.SessionAggregate, error) {
	q := `
		SELECT session_id, server_name, COUNT(*), MIN(timestamp), MAX(timestamp)
		FROM logs`
	var args []any
	if serverName != "" {
		q += " WHERE server_name = ?"
		args = append(args, serverName)
	}
	q += " GROUP BY session_id, server_name ORDER BY MIN(timestamp) DESC"

	rows, err := d.reader.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("get sessions: %w", err)
	}
	defer rows.Close()

	var out []query.SessionAggregate
	for rows.Next() {
		var agg query.SessionAggregate
		var start, end string
		if err := rows.Scan(&agg.SessionID, &agg.ServerName, &agg.LogCount, &start, &end); err != nil {
			return nil, err
		}
		agg.StartTime = parseTime(start)
		agg.EndTime = parseTime(end)
		out = append(out, agg)
	}
	return out, rows.Err()
}

// GetClients implements the §4.8 client aggregation, ignoring rows with a
// null client.
func (d *DB) GetClients(ctx context.Context) ([]query.ClientAggregate, error) {
	rows, err := d.reader.QueryContext(ctx, `
		SELECT DISTINCT client_name, COALESCE(client_version, '')
		FROM logs WHERE client_name IS NOT NULL
		ORDER BY client_name`)
	if err != nil {
		return nil, fmt.Errorf("get clients: %w", err)
	}
	defer rows.Close()

	var out []query.ClientAggregate
	for rows.Next() {
		var agg query.ClientAggregate
		if err := rows.Scan(&agg.ClientName, &agg.ClientVersion); err != nil {
			return nil, err
		}
		out = append(out, agg)
	}
	return out, rows.Err()
}

// GetMethods implements the §4.8 distinct-methods aggregation.
func (d *DB) GetMethods(ctx context.Context, serverName string) ([]string, error) {
	q := `SELECT DISTINCT method FROM logs`
	var args []any
	if serverName != "" {
		q += " WHERE server_name = ?"
		args = append(args, serverName)
	}
	q += " ORDER BY method"

	rows, err := d.reader.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("get methods: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ClearAll implements the §4.9 clear contract for C1's half: truncate logs.
// The caller is also responsible for clearing C2 (session.Store.ClearAll).
func (d *DB) ClearAll(ctx context.Context) error {
	_, err := d.writer.ExecContext(ctx, `DELETE FROM logs`)
	return err
}

var _ query.Reader = (*DB)(nil)
