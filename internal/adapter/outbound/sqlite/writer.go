package sqlite

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/mcpwatch/gateway/internal/domain/capture"
	"github.com/mcpwatch/gateway/pkg/mcp"
)

// writeQueueSize bounds the buffered channel between C3's callers and the
// single writer goroutine. A full queue drops the incoming record rather
// than blocking the client path, per §7's storage-write-failure rule.
const writeQueueSize = 4096

// Writer drains a buffered channel of capture.Records into the logs table
// on a single goroutine, so concurrent callers never contend for the
// writer connection directly.
type Writer struct {
	db     *DB
	logger *slog.Logger

	queue chan capture.Record
	done  chan struct{}
	wg    sync.WaitGroup

	dropped uint64
	mu      sync.Mutex
}

// NewWriter starts the background drain goroutine.
func NewWriter(db *DB, logger *slog.Logger) *Writer {
	w := &Writer{
		db:     db,
		logger: logger,
		queue:  make(chan capture.Record, writeQueueSize),
		done:   make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// Write enqueues rec for persistence. Never blocks the caller: if the queue
// is full, the record is dropped and logged at warn.
func (w *Writer) Write(_ context.Context, rec capture.Record) {
	select {
	case w.queue <- rec:
	default:
		w.mu.Lock()
		w.dropped++
		n := w.dropped
		w.mu.Unlock()
		w.logger.Warn("capture write queue full, dropping record", "method", rec.Method, "total_dropped", n)
	}
}

// BackfillServerInfo runs synchronously against the writer connection: it
// is a rare, single-row update triggered once per initialize handshake.
func (w *Writer) BackfillServerInfo(ctx context.Context, serverName, sessionID string, reqID []byte, serverVersion, serverTitle string) {
	idTok := jsonRPCIDString(json.RawMessage(reqID))
	if idTok == nil {
		return
	}
	_, err := w.db.writer.ExecContext(ctx, `
		UPDATE logs
		SET server_version = ?, server_title = ?
		WHERE method = 'initialize' AND request_json IS NOT NULL
		  AND server_name = ? AND session_id = ? AND jsonrpc_id = ?`,
		serverVersion, serverTitle, serverName, sessionID, *idTok,
	)
	if err != nil {
		w.logger.Warn("backfill server info failed", "error", err)
	}
}

// Close stops accepting new records, drains the queue, and waits for the
// writer goroutine to exit — so acknowledged writes survive a graceful
// shutdown, per §4.8's durability policy.
func (w *Writer) Close() {
	close(w.queue)
	w.wg.Wait()
}

func (w *Writer) run() {
	defer w.wg.Done()
	for rec := range w.queue {
		if err := w.insert(rec); err != nil {
			w.logger.Warn("capture write failed", "error", err, "method", rec.Method)
		}
	}
}

func (w *Writer) insert(rec capture.Record) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errJSON *string
	if rec.Response != nil {
		if e := mcp.RawError(rec.Response); e != nil {
			errJSON = nullableJSON(e)
		}
	}
	var sseJSON *string
	if rec.SseEvent != nil {
		if data, err := json.Marshal(rec.SseEvent); err == nil {
			s := string(data)
			sseJSON = &s
		}
	}

	md := rec.Metadata
	_, err := w.db.writer.ExecContext(ctx, `
		INSERT INTO logs (
			timestamp, method, jsonrpc_id, server_name, session_id,
			duration_ms, http_status, request_json, response_json,
			error_json, sse_event_json,
			client_name, client_version, client_title,
			server_version, server_title, user_agent, client_ip
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		formatTime(rec.Timestamp), rec.Method, jsonRPCIDStringOrNil(rec.ID),
		md.ServerName, md.SessionID, md.DurationMs, md.HTTPStatus,
		nullableJSON(rec.Request), nullableJSON(rec.Response),
		errJSON, sseJSON,
		nullIfEmpty(md.ClientName), nullIfEmpty(md.ClientVersion), nullIfEmpty(md.ClientTitle),
		nullIfEmpty(md.ServerVersion), nullIfEmpty(md.ServerTitle),
		nullIfEmpty(md.UserAgent), nullIfEmpty(md.ClientIP),
	)
	return err
}

func jsonRPCIDStringOrNil(raw json.RawMessage) *string {
	return jsonRPCIDString(raw)
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ capture.Sink = (*Writer)(nil)
