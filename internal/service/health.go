// Package service hosts the gateway's background workers: the health
// checker (C7) that probes registered upstreams on a ticker.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/mcpwatch/gateway/internal/domain/upstream"
)

// tracer emits one span per health-check tick and per probe, so a trace
// backend can show fan-out latency across a registry of any size.
var tracer = otel.Tracer("github.com/mcpwatch/gateway/internal/service")

// probesTotal counts completed probes by outcome, a small OTel companion to
// the per-probe spans above.
var probesTotal, _ = otel.Meter("github.com/mcpwatch/gateway/internal/service").
	Int64Counter("health_probes_total", metric.WithDescription("total health probes completed, by result"))

// ErrServerNotFound is returned by CheckOne for an unregistered name, per
// §4.7's "throws ServerNotFound" contract.
var ErrServerNotFound = errors.New("health: server not found")

// HealthUpdate is one entry of the observer batch emitted each tick.
type HealthUpdate struct {
	Name            string
	Health          upstream.Health
	LastHealthCheck time.Time
}

// HealthSink is C1's write-through contract for health results.
type HealthSink interface {
	UpsertServerHealth(ctx context.Context, name string, health upstream.Health, lastCheck time.Time, url string) error
}

// defaultProbeTimeout bounds a single upstream probe, per §5.
const defaultProbeTimeout = 5 * time.Second

// defaultConcurrency bounds the number of probes in flight per tick.
const defaultConcurrency = 8

// HealthChecker implements C7: a ticker-driven, bounded-concurrency probe
// of every registered upstream via a synthetic `initialize` request.
type HealthChecker struct {
	upstreams upstream.Store
	sink      HealthSink
	client    *http.Client
	logger    *slog.Logger

	interval     time.Duration
	concurrency  int
	probeTimeout time.Duration

	mu        sync.Mutex
	observers []func([]HealthUpdate)

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewHealthChecker constructs a checker. interval defaults to 5000ms if
// zero or negative.
func NewHealthChecker(upstreams upstream.Store, sink HealthSink, interval time.Duration, logger *slog.Logger) *HealthChecker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &HealthChecker{
		upstreams:   upstreams,
		sink:        sink,
		client:      &http.Client{Timeout: defaultProbeTimeout},
		logger:      logger,
		interval:     interval,
		concurrency:  defaultConcurrency,
		probeTimeout: defaultProbeTimeout,
		stopChan:     make(chan struct{}),
	}
}

// SetConcurrency overrides the number of probes in flight per tick.
// Values <= 0 are ignored.
func (h *HealthChecker) SetConcurrency(n int) {
	if n <= 0 {
		return
	}
	h.concurrency = n
}

// SetProbeTimeout overrides the per-probe deadline and the underlying HTTP
// client's timeout. Values <= 0 are ignored.
func (h *HealthChecker) SetProbeTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	h.probeTimeout = d
	h.client.Timeout = d
}

// OnUpdate registers an observer invoked with the batch produced by each
// tick (the UI consumer, per §4.7).
func (h *HealthChecker) OnUpdate(fn func([]HealthUpdate)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observers = append(h.observers, fn)
}

// Start runs the ticker loop until Stop is called or ctx is cancelled.
func (h *HealthChecker) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.run(ctx)
}

// Stop halts the ticker loop and waits for the in-flight tick to finish.
// Safe to call more than once.
func (h *HealthChecker) Stop() {
	h.stopOnce.Do(func() { close(h.stopChan) })
	h.wg.Wait()
}

func (h *HealthChecker) run(ctx context.Context) {
	defer h.wg.Done()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopChan:
			return
		case <-ticker.C:
			h.tick(ctx)
		}
	}
}

func (h *HealthChecker) tick(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "health.tick")
	defer span.End()

	servers, err := h.upstreams.List(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list upstreams failed")
		h.logger.Warn("health tick: list upstreams failed", "error", err)
		return
	}
	span.SetAttributes(attribute.Int("upstream_count", len(servers)))

	updates := make([]HealthUpdate, 0, len(servers))
	var mu sync.Mutex
	sem := make(chan struct{}, h.concurrency)
	var wg sync.WaitGroup

	for i := range servers {
		srv := servers[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			u := h.probe(ctx, &srv)
			mu.Lock()
			updates = append(updates, u)
			mu.Unlock()
		}()
	}
	wg.Wait()

	h.emit(updates)
}

// CheckOne probes a single upstream on demand, per §4.7's manual-trigger
// contract.
func (h *HealthChecker) CheckOne(ctx context.Context, name string) (HealthUpdate, error) {
	srv, err := h.upstreams.Get(ctx, name)
	if err != nil {
		return HealthUpdate{}, ErrServerNotFound
	}
	u := h.probe(ctx, srv)
	h.emit([]HealthUpdate{u})
	return u, nil
}

func (h *HealthChecker) probe(ctx context.Context, srv *upstream.McpServer) HealthUpdate {
	health := h.doProbe(ctx, srv)
	now := time.Now().UTC()

	_ = h.upstreams.SetHealth(ctx, srv.Name, health)
	if h.sink != nil {
		if err := h.sink.UpsertServerHealth(ctx, srv.Name, health, now, srv.URL); err != nil {
			h.logger.Warn("health write-through failed", "server", srv.Name, "error", err)
		}
	}
	return HealthUpdate{Name: srv.Name, Health: health, LastHealthCheck: now}
}

// doProbe issues a POST initialize with a synthetic id, using the
// registered static headers but no authorization, per §4.7.
func (h *HealthChecker) doProbe(ctx context.Context, srv *upstream.McpServer) upstream.Health {
	ctx, span := tracer.Start(ctx, "health.probe", trace.WithAttributes(
		attribute.String("upstream.name", srv.Name),
		attribute.String("upstream.url", srv.URL),
	))
	defer span.End()

	probeCtx, cancel := context.WithTimeout(ctx, h.probeTimeout)
	defer cancel()

	body := []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":"health-%d","method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"mcpwatch-health","version":"1"}}}`, time.Now().UnixNano()))

	req, err := http.NewRequestWithContext(probeCtx, http.MethodPost, srv.URL, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build request failed")
		return upstream.HealthDown
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("MCP-Protocol-Version", "2025-06-18")
	for k, v := range srv.Headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "probe request failed")
		return upstream.HealthDown
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		span.SetStatus(codes.Ok, "")
		probesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "up")))
		return upstream.HealthUp
	}
	span.SetStatus(codes.Error, "non-2xx response")
	probesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "down")))
	return upstream.HealthDown
}

func (h *HealthChecker) emit(updates []HealthUpdate) {
	if len(updates) == 0 {
		return
	}
	h.mu.Lock()
	observers := make([]func([]HealthUpdate), len(h.observers))
	copy(observers, h.observers)
	h.mu.Unlock()

	for _, obs := range observers {
		obs(updates)
	}
}
