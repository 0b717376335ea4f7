package health

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"zentum/internal/httputil"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Gauges are sampled on every diagnostics request. Nil entries are skipped.
type Gauges struct {
	Quotes        func() int
	CachedAccts   func() int
	WSClients     func() int64
	BusDropped    func() int64
	EventsDropped func() int64
}

type Handler struct {
	pool        *pgxpool.Pool
	storeDriver string
	startedAt   time.Time
	httpAddr    string
	internalTok string
	gauges      Gauges
	now         func() time.Time
}

// NewHandler takes a nil pool when the memory store is in use.
func NewHandler(pool *pgxpool.Pool, storeDriver string, startedAt time.Time, httpAddr, internalToken string, g Gauges) *Handler {
	start := startedAt.UTC()
	if start.IsZero() {
		start = time.Now().UTC()
	}
	return &Handler{
		pool:        pool,
		storeDriver: strings.TrimSpace(storeDriver),
		startedAt:   start,
		httpAddr:    strings.TrimSpace(httpAddr),
		internalTok: strings.TrimSpace(internalToken),
		gauges:      g,
		now:         time.Now,
	}
}

type liveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	UptimeSec int64  `json:"uptime_sec"`
}

type storeStat struct {
	Driver    string `json:"driver"`
	Reachable bool   `json:"reachable"`
	PingMs    int64  `json:"ping_ms"`
	Error     string `json:"error,omitempty"`
}

type readyResponse struct {
	Status    string    `json:"status"`
	Timestamp string    `json:"timestamp"`
	UptimeSec int64     `json:"uptime_sec"`
	Store     storeStat `json:"store"`
	Quotes    int       `json:"quotes"`
}

type poolStats struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	MaxConns      int32 `json:"max_conns"`
	AcquireCount  int64 `json:"acquire_count"`
}

type fullResponse struct {
	readyResponse
	HTTPAddr      string     `json:"http_addr"`
	Hostname      string     `json:"hostname"`
	GoVersion     string     `json:"go_version"`
	Goroutines    int        `json:"goroutines"`
	HeapAlloc     uint64     `json:"heap_alloc_bytes"`
	Pool          *poolStats `json:"pool,omitempty"`
	CachedAccts   int        `json:"cached_accounts"`
	WSClients     int64      `json:"ws_clients"`
	BusDropped    int64      `json:"bus_dropped"`
	EventsDropped int64      `json:"events_dropped"`
}

func (h *Handler) uptime() int64 {
	u := h.now().Sub(h.startedAt)
	if u < 0 {
		return 0
	}
	return int64(u.Seconds())
}

func (h *Handler) checkStore(ctx context.Context) storeStat {
	st := storeStat{Driver: h.storeDriver}
	if h.pool == nil {
		st.Reachable = true
		return st
	}
	start := time.Now()
	pctx, cancel := context.WithTimeout(ctx, time.Second)
	err := h.pool.Ping(pctx)
	cancel()
	st.PingMs = time.Since(start).Milliseconds()
	if err != nil {
		st.Error = err.Error()
		return st
	}
	st.Reachable = true
	return st
}

func (h *Handler) ready(ctx context.Context) (readyResponse, int) {
	resp := readyResponse{
		Status:    "ok",
		Timestamp: h.now().UTC().Format(time.RFC3339),
		UptimeSec: h.uptime(),
		Store:     h.checkStore(ctx),
	}
	if h.gauges.Quotes != nil {
		resp.Quotes = h.gauges.Quotes()
	}
	if !resp.Store.Reachable {
		resp.Status = "degraded"
		return resp, http.StatusServiceUnavailable
	}
	return resp, http.StatusOK
}

func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, liveResponse{
		Status:    "ok",
		Timestamp: h.now().UTC().Format(time.RFC3339),
		UptimeSec: h.uptime(),
	})
}

// Ready returns 503 while the account store is unreachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	resp, status := h.ready(r.Context())
	httputil.WriteJSON(w, status, resp)
}

func (h *Handler) requireInternalToken(w http.ResponseWriter, r *http.Request) bool {
	if h.internalTok == "" {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, httputil.ErrorResponse{Error: "internal token is not configured"})
		return false
	}
	provided := strings.TrimSpace(r.Header.Get("X-Internal-Token"))
	if subtle.ConstantTimeCompare([]byte(provided), []byte(h.internalTok)) != 1 {
		httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "invalid internal token"})
		return false
	}
	return true
}

// Full returns diagnostics and is protected by X-Internal-Token.
func (h *Handler) Full(w http.ResponseWriter, r *http.Request) {
	if !h.requireInternalToken(w, r) {
		return
	}
	ready, status := h.ready(r.Context())
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	host, _ := os.Hostname()

	resp := fullResponse{
		readyResponse: ready,
		HTTPAddr:      h.httpAddr,
		Hostname:      host,
		GoVersion:     runtime.Version(),
		Goroutines:    runtime.NumGoroutine(),
		HeapAlloc:     mem.HeapAlloc,
	}
	if h.pool != nil {
		s := h.pool.Stat()
		resp.Pool = &poolStats{
			TotalConns:    s.TotalConns(),
			IdleConns:     s.IdleConns(),
			AcquiredConns: s.AcquiredConns(),
			MaxConns:      s.MaxConns(),
			AcquireCount:  s.AcquireCount(),
		}
	}
	if h.gauges.CachedAccts != nil {
		resp.CachedAccts = h.gauges.CachedAccts()
	}
	if h.gauges.WSClients != nil {
		resp.WSClients = h.gauges.WSClients()
	}
	if h.gauges.BusDropped != nil {
		resp.BusDropped = h.gauges.BusDropped()
	}
	if h.gauges.EventsDropped != nil {
		resp.EventsDropped = h.gauges.EventsDropped()
	}
	httputil.WriteJSON(w, status, resp)
}

// Metrics writes the same numbers in Prometheus text format.
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	if !h.requireInternalToken(w, r) {
		return
	}
	ready, _ := h.ready(r.Context())
	up := 0
	if ready.Store.Reachable {
		up = 1
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	gauge := func(name, help string, v any) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %v\n", name, help, name, name, v)
	}
	gauge("zentum_up", "Service process is running.", 1)
	gauge("zentum_uptime_seconds", "Service uptime in seconds.", ready.UptimeSec)
	gauge("zentum_store_up", "Account store reachable (1=ok,0=down).", up)
	gauge("zentum_quotes", "Symbols with a current quote.", ready.Quotes)
	gauge("zentum_go_goroutines", "Number of goroutines.", runtime.NumGoroutine())
	if h.gauges.CachedAccts != nil {
		gauge("zentum_cached_accounts", "Accounts held in the ledger cache.", h.gauges.CachedAccts())
	}
	if h.gauges.WSClients != nil {
		gauge("zentum_ws_clients", "Open websocket connections.", h.gauges.WSClients())
	}
	if h.gauges.BusDropped != nil {
		gauge("zentum_bus_dropped_total", "Events a slow websocket subscriber missed.", h.gauges.BusDropped())
	}
	if h.gauges.EventsDropped != nil {
		gauge("zentum_events_dropped_total", "Kafka events dropped on a full queue.", h.gauges.EventsDropped())
	}
	if h.pool != nil {
		s := h.pool.Stat()
		gauge("zentum_db_pool_total_conns", "Current total DB pool connections.", s.TotalConns())
		gauge("zentum_db_pool_acquired_conns", "DB pool connections in use.", s.AcquiredConns())
	}
}
