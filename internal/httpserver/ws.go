package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"zentum/internal/marketdata"
	"zentum/internal/orders"
	"zentum/internal/types"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	eventSnapshot = "snapshot"
	eventMetrics  = "metrics"

	metricsEvery = 200 * time.Millisecond
	writeWait    = 5 * time.Second
)

type MetricsProvider interface {
	Metrics(ctx context.Context, accountID string) (orders.AccountMetrics, error)
}

type QuoteSnapshotter interface {
	Snapshot() []marketdata.Quote
}

// WSHandler streams quotes to every client and account and funding events to
// the account they belong to. Admins also receive every funding event.
type WSHandler struct {
	bus      *marketdata.Bus
	tokens   TokenParser
	quotes   QuoteSnapshotter
	metrics  MetricsProvider
	upgrader websocket.Upgrader
	log      *zap.Logger
	clients  atomic.Int64
}

func NewWSHandler(bus *marketdata.Bus, tokens TokenParser, quotes QuoteSnapshotter, metrics MetricsProvider, origin string, log *zap.Logger) *WSHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSHandler{
		bus:     bus,
		tokens:  tokens,
		quotes:  quotes,
		metrics: metrics,
		log:     log.Named("ws"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return allowOrigin(r, origin) },
		},
	}
}

func (h *WSHandler) Clients() int64 { return h.clients.Load() }

type wsControlMessage struct {
	Type    string `json:"type"`
	Enabled *bool  `json:"enabled,omitempty"`
}

func allowOrigin(r *http.Request, origin string) bool {
	if origin == "*" {
		return true
	}
	reqOrigin := r.Header.Get("Origin")
	if reqOrigin == "" {
		return true
	}
	if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
		if strings.Contains(reqOrigin, "localhost") || strings.Contains(reqOrigin, "127.0.0.1") {
			return true
		}
	}
	return strings.EqualFold(reqOrigin, origin)
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Browsers cannot set headers on a websocket handshake.
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	id, err := h.tokens.ParseToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	h.clients.Add(1)
	defer h.clients.Add(-1)

	sub := h.bus.Subscribe()
	defer h.bus.Unsubscribe(sub)

	if err := h.write(conn, marketdata.Event{Type: eventSnapshot, Data: h.quotes.Snapshot()}); err != nil {
		return
	}

	var metricsOn atomic.Bool
	metricsOn.Store(true)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var ctrl wsControlMessage
			if err := json.Unmarshal(payload, &ctrl); err != nil {
				continue
			}
			switch strings.ToLower(strings.TrimSpace(ctrl.Type)) {
			case "metrics_subscribe":
				next := true
				if ctrl.Enabled != nil {
					next = *ctrl.Enabled
				}
				metricsOn.Store(next)
			case "metrics_unsubscribe":
				metricsOn.Store(false)
			}
		}
	}()

	var lastMetrics time.Time
	for {
		select {
		case evt, ok := <-sub:
			if !ok {
				return
			}
			if !visible(evt, id.AccountID, id.Role) {
				continue
			}
			if err := h.write(conn, evt); err != nil {
				return
			}
			if evt.Type != marketdata.EventQuote && evt.Type != marketdata.EventAccount {
				continue
			}
			if !metricsOn.Load() || h.metrics == nil || time.Since(lastMetrics) < metricsEvery {
				continue
			}
			m, err := h.metrics.Metrics(r.Context(), id.AccountID)
			if err != nil {
				h.log.Debug("metrics for stream", zap.String("account_id", id.AccountID), zap.Error(err))
				continue
			}
			if err := h.write(conn, marketdata.Event{Type: eventMetrics, Data: m}); err != nil {
				return
			}
			lastMetrics = time.Now()
		case <-done:
			return
		}
	}
}

func (h *WSHandler) write(conn *websocket.Conn, evt marketdata.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(evt)
}

func visible(evt marketdata.Event, accountID string, role types.Role) bool {
	if evt.Account == "" || evt.Account == accountID {
		return true
	}
	return role == types.RoleAdmin && evt.Type == marketdata.EventRequest
}
