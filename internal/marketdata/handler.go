package marketdata

import (
	"net/http"
	"strings"
	"time"

	"zentum/internal/httputil"
	"zentum/internal/types"

	"github.com/shopspring/decimal"
)

type Handler struct {
	feed    *Feed
	catalog *Catalog
}

func NewHandler(feed *Feed, catalog *Catalog) *Handler {
	return &Handler{feed: feed, catalog: catalog}
}

type quoteView struct {
	Symbol    string           `json:"symbol"`
	Name      string           `json:"name"`
	Market    types.Market     `json:"market"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	Timestamp *time.Time       `json:"timestamp,omitempty"`
	Source    string           `json:"source,omitempty"`
	Ready     bool             `json:"ready"`
}

func (h *Handler) view(it Instrument) quoteView {
	v := quoteView{Symbol: it.Symbol, Name: it.Name, Market: it.Market}
	if q, ok := h.feed.Quote(it.Symbol); ok {
		px, ts := q.Price, q.Timestamp
		v.Price, v.Timestamp, v.Source, v.Ready = &px, &ts, q.Source, true
	}
	return v
}

// List returns every catalog instrument with its current quote. Instruments
// without a usable quote are listed with ready=false.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	items := h.catalog.All()
	if m := types.Market(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("market")))); m != "" {
		items = h.catalog.ByMarket(m)
	}
	out := make([]quoteView, 0, len(items))
	for _, it := range items {
		out = append(out, h.view(it))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request, symbol string) {
	it, ok := h.catalog.Lookup(symbol)
	if !ok {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "unknown instrument", Code: "unknown_instrument"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.view(it))
}
