package sessions

import (
	"net/http"
	"time"

	"zentum/internal/httputil"
)

type Handler struct {
	cal *Calendar
	now func() time.Time
}

func NewHandler(cal *Calendar) *Handler {
	return &Handler{cal: cal, now: time.Now}
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.cal.Status(h.now().UTC()))
}
