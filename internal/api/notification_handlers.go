package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ignite/ses-guard/internal/domain"
	"github.com/ignite/ses-guard/internal/pkg/httputil"
)

// HandleListNotifications lists stored notifications, newest first.
//
//	GET /api/notifications?email=&type=&subject=&days=&limit=&offset=
func (h *Handlers) HandleListNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := ParsePagination(r, 100, 500)
	f := domain.NotificationFilter{
		Email:  q.Get("email"),
		Type:   domain.NotificationType(q.Get("type")),
		Limit:  p.Limit,
		Offset: p.Offset,
	}
	if f.Type != "" && !f.Type.Valid() {
		httputil.BadRequest(w, "invalid type")
		return
	}
	if subject := q.Get("subject"); subject != "" {
		f.Subject = &subject
	}
	if d := q.Get("days"); d != "" {
		days, err := strconv.Atoi(d)
		if err != nil || days < 0 {
			httputil.BadRequest(w, "invalid days")
			return
		}
		if days > 0 {
			f.Since = time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
		}
	}

	out, err := h.evaluator.ListNotifications(r.Context(), f)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"data": out, "count": len(out)})
}
