package api

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/ses-guard/internal/domain"
	"github.com/ignite/ses-guard/internal/pkg/httputil"
	"github.com/ignite/ses-guard/internal/pkg/logger"
	"github.com/ignite/ses-guard/internal/service/ledger"
)

// HandleListBlacklist lists entries, optionally filtered by reason or an
// email substring.
//
//	GET /api/blacklist?reason=&search=&limit=&offset=
func (h *Handlers) HandleListBlacklist(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r, 50, 500)
	reason := r.URL.Query().Get("reason")
	if reason != "" && !domain.BlacklistReason(reason).Valid() {
		httputil.BadRequest(w, "invalid reason")
		return
	}
	entries, total, err := h.blacklist.List(r.Context(), domain.BlacklistFilter{
		Reason: reason,
		Search: r.URL.Query().Get("search"),
		Limit:  p.Limit,
		Offset: p.Offset,
	})
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, NewPaginatedResponse(entries, p, total))
}

// HandleBlacklistStats returns counts per reason.
//
//	GET /api/blacklist/stats
func (h *Handlers) HandleBlacklistStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.blacklist.GetStats(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, st)
}

// HandleGetBlacklist returns one entry.
//
//	GET /api/blacklist/{email}
func (h *Handlers) HandleGetBlacklist(w http.ResponseWriter, r *http.Request) {
	e, err := h.blacklist.Get(r.Context(), emailParam(r))
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		httputil.NotFound(w, "not blacklisted")
	case errors.Is(err, ledger.ErrEmailRequired):
		httputil.BadRequest(w, "email is required")
	case err != nil:
		httputil.InternalError(w, err)
	default:
		httputil.OK(w, e)
	}
}

type blacklistRequest struct {
	Email   string         `json:"email"`
	Reason  string         `json:"reason"`
	Details map[string]any `json:"details"`
}

// HandleAddBlacklist blacklists an address. Reason defaults to manual.
//
//	POST /api/blacklist
func (h *Handlers) HandleAddBlacklist(w http.ResponseWriter, r *http.Request) {
	var req blacklistRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	reason := domain.ReasonManual
	if req.Reason != "" {
		reason = domain.BlacklistReason(req.Reason)
	}
	e, err := h.blacklist.Upsert(r.Context(), req.Email, reason, req.Details)
	switch {
	case errors.Is(err, ledger.ErrEmailRequired):
		httputil.BadRequest(w, "email is required")
	case errors.Is(err, ledger.ErrInvalidReason):
		httputil.BadRequest(w, "invalid reason")
	case err != nil:
		httputil.InternalError(w, err)
	default:
		logger.Info("[api] email blacklisted", "email", e.Email, "reason", string(e.Reason))
		httputil.Created(w, e)
	}
}

// HandleRemoveBlacklist whitelists an address by deleting its entry.
//
//	DELETE /api/blacklist/{email}
func (h *Handlers) HandleRemoveBlacklist(w http.ResponseWriter, r *http.Request) {
	removed, err := h.blacklist.Remove(r.Context(), emailParam(r))
	switch {
	case errors.Is(err, ledger.ErrEmailRequired):
		httputil.BadRequest(w, "email is required")
	case err != nil:
		httputil.InternalError(w, err)
	case !removed:
		httputil.NotFound(w, "not blacklisted")
	default:
		httputil.OK(w, map[string]bool{"removed": true})
	}
}

func emailParam(r *http.Request) string {
	raw := chi.URLParam(r, "email")
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}
