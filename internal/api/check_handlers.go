package api

import (
	"net/http"

	"github.com/ignite/ses-guard/internal/pkg/httputil"
	"github.com/ignite/ses-guard/internal/pkg/logger"
	"github.com/ignite/ses-guard/internal/service/monitor"
)

const maxBatch = 1000

type checkRequest struct {
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
}

type checkResponse struct {
	CanSend   bool               `json:"can_send"`
	Decisions []monitor.Decision `json:"decisions"`
}

// HandleCheck evaluates a prospective send.
//
//	POST /api/check
func (h *Handlers) HandleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if len(req.Recipients) == 0 {
		httputil.BadRequest(w, "recipients is required")
		return
	}
	if len(req.Recipients) > maxBatch {
		httputil.BadRequest(w, "too many recipients")
		return
	}

	decisions, err := h.evaluator.Check(r.Context(), req.Recipients, req.Subject)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	resp := checkResponse{CanSend: true, Decisions: decisions}
	for _, d := range decisions {
		h.decisions.ObserveDecision(d.CanSend, string(d.Reason))
		if !d.CanSend {
			resp.CanSend = false
		}
	}
	httputil.OK(w, resp)
}

type canSendRequest struct {
	Email string `json:"email"`
}

// HandleCanSend checks the blacklist and validates one address.
//
//	POST /api/can-send
func (h *Handlers) HandleCanSend(w http.ResponseWriter, r *http.Request) {
	var req canSendRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Email == "" {
		httputil.BadRequest(w, "email is required")
		return
	}
	d, err := h.evaluator.CanSend(r.Context(), req.Email)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	h.decisions.ObserveDecision(d.CanSend, string(d.Reason))
	httputil.OK(w, d)
}

type validateRequest struct {
	Emails []string `json:"emails"`
}

// HandleValidateBatch runs can-send for every address.
//
//	POST /api/validate
func (h *Handlers) HandleValidateBatch(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if len(req.Emails) == 0 {
		httputil.BadRequest(w, "emails is required")
		return
	}
	if len(req.Emails) > maxBatch {
		httputil.BadRequest(w, "too many emails")
		return
	}
	results, err := h.evaluator.ValidateBatch(r.Context(), req.Emails)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"results": results})
}

// HandleCredits reports remaining validation credits. Credits is null when
// validation is disabled or the provider could not be reached.
//
//	GET /api/validation/credits
func (h *Handlers) HandleCredits(w http.ResponseWriter, r *http.Request) {
	if h.credits == nil || !h.credits.Enabled() {
		httputil.OK(w, map[string]any{"enabled": false, "credits": nil})
		return
	}
	n, err := h.credits.Credits(r.Context())
	if err != nil {
		logger.Warn("[api] failed to get validation credits", "error", err)
		httputil.OK(w, map[string]any{"enabled": true, "credits": nil})
		return
	}
	httputil.OK(w, map[string]any{"enabled": true, "credits": n})
}
