package api

import (
	"errors"
	"net/http"

	"github.com/ignite/ses-guard/internal/domain"
	"github.com/ignite/ses-guard/internal/pkg/httputil"
	"github.com/ignite/ses-guard/internal/pkg/logger"
	"github.com/ignite/ses-guard/internal/service/subscription"
)

// HandlePendingSubscriptions lists unconfirmed topics with their subscribe
// URLs for manual confirmation.
//
//	GET /api/subscriptions/pending?category=
func (h *Handlers) HandlePendingSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.registry.ListPending(r.Context(), domain.SubscriptionCategory(r.URL.Query().Get("category")))
	if errors.Is(err, subscription.ErrInvalidCategory) {
		httputil.BadRequest(w, "invalid category")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"data": subs, "count": len(subs)})
}

type confirmRequest struct {
	TopicArn string `json:"topic_arn"`
}

// HandleConfirmSubscription retries confirmation of a stored topic.
//
//	POST /api/subscriptions/confirm
func (h *Handlers) HandleConfirmSubscription(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.TopicArn == "" {
		httputil.BadRequest(w, "topic_arn is required")
		return
	}

	sub, err := h.registry.ConfirmPending(r.Context(), req.TopicArn)
	var confErr *subscription.ConfirmationError
	switch {
	case errors.Is(err, subscription.ErrNotFound):
		httputil.NotFound(w, "subscription not found")
	case errors.Is(err, subscription.ErrInProgress):
		httputil.Error(w, http.StatusConflict, "confirmation already in progress")
	case errors.As(err, &confErr):
		logger.Error("[api] subscription confirmation failed", "topic_arn", req.TopicArn, "error", err)
		httputil.Error(w, http.StatusBadGateway, "confirmation failed")
	case err != nil:
		httputil.InternalError(w, err)
	default:
		httputil.OK(w, sub)
	}
}
