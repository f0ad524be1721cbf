package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ignite/ses-guard/internal/domain"
	"github.com/ignite/ses-guard/internal/metrics"
	"github.com/ignite/ses-guard/internal/pkg/httputil"
	"github.com/ignite/ses-guard/internal/pkg/logger"
	"github.com/ignite/ses-guard/internal/ses"
)

// HandleSNS returns the webhook handler for one endpoint category. Every
// envelope type is accepted on every category.
//
//	POST /{prefix}/{bounces|complaints|deliveries}
func (h *Handlers) HandleSNS(category domain.SubscriptionCategory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		status := http.StatusOK
		defer func() {
			metrics.WebhookRequestsTotal.WithLabelValues(string(category), strconv.Itoa(status)).Inc()
			metrics.WebhookDuration.WithLabelValues(string(category)).Observe(time.Since(start).Seconds())
		}()

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				status = http.StatusRequestEntityTooLarge
				httputil.Error(w, status, "request body too large")
				return
			}
			status = http.StatusBadRequest
			httputil.BadRequest(w, "Invalid message")
			return
		}

		res, err := h.ingest.Process(r.Context(), category, body)
		if err != nil {
			if ses.IsClientError(err) {
				status = http.StatusBadRequest
				httputil.BadRequest(w, ses.ClientMessage(err))
				return
			}
			status = http.StatusInternalServerError
			httputil.InternalError(w, err, "category", string(category))
			return
		}

		if res.Stored > 0 || res.Duplicates > 0 {
			logger.Debug("[api] SNS notification processed",
				"category", string(category), "type", string(res.Type),
				"stored", res.Stored, "duplicates", res.Duplicates)
		}
		httputil.Message(w, res.Message)
	}
}
