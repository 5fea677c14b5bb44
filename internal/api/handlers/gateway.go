// Package handlers contains the HTTP handler implementations for the
// billgate API.
//
// The gateway routes are NOT behind auth middleware -- they are called
// directly by the payment provider (the notification endpoint) or by buyer
// browsers bounced back from the provider's checkout page (the redirect
// endpoints). Security for the notification endpoint is provided by the
// dispatcher's verification gates, not by transport auth.
package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"billgate/internal/gateway"
)

// maxNotificationBodySize is the maximum allowed size of a provider
// notification payload (64 KB). ITN payloads are small; this limit protects
// against abuse.
const maxNotificationBodySize = 64 * 1024

// GatewayHandler handles inbound traffic from the payment gateway: the
// server-to-server notification POST and the buyer-facing return/cancel
// redirects.
type GatewayHandler struct {
	dispatcher   *gateway.Dispatcher
	dashboardURL string
	logger       *slog.Logger
}

// NewGatewayHandler creates a GatewayHandler. dashboardURL is where the
// return and cancel redirects land (no trailing slash).
func NewGatewayHandler(dispatcher *gateway.Dispatcher, dashboardURL string, logger *slog.Logger) *GatewayHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GatewayHandler{
		dispatcher:   dispatcher,
		dashboardURL: dashboardURL,
		logger:       logger,
	}
}

// RegisterRoutes mounts the gateway endpoints. All three are public.
func (h *GatewayHandler) RegisterRoutes(r chi.Router) {
	r.Post("/gateway/notify", h.HandleNotify)
	r.Get("/gateway/return", h.HandleReturn)
	r.Get("/gateway/cancel", h.HandleCancel)
}

// HandleNotify processes an inbound payment notification.
//
// Response contract: the provider retries any status other than 200, so this
// handler responds 200 with a plain "OK" body for EVERY request it manages to
// read -- verified, rejected, and failed alike. Rejections and errors are
// visible in logs and metrics, never in the response. A non-200 here would
// put the provider into a retry loop against a deterministic failure.
func (h *GatewayHandler) HandleNotify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// The 200 contract holds even if the pipeline panics.
	defer func() {
		if rvr := recover(); rvr != nil {
			h.logger.ErrorContext(ctx, "panic while processing notification",
				"panic", fmt.Sprintf("%v", rvr),
			)
			respondOK(w)
		}
	}()

	r.Body = http.MaxBytesReader(w, r.Body, maxNotificationBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to read notification body", "error", err)
		respondOK(w)
		return
	}

	notification, err := gateway.ParseNotification(payload)
	if err != nil {
		h.logger.WarnContext(ctx, "unparseable notification body", "error", err)
		respondOK(w)
		return
	}

	outcome := h.dispatcher.Dispatch(ctx, gateway.Request{
		Notification: notification,
		RemoteIP:     remoteIP(r),
		Referer:      r.Header.Get("Referer"),
	})

	switch outcome.State {
	case gateway.StateApplied:
		h.logger.InfoContext(ctx, "notification applied",
			"m_payment_id", notification.MerchantRef,
			"pf_payment_id", notification.ProviderTxnID,
			"payment_status", notification.PaymentStatus,
		)
	case gateway.StateRejected:
		h.logger.WarnContext(ctx, "notification rejected",
			"gate", string(outcome.Gate),
			"m_payment_id", notification.MerchantRef,
		)
	case gateway.StateErrored:
		h.logger.ErrorContext(ctx, "notification processing failed",
			"m_payment_id", notification.MerchantRef,
			"error", outcome.Err,
		)
	}

	respondOK(w)
}

// HandleReturn bounces the buyer back to the dashboard after a completed
// checkout. The redirect never mutates billing state: the authoritative
// transition rides on the server-to-server notification, which may arrive
// before or after the buyer does.
func (h *GatewayHandler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.dashboardURL+"/billing?checkout=complete", http.StatusSeeOther)
}

// HandleCancel bounces the buyer back to the dashboard after an abandoned
// checkout. Like HandleReturn, it never mutates billing state; a CANCELLED
// notification handles the cancellation if the provider issues one.
func (h *GatewayHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.dashboardURL+"/billing?checkout=cancelled", http.StatusSeeOther)
}

// respondOK writes the provider-facing acknowledgement.
func respondOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// remoteIP extracts the client IP for the origin gate, preferring the
// leftmost X-Forwarded-For entry when the request came through the load
// balancer.
func remoteIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
