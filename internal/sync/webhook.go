package sync

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medsync/medsync/internal/domain/atencion"
	"github.com/medsync/medsync/internal/platform/webhook"
	"github.com/medsync/medsync/internal/source"
)

// WebhookHandler receives push notifications from the upstream systems.
// Upstreams retry on non-2xx, so processing failures are acknowledged with
// 200 and only logged; a bad signature is the one rejection.
type WebhookHandler struct {
	scheduler *source.Scheduler
	voucher   *source.Voucher
	cons      *Consolidator
	secret    string
	logger    zerolog.Logger
}

func NewWebhookHandler(scheduler *source.Scheduler, voucher *source.Voucher, cons *Consolidator, secret string, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		scheduler: scheduler,
		voucher:   voucher,
		cons:      cons,
		secret:    secret,
		logger:    logger,
	}
}

// RegisterWebhookRoutes mounts the inbound endpoints on the public group;
// upstreams authenticate with the shared-secret signature, not a JWT.
func (h *WebhookHandler) RegisterWebhookRoutes(public *echo.Group) {
	public.POST("/scheduler/webhook", h.SchedulerWebhook)
	public.POST("/voucher/callback", h.VoucherCallback)
}

func (h *WebhookHandler) SchedulerWebhook(c echo.Context) error {
	return h.receive(c, atencion.SourceScheduler, h.scheduler.MapAppointment)
}

func (h *WebhookHandler) VoucherCallback(c echo.Context) error {
	return h.receive(c, atencion.SourceVoucher, h.voucher.MapVoucher)
}

func (h *WebhookHandler) receive(c echo.Context, origin string, mapFn func(json.RawMessage) (*atencion.Atencion, error)) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read body")
	}

	if h.secret != "" {
		sig := c.Request().Header.Get("X-Webhook-Signature")
		if !webhook.VerifySignature(body, h.secret, sig) {
			h.logger.Warn().Str("origin", origin).Msg("webhook signature rejected")
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid signature")
		}
	}

	result := h.process(c, origin, body, mapFn)
	h.logger.Info().
		Str("origin", origin).
		Str("action", result.Action).
		Str("error", result.Error).
		Msg("webhook received")

	return c.JSON(http.StatusOK, map[string]bool{"received": true})
}

// WebhookResult is the internal outcome of one delivery. It is logged, never
// returned to the caller.
type WebhookResult struct {
	Origin string
	Action string
	Error  string
}

func (h *WebhookHandler) process(c echo.Context, origin string, body []byte, mapFn func(json.RawMessage) (*atencion.Atencion, error)) WebhookResult {
	result := WebhookResult{Origin: origin}

	rec, err := mapFn(body)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	actor := "webhook:" + origin
	rec.LastModifiedBy = &actor

	action, err := h.cons.Consolidate(c.Request().Context(), origin, rec)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Action = action
	return result
}
