package sync

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medsync/medsync/internal/platform/webhook"
	"github.com/medsync/medsync/internal/source"
)

func newTestWebhookHandler(repo *mockAtencionRepo, secret string) *WebhookHandler {
	scheduler := source.NewScheduler(source.SchedulerConfig{BaseURL: "http://unused.invalid", APIToken: "t"}, zerolog.Nop())
	voucher := source.NewVoucher(source.VoucherConfig{BaseURL: "http://unused.invalid", APIKey: "k"}, zerolog.Nop())
	cons := NewConsolidator(repo, zerolog.Nop())
	return NewWebhookHandler(scheduler, voucher, cons, secret, zerolog.Nop())
}

func postWebhook(t *testing.T, h echo.HandlerFunc, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func appointmentJSON(id string) string {
	return fmt.Sprintf(`{"id":%q,"date":"2026-03-10T10:00:00Z","specialty":"Dermatologia","status":"confirmed","patient":{"rut":"11111111-1","name":"Maria Lopez"}}`, id)
}

func TestSchedulerWebhookCreatesRecord(t *testing.T) {
	repo := &mockAtencionRepo{}
	h := newTestWebhookHandler(repo, "")

	rec := postWebhook(t, h.SchedulerWebhook, "/scheduler/webhook", appointmentJSON("appt-1"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"received":true`) {
		t.Errorf("body = %s, want received ack", rec.Body.String())
	}
	if len(repo.records) != 1 {
		t.Fatalf("records = %d, want 1", len(repo.records))
	}
	if repo.records[0].SchedulerID == nil || *repo.records[0].SchedulerID != "appt-1" {
		t.Errorf("SchedulerID = %v, want appt-1", repo.records[0].SchedulerID)
	}
}

func TestWebhookAcksMalformedPayload(t *testing.T) {
	repo := &mockAtencionRepo{}
	h := newTestWebhookHandler(repo, "")

	rec := postWebhook(t, h.SchedulerWebhook, "/scheduler/webhook", `{"not":"an appointment"}`, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 even for a malformed payload", rec.Code)
	}
	if len(repo.records) != 0 {
		t.Errorf("records = %d, want nothing written", len(repo.records))
	}
}

func TestWebhookAcksStoreFailure(t *testing.T) {
	repo := &mockAtencionRepo{failNext: errors.New("db down")}
	h := newTestWebhookHandler(repo, "")

	rec := postWebhook(t, h.SchedulerWebhook, "/scheduler/webhook", appointmentJSON("appt-1"), nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 even when the write fails", rec.Code)
	}
}

func TestWebhookSignatureEnforcement(t *testing.T) {
	repo := &mockAtencionRepo{}
	h := newTestWebhookHandler(repo, "shh")
	body := appointmentJSON("appt-1")

	rec := postWebhook(t, h.SchedulerWebhook, "/scheduler/webhook", body, map[string]string{
		"X-Webhook-Signature": "sha256=deadbeef",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad signature status = %d, want 401", rec.Code)
	}
	if len(repo.records) != 0 {
		t.Errorf("records = %d, want nothing written on bad signature", len(repo.records))
	}

	sig := webhook.SignPayload([]byte(body), "shh")
	rec = postWebhook(t, h.SchedulerWebhook, "/scheduler/webhook", body, map[string]string{
		"X-Webhook-Signature": "sha256=" + sig,
	})
	if rec.Code != http.StatusOK {
		t.Errorf("valid signature status = %d, want 200", rec.Code)
	}
	if len(repo.records) != 1 {
		t.Errorf("records = %d, want 1 after valid delivery", len(repo.records))
	}
}

func TestVoucherCallbackLinksExistingRecord(t *testing.T) {
	repo := &mockAtencionRepo{}
	h := newTestWebhookHandler(repo, "")

	at := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	repo.records = append(repo.records, schedulerRecord("appt-1", "11111111-1", "Maria Lopez", at))
	repo.records[0].ID = uuid.New()

	rec := postWebhook(t, h.VoucherCallback, "/voucher/callback", voucherJSON("v-9", "11111111-1", at), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(repo.records) != 1 {
		t.Fatalf("records = %d, want the voucher linked, not a new record", len(repo.records))
	}
	if repo.records[0].VoucherID == nil || *repo.records[0].VoucherID != "v-9" {
		t.Errorf("VoucherID = %v, want v-9", repo.records[0].VoucherID)
	}
}
