package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/medsync/medsync/internal/domain/atencion"
)

// VoucherConfig configures the voucher-issuer adapter.
type VoucherConfig struct {
	BaseURL string
	APIKey  string
	OrgID   string
	Timeout time.Duration
	Retry   RetryConfig
}

// Voucher wraps the voucher/copay-issuer API. Fetch failures propagate; a
// run against this source is marked error when the upstream call fails.
type Voucher struct {
	cfg    VoucherConfig
	client *http.Client
	logger zerolog.Logger
}

func NewVoucher(cfg VoucherConfig, logger zerolog.Logger) *Voucher {
	return &Voucher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With().Str("source", atencion.SourceVoucher).Logger(),
	}
}

func (v *Voucher) Name() string { return atencion.SourceVoucher }

func (v *Voucher) Enabled() bool { return v.cfg.BaseURL != "" && v.cfg.APIKey != "" }

func (v *Voucher) headers() map[string]string {
	h := map[string]string{"X-API-Key": v.cfg.APIKey}
	if v.cfg.OrgID != "" {
		h["X-Organization-Id"] = v.cfg.OrgID
	}
	return h
}

type voucherPatient struct {
	Rut  string `json:"rut"`
	Name string `json:"name"`
}

type voucherRecord struct {
	ID            string         `json:"id"`
	Number        string         `json:"number"`
	Status        string         `json:"status"`
	Amount        *float64       `json:"amount"`
	Copayment     *float64       `json:"copayment"`
	CoveredAmount *float64       `json:"covered_amount"`
	IssuedAt      string         `json:"issued_at"`
	ExpiresAt     string         `json:"expires_at"`
	ServiceCode   string         `json:"service_code"`
	URL           string         `json:"url"`
	Insurance     string         `json:"insurance"`
	Plan          string         `json:"plan"`
	Patient       voucherPatient `json:"patient"`
}

func (v *Voucher) FetchWindow(ctx context.Context, start, end time.Time) ([]*atencion.Atencion, error) {
	url := fmt.Sprintf("%s/api/vouchers?from=%s&to=%s",
		v.cfg.BaseURL, start.Format("2006-01-02"), end.Format("2006-01-02"))

	var resp struct {
		Vouchers []json.RawMessage `json:"vouchers"`
	}
	err := withRetry(ctx, v.cfg.Retry, v.logger, func() error {
		return getJSON(ctx, v.client, url, v.headers(), &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch vouchers: %w", err)
	}

	records := make([]*atencion.Atencion, 0, len(resp.Vouchers))
	for _, msg := range resp.Vouchers {
		rec, err := v.MapVoucher(msg)
		if err != nil {
			v.logger.Warn().Err(err).Msg("skipping malformed voucher")
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// GetVoucher fetches a single voucher by its upstream id.
func (v *Voucher) GetVoucher(ctx context.Context, id string) (*atencion.Atencion, error) {
	var msg json.RawMessage
	err := withRetry(ctx, v.cfg.Retry, v.logger, func() error {
		return getJSON(ctx, v.client, v.cfg.BaseURL+"/api/vouchers/"+id, v.headers(), &msg)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch voucher %s: %w", id, err)
	}
	return v.MapVoucher(msg)
}

// FetchByIDs fetches each voucher individually for the manual import flow.
// Per-id failures are collected, not fatal.
func (v *Voucher) FetchByIDs(ctx context.Context, ids []string) ([]*atencion.Atencion, []string, error) {
	var records []*atencion.Atencion
	var failed []string
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return records, failed, err
		}
		rec, err := v.GetVoucher(ctx, id)
		if err != nil {
			v.logger.Warn().Err(err).Str("voucher_id", id).Msg("voucher import fetch failed")
			failed = append(failed, id)
			continue
		}
		records = append(records, rec)
	}
	return records, failed, nil
}

// MapVoucher normalizes one voucher payload. Used by the window fetch, the
// import flow, and the inbound callback.
func (v *Voucher) MapVoucher(msg json.RawMessage) (*atencion.Atencion, error) {
	var rec voucherRecord
	if err := json.Unmarshal(msg, &rec); err != nil {
		return nil, fmt.Errorf("decode voucher: %w", err)
	}
	if rec.ID == "" {
		return nil, fmt.Errorf("voucher has no id")
	}

	return &atencion.Atencion{
		VoucherID:        strPtr(rec.ID),
		PacienteRut:      strPtr(rec.Patient.Rut),
		PacienteNombre:   rec.Patient.Name,
		FechaCita:        parseTime(rec.IssuedAt),
		Prevision:        strPtr(rec.Insurance),
		PlanSalud:        strPtr(rec.Plan),
		BonoNumero:       strPtr(rec.Number),
		BonoEstado:       strPtr(rec.Status),
		BonoMonto:        rec.Amount,
		BonoFechaEmision: parseTime(rec.IssuedAt),
		Copago:           rec.Copayment,
		MontoBonificado:  rec.CoveredAmount,
		CodigoPrestacion: strPtr(rec.ServiceCode),
		FechaExpiracion:  parseTime(rec.ExpiresAt),
		VoucherURL:       strPtr(rec.URL),
		DatosRaw:         rawPayload(atencion.SourceVoucher, msg),
	}, nil
}

func (v *Voucher) CheckConnection(ctx context.Context) error {
	return checkHealth(ctx, v.client, v.cfg.BaseURL, v.headers())
}
