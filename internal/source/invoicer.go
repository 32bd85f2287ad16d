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

// InvoicerConfig configures the e-invoicing adapter.
type InvoicerConfig struct {
	BaseURL   string
	APIKey    string
	CompanyID string
	Timeout   time.Duration
	Retry     RetryConfig
}

// Invoicer wraps the e-invoicing API. Fetch failures propagate, same as the
// voucher source.
type Invoicer struct {
	cfg    InvoicerConfig
	client *http.Client
	logger zerolog.Logger
}

func NewInvoicer(cfg InvoicerConfig, logger zerolog.Logger) *Invoicer {
	return &Invoicer{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With().Str("source", atencion.SourceInvoicer).Logger(),
	}
}

func (i *Invoicer) Name() string { return atencion.SourceInvoicer }

func (i *Invoicer) Enabled() bool { return i.cfg.BaseURL != "" && i.cfg.APIKey != "" }

func (i *Invoicer) headers() map[string]string {
	h := map[string]string{"X-API-Key": i.cfg.APIKey}
	if i.cfg.CompanyID != "" {
		h["X-Company-Id"] = i.cfg.CompanyID
	}
	return h
}

type invoiceCustomer struct {
	Rut   string `json:"rut"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type invoicePayment struct {
	Method     string   `json:"method"`
	Status     string   `json:"status"`
	Date       string   `json:"date"`
	AmountPaid *float64 `json:"amount_paid"`
}

type invoiceRecord struct {
	ID          string          `json:"id"`
	Number      string          `json:"number"`
	Type        string          `json:"type"`
	Status      string          `json:"status"`
	IssuedAt    string          `json:"issued_at"`
	NetAmount   *float64        `json:"net_amount"`
	TaxAmount   *float64        `json:"tax_amount"`
	TotalAmount *float64        `json:"total_amount"`
	Payment     invoicePayment  `json:"payment"`
	Customer    invoiceCustomer `json:"customer"`
}

func (i *Invoicer) FetchWindow(ctx context.Context, start, end time.Time) ([]*atencion.Atencion, error) {
	url := fmt.Sprintf("%s/api/invoices?start_date=%s&end_date=%s",
		i.cfg.BaseURL, start.Format("2006-01-02"), end.Format("2006-01-02"))

	var resp struct {
		Invoices []json.RawMessage `json:"invoices"`
	}
	err := withRetry(ctx, i.cfg.Retry, i.logger, func() error {
		return getJSON(ctx, i.client, url, i.headers(), &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch invoices: %w", err)
	}

	records := make([]*atencion.Atencion, 0, len(resp.Invoices))
	for _, msg := range resp.Invoices {
		rec, err := i.mapInvoice(msg)
		if err != nil {
			i.logger.Warn().Err(err).Msg("skipping malformed invoice")
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (i *Invoicer) mapInvoice(msg json.RawMessage) (*atencion.Atencion, error) {
	var rec invoiceRecord
	if err := json.Unmarshal(msg, &rec); err != nil {
		return nil, fmt.Errorf("decode invoice: %w", err)
	}
	if rec.ID == "" {
		return nil, fmt.Errorf("invoice has no id")
	}

	return &atencion.Atencion{
		InvoiceID:           strPtr(rec.ID),
		PacienteRut:         strPtr(rec.Customer.Rut),
		PacienteNombre:      rec.Customer.Name,
		PacienteEmail:       strPtr(rec.Customer.Email),
		FechaCita:           parseTime(rec.IssuedAt),
		FacturaNumero:       strPtr(rec.Number),
		FacturaTipo:         strPtr(rec.Type),
		FacturaEstado:       strPtr(rec.Status),
		FacturaFechaEmision: parseTime(rec.IssuedAt),
		MontoNeto:           rec.NetAmount,
		MontoIVA:            rec.TaxAmount,
		MontoTotal:          rec.TotalAmount,
		MetodoPago:          strPtr(rec.Payment.Method),
		EstadoPago:          strPtr(rec.Payment.Status),
		FechaPago:           parseTime(rec.Payment.Date),
		MontoPagado:         rec.Payment.AmountPaid,
		DatosRaw:            rawPayload(atencion.SourceInvoicer, msg),
	}, nil
}

func (i *Invoicer) CheckConnection(ctx context.Context) error {
	return checkHealth(ctx, i.client, i.cfg.BaseURL, i.headers())
}
