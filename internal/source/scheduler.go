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

// SchedulerConfig configures the appointment-scheduler adapter.
type SchedulerConfig struct {
	BaseURL  string
	APIToken string
	Timeout  time.Duration
	Retry    RetryConfig
}

// Scheduler wraps the appointment-scheduler API. A hard failure on the list
// fetch degrades to an empty result so the rest of the sync continues; this
// source is advisory, the billing documents come from the other two.
type Scheduler struct {
	cfg    SchedulerConfig
	client *http.Client
	logger zerolog.Logger
}

func NewScheduler(cfg SchedulerConfig, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With().Str("source", atencion.SourceScheduler).Logger(),
	}
}

func (s *Scheduler) Name() string { return atencion.SourceScheduler }

func (s *Scheduler) Enabled() bool { return s.cfg.BaseURL != "" && s.cfg.APIToken != "" }

func (s *Scheduler) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + s.cfg.APIToken}
}

type schedulerPatient struct {
	Rut       string `json:"rut"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	BirthDate string `json:"birth_date"`
}

type schedulerAppointment struct {
	ID           string           `json:"id"`
	Date         string           `json:"date"`
	Specialty    string           `json:"specialty"`
	Professional string           `json:"professional"`
	Type         string           `json:"type"`
	Status       string           `json:"status"`
	Patient      schedulerPatient `json:"patient"`
}

func (s *Scheduler) FetchWindow(ctx context.Context, start, end time.Time) ([]*atencion.Atencion, error) {
	url := fmt.Sprintf("%s/api/appointments?start_date=%s&end_date=%s",
		s.cfg.BaseURL, start.Format("2006-01-02"), end.Format("2006-01-02"))

	var resp struct {
		Appointments []json.RawMessage `json:"appointments"`
	}
	err := withRetry(ctx, s.cfg.Retry, s.logger, func() error {
		return getJSON(ctx, s.client, url, s.headers(), &resp)
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("appointment fetch failed, continuing with empty result")
		return nil, nil
	}

	records := make([]*atencion.Atencion, 0, len(resp.Appointments))
	for _, msg := range resp.Appointments {
		rec, err := s.MapAppointment(msg)
		if err != nil {
			s.logger.Warn().Err(err).Msg("skipping malformed appointment")
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// MapAppointment normalizes one appointment payload. Used by both the window
// fetch and the inbound webhook.
func (s *Scheduler) MapAppointment(msg json.RawMessage) (*atencion.Atencion, error) {
	var app schedulerAppointment
	if err := json.Unmarshal(msg, &app); err != nil {
		return nil, fmt.Errorf("decode appointment: %w", err)
	}
	if app.ID == "" {
		return nil, fmt.Errorf("appointment has no id")
	}

	name := app.Patient.Name
	if name == "" {
		name = atencion.UnknownPatientName
	}

	return &atencion.Atencion{
		SchedulerID:             strPtr(app.ID),
		PacienteRut:             strPtr(app.Patient.Rut),
		PacienteNombre:          name,
		PacienteEmail:           strPtr(app.Patient.Email),
		PacienteTelefono:        strPtr(app.Patient.Phone),
		PacienteFechaNacimiento: parseTime(app.Patient.BirthDate),
		FechaCita:               parseTime(app.Date),
		Especialidad:            strPtr(app.Specialty),
		Profesional:             strPtr(app.Professional),
		TipoCita:                strPtr(app.Type),
		EstadoCita:              strPtr(app.Status),
		DatosRaw:                rawPayload(atencion.SourceScheduler, msg),
	}, nil
}

func (s *Scheduler) CheckConnection(ctx context.Context) error {
	return checkHealth(ctx, s.client, s.cfg.BaseURL, s.headers())
}
