package atencion

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func validateMoney(name string, v *float64) error {
	if v != nil && *v < 0 {
		return fmt.Errorf("%s must not be negative", name)
	}
	return nil
}

func (s *Service) validate(a *Atencion) error {
	if a.PacienteNombre == "" {
		return fmt.Errorf("paciente_nombre is required")
	}
	for _, m := range []struct {
		name  string
		value *float64
	}{
		{"bono_monto", a.BonoMonto},
		{"copago", a.Copago},
		{"monto_bonificado", a.MontoBonificado},
		{"monto_neto", a.MontoNeto},
		{"monto_iva", a.MontoIVA},
		{"monto_total", a.MontoTotal},
		{"monto_pagado", a.MontoPagado},
	} {
		if err := validateMoney(m.name, m.value); err != nil {
			return err
		}
	}

	// Overpayment is tolerated upstream; surfaced in the log only.
	if a.MontoPagado != nil && a.MontoTotal != nil && *a.MontoPagado > *a.MontoTotal {
		s.logger.Warn().
			Str("atencion_id", a.ID.String()).
			Float64("monto_pagado", *a.MontoPagado).
			Float64("monto_total", *a.MontoTotal).
			Msg("monto_pagado exceeds monto_total")
	}
	return nil
}

func (s *Service) Create(ctx context.Context, a *Atencion) error {
	if err := s.validate(a); err != nil {
		return err
	}
	return s.repo.Create(ctx, a)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Atencion, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, a *Atencion) error {
	if err := s.validate(a); err != nil {
		return err
	}
	return s.repo.Update(ctx, a)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Atencion, int, error) {
	return s.repo.List(ctx, f, limit, offset)
}

func (s *Service) ListAll(ctx context.Context, f Filter) ([]*Atencion, error) {
	return s.repo.ListAll(ctx, f)
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return s.repo.Stats(ctx)
}
