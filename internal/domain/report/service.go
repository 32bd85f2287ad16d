// Package report renders filtered exports of consolidated records as PDF and
// Excel documents for the back-office staff.
package report

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/medsync/medsync/internal/domain/atencion"
)

// Totals aggregates the money columns over the exported rows.
type Totals struct {
	Count           int     `json:"count"`
	MontoTotal      float64 `json:"montoTotal"`
	MontoPagado     float64 `json:"montoPagado"`
	Copago          float64 `json:"copago"`
	MontoBonificado float64 `json:"montoBonificado"`
}

// Report is the materialized export: every row matching the filter plus the
// column totals, stamped with generation time.
type Report struct {
	GeneratedAt time.Time            `json:"generatedAt"`
	Filter      atencion.Filter      `json:"-"`
	Rows        []*atencion.Atencion `json:"rows"`
	Totals      Totals               `json:"totals"`
}

type Service struct {
	repo   atencion.Repository
	logger zerolog.Logger
}

func NewService(repo atencion.Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Generate loads every record matching the filter, unpaginated, and computes
// the totals row.
func (s *Service) Generate(ctx context.Context, f atencion.Filter) (*Report, error) {
	rows, err := s.repo.ListAll(ctx, f)
	if err != nil {
		return nil, err
	}

	r := &Report{GeneratedAt: time.Now(), Filter: f, Rows: rows}
	r.Totals.Count = len(rows)
	for _, a := range rows {
		if a.MontoTotal != nil {
			r.Totals.MontoTotal += *a.MontoTotal
		}
		if a.MontoPagado != nil {
			r.Totals.MontoPagado += *a.MontoPagado
		}
		if a.Copago != nil {
			r.Totals.Copago += *a.Copago
		}
		if a.MontoBonificado != nil {
			r.Totals.MontoBonificado += *a.MontoBonificado
		}
	}

	s.logger.Debug().Int("rows", r.Totals.Count).Msg("report generated")
	return r, nil
}
