package atencion

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Filter narrows list and report queries. Zero values mean "no constraint".
type Filter struct {
	StartDate   *time.Time
	EndDate     *time.Time
	EstadoPago  string
	EstadoCita  string
	PacienteRut string
	Origin      string
	Search      string
}

// Stats holds dashboard aggregates over the whole table.
type Stats struct {
	Total          int            `json:"total"`
	PorEstadoCita  map[string]int `json:"porEstadoCita"`
	PorEstadoPago  map[string]int `json:"porEstadoPago"`
	MontoFacturado float64        `json:"montoFacturado"`
	MontoPagado    float64        `json:"montoPagado"`
}

// Repository is the persistence gateway for consolidated records. Find
// methods return (nil, nil) when no row matches.
type Repository interface {
	Create(ctx context.Context, a *Atencion) error
	GetByID(ctx context.Context, id uuid.UUID) (*Atencion, error)
	Update(ctx context.Context, a *Atencion) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Atencion, int, error)
	ListAll(ctx context.Context, f Filter) ([]*Atencion, error)
	FindByExternalID(ctx context.Context, source, externalID string) (*Atencion, error)
	FindUnlinked(ctx context.Context, source, rut string, around time.Time, window time.Duration) (*Atencion, error)
	Stats(ctx context.Context) (*Stats, error)
}
