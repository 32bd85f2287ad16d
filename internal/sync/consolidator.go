package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/medsync/medsync/internal/domain/atencion"
)

// MatchWindow is the temporal proximity used when linking a billing document
// to an existing record for the same patient.
const MatchWindow = 24 * time.Hour

// Actions taken by the consolidation engine for one incoming record.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
)

// Consolidator decides create-vs-merge for records arriving from a source.
type Consolidator struct {
	repo   atencion.Repository
	logger zerolog.Logger
}

func NewConsolidator(repo atencion.Repository, logger zerolog.Logger) *Consolidator {
	return &Consolidator{repo: repo, logger: logger}
}

// Consolidate writes one incoming record, matching in priority order:
//
//  1. A stored record already carrying the source's external id (idempotent
//     re-delivery) is merged in place.
//  2. For billing documents (voucher, invoicer), the first stored record for
//     the same rut lacking that source's id within MatchWindow of the
//     incoming timestamp is linked and merged. First found wins; there is no
//     tie-break by closeness.
//  3. Otherwise a new record is created.
//
// Merges are destructive: non-nil incoming fields always overwrite.
func (c *Consolidator) Consolidate(ctx context.Context, source string, rec *atencion.Atencion) (string, error) {
	if extID := rec.ExternalID(source); extID != nil {
		existing, err := c.repo.FindByExternalID(ctx, source, *extID)
		if err != nil {
			return "", fmt.Errorf("lookup by external id: %w", err)
		}
		if existing != nil {
			existing.MergeFrom(rec, source)
			if err := c.repo.Update(ctx, existing); err != nil {
				return "", fmt.Errorf("update record: %w", err)
			}
			return ActionUpdated, nil
		}
	}

	if (source == atencion.SourceVoucher || source == atencion.SourceInvoicer) &&
		rec.PacienteRut != nil && rec.FechaCita != nil {
		candidate, err := c.repo.FindUnlinked(ctx, source, *rec.PacienteRut, *rec.FechaCita, MatchWindow)
		if err != nil {
			return "", fmt.Errorf("lookup unlinked candidate: %w", err)
		}
		if candidate != nil {
			candidate.MergeFrom(rec, source)
			if err := c.repo.Update(ctx, candidate); err != nil {
				return "", fmt.Errorf("update matched record: %w", err)
			}
			c.logger.Debug().
				Str("source", source).
				Str("atencion_id", candidate.ID.String()).
				Msg("linked record by rut and time window")
			return ActionUpdated, nil
		}
	}

	created := atencion.NewFromSource(rec, source)
	if err := c.repo.Create(ctx, created); err != nil {
		return "", fmt.Errorf("create record: %w", err)
	}
	rec.ID = created.ID
	return ActionCreated, nil
}
