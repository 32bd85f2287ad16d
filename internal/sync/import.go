package sync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medsync/medsync/internal/domain/atencion"
	"github.com/medsync/medsync/internal/domain/synclog"
	"github.com/medsync/medsync/internal/source"
)

// DefaultBatchSize is the chunk size for bulk imports.
const DefaultBatchSize = 500

// Importer handles the manual voucher flows: fetching selected ids from the
// issuer and ingesting payloads exported out-of-band.
type Importer struct {
	voucher   *source.Voucher
	cons      *Consolidator
	logs      synclog.Repository
	batchSize int
	logger    zerolog.Logger
}

func NewImporter(voucher *source.Voucher, cons *Consolidator, logs synclog.Repository, batchSize int, logger zerolog.Logger) *Importer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Importer{
		voucher:   voucher,
		cons:      cons,
		logs:      logs,
		batchSize: batchSize,
		logger:    logger,
	}
}

// ImportResult summarizes a manual import.
type ImportResult struct {
	Requested int       `json:"requested"`
	Created   int       `json:"created"`
	Updated   int       `json:"updated"`
	Failed    int       `json:"failed"`
	FailedIDs []string  `json:"failedIds,omitempty"`
	Batches   int       `json:"batches,omitempty"`
	Status    string    `json:"status"`
	LogID     uuid.UUID `json:"logId"`
}

// ImportVouchers fetches the given voucher ids from the issuer and
// consolidates each one. Per-id fetch or write failures are reported, not
// fatal; one log row records the whole import.
func (im *Importer) ImportVouchers(ctx context.Context, ids []string, userID *string) (*ImportResult, error) {
	start := time.Now()
	result := &ImportResult{Requested: len(ids)}
	actor := "import"
	if userID != nil {
		actor = "import:" + *userID
	}

	records, failedIDs, err := im.voucher.FetchByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	result.FailedIDs = failedIDs
	result.Failed = len(failedIDs)

	for _, rec := range records {
		rec.LastModifiedBy = &actor
		action, cerr := im.cons.Consolidate(ctx, atencion.SourceVoucher, rec)
		if cerr != nil {
			result.Failed++
			if rec.VoucherID != nil {
				result.FailedIDs = append(result.FailedIDs, *rec.VoucherID)
			}
			im.logger.Warn().Err(cerr).Msg("voucher import write failed")
			continue
		}
		if action == ActionCreated {
			result.Created++
		} else {
			result.Updated++
		}
	}

	result.Status = importStatus(result.Requested, result.Failed)
	im.writeLog(ctx, result, start, userID, map[string]interface{}{
		"mode":         "ids",
		"requestedIds": len(ids),
	})
	return result, nil
}

// ImportExtracted ingests voucher payloads already extracted from the issuer
// (bulk exports). Rows are processed in batches; a malformed row fails alone.
func (im *Importer) ImportExtracted(ctx context.Context, rows []json.RawMessage, userID *string) (*ImportResult, error) {
	start := time.Now()
	result := &ImportResult{Requested: len(rows)}
	actor := "import"
	if userID != nil {
		actor = "import:" + *userID
	}

	for offset := 0; offset < len(rows); offset += im.batchSize {
		end := offset + im.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[offset:end]
		result.Batches++

		batchFailed := 0
		for _, row := range batch {
			rec, err := im.voucher.MapVoucher(row)
			if err != nil {
				result.Failed++
				batchFailed++
				continue
			}
			rec.LastModifiedBy = &actor
			action, cerr := im.cons.Consolidate(ctx, atencion.SourceVoucher, rec)
			if cerr != nil {
				result.Failed++
				batchFailed++
				if rec.VoucherID != nil {
					result.FailedIDs = append(result.FailedIDs, *rec.VoucherID)
				}
				continue
			}
			if action == ActionCreated {
				result.Created++
			} else {
				result.Updated++
			}
		}

		im.logger.Info().
			Int("batch", result.Batches).
			Int("size", len(batch)).
			Int("failed", batchFailed).
			Msg("import batch processed")
	}

	result.Status = importStatus(result.Requested, result.Failed)
	im.writeLog(ctx, result, start, userID, map[string]interface{}{
		"mode":    "extracted",
		"batches": result.Batches,
	})
	return result, nil
}

func importStatus(requested, failed int) string {
	switch {
	case failed == 0:
		return synclog.StatusSuccess
	case failed >= requested && requested > 0:
		return synclog.StatusError
	default:
		return synclog.StatusPartial
	}
}

func (im *Importer) writeLog(ctx context.Context, r *ImportResult, start time.Time, userID *string, metadata map[string]interface{}) {
	end := time.Now()
	durationMS := end.Sub(start).Milliseconds()

	entry := &synclog.SyncLog{
		APIName:          atencion.SourceVoucher,
		SyncType:         synclog.TypeManual,
		Status:           r.Status,
		StartTime:        start,
		EndTime:          &end,
		DurationMS:       &durationMS,
		RecordsProcessed: r.Requested,
		RecordsCreated:   r.Created,
		RecordsUpdated:   r.Updated,
		RecordsFailed:    r.Failed,
		UserID:           userID,
		Metadata:         metadata,
	}
	if err := im.logs.Create(ctx, entry); err != nil {
		im.logger.Error().Err(err).Msg("failed to write import log")
		return
	}
	r.LogID = entry.ID
}
