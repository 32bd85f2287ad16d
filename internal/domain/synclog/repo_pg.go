package synclog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medsync/medsync/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const logCols = `id, api_name, sync_type, status, start_time, end_time, duration_ms,
	records_processed, records_created, records_updated, records_failed,
	error_message, error_details, user_id, metadata, created_at`

func (r *repoPG) scanLog(row pgx.Row) (*SyncLog, error) {
	var l SyncLog
	err := row.Scan(&l.ID, &l.APIName, &l.SyncType, &l.Status, &l.StartTime, &l.EndTime, &l.DurationMS,
		&l.RecordsProcessed, &l.RecordsCreated, &l.RecordsUpdated, &l.RecordsFailed,
		&l.ErrorMessage, &l.ErrorDetails, &l.UserID, &l.Metadata, &l.CreatedAt)
	return &l, err
}

func (r *repoPG) Create(ctx context.Context, l *SyncLog) error {
	l.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO sync_logs (id, api_name, sync_type, status, start_time, end_time, duration_ms,
			records_processed, records_created, records_updated, records_failed,
			error_message, error_details, user_id, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		l.ID, l.APIName, l.SyncType, l.Status, l.StartTime, l.EndTime, l.DurationMS,
		l.RecordsProcessed, l.RecordsCreated, l.RecordsUpdated, l.RecordsFailed,
		l.ErrorMessage, l.ErrorDetails, l.UserID, l.Metadata)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*SyncLog, error) {
	return r.scanLog(r.conn(ctx).QueryRow(ctx,
		`SELECT `+logCols+` FROM sync_logs WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, f Filter) ([]*SyncLog, error) {
	query := `SELECT ` + logCols + ` FROM sync_logs WHERE 1=1`
	var args []interface{}

	if f.APIName != "" {
		args = append(args, f.APIName)
		query += fmt.Sprintf(` AND api_name = $%d`, len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY start_time DESC LIMIT $%d`, len(args))

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*SyncLog
	for rows.Next() {
		l, err := r.scanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (r *repoPG) LastRun(ctx context.Context, apiName string) (*SyncLog, error) {
	var row pgx.Row
	if apiName != "" {
		row = r.conn(ctx).QueryRow(ctx,
			`SELECT `+logCols+` FROM sync_logs WHERE api_name = $1 ORDER BY start_time DESC LIMIT 1`, apiName)
	} else {
		row = r.conn(ctx).QueryRow(ctx,
			`SELECT `+logCols+` FROM sync_logs ORDER BY start_time DESC LIMIT 1`)
	}

	l, err := r.scanLog(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (r *repoPG) Summary(ctx context.Context, since time.Time) ([]SourceSummary, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT api_name,
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'success'),
			COUNT(*) FILTER (WHERE status = 'partial'),
			COUNT(*) FILTER (WHERE status = 'error'),
			COALESCE(SUM(records_processed), 0),
			MAX(start_time)
		FROM sync_logs
		WHERE start_time >= $1
		GROUP BY api_name
		ORDER BY api_name`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []SourceSummary
	for rows.Next() {
		var s SourceSummary
		if err := rows.Scan(&s.APIName, &s.Runs, &s.Success, &s.Partial, &s.Errors,
			&s.RecordsProcessed, &s.LastRun); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
