package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medsync/medsync/internal/domain/synclog"
	"github.com/medsync/medsync/internal/source"
)

var (
	ErrUnknownSource  = errors.New("unknown source")
	ErrSourceDisabled = errors.New("source is not configured")
)

// DefaultWindowDays is the trailing window used when a request gives no
// explicit date range.
const DefaultWindowDays = 30

// Window is the date range a sync run fetches.
type Window struct {
	Start time.Time `json:"startDate"`
	End   time.Time `json:"endDate"`
}

// DefaultWindow returns the trailing 30 day window ending now.
func DefaultWindow(now time.Time) Window {
	return TrailingWindow(now, DefaultWindowDays)
}

// TrailingWindow returns the window covering the last daysBack days.
func TrailingWindow(now time.Time, daysBack int) Window {
	return Window{Start: now.AddDate(0, 0, -daysBack), End: now}
}

// RunResult summarizes one source's sync run.
type RunResult struct {
	Source           string    `json:"source"`
	Status           string    `json:"status"`
	RecordsProcessed int       `json:"recordsProcessed"`
	RecordsCreated   int       `json:"recordsCreated"`
	RecordsUpdated   int       `json:"recordsUpdated"`
	RecordsFailed    int       `json:"recordsFailed"`
	ErrorMessage     string    `json:"errorMessage,omitempty"`
	StartTime        time.Time `json:"startTime"`
	EndTime          time.Time `json:"endTime"`
	DurationMS       int64     `json:"durationMs"`
	LogID            uuid.UUID `json:"logId"`
}

// Summary aggregates a multi-source run.
type Summary struct {
	Results          []RunResult `json:"results"`
	RecordsProcessed int         `json:"recordsProcessed"`
	RecordsCreated   int         `json:"recordsCreated"`
	RecordsUpdated   int         `json:"recordsUpdated"`
	RecordsFailed    int         `json:"recordsFailed"`
	AllOK            bool        `json:"allOk"`
}

// SourceStatus is one source's connectivity probe result.
type SourceStatus struct {
	Source  string `json:"source"`
	Enabled bool   `json:"enabled"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

// StatusReport aggregates connectivity across sources.
type StatusReport struct {
	Sources []SourceStatus `json:"sources"`
	AllOK   bool           `json:"allOk"`
	Run     RunInfo        `json:"run"`
}

// Orchestrator drives per-source and all-source sync runs, records one
// outcome log per source per run, and owns the run token.
type Orchestrator struct {
	adapters []source.Adapter
	byName   map[string]source.Adapter
	cons     *Consolidator
	logs     synclog.Repository
	state    *runState
	logger   zerolog.Logger
}

func NewOrchestrator(adapters []source.Adapter, cons *Consolidator, logs synclog.Repository, logger zerolog.Logger) *Orchestrator {
	byName := make(map[string]source.Adapter, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
	}
	return &Orchestrator{
		adapters: adapters,
		byName:   byName,
		cons:     cons,
		logs:     logs,
		state:    &runState{},
		logger:   logger,
	}
}

// RunInfo reports the current run token state.
func (o *Orchestrator) RunInfo() RunInfo { return o.state.info() }

// RunSource syncs a single source. Returns ErrSyncRunning while another run
// holds the token, ErrUnknownSource / ErrSourceDisabled on bad input. A fetch
// failure is not an error here: it is captured in the result with status
// "error", and a log row is still written.
func (o *Orchestrator) RunSource(ctx context.Context, name string, w Window, trigger string, userID *string) (*RunResult, error) {
	adapter, ok := o.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	if !adapter.Enabled() {
		return nil, fmt.Errorf("%w: %s", ErrSourceDisabled, name)
	}

	release, err := o.state.tryAcquire(name, trigger)
	if err != nil {
		return nil, err
	}
	defer release()

	result := o.runSource(ctx, adapter, w, trigger, userID)
	return result, nil
}

// RunAll syncs every enabled source sequentially. One source failing its
// fetch never stops the others; disabled sources are skipped.
func (o *Orchestrator) RunAll(ctx context.Context, w Window, trigger string, userID *string) (*Summary, error) {
	release, err := o.state.tryAcquire("all", trigger)
	if err != nil {
		return nil, err
	}
	defer release()

	summary := &Summary{AllOK: true}
	for _, adapter := range o.adapters {
		if !adapter.Enabled() {
			o.logger.Debug().Str("source", adapter.Name()).Msg("source disabled, skipping")
			continue
		}
		result := o.runSource(ctx, adapter, w, trigger, userID)
		summary.Results = append(summary.Results, *result)
		summary.RecordsProcessed += result.RecordsProcessed
		summary.RecordsCreated += result.RecordsCreated
		summary.RecordsUpdated += result.RecordsUpdated
		summary.RecordsFailed += result.RecordsFailed
		if result.Status != synclog.StatusSuccess {
			summary.AllOK = false
		}
	}
	return summary, nil
}

// runSource executes one source's sync with the token already held and
// always writes exactly one log row.
func (o *Orchestrator) runSource(ctx context.Context, adapter source.Adapter, w Window, trigger string, userID *string) *RunResult {
	name := adapter.Name()
	start := time.Now()
	result := &RunResult{Source: name, StartTime: start}

	logger := o.logger.With().Str("source", name).Str("trigger", trigger).Logger()
	logger.Info().
		Time("window_start", w.Start).
		Time("window_end", w.End).
		Msg("sync started")

	records, fetchErr := adapter.FetchWindow(ctx, w.Start, w.End)
	if fetchErr != nil {
		result.Status = synclog.StatusError
		result.ErrorMessage = fetchErr.Error()
		logger.Error().Err(fetchErr).Msg("sync fetch failed")
	} else {
		actor := "sync:" + trigger
		for _, rec := range records {
			result.RecordsProcessed++
			rec.LastModifiedBy = &actor

			action, err := o.cons.Consolidate(ctx, name, rec)
			if err != nil {
				result.RecordsFailed++
				logger.Warn().Err(err).Msg("record write failed, continuing")
				continue
			}
			switch action {
			case ActionCreated:
				result.RecordsCreated++
			case ActionUpdated:
				result.RecordsUpdated++
			}
		}

		if result.RecordsFailed > 0 {
			result.Status = synclog.StatusPartial
		} else {
			result.Status = synclog.StatusSuccess
		}
	}

	result.EndTime = time.Now()
	result.DurationMS = result.EndTime.Sub(start).Milliseconds()

	o.writeLog(ctx, result, w, trigger, userID)

	logger.Info().
		Str("status", result.Status).
		Int("processed", result.RecordsProcessed).
		Int("created", result.RecordsCreated).
		Int("updated", result.RecordsUpdated).
		Int("failed", result.RecordsFailed).
		Msg("sync finished")

	return result
}

func (o *Orchestrator) writeLog(ctx context.Context, r *RunResult, w Window, trigger string, userID *string) {
	entry := &synclog.SyncLog{
		APIName:          r.Source,
		SyncType:         trigger,
		Status:           r.Status,
		StartTime:        r.StartTime,
		EndTime:          &r.EndTime,
		RecordsProcessed: r.RecordsProcessed,
		RecordsCreated:   r.RecordsCreated,
		RecordsUpdated:   r.RecordsUpdated,
		RecordsFailed:    r.RecordsFailed,
		UserID:           userID,
		Metadata: map[string]interface{}{
			"startDate": w.Start.Format("2006-01-02"),
			"endDate":   w.End.Format("2006-01-02"),
		},
	}
	entry.DurationMS = &r.DurationMS
	if r.ErrorMessage != "" {
		entry.ErrorMessage = &r.ErrorMessage
	}

	if err := o.logs.Create(ctx, entry); err != nil {
		// The run already happened; losing the log row is reported but not fatal.
		o.logger.Error().Err(err).Str("source", r.Source).Msg("failed to write sync log")
		return
	}
	r.LogID = entry.ID
}

// CheckStatus probes every source's connectivity. Disabled sources are
// reported but excluded from the all-ok flag.
func (o *Orchestrator) CheckStatus(ctx context.Context) *StatusReport {
	report := &StatusReport{AllOK: true, Run: o.state.info()}
	for _, adapter := range o.adapters {
		status := SourceStatus{Source: adapter.Name(), Enabled: adapter.Enabled()}
		if !status.Enabled {
			status.Error = "not configured"
			report.Sources = append(report.Sources, status)
			continue
		}
		if err := adapter.CheckConnection(ctx); err != nil {
			status.Error = err.Error()
			report.AllOK = false
		} else {
			status.OK = true
		}
		report.Sources = append(report.Sources, status)
	}
	return report
}
