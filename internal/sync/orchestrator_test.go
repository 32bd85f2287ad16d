package sync

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/medsync/medsync/internal/domain/atencion"
	"github.com/medsync/medsync/internal/domain/synclog"
	"github.com/medsync/medsync/internal/source"
)

// fakeAdapter is an in-memory source for orchestrator tests.
type fakeAdapter struct {
	name     string
	enabled  bool
	records  []*atencion.Atencion
	fetchErr error
	checkErr error
	fetches  int
}

func (f *fakeAdapter) Name() string  { return f.name }
func (f *fakeAdapter) Enabled() bool { return f.enabled }

func (f *fakeAdapter) FetchWindow(_ context.Context, _, _ time.Time) ([]*atencion.Atencion, error) {
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.records, nil
}

func (f *fakeAdapter) CheckConnection(_ context.Context) error { return f.checkErr }

func newTestOrchestrator(adapters []source.Adapter, repo *mockAtencionRepo, logs *mockLogRepo) *Orchestrator {
	return NewOrchestrator(adapters, NewConsolidator(repo, zerolog.Nop()), logs, zerolog.Nop())
}

func TestRunSourceCountsInvariant(t *testing.T) {
	repo := &mockAtencionRepo{}
	logs := &mockLogRepo{}
	adapter := &fakeAdapter{
		name:    atencion.SourceScheduler,
		enabled: true,
		records: []*atencion.Atencion{
			schedulerRecord("a-1", "11111111-1", "Uno", time.Now()),
			schedulerRecord("a-2", "22222222-2", "Dos", time.Now()),
			schedulerRecord("a-2", "22222222-2", "Dos Otra Vez", time.Now()),
		},
	}
	orch := newTestOrchestrator([]source.Adapter{adapter}, repo, logs)

	result, err := orch.RunSource(context.Background(), atencion.SourceScheduler,
		DefaultWindow(time.Now()), synclog.TypeManual, nil)
	if err != nil {
		t.Fatalf("RunSource: %v", err)
	}

	if result.Status != synclog.StatusSuccess {
		t.Errorf("status = %q, want success", result.Status)
	}
	if result.RecordsProcessed != 3 {
		t.Errorf("processed = %d, want 3", result.RecordsProcessed)
	}
	if got := result.RecordsCreated + result.RecordsUpdated + result.RecordsFailed; got != result.RecordsProcessed {
		t.Errorf("created+updated+failed = %d, want processed %d", got, result.RecordsProcessed)
	}
	if result.RecordsCreated != 2 || result.RecordsUpdated != 1 {
		t.Errorf("created = %d updated = %d, want 2 and 1", result.RecordsCreated, result.RecordsUpdated)
	}
}

func TestRunSourceFetchFailureLogsError(t *testing.T) {
	repo := &mockAtencionRepo{}
	logs := &mockLogRepo{}
	adapter := &fakeAdapter{
		name:     atencion.SourceVoucher,
		enabled:  true,
		fetchErr: errors.New("upstream 500"),
	}
	orch := newTestOrchestrator([]source.Adapter{adapter}, repo, logs)

	result, err := orch.RunSource(context.Background(), atencion.SourceVoucher,
		DefaultWindow(time.Now()), synclog.TypeManual, nil)
	if err != nil {
		t.Fatalf("RunSource: %v", err)
	}
	if result.Status != synclog.StatusError {
		t.Errorf("status = %q, want error", result.Status)
	}
	if result.ErrorMessage == "" {
		t.Error("expected error message on fetch failure")
	}
	if len(logs.logs) != 1 {
		t.Fatalf("logs = %d, want exactly 1 even on failure", len(logs.logs))
	}
	if logs.logs[0].Status != synclog.StatusError {
		t.Errorf("log status = %q, want error", logs.logs[0].Status)
	}
}

func TestRunSourcePartialOnRecordFailure(t *testing.T) {
	repo := &mockAtencionRepo{}
	logs := &mockLogRepo{}
	adapter := &fakeAdapter{
		name:    atencion.SourceScheduler,
		enabled: true,
		records: []*atencion.Atencion{
			schedulerRecord("a-1", "11111111-1", "Uno", time.Now()),
			schedulerRecord("a-2", "22222222-2", "Dos", time.Now()),
		},
	}
	orch := newTestOrchestrator([]source.Adapter{adapter}, repo, logs)

	repo.failNext = errors.New("constraint violation")
	result, err := orch.RunSource(context.Background(), atencion.SourceScheduler,
		DefaultWindow(time.Now()), synclog.TypeManual, nil)
	if err != nil {
		t.Fatalf("RunSource: %v", err)
	}
	if result.Status != synclog.StatusPartial {
		t.Errorf("status = %q, want partial", result.Status)
	}
	if result.RecordsFailed != 1 || result.RecordsCreated != 1 {
		t.Errorf("failed = %d created = %d, want 1 and 1", result.RecordsFailed, result.RecordsCreated)
	}
}

func TestRunSourceUnknownAndDisabled(t *testing.T) {
	adapter := &fakeAdapter{name: atencion.SourceVoucher}
	orch := newTestOrchestrator([]source.Adapter{adapter}, &mockAtencionRepo{}, &mockLogRepo{})

	if _, err := orch.RunSource(context.Background(), "mystery", DefaultWindow(time.Now()), synclog.TypeManual, nil); !errors.Is(err, ErrUnknownSource) {
		t.Errorf("err = %v, want ErrUnknownSource", err)
	}
	if _, err := orch.RunSource(context.Background(), atencion.SourceVoucher, DefaultWindow(time.Now()), synclog.TypeManual, nil); !errors.Is(err, ErrSourceDisabled) {
		t.Errorf("err = %v, want ErrSourceDisabled", err)
	}
}

func TestRunAllIsolatesSourceFailures(t *testing.T) {
	repo := &mockAtencionRepo{}
	logs := &mockLogRepo{}
	good := &fakeAdapter{
		name:    atencion.SourceScheduler,
		enabled: true,
		records: []*atencion.Atencion{schedulerRecord("a-1", "11111111-1", "Uno", time.Now())},
	}
	bad := &fakeAdapter{name: atencion.SourceVoucher, enabled: true, fetchErr: errors.New("timeout")}
	alsoGood := &fakeAdapter{name: atencion.SourceInvoicer, enabled: true}
	orch := newTestOrchestrator([]source.Adapter{good, bad, alsoGood}, repo, logs)

	summary, err := orch.RunAll(context.Background(), DefaultWindow(time.Now()), synclog.TypeManual, nil)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}

	if len(summary.Results) != 3 {
		t.Fatalf("results = %d, want all 3 sources attempted", len(summary.Results))
	}
	if summary.AllOK {
		t.Error("AllOK = true, want false with a failing source")
	}
	if alsoGood.fetches != 1 {
		t.Error("source after the failing one was not fetched")
	}
	if len(logs.logs) != 3 {
		t.Errorf("logs = %d, want one per source", len(logs.logs))
	}
}

func TestRunAllSkipsDisabledSources(t *testing.T) {
	enabled := &fakeAdapter{name: atencion.SourceScheduler, enabled: true}
	disabled := &fakeAdapter{name: atencion.SourceVoucher}
	orch := newTestOrchestrator([]source.Adapter{enabled, disabled}, &mockAtencionRepo{}, &mockLogRepo{})

	summary, err := orch.RunAll(context.Background(), DefaultWindow(time.Now()), synclog.TypeManual, nil)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if len(summary.Results) != 1 {
		t.Errorf("results = %d, want disabled source skipped", len(summary.Results))
	}
	if disabled.fetches != 0 {
		t.Error("disabled source was fetched")
	}
}

func TestRunTokenMutualExclusion(t *testing.T) {
	repo := &mockAtencionRepo{}
	logs := &mockLogRepo{}
	started := make(chan struct{})
	proceed := make(chan struct{})
	slow := &slowAdapter{
		fakeAdapter: fakeAdapter{name: atencion.SourceScheduler, enabled: true},
		started:     started,
		proceed:     proceed,
	}
	orch := newTestOrchestrator([]source.Adapter{slow}, repo, logs)

	done := make(chan error, 1)
	go func() {
		_, err := orch.RunSource(context.Background(), atencion.SourceScheduler,
			DefaultWindow(time.Now()), synclog.TypeManual, nil)
		done <- err
	}()
	<-started

	if _, err := orch.RunAll(context.Background(), DefaultWindow(time.Now()), synclog.TypeManual, nil); !errors.Is(err, ErrSyncRunning) {
		t.Errorf("concurrent RunAll err = %v, want ErrSyncRunning", err)
	}
	info := orch.RunInfo()
	if !info.Active || info.Scope != atencion.SourceScheduler {
		t.Errorf("RunInfo = %+v, want active scheduler run", info)
	}

	close(proceed)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Token released, a new run acquires it.
	if _, err := orch.RunAll(context.Background(), DefaultWindow(time.Now()), synclog.TypeManual, nil); err != nil {
		t.Errorf("run after release: %v", err)
	}
}

// slowAdapter blocks its fetch until released so a second run can race the
// token.
type slowAdapter struct {
	fakeAdapter
	started     chan struct{}
	proceed     chan struct{}
	startedOnce gosync.Once
}

func (s *slowAdapter) FetchWindow(ctx context.Context, start, end time.Time) ([]*atencion.Atencion, error) {
	s.startedOnce.Do(func() { close(s.started) })
	<-s.proceed
	return s.fakeAdapter.FetchWindow(ctx, start, end)
}

func TestCheckStatus(t *testing.T) {
	ok := &fakeAdapter{name: atencion.SourceScheduler, enabled: true}
	failing := &fakeAdapter{name: atencion.SourceVoucher, enabled: true, checkErr: errors.New("connection refused")}
	disabled := &fakeAdapter{name: atencion.SourceInvoicer}
	orch := newTestOrchestrator([]source.Adapter{ok, failing, disabled}, &mockAtencionRepo{}, &mockLogRepo{})

	report := orch.CheckStatus(context.Background())
	if report.AllOK {
		t.Error("AllOK = true, want false with a failing probe")
	}
	if len(report.Sources) != 3 {
		t.Fatalf("sources = %d, want 3", len(report.Sources))
	}
	if !report.Sources[0].OK {
		t.Error("healthy source reported not ok")
	}
	if report.Sources[1].OK || report.Sources[1].Error == "" {
		t.Error("failing source reported ok")
	}
	if report.Sources[2].OK || report.Sources[2].Enabled {
		t.Error("disabled source reported enabled or ok")
	}
}

func TestLogWriteFailureDoesNotFailRun(t *testing.T) {
	repo := &mockAtencionRepo{}
	logs := &mockLogRepo{failNext: errors.New("db down")}
	adapter := &fakeAdapter{name: atencion.SourceScheduler, enabled: true}
	orch := newTestOrchestrator([]source.Adapter{adapter}, repo, logs)

	result, err := orch.RunSource(context.Background(), atencion.SourceScheduler,
		DefaultWindow(time.Now()), synclog.TypeManual, nil)
	if err != nil {
		t.Fatalf("RunSource: %v", err)
	}
	if result.Status != synclog.StatusSuccess {
		t.Errorf("status = %q, want success despite log write failure", result.Status)
	}
}
