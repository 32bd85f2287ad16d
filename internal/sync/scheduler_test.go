package sync

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/medsync/medsync/internal/domain/atencion"
	"github.com/medsync/medsync/internal/source"
)

func TestSchedulerDisabledWithoutInterval(t *testing.T) {
	orch := newTestOrchestrator(nil, &mockAtencionRepo{}, &mockLogRepo{})
	s := NewScheduler(orch, 0, 30, zerolog.Nop())

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.cron != nil {
		t.Error("cron runner started with a disabled interval")
	}
	s.Stop()
}

func TestSchedulerTickRunsFullSync(t *testing.T) {
	repo := &mockAtencionRepo{}
	logs := &mockLogRepo{}
	adapter := &fakeAdapter{
		name:    atencion.SourceScheduler,
		enabled: true,
		records: []*atencion.Atencion{schedulerRecord("a-1", "11111111-1", "Uno", time.Now())},
	}
	orch := newTestOrchestrator([]source.Adapter{adapter}, repo, logs)
	s := NewScheduler(orch, 60, 30, zerolog.Nop())

	s.tick()

	if adapter.fetches != 1 {
		t.Errorf("fetches = %d, want 1", adapter.fetches)
	}
	if len(logs.logs) != 1 || logs.logs[0].SyncType != "scheduled" {
		t.Fatalf("logs = %+v, want one scheduled entry", logs.logs)
	}
}

func TestSchedulerTickSkipsWhileRunning(t *testing.T) {
	repo := &mockAtencionRepo{}
	logs := &mockLogRepo{}
	adapter := &fakeAdapter{name: atencion.SourceScheduler, enabled: true}
	orch := newTestOrchestrator([]source.Adapter{adapter}, repo, logs)
	s := NewScheduler(orch, 60, 30, zerolog.Nop())

	release, err := orch.state.tryAcquire("all", "manual")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	s.tick()
	release()

	if adapter.fetches != 0 {
		t.Errorf("fetches = %d, want tick skipped while a run is active", adapter.fetches)
	}
	if len(logs.logs) != 0 {
		t.Errorf("logs = %d, want none for a skipped tick", len(logs.logs))
	}
}
