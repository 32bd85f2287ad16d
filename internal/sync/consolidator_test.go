package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medsync/medsync/internal/domain/atencion"
	"github.com/medsync/medsync/internal/domain/synclog"
)

func strPtr(s string) *string       { return &s }
func timePtr(t time.Time) *time.Time { return &t }

// mockAtencionRepo keeps records in insertion order so first-found matching
// is deterministic.
type mockAtencionRepo struct {
	records  []*atencion.Atencion
	failNext error
}

func (m *mockAtencionRepo) takeErr() error {
	err := m.failNext
	m.failNext = nil
	return err
}

func (m *mockAtencionRepo) Create(_ context.Context, a *atencion.Atencion) error {
	if err := m.takeErr(); err != nil {
		return err
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now()
	m.records = append(m.records, a)
	return nil
}

func (m *mockAtencionRepo) GetByID(_ context.Context, id uuid.UUID) (*atencion.Atencion, error) {
	for _, r := range m.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, errors.New("not found")
}

func (m *mockAtencionRepo) Update(_ context.Context, a *atencion.Atencion) error {
	if err := m.takeErr(); err != nil {
		return err
	}
	for i, r := range m.records {
		if r.ID == a.ID {
			m.records[i] = a
			return nil
		}
	}
	return errors.New("not found")
}

func (m *mockAtencionRepo) Delete(_ context.Context, id uuid.UUID) error {
	for i, r := range m.records {
		if r.ID == id {
			m.records = append(m.records[:i], m.records[i+1:]...)
			return nil
		}
	}
	return errors.New("not found")
}

func (m *mockAtencionRepo) List(_ context.Context, _ atencion.Filter, limit, offset int) ([]*atencion.Atencion, int, error) {
	return m.records, len(m.records), nil
}

func (m *mockAtencionRepo) ListAll(_ context.Context, _ atencion.Filter) ([]*atencion.Atencion, error) {
	return m.records, nil
}

func (m *mockAtencionRepo) FindByExternalID(_ context.Context, source, externalID string) (*atencion.Atencion, error) {
	for _, r := range m.records {
		if id := r.ExternalID(source); id != nil && *id == externalID {
			return r, nil
		}
	}
	return nil, nil
}

func (m *mockAtencionRepo) FindUnlinked(_ context.Context, source, rut string, around time.Time, window time.Duration) (*atencion.Atencion, error) {
	for _, r := range m.records {
		if r.ExternalID(source) != nil {
			continue
		}
		if r.PacienteRut == nil || *r.PacienteRut != rut || r.FechaCita == nil {
			continue
		}
		diff := r.FechaCita.Sub(around)
		if diff < 0 {
			diff = -diff
		}
		if diff < window {
			return r, nil
		}
	}
	return nil, nil
}

func (m *mockAtencionRepo) Stats(_ context.Context) (*atencion.Stats, error) {
	return &atencion.Stats{Total: len(m.records)}, nil
}

// mockLogRepo records sync log rows in memory.
type mockLogRepo struct {
	logs     []*synclog.SyncLog
	failNext error
}

func (m *mockLogRepo) Create(_ context.Context, l *synclog.SyncLog) error {
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	l.ID = uuid.New()
	m.logs = append(m.logs, l)
	return nil
}

func (m *mockLogRepo) GetByID(_ context.Context, id uuid.UUID) (*synclog.SyncLog, error) {
	for _, l := range m.logs {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, nil
}

func (m *mockLogRepo) List(_ context.Context, f synclog.Filter) ([]*synclog.SyncLog, error) {
	var out []*synclog.SyncLog
	for _, l := range m.logs {
		if f.APIName != "" && l.APIName != f.APIName {
			continue
		}
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (m *mockLogRepo) LastRun(_ context.Context, apiName string) (*synclog.SyncLog, error) {
	for i := len(m.logs) - 1; i >= 0; i-- {
		if apiName == "" || m.logs[i].APIName == apiName {
			return m.logs[i], nil
		}
	}
	return nil, nil
}

func (m *mockLogRepo) Summary(_ context.Context, _ time.Time) ([]synclog.SourceSummary, error) {
	return nil, nil
}

func newTestConsolidator(repo *mockAtencionRepo) *Consolidator {
	return NewConsolidator(repo, zerolog.Nop())
}

func schedulerRecord(id, rut, name string, at time.Time) *atencion.Atencion {
	return &atencion.Atencion{
		SchedulerID:    strPtr(id),
		PacienteRut:    strPtr(rut),
		PacienteNombre: name,
		FechaCita:      timePtr(at),
	}
}

func voucherRecord(id, rut string, at time.Time, bono string) *atencion.Atencion {
	return &atencion.Atencion{
		VoucherID:      strPtr(id),
		PacienteRut:    strPtr(rut),
		PacienteNombre: "Paciente Bono",
		FechaCita:      timePtr(at),
		BonoNumero:     strPtr(bono),
	}
}

func TestConsolidateCreatesNewRecord(t *testing.T) {
	repo := &mockAtencionRepo{}
	cons := newTestConsolidator(repo)

	action, err := cons.Consolidate(context.Background(), atencion.SourceScheduler,
		schedulerRecord("appt-1", "11111111-1", "Maria Lopez", time.Now()))
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if action != ActionCreated {
		t.Errorf("action = %q, want %q", action, ActionCreated)
	}
	if len(repo.records) != 1 {
		t.Fatalf("records = %d, want 1", len(repo.records))
	}
}

func TestConsolidateIdempotentRedelivery(t *testing.T) {
	repo := &mockAtencionRepo{}
	cons := newTestConsolidator(repo)
	ctx := context.Background()
	at := time.Now()

	if _, err := cons.Consolidate(ctx, atencion.SourceScheduler,
		schedulerRecord("appt-1", "11111111-1", "Maria Lopez", at)); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	action, err := cons.Consolidate(ctx, atencion.SourceScheduler,
		schedulerRecord("appt-1", "11111111-1", "Maria Lopez Actualizada", at))
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if action != ActionUpdated {
		t.Errorf("action = %q, want %q", action, ActionUpdated)
	}
	if len(repo.records) != 1 {
		t.Fatalf("records = %d, want 1 after re-delivery", len(repo.records))
	}
	if repo.records[0].PacienteNombre != "Maria Lopez Actualizada" {
		t.Errorf("name = %q, want the re-delivered value", repo.records[0].PacienteNombre)
	}
}

func TestConsolidateLinksVoucherWithinWindow(t *testing.T) {
	repo := &mockAtencionRepo{}
	cons := newTestConsolidator(repo)
	ctx := context.Background()
	citaAt := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	if _, err := cons.Consolidate(ctx, atencion.SourceScheduler,
		schedulerRecord("appt-1", "11111111-1", "Maria Lopez", citaAt)); err != nil {
		t.Fatalf("seed appointment: %v", err)
	}

	// 23h apart links, the voucher attaches to the appointment record.
	action, err := cons.Consolidate(ctx, atencion.SourceVoucher,
		voucherRecord("v-9", "11111111-1", citaAt.Add(23*time.Hour), "B-100"))
	if err != nil {
		t.Fatalf("voucher delivery: %v", err)
	}
	if action != ActionUpdated {
		t.Errorf("action = %q, want %q", action, ActionUpdated)
	}
	if len(repo.records) != 1 {
		t.Fatalf("records = %d, want 1 linked record", len(repo.records))
	}
	got := repo.records[0]
	if got.VoucherID == nil || *got.VoucherID != "v-9" {
		t.Errorf("VoucherID = %v, want v-9", got.VoucherID)
	}
	if got.SchedulerID == nil || *got.SchedulerID != "appt-1" {
		t.Errorf("SchedulerID = %v, want appt-1 preserved", got.SchedulerID)
	}
}

func TestConsolidateOutsideWindowCreatesSeparate(t *testing.T) {
	repo := &mockAtencionRepo{}
	cons := newTestConsolidator(repo)
	ctx := context.Background()
	citaAt := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	if _, err := cons.Consolidate(ctx, atencion.SourceScheduler,
		schedulerRecord("appt-1", "11111111-1", "Maria Lopez", citaAt)); err != nil {
		t.Fatalf("seed appointment: %v", err)
	}

	// 25h apart does not link.
	action, err := cons.Consolidate(ctx, atencion.SourceVoucher,
		voucherRecord("v-9", "11111111-1", citaAt.Add(25*time.Hour), "B-100"))
	if err != nil {
		t.Fatalf("voucher delivery: %v", err)
	}
	if action != ActionCreated {
		t.Errorf("action = %q, want %q", action, ActionCreated)
	}
	if len(repo.records) != 2 {
		t.Fatalf("records = %d, want 2 separate records", len(repo.records))
	}
}

func TestConsolidateFirstFoundWins(t *testing.T) {
	repo := &mockAtencionRepo{}
	cons := newTestConsolidator(repo)
	ctx := context.Background()
	citaAt := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	// Two candidate appointments for the same patient; the second is closer
	// in time but the first stored one wins.
	if _, err := cons.Consolidate(ctx, atencion.SourceScheduler,
		schedulerRecord("appt-1", "11111111-1", "Maria Lopez", citaAt.Add(-20*time.Hour))); err != nil {
		t.Fatalf("seed first: %v", err)
	}
	if _, err := cons.Consolidate(ctx, atencion.SourceScheduler,
		schedulerRecord("appt-2", "11111111-1", "Maria Lopez", citaAt.Add(-1*time.Hour))); err != nil {
		t.Fatalf("seed second: %v", err)
	}

	if _, err := cons.Consolidate(ctx, atencion.SourceVoucher,
		voucherRecord("v-9", "11111111-1", citaAt, "B-100")); err != nil {
		t.Fatalf("voucher delivery: %v", err)
	}

	first, _ := repo.FindByExternalID(ctx, atencion.SourceScheduler, "appt-1")
	if first.VoucherID == nil || *first.VoucherID != "v-9" {
		t.Errorf("voucher linked to %v, want the first stored candidate", first.VoucherID)
	}
	second, _ := repo.FindByExternalID(ctx, atencion.SourceScheduler, "appt-2")
	if second.VoucherID != nil {
		t.Errorf("second candidate got the voucher, want first-found to win")
	}
}

func TestConsolidateMergeKeepsBothSourcesFields(t *testing.T) {
	repo := &mockAtencionRepo{}
	cons := newTestConsolidator(repo)
	ctx := context.Background()
	at := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	if _, err := cons.Consolidate(ctx, atencion.SourceScheduler,
		schedulerRecord("appt-1", "11111111-1", "Maria Lopez", at)); err != nil {
		t.Fatalf("seed appointment: %v", err)
	}
	if _, err := cons.Consolidate(ctx, atencion.SourceVoucher,
		voucherRecord("v-9", "11111111-1", at, "B-100")); err != nil {
		t.Fatalf("voucher delivery: %v", err)
	}

	got := repo.records[0]
	if got.BonoNumero == nil || *got.BonoNumero != "B-100" {
		t.Errorf("BonoNumero = %v, want B-100 from the voucher", got.BonoNumero)
	}
	if got.Provenance["bonoNumero"] != atencion.SourceVoucher {
		t.Errorf("provenance bonoNumero = %q, want %q", got.Provenance["bonoNumero"], atencion.SourceVoucher)
	}
	if got.Provenance["schedulerId"] != atencion.SourceScheduler {
		t.Errorf("provenance schedulerId = %q, want %q", got.Provenance["schedulerId"], atencion.SourceScheduler)
	}
}

func TestConsolidateRepoFailurePropagates(t *testing.T) {
	repo := &mockAtencionRepo{failNext: errors.New("db down")}
	cons := newTestConsolidator(repo)

	_, err := cons.Consolidate(context.Background(), atencion.SourceScheduler,
		schedulerRecord("appt-1", "11111111-1", "Maria Lopez", time.Now()))
	if err == nil {
		t.Fatal("expected create failure to propagate")
	}
}
