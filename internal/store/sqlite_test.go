package store

import (
	"context"
	"testing"
	"time"

	"github.com/me/gosched/internal/logging"
	"github.com/me/gosched/pkg/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:", logging.Nop())
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestExitRecordRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &model.ExitRecord{
		PID:          7,
		Name:         "compiler",
		Priority:     model.PriorityHigh,
		ExitStatus:   2,
		CPUTime:      314,
		ThreadCount:  3,
		CreatedAt:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		TerminatedAt: time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC),
	}
	if err := s.RecordExit(ctx, rec); err != nil {
		t.Fatalf("RecordExit: %v", err)
	}

	got, err := s.GetExit(ctx, 7)
	if err != nil {
		t.Fatalf("GetExit: %v", err)
	}
	if got == nil {
		t.Fatal("GetExit returned nil for a recorded pid")
	}
	if got.Name != "compiler" || got.Priority != model.PriorityHigh || got.ExitStatus != 2 {
		t.Errorf("record mismatch: %+v", got)
	}
	if got.CPUTime != 314 || got.ThreadCount != 3 {
		t.Errorf("accounting mismatch: %+v", got)
	}
	if !got.TerminatedAt.Equal(rec.TerminatedAt) {
		t.Errorf("terminated_at = %v, want %v", got.TerminatedAt, rec.TerminatedAt)
	}
}

func TestGetExitUnknownPID(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetExit(context.Background(), 999)
	if err != nil {
		t.Fatalf("GetExit: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for unknown pid, got %+v", got)
	}
}

func TestListExitsPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 1; i <= 5; i++ {
		rec := &model.ExitRecord{
			PID:          model.PID(i),
			Name:         "job",
			Priority:     model.PriorityNormal,
			CreatedAt:    base,
			TerminatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.RecordExit(ctx, rec); err != nil {
			t.Fatalf("RecordExit(%d): %v", i, err)
		}
	}

	recs, total, err := s.ListExits(ctx, model.ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("ListExits: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(recs) != 2 {
		t.Fatalf("len = %d, want 2", len(recs))
	}
	// Most recently terminated first.
	if recs[0].PID != 5 || recs[1].PID != 4 {
		t.Errorf("order = %d, %d; want 5, 4", recs[0].PID, recs[1].PID)
	}

	recs, _, err = s.ListExits(ctx, model.ListOptions{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("ListExits offset: %v", err)
	}
	if len(recs) != 1 || recs[0].PID != 1 {
		t.Errorf("tail page = %+v, want just pid 1", recs)
	}
}

func TestStatSampleHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for tick := uint64(100); tick <= 300; tick += 100 {
		sample := &model.StatSample{
			Tick:             tick,
			ContextSwitches:  tick * 2,
			ThreadsScheduled: 10,
			LoadBalances:     tick / 100,
			RecordedAt:       time.Date(2026, 3, 1, 12, 0, int(tick), 0, time.UTC),
		}
		if err := s.RecordSample(ctx, sample); err != nil {
			t.Fatalf("RecordSample(%d): %v", tick, err)
		}
	}

	samples, total, err := s.ListSamples(ctx, model.ListOptions{Limit: 10})
	if err != nil {
		t.Fatalf("ListSamples: %v", err)
	}
	if total != 3 || len(samples) != 3 {
		t.Fatalf("total = %d, len = %d, want 3/3", total, len(samples))
	}
	if samples[0].Tick != 300 {
		t.Errorf("latest tick = %d, want 300", samples[0].Tick)
	}
	if samples[0].ContextSwitches != 600 {
		t.Errorf("context switches = %d, want 600", samples[0].ContextSwitches)
	}
}
