package service_test

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/sio2000/gymUI-sub000/internal/checkin/service"
	"github.com/sio2000/gymUI-sub000/internal/checkin/store"
	"github.com/sio2000/gymUI-sub000/internal/checkin/store/memory"
)

func TestScanEventPruner_DisabledWhenRetentionZero(t *testing.T) {
	es := memory.NewScanEventStore()
	pruner := service.NewScanEventPruner(es, service.PrunerConfig{
		RetentionDays: 0,
		IntervalHours: 1,
	}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pruner.Start(ctx)
	// Stop should return immediately without error.
	pruner.Stop()
}

func TestScanEventPruner_PrunesOnStart(t *testing.T) {
	es := memory.NewScanEventStore()
	ctx := context.Background()

	old := store.ScanEventRecord{StationID: "front-desk", DecidedAt: time.Now().UTC().AddDate(0, 0, -40)}
	recent := store.ScanEventRecord{StationID: "front-desk", DecidedAt: time.Now().UTC().AddDate(0, 0, -1)}
	for _, rec := range []store.ScanEventRecord{old, recent} {
		if err := es.RecordEvent(ctx, rec); err != nil {
			t.Fatalf("RecordEvent: %v", err)
		}
	}

	pruner := service.NewScanEventPruner(es, service.PrunerConfig{
		RetentionDays: 30,
		IntervalHours: 1,
	}, zap.NewNop())
	pruner.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for len(es.Events()) != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	pruner.Stop()

	events := es.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 surviving event, got %d", len(events))
	}
	if !events[0].DecidedAt.Equal(recent.DecidedAt) {
		t.Error("expected the recent event to survive")
	}
}

func TestScanEventPruner_StopIsIdempotent(t *testing.T) {
	es := memory.NewScanEventStore()
	pruner := service.NewScanEventPruner(es, service.PrunerConfig{
		RetentionDays: 30,
		IntervalHours: 1,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	pruner.Start(ctx)

	cancel()
	// Multiple stops should not panic.
	pruner.Stop()
	pruner.Stop()
}
