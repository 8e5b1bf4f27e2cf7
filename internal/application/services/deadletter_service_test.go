package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/convertlens/convertlens-go/internal/domain/attribution"
	"github.com/convertlens/convertlens-go/internal/infrastructure/messaging"
)

type recordingAlerter struct {
	mu   sync.Mutex
	sent []*attribution.DeadLetter
}

func (a *recordingAlerter) SendDeadLetterAlert(dl *attribution.DeadLetter) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, dl)
	return nil
}

func (a *recordingAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sent)
}

func TestParkStoresDeadLetterAndAlerts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	queue := messaging.NewQueue(4, nil)
	alerts := &recordingAlerter{}
	svc := NewDeadLetterService(f.repos, queue, alerts, f.logger, nil)

	conv := conversionAt("conv-1", "cust-1", "75", time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))
	cause := fmt.Errorf("fetch touchpoints: %w", attribution.ErrDataUnavailable)
	if err := svc.Park(context.Background(), conv, 1, 5, cause); err != nil {
		t.Fatalf("park: %v", err)
	}

	letters, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(letters) != 1 {
		t.Fatalf("got %d letters, want 1", len(letters))
	}
	dl := letters[0]
	if dl.ConversionID != "conv-1" || dl.Attempts != 5 {
		t.Fatalf("letter = %+v", dl)
	}

	// The alert goes out asynchronously.
	deadline := time.After(time.Second)
	for alerts.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("no alert sent")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRetryRequeuesAndDeletes(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	queue := messaging.NewQueue(4, nil)
	svc := NewDeadLetterService(f.repos, queue, nil, f.logger, nil)

	conv := conversionAt("conv-1", "cust-1", "75", time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))
	if err := f.repos.Conversions.Store(ctx, conv); err != nil {
		t.Fatalf("store conversion: %v", err)
	}
	if err := svc.Park(ctx, conv, 1, 3, attribution.ErrDataUnavailable); err != nil {
		t.Fatalf("park: %v", err)
	}
	letters, _ := svc.List(ctx)

	if err := svc.Retry(ctx, letters[0].ID); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if queue.Depth() != 1 {
		t.Fatalf("queue depth = %d, want 1", queue.Depth())
	}

	remaining, _ := svc.List(ctx)
	if len(remaining) != 0 {
		t.Fatalf("letter still parked after retry: %+v", remaining)
	}
}

func TestRetryWithFullQueueKeepsLetterParked(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	queue := messaging.NewQueue(1, nil)
	svc := NewDeadLetterService(f.repos, queue, nil, f.logger, nil)

	blocker := conversionAt("conv-blocker", "cust-0", "1", time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC))
	if err := queue.Enqueue(messaging.Task{Conversion: blocker, Version: 1}); err != nil {
		t.Fatalf("fill queue: %v", err)
	}

	conv := conversionAt("conv-1", "cust-1", "75", time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))
	if err := f.repos.Conversions.Store(ctx, conv); err != nil {
		t.Fatalf("store conversion: %v", err)
	}
	if err := svc.Park(ctx, conv, 1, 3, attribution.ErrDataUnavailable); err != nil {
		t.Fatalf("park: %v", err)
	}
	letters, _ := svc.List(ctx)

	err := svc.Retry(ctx, letters[0].ID)
	if !errors.Is(err, attribution.ErrThrottled) {
		t.Fatalf("got %v, want ErrThrottled", err)
	}
	remaining, _ := svc.List(ctx)
	if len(remaining) != 1 {
		t.Fatal("letter should stay parked when the queue is full")
	}
}

func TestRetryUnknownLetter(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	svc := NewDeadLetterService(f.repos, messaging.NewQueue(4, nil), nil, f.logger, nil)

	if err := svc.Retry(context.Background(), "dl-missing"); !errors.Is(err, attribution.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}
