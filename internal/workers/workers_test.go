package workers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"eduplatform-api/internal/domain/usage"
	"eduplatform-api/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

type recordingWriter struct {
	mu      sync.Mutex
	rows    []uint
	fail    bool
	release chan struct{}
}

func (w *recordingWriter) Record(_ context.Context, userID uint, _ usage.ActionKind, _, _ string) error {
	if w.release != nil {
		<-w.release
	}
	if w.fail {
		return errors.New("insert failed")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rows = append(w.rows, userID)
	return nil
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.rows)
}

func TestUsageRecorderWritesAndFlushes(t *testing.T) {
	w := &recordingWriter{}
	m := metrics.New(prometheus.NewRegistry())
	r := NewUsageRecorder(w, 16, zap.NewNop(), m)
	r.Start()

	for i := uint(1); i <= 5; i++ {
		if !r.Enqueue(i, usage.ActionAIRequest, "/api/ai", "") {
			t.Fatalf("entry %d dropped", i)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := w.count(); got != 5 {
		t.Fatalf("rows written = %d, want 5", got)
	}
	if got := testutil.ToFloat64(m.UsageRecorded); got != 5 {
		t.Fatalf("recorded counter = %v", got)
	}

	if r.Enqueue(6, usage.ActionAIRequest, "/api/ai", "") {
		t.Fatalf("Enqueue accepted after Stop")
	}
}

func TestUsageRecorderDropsWhenFull(t *testing.T) {
	w := &recordingWriter{release: make(chan struct{})}
	m := metrics.New(prometheus.NewRegistry())
	r := NewUsageRecorder(w, 2, zap.NewNop(), m)

	// not started: the queue only fills
	if !r.Enqueue(1, usage.ActionAIRequest, "", "") || !r.Enqueue(2, usage.ActionAIRequest, "", "") {
		t.Fatalf("queue refused entries below capacity")
	}

	start := time.Now()
	if r.Enqueue(3, usage.ActionAIRequest, "", "") {
		t.Fatalf("queue accepted entry beyond capacity")
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatalf("Enqueue blocked on a full queue")
	}
	if got := testutil.ToFloat64(m.UsageDropped); got != 1 {
		t.Fatalf("dropped counter = %v", got)
	}

	close(w.release)
	r.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := w.count(); got != 2 {
		t.Fatalf("rows written = %d, want 2", got)
	}
}

func TestUsageRecorderCountsWriteFailures(t *testing.T) {
	w := &recordingWriter{fail: true}
	m := metrics.New(prometheus.NewRegistry())
	r := NewUsageRecorder(w, 4, zap.NewNop(), m)
	r.Start()

	r.Enqueue(1, usage.ActionAIRequest, "", "")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := testutil.ToFloat64(m.UsageDropped); got != 1 {
		t.Fatalf("dropped counter = %v", got)
	}
	if got := testutil.ToFloat64(m.UsageRecorded); got != 0 {
		t.Fatalf("recorded counter = %v", got)
	}
}

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (s *countingSweeper) SweepExpired(context.Context) (int64, error) {
	s.calls.Add(1)
	return 1, s.err
}

func TestExpirySweeperRunsUntilCancelled(t *testing.T) {
	s := &countingSweeper{}
	ctx, cancel := context.WithCancel(context.Background())
	done := StartExpirySweeper(ctx, s, 5*time.Millisecond, zap.NewNop())

	deadline := time.Now().Add(time.Second)
	for s.calls.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("sweeper ran %d times", s.calls.Load())
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("sweeper did not stop")
	}
}

func TestExpirySweeperSurvivesErrors(t *testing.T) {
	s := &countingSweeper{err: errors.New("db down")}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartExpirySweeper(ctx, s, 5*time.Millisecond, zap.NewNop())

	deadline := time.Now().Add(time.Second)
	for s.calls.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("sweeper stopped after an error")
		}
		time.Sleep(time.Millisecond)
	}
}
