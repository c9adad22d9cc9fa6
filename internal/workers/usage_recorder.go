package workers

import (
	"context"
	"sync"
	"time"

	"eduplatform-api/internal/domain/usage"
	"eduplatform-api/internal/metrics"

	"go.uber.org/zap"
)

// UsageWriter persists one usage row.
type UsageWriter interface {
	Record(ctx context.Context, userID uint, kind usage.ActionKind, resourceTag, description string) error
}

type usageEntry struct {
	userID      uint
	kind        usage.ActionKind
	resourceTag string
	description string
}

// UsageRecorder writes usage rows off the request path. Entries that do
// not fit in the queue are dropped and counted.
type UsageRecorder struct {
	writer  UsageWriter
	queue   chan usageEntry
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewUsageRecorder(writer UsageWriter, size int, logger *zap.Logger, m *metrics.Metrics) *UsageRecorder {
	if size <= 0 {
		size = 1024
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &UsageRecorder{
		writer:  writer,
		queue:   make(chan usageEntry, size),
		timeout: 5 * time.Second,
		logger:  logger,
		metrics: m,
		done:    make(chan struct{}),
	}
}

// Enqueue never blocks. It reports false when the entry was dropped.
func (r *UsageRecorder) Enqueue(userID uint, kind usage.ActionKind, resourceTag, description string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.metrics.UsageDropped.Inc()
		return false
	}

	select {
	case r.queue <- usageEntry{userID, kind, resourceTag, description}:
		return true
	default:
		r.metrics.UsageDropped.Inc()
		return false
	}
}

// Start drains the queue in a goroutine until Stop is called.
func (r *UsageRecorder) Start() {
	go func() {
		defer close(r.done)
		for e := range r.queue {
			r.write(e)
		}
	}()
}

// Stop refuses new entries, flushes what is queued and waits for the
// writer, or for ctx.
func (r *UsageRecorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *UsageRecorder) write(e usageEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.writer.Record(ctx, e.userID, e.kind, e.resourceTag, e.description); err != nil {
		r.metrics.UsageDropped.Inc()
		r.logger.Warn("usage record not written",
			zap.Uint("user_id", e.userID), zap.String("action_kind", string(e.kind)), zap.Error(err))
		return
	}
	r.metrics.UsageRecorded.Inc()
}
