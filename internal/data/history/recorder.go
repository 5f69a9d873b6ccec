package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"toolhost/internal/data/queue"
	"toolhost/internal/shared/observability"
)

// Sink persists batches of call records.
type Sink interface {
	SaveCalls(records []CallRecord) error
}

type RecorderOptions struct {
	Capacity      int
	BatchSize     int
	FlushInterval time.Duration
	Logger        *slog.Logger
}

// Recorder buffers call records in memory and writes them to a Sink from a
// single background worker. Record never blocks the calling tool.
type Recorder struct {
	queue         *queue.MemoryQueue[CallRecord]
	sink          Sink
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRecorder(sink Sink, opts RecorderOptions) *Recorder {
	if opts.Capacity <= 0 {
		opts.Capacity = 1024
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 100 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		queue:         queue.NewMemoryQueue[CallRecord](opts.Capacity),
		sink:          sink,
		batchSize:     opts.BatchSize,
		flushInterval: opts.FlushInterval,
		logger:        logger,
	}
}

// Record enqueues rec. It reports false when the record was dropped.
func (r *Recorder) Record(rec CallRecord) bool {
	if r == nil {
		return false
	}
	result := r.queue.Enqueue(rec)
	observability.HistoryQueueDepth.Set(float64(r.queue.Len()))
	if result == queue.EnqueueDropped {
		observability.HistoryQueueDroppedTotal.Inc()
		r.logger.Debug("call record dropped", "tool", rec.Tool, "call_id", rec.CallID)
		return false
	}
	return true
}

func (r *Recorder) Start() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(ctx)
}

// Close stops accepting records and waits for the worker to drain the queue
// or for ctx to expire.
func (r *Recorder) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	_ = r.queue.Close()

	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if done == nil {
		return nil
	}

	select {
	case <-done:
		cancel()
		return nil
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

func (r *Recorder) run(ctx context.Context) {
	defer close(r.done)

	for {
		batch, err := r.queue.DequeueBatch(ctx, r.batchSize, r.flushInterval)
		if errors.Is(err, context.Canceled) {
			return
		}
		if err != nil && !errors.Is(err, io.EOF) {
			r.logger.Warn("history queue dequeue failed", "error", err)
			continue
		}

		if len(batch) > 0 {
			r.flush(batch)
		}
		observability.HistoryQueueDepth.Set(float64(r.queue.Len()))

		if errors.Is(err, io.EOF) {
			return
		}
	}
}

func (r *Recorder) flush(batch []CallRecord) {
	started := time.Now()
	if err := r.sink.SaveCalls(batch); err != nil {
		observability.HistoryWriteErrorsTotal.Inc()
		r.logger.Warn("history write failed", "error", err, "batch_size", len(batch))
		return
	}
	observability.HistoryProcessedTotal.Add(float64(len(batch)))
	observability.HistoryFlushLatencySeconds.Observe(time.Since(started).Seconds())
}
