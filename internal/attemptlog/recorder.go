package attemptlog

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mixaill76/agent_failover/internal/failover"
	"github.com/mixaill76/agent_failover/internal/monitoring"
	"github.com/mixaill76/agent_failover/internal/utils"
)

const (
	DefaultQueueSize     = 1000
	DefaultBatchSize     = 100
	DefaultFlushInterval = 5 * time.Second

	writeTimeout = 30 * time.Second
)

// Options tune the recorder; zero values take defaults.
type Options struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	Logger        *slog.Logger
	Metrics       *monitoring.Metrics
}

// Recorder persists attempts asynchronously. It implements
// failover.AttemptObserver:
//   - ObserveAttempt never blocks; entries are dropped when the queue is full
//   - a single worker batches by size or flush interval
//   - failed batches are retried with backoff, then counted as errors
//   - Stop drains the queue before returning
type Recorder struct {
	writer  Writer
	logger  *slog.Logger
	metrics *monitoring.Metrics

	batchSize     int
	flushInterval time.Duration
	backoff       []time.Duration
	nowFunc       func() time.Time

	queue    chan Entry
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	queued    atomic.Uint64
	written   atomic.Uint64
	dropped   atomic.Uint64
	errors    atomic.Uint64
	batchesOK atomic.Uint64
}

var _ failover.AttemptObserver = (*Recorder)(nil)

func NewRecorder(writer Writer, opts Options) *Recorder {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Recorder{
		writer:        writer,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		batchSize:     opts.BatchSize,
		flushInterval: opts.FlushInterval,
		backoff:       []time.Duration{0, time.Second, 5 * time.Second},
		nowFunc:       utils.NowUTC,
		queue:         make(chan Entry, opts.QueueSize),
		stopChan:      make(chan struct{}),
	}
}

// Start launches the background worker. Call once.
func (r *Recorder) Start() {
	r.wg.Add(1)
	go r.worker()
	r.logger.Info("[DB] Attempt recorder started",
		"queue_size", cap(r.queue),
		"batch_size", r.batchSize,
		"flush_interval", r.flushInterval,
	)
}

func (r *Recorder) ObserveAttempt(callID string, attempt int, a failover.ModelAttempt) {
	entry := newEntry(callID, attempt, a, r.nowFunc())
	select {
	case r.queue <- entry:
		r.queued.Add(1)
	default:
		r.dropped.Add(1)
		r.metrics.RecordAttemptLogDropped()
		r.logger.Warn("[DB] Attempt log entry dropped: queue full",
			"call_id", callID,
			"model", a.ModelID,
			"queue_cap", cap(r.queue),
		)
	}
}

// Stop flushes pending entries and waits for the worker, or for ctx.
func (r *Recorder) Stop(ctx context.Context) error {
	r.logger.Info("[DB] Attempt recorder shutting down...", "pending", len(r.queue))
	r.stopOnce.Do(func() { close(r.stopChan) })

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("[DB] Attempt recorder shutdown complete",
			"written", r.written.Load(),
			"dropped", r.dropped.Load(),
			"errors", r.errors.Load(),
		)
		return nil
	case <-ctx.Done():
		r.logger.Warn("[DB] Attempt recorder shutdown timeout", "pending", len(r.queue))
		return ctx.Err()
	}
}

func (r *Recorder) Stats() Stats {
	return Stats{
		QueueLen:  len(r.queue),
		QueueCap:  cap(r.queue),
		Queued:    r.queued.Load(),
		Written:   r.written.Load(),
		Dropped:   r.dropped.Load(),
		Errors:    r.errors.Load(),
		BatchesOK: r.batchesOK.Load(),
	}
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	batch := make([]Entry, 0, r.batchSize)
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			r.drainQueue(&batch)
			for len(batch) > 0 {
				n := min(len(batch), r.batchSize)
				r.flushBatch(batch[:n])
				batch = batch[n:]
			}
			return

		case entry := <-r.queue:
			batch = append(batch, entry)
			if len(batch) >= r.batchSize {
				r.flushBatch(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				r.flushBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

func (r *Recorder) drainQueue(batch *[]Entry) {
	for {
		select {
		case entry := <-r.queue:
			*batch = append(*batch, entry)
		default:
			return
		}
	}
}

// flushBatch writes batch, retrying with r.backoff between attempts.
func (r *Recorder) flushBatch(batch []Entry) {
	if len(batch) == 0 {
		return
	}

	var lastErr error
	for attempt, backoff := range r.backoff {
		if backoff > 0 {
			time.Sleep(backoff)
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := r.writer.WriteBatch(ctx, batch)
		cancel()
		if err == nil {
			r.written.Add(uint64(len(batch)))
			r.batchesOK.Add(1)
			r.logger.Debug("[DB] Attempt batch written",
				"count", len(batch),
				"attempt", attempt+1,
			)
			return
		}

		lastErr = err
		r.logger.Warn("[DB] Attempt batch write failed",
			"attempt", attempt+1,
			"max_attempts", len(r.backoff),
			"batch_size", len(batch),
			"error", err,
		)
	}

	r.errors.Add(uint64(len(batch)))
	r.logger.Error("[DB] Attempt batch discarded after retries",
		"batch_size", len(batch),
		"error", lastErr,
	)
}
