package messaging

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/convertlens/convertlens-go/internal/domain/attribution"
	"github.com/convertlens/convertlens-go/internal/infrastructure/observability/logging"
	"github.com/convertlens/convertlens-go/internal/infrastructure/observability/metrics"
)

// Processor attributes a single conversion at the given computation
// version.
type Processor interface {
	Process(ctx context.Context, conv *attribution.ConversionEvent, version int) error
}

// DeadLetterSink receives conversions that exhausted their retry
// budget.
type DeadLetterSink interface {
	Park(ctx context.Context, conv *attribution.ConversionEvent, version int, attempts int, reason error) error
}

// WorkerPool drains the queue with a fixed number of workers. Transient
// data failures are retried with exponential backoff; after the final
// attempt the conversion is parked. Validation and conflict errors are
// never retried.
type WorkerPool struct {
	queue       *Queue
	processor   Processor
	deadLetter  DeadLetterSink
	logger      *logging.ChanneledLogger
	metrics     *metrics.Registry
	maxAttempts int
	backoffBase time.Duration
	workers     int

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewWorkerPool(queue *Queue, processor Processor, deadLetter DeadLetterSink, logger *logging.ChanneledLogger, reg *metrics.Registry, workers, maxAttempts int, backoffBase time.Duration) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &WorkerPool{
		queue:       queue,
		processor:   processor,
		deadLetter:  deadLetter,
		logger:      logger,
		metrics:     reg,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		workers:     workers,
	}
}

// Start launches the workers. They run until Stop is called or the
// parent context is cancelled.
func (p *WorkerPool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	p.logger.Queue().Info("Worker pool started", "workers", p.workers, "capacity", cap(p.queue.tasks))
}

// Stop cancels the workers and waits for in-flight tasks to finish.
func (p *WorkerPool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Queue().Info("Worker pool stopped")
}

func (p *WorkerPool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-p.queue.tasks:
			if p.metrics != nil {
				p.metrics.QueueDepth.Set(float64(len(p.queue.tasks)))
			}
			p.handle(ctx, id, task)
		}
	}
}

func (p *WorkerPool) handle(ctx context.Context, workerID int, task Task) {
	start := time.Now()
	attempts := 0

	var err error
	for attempts < p.maxAttempts {
		attempts++
		err = p.processor.Process(ctx, task.Conversion, task.Version)
		if err == nil || !errors.Is(err, attribution.ErrDataUnavailable) {
			break
		}
		if attempts == p.maxAttempts {
			break
		}
		p.logger.Queue().Warn("Transient failure, will retry",
			"worker", workerID,
			"conversionId", task.Conversion.ID,
			"attempt", attempts,
			"error", err.Error())
		delay := time.Duration(1<<(attempts-1)) * p.backoffBase
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}

	if p.metrics != nil {
		p.metrics.ProcessingDuration.Observe(time.Since(start).Seconds())
	}

	if err == nil {
		p.logger.Queue().Debug("Conversion processed",
			"worker", workerID,
			"conversionId", task.Conversion.ID,
			"duration", time.Since(start).String())
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}

	var ve *attribution.ValidationError
	switch {
	case errors.As(err, &ve), errors.Is(err, attribution.ErrConflict):
		// Bad input or an already-persisted version. Parking these
		// would just replay the same failure.
		p.logger.Queue().Warn("Dropping unretryable conversion",
			"conversionId", task.Conversion.ID,
			"error", err.Error())
		return
	}

	p.logger.Queue().Error("Retries exhausted, parking conversion",
		"conversionId", task.Conversion.ID,
		"attempts", attempts,
		"error", err.Error())
	if parkErr := p.deadLetter.Park(ctx, task.Conversion, task.Version, attempts, err); parkErr != nil {
		p.logger.LogError(logging.ChannelQueue, "park_dead_letter", parkErr, map[string]any{
			"conversionId": task.Conversion.ID,
		})
	}
}
