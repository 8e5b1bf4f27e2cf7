// Package messaging implements the bounded in-process queue and worker
// pool that drive attribution processing.
package messaging

import (
	"fmt"

	"github.com/convertlens/convertlens-go/internal/domain/attribution"
	"github.com/convertlens/convertlens-go/internal/infrastructure/observability/metrics"
)

// Task is one unit of attribution work: a conversion to process at a
// given computation version.
type Task struct {
	Conversion *attribution.ConversionEvent
	Version    int
}

// Queue is a bounded FIFO of pending tasks. Enqueue never blocks; when
// the queue is full the newest task is rejected with ErrThrottled.
type Queue struct {
	tasks   chan Task
	metrics *metrics.Registry
}

func NewQueue(capacity int, reg *metrics.Registry) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{tasks: make(chan Task, capacity), metrics: reg}
}

func (q *Queue) Enqueue(task Task) error {
	select {
	case q.tasks <- task:
		if q.metrics != nil {
			q.metrics.QueueDepth.Set(float64(len(q.tasks)))
		}
		return nil
	default:
		return fmt.Errorf("%w: processing queue at capacity %d", attribution.ErrThrottled, cap(q.tasks))
	}
}

func (q *Queue) Depth() int {
	return len(q.tasks)
}
