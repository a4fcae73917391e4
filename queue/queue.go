// Package queue is a thin idempotency and observability wrapper around
// the node's asynchronous work: every unit of work is a named message
// with a caller-supplied deduplication id, delivered at least once to
// the handler. Handlers must themselves be idempotent.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
)

// Ledger is the durable record behind Submit: one row per job id,
// holding the encoded payload until the handler finishes with it.
// InsertJob returns false when the id was already recorded. Rows never
// marked done are replayed by the next Start.
type Ledger interface {
	InsertJob(id string, kind string, payload []byte) (bool, error)
	DeleteJob(id string) error
	MarkJobDone(id string) error
	ForEachPendingJob(fn func(id string, kind string, payload []byte) error) error
}

// Handler consumes jobs. An unrecognized payload must be logged and
// dropped, never treated as fatal.
type Handler interface {
	Handle(ctx context.Context, job Job) error
}

// Job is one deduplicated unit of asynchronous work.
type Job struct {
	ID      string
	Payload Payload
}

// Dispatcher runs a pool of workers draining submitted jobs. All
// coordination between handlers goes through durable storage, so
// independent jobs run fully in parallel.
type Dispatcher struct {
	ledger  Ledger
	handler Handler
	jobs    chan Job
	workers int
	log     *log.Logger
	wg      sync.WaitGroup
}

func NewDispatcher(ledger Ledger, handler Handler, workers int, logger *log.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	return &Dispatcher{
		ledger:  ledger,
		handler: handler,
		jobs:    make(chan Job, 256),
		workers: workers,
		log:     logger,
	}
}

// Start replays jobs left pending by the previous run, then launches the
// worker pool. Workers exit when ctx is cancelled; Wait blocks until
// they have drained.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-d.jobs:
					if err := d.handler.Handle(ctx, job); err != nil {
						// row stays pending, the next Start retries it
						d.log.Error("Job failed", "id", job.ID, "kind", job.Payload.Kind(), "err", err)
						continue
					}
					if err := d.ledger.MarkJobDone(job.ID); err != nil {
						d.log.Error("Failed to mark job done", "id", job.ID, "err", err)
					}
				}
			}
		}()
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.replayPending(ctx)
	}()
}

func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Submit enqueues a job unless its deduplication id has been seen
// before. A duplicate submit is a silent no-op success. When the enqueue
// itself fails the ledger row is released again, so the caller may retry
// with the same id.
func (d *Dispatcher) Submit(ctx context.Context, job Job) error {
	data, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}

	fresh, err := d.ledger.InsertJob(job.ID, job.Payload.Kind(), data)
	if err != nil {
		return err
	}
	if !fresh {
		d.log.Debug("Dropping duplicate job", "id", job.ID, "kind", job.Payload.Kind())
		return nil
	}

	select {
	case <-ctx.Done():
		if delErr := d.ledger.DeleteJob(job.ID); delErr != nil {
			d.log.Error("Failed to release job id", "id", job.ID, "err", delErr)
		}
		return ctx.Err()
	case d.jobs <- job:
		return nil
	}
}

// replayPending feeds accepted-but-unfinished ledger rows back into the
// channel. Runs once per Start, concurrently with the workers.
func (d *Dispatcher) replayPending(ctx context.Context) {
	replayed := 0
	err := d.ledger.ForEachPendingJob(func(id string, kind string, payload []byte) error {
		p, err := decodePayload(kind, payload)
		if err != nil {
			d.log.Warn("Dropping stored job with undecodable payload", "id", id, "kind", kind, "err", err)
			return d.ledger.MarkJobDone(id)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d.jobs <- Job{ID: id, Payload: p}:
			replayed++
			return nil
		}
	})
	if err != nil && ctx.Err() == nil {
		d.log.Error("Failed to replay pending jobs", "err", err)
		return
	}
	if replayed > 0 {
		d.log.Info("Replayed pending jobs", "count", replayed)
	}
}
