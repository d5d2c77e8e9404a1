// Package outbox relays order events committed to the outbox table to Kafka.
package outbox

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Record is one stored event.
type Record struct {
	ID        int64
	EventID   string
	Topic     string
	Key       string
	Payload   []byte
	CreatedAt time.Time
}

// Store reads pending records and marks them sent.
type Store interface {
	Pending(ctx context.Context, limit int) ([]Record, error)
	MarkSent(ctx context.Context, ids []int64, at time.Time) error
}

// Publisher delivers a batch of records. It either delivers all of them or
// returns an error.
type Publisher interface {
	Publish(ctx context.Context, records []Record) error
}

// Transactor runs fn inside one database transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Relay moves records from the Store to the Publisher. Delivery is at least
// once: a crash between publishing and committing resends the batch.
type Relay struct {
	tx        Transactor
	store     Store
	publisher Publisher
	batchSize int
	interval  time.Duration
	now       func() time.Time
}

// NewRelay creates a Relay that polls every interval for up to batchSize records.
func NewRelay(tx Transactor, store Store, publisher Publisher, batchSize int, interval time.Duration) *Relay {
	if batchSize <= 0 {
		batchSize = 100
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Relay{
		tx:        tx,
		store:     store,
		publisher: publisher,
		batchSize: batchSize,
		interval:  interval,
		now:       time.Now,
	}
}

// Flush publishes one batch and returns how many records were sent.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	var sent int
	err := r.tx.InTx(ctx, func(ctx context.Context) error {
		records, err := r.store.Pending(ctx, r.batchSize)
		if err != nil {
			return errors.Wrap(err, "fetch pending")
		}
		if len(records) == 0 {
			return nil
		}
		if err := r.publisher.Publish(ctx, records); err != nil {
			return errors.Wrap(err, "publish")
		}

		ids := make([]int64, len(records))
		for i, rec := range records {
			ids[i] = rec.ID
		}
		if err := r.store.MarkSent(ctx, ids, r.now()); err != nil {
			return errors.Wrap(err, "mark sent")
		}
		sent = len(records)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return sent, nil
}

// Run flushes until ctx is cancelled. A full batch is followed immediately
// by the next one; otherwise the relay waits for the interval. Failed
// flushes are logged and retried on the next tick.
func (r *Relay) Run(ctx context.Context) error {
	lg := zctx.From(ctx)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		wait := r.interval
		n, err := r.Flush(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			lg.Error("Outbox flush failed", zap.Error(err))
		case n > 0:
			lg.Debug("Outbox flushed", zap.Int("records", n))
			if n == r.batchSize {
				wait = 0
			}
		}
		timer.Reset(wait)
	}
}
