package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/shopdesk/internal/domain/order"
	"github.com/xenking/shopdesk/internal/outbox"
)

const (
	insertOutboxSQL = `INSERT INTO outbox (event_id, topic, key, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	// SKIP LOCKED lets several relays drain the table without publishing a
	// record twice within one batch.
	fetchPendingSQL = `SELECT id, event_id, topic, key, payload, created_at
		FROM outbox WHERE sent_at IS NULL
		ORDER BY id LIMIT $1
		FOR UPDATE SKIP LOCKED`

	markSentSQL = `UPDATE outbox SET sent_at = $2 WHERE id = ANY($1)`
)

var (
	_ order.EventSink = (*OutboxRepository)(nil)
	_ outbox.Store    = (*OutboxRepository)(nil)
)

// OutboxRepository writes order events to the outbox table and serves them
// to the relay.
type OutboxRepository struct {
	store
	topic string
}

// NewOutboxRepository returns an OutboxRepository that files events under topic.
func NewOutboxRepository(pool *pgxpool.Pool, topic string) *OutboxRepository {
	return &OutboxRepository{store: store{pool: pool}, topic: topic}
}

// Append stores e in the transaction carried by ctx. Records are keyed by
// order ID so a consumer sees the events of one order in order.
func (r *OutboxRepository) Append(ctx context.Context, e order.Event) error {
	_, err := r.q(ctx).Exec(ctx, insertOutboxSQL,
		uuid.New().String(), r.topic, fmt.Sprint(e.OrderID), encodeEvent(e), e.OccurredAt)
	if err != nil {
		return fmt.Errorf("appending %s event for order %d: %w", e.Type, e.OrderID, err)
	}
	return nil
}

// Pending locks and returns up to limit unsent records, oldest first. It must
// run inside the transaction that later marks them sent.
func (r *OutboxRepository) Pending(ctx context.Context, limit int) ([]outbox.Record, error) {
	rows, err := r.q(ctx).Query(ctx, fetchPendingSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching pending outbox records: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (outbox.Record, error) {
		var rec outbox.Record
		err := row.Scan(&rec.ID, &rec.EventID, &rec.Topic, &rec.Key, &rec.Payload, &rec.CreatedAt)
		return rec, err
	})
}

func (r *OutboxRepository) MarkSent(ctx context.Context, ids []int64, at time.Time) error {
	if _, err := r.q(ctx).Exec(ctx, markSentSQL, ids, at); err != nil {
		return fmt.Errorf("marking %d outbox records sent: %w", len(ids), err)
	}
	return nil
}

func encodeEvent(ev order.Event) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("type")
	e.Str(string(ev.Type))
	e.FieldStart("order_id")
	e.Int64(ev.OrderID)
	e.FieldStart("user_id")
	e.Int64(ev.UserID)
	e.FieldStart("status")
	e.Str(ev.Status.String())
	if ev.PrevStatus != 0 {
		e.FieldStart("prev_status")
		e.Str(ev.PrevStatus.String())
	}
	e.FieldStart("total_amount")
	e.Str(ev.TotalAmount.StringFixed(2))
	e.FieldStart("occurred_at")
	e.Str(ev.OccurredAt.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()
	return e.Bytes()
}
