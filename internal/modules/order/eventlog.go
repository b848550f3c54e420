// README: Transition ledger backed by PostgreSQL (order_state_events).
package order

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"gigmarket/internal/types"
)

type EventLog interface {
	AppendEvent(ctx context.Context, e *Event) error
	ListEvents(ctx context.Context, orderID types.ID) ([]Event, error)
}

type PgEventLog struct {
	db *pgxpool.Pool
}

func NewPgEventLog(db *pgxpool.Pool) *PgEventLog {
	return &PgEventLog{db: db}
}

func (l *PgEventLog) AppendEvent(ctx context.Context, e *Event) error {
	return l.db.QueryRow(ctx, `
        INSERT INTO order_state_events (
            order_id, from_status, to_status, actor_type, actor_id, reason, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id`,
		string(e.OrderID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorType,
		toStringPtr(e.ActorID),
		e.Reason,
		e.CreatedAt,
	).Scan(&e.ID)
}

func (l *PgEventLog) ListEvents(ctx context.Context, orderID types.ID) ([]Event, error) {
	rows, err := l.db.Query(ctx, `
        SELECT id, order_id, from_status, to_status, actor_type, actor_id, reason, created_at
        FROM order_state_events
        WHERE order_id = $1
        ORDER BY id`, string(orderID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var actorID *string
		if err := rows.Scan(&e.ID, &e.OrderID, &e.FromStatus, &e.ToStatus, &e.ActorType, &actorID, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		if actorID != nil {
			id := types.ID(*actorID)
			e.ActorID = &id
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// NopEventLog is used when no ledger database is configured.
type NopEventLog struct{}

func (NopEventLog) AppendEvent(context.Context, *Event) error { return nil }

func (NopEventLog) ListEvents(context.Context, types.ID) ([]Event, error) { return nil, nil }

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func eventFor(tr *Transition, at time.Time) *Event {
	e := &Event{
		OrderID:    tr.Order.ID,
		FromStatus: tr.From,
		ToStatus:   tr.To,
		ActorType:  tr.Actor.typeName(tr.Order),
		Reason:     tr.Order.CancellationReason,
		CreatedAt:  at,
	}
	if tr.To != StatusCancelled {
		e.Reason = ""
	}
	if !tr.Actor.System {
		id := tr.Actor.ID
		e.ActorID = &id
	}
	return e
}
