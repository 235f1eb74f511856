package coupon

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventKind names a coupon lifecycle event.
type EventKind string

const (
	EventCreated EventKind = "coupon.created"
	EventUpdated EventKind = "coupon.updated"
	EventDeleted EventKind = "coupon.deleted"
	EventApplied EventKind = "coupon.applied"
)

// Event is emitted after a coupon changes or is applied to a cart.
type Event struct {
	ID         uuid.UUID
	Kind       EventKind
	CouponID   int64
	Type       Type
	OccurredAt time.Time
	// TotalDiscount is set for EventApplied.
	TotalDiscount decimal.Decimal
}

// Publisher delivers coupon events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }
