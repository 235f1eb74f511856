package events

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-coupons/internal/domain/coupon"
)

var _ coupon.Publisher = LogPublisher{}

// LogPublisher writes events to the context logger. It is used when no
// Kafka brokers are configured.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, e coupon.Event) error {
	zctx.From(ctx).Info("Coupon event",
		zap.String("event_id", e.ID.String()),
		zap.String("kind", string(e.Kind)),
		zap.Int64("coupon_id", e.CouponID),
		zap.String("type", string(e.Type)),
	)
	return nil
}
