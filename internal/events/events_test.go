package events

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xenking/kart-coupons/internal/domain/coupon"
)

func decodeFields(t *testing.T, data []byte) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch d.Next() {
		case jx.String:
			v, err := d.Str()
			out[key] = v
			return err
		default:
			raw, err := d.Raw()
			out[key] = raw.String()
			return err
		}
	})
	require.NoError(t, err)
	return out
}

func TestEncode(t *testing.T) {
	id := uuid.MustParse("8d7e4c1e-8f7b-4a5e-9b1a-3c2d1e0f9a8b")
	at := time.Date(2025, 3, 4, 5, 6, 7, 0, time.FixedZone("X", 3600))

	tests := []struct {
		name  string
		event coupon.Event
		want  map[string]string
	}{
		{
			name: "applied",
			event: coupon.Event{
				ID: id, Kind: coupon.EventApplied, CouponID: 3, Type: coupon.TypeBxGy,
				OccurredAt: at, TotalDiscount: decimal.RequireFromString("25.50"),
			},
			want: map[string]string{
				"id":             id.String(),
				"kind":           "coupon.applied",
				"coupon_id":      "3",
				"type":           "bxgy",
				"occurred_at":    "2025-03-04T04:06:07Z",
				"total_discount": "25.5",
			},
		},
		{
			name: "created has no discount",
			event: coupon.Event{
				ID: id, Kind: coupon.EventCreated, CouponID: 1, Type: coupon.TypeCartWise,
				OccurredAt: at,
			},
			want: map[string]string{
				"id":          id.String(),
				"kind":        "coupon.created",
				"coupon_id":   "1",
				"type":        "cart-wise",
				"occurred_at": "2025-03-04T04:06:07Z",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := Encode(tt.event)
			assert.True(t, jx.Valid(data), "invalid json: %s", data)
			assert.Equal(t, tt.want, decodeFields(t, data))
		})
	}
}

func TestLogPublisher(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := zctx.Base(context.Background(), zap.New(core))

	err := LogPublisher{}.Publish(ctx, coupon.Event{
		ID: uuid.New(), Kind: coupon.EventDeleted, CouponID: 7, Type: coupon.TypeProductWise,
	})
	require.NoError(t, err)

	entries := logs.FilterMessage("Coupon event").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "coupon.deleted", fields["kind"])
	assert.Equal(t, int64(7), fields["coupon_id"])
}

func TestNewKafkaClientRequiresBrokers(t *testing.T) {
	_, err := NewKafkaClient(KafkaConfig{Topic: "coupon-events"})
	require.Error(t, err)
}
