package events

import (
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/kart-coupons/internal/domain/coupon"
)

// Encode renders e as the JSON payload carried on the wire:
//
//	{"id":"…","kind":"coupon.applied","coupon_id":3,"type":"bxgy",
//	 "occurred_at":"2025-01-01T00:00:00Z","total_discount":"25"}
//
// total_discount is present only for applied events.
func Encode(e coupon.Event) []byte {
	var enc jx.Encoder
	enc.Obj(func(enc *jx.Encoder) {
		enc.Field("id", func(enc *jx.Encoder) { enc.Str(e.ID.String()) })
		enc.Field("kind", func(enc *jx.Encoder) { enc.Str(string(e.Kind)) })
		enc.Field("coupon_id", func(enc *jx.Encoder) { enc.Int64(e.CouponID) })
		enc.Field("type", func(enc *jx.Encoder) { enc.Str(string(e.Type)) })
		enc.Field("occurred_at", func(enc *jx.Encoder) {
			enc.Str(e.OccurredAt.UTC().Format(time.RFC3339Nano))
		})
		if e.Kind == coupon.EventApplied {
			enc.Field("total_discount", func(enc *jx.Encoder) { enc.Str(e.TotalDiscount.String()) })
		}
	})
	return enc.Bytes()
}
