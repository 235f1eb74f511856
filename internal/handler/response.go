package handler

import (
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/kart-coupons/internal/domain/coupon"
)

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// money writes d as a JSON number with two decimals.
func money(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.StringFixed(2)))
}

func encodeTime(e *jx.Encoder, t *time.Time) {
	if t == nil {
		e.Null()
		return
	}
	e.Str(t.Format(naiveLayout))
}

func encodeCoupon(e *jx.Encoder, c *coupon.Coupon) error {
	details, err := coupon.MarshalDetails(c.Details)
	if err != nil {
		return errors.Wrapf(err, "coupon %d", c.ID)
	}
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(c.ID)
	e.FieldStart("type")
	e.Str(string(c.Type))
	e.FieldStart("details")
	e.Raw(details)
	e.FieldStart("is_active")
	e.Bool(c.Active)
	e.FieldStart("expiration_date")
	encodeTime(e, c.ExpiresAt)
	e.FieldStart("created_at")
	e.Str(c.CreatedAt.Format(time.RFC3339))
	e.FieldStart("updated_at")
	if c.UpdatedAt != nil {
		e.Str(c.UpdatedAt.Format(time.RFC3339))
	} else {
		e.Null()
	}
	e.ObjEnd()
	return nil
}

func encodeApplicable(e *jx.Encoder, list []coupon.Applicable) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("applicable_coupons", func(e *jx.Encoder) {
			e.ArrStart()
			for _, a := range list {
				e.Obj(func(e *jx.Encoder) {
					e.Field("coupon_id", func(e *jx.Encoder) { e.Int64(a.CouponID) })
					e.Field("type", func(e *jx.Encoder) { e.Str(string(a.Type)) })
					e.Field("discount", func(e *jx.Encoder) { money(e, a.Discount) })
				})
			}
			e.ArrEnd()
		})
	})
}

// encodeUpdatedCart renders the cart after a coupon is applied. Each line
// reports its unit price, the discount on the line and the price paid.
func encodeUpdatedCart(e *jx.Encoder, res coupon.Result) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("updated_cart", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("items", func(e *jx.Encoder) {
					e.ArrStart()
					for _, it := range res.Items {
						encodeCartLine(e, it)
					}
					e.ArrEnd()
				})
				e.Field("total_price", func(e *jx.Encoder) { money(e, res.Subtotal) })
				e.Field("total_discount", func(e *jx.Encoder) { money(e, res.TotalDiscount) })
				e.Field("final_price", func(e *jx.Encoder) { money(e, res.FinalTotal) })
			})
		})
	})
}

func encodeCartLine(e *jx.Encoder, it coupon.ResultItem) {
	e.ObjStart()
	e.FieldStart("product_id")
	e.Int64(it.ProductID)
	e.FieldStart("quantity")
	e.Int(it.Quantity)
	e.FieldStart("price")
	money(e, it.UnitPrice)
	e.FieldStart("total_discount")
	money(e, it.DiscountAmount)
	e.FieldStart("discounted_price")
	money(e, it.DiscountedPrice)
	if it.Added {
		e.FieldStart("added")
		e.Bool(true)
	}
	e.ObjEnd()
}

// writeError maps err to a status and renders
// {"code":status,"message":msg,"fields":{...}}.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg, fields := classify(err)
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(msg)
	if len(fields) > 0 {
		e.FieldStart("fields")
		e.ObjStart()
		for _, k := range slices.Sorted(maps.Keys(fields)) {
			e.FieldStart(k)
			e.Str(fields[k])
		}
		e.ObjEnd()
	}
	e.ObjEnd()
	writeJSON(w, status, &e)
}

func classify(err error) (status int, msg string, fields map[string]string) {
	var (
		reqErr     *requestError
		detailsErr *coupon.DetailsError
	)
	switch {
	case errors.As(err, &reqErr):
		return reqErr.status, reqErr.msg, reqErr.fields
	case errors.Is(err, coupon.ErrNotFound):
		return http.StatusNotFound, coupon.ErrNotFound.Error(), nil
	case errors.Is(err, coupon.ErrInactive),
		errors.Is(err, coupon.ErrExpired),
		errors.Is(err, coupon.ErrNotApplicable):
		return http.StatusBadRequest, err.Error(), nil
	case errors.As(err, &detailsErr):
		return http.StatusUnprocessableEntity, coupon.ErrMalformedDetails.Error(), detailsErr.Fields
	case errors.Is(err, coupon.ErrUnsupportedType),
		errors.Is(err, coupon.ErrMalformedDetails),
		errors.Is(err, coupon.ErrBuyGetOverlap):
		return http.StatusUnprocessableEntity, err.Error(), nil
	}
	return http.StatusInternalServerError, "internal server error", nil
}
