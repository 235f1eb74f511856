package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-coupons/internal/domain/coupon"
	"github.com/xenking/kart-coupons/internal/validate"
)

const maxBodyBytes = 1 << 20

// naiveLayout is the zone-less timestamp format used for expiration dates.
const naiveLayout = "2006-01-02T15:04:05"

// requestError is a client error detected before reaching the service.
type requestError struct {
	status int
	msg    string
	fields map[string]string
}

func (e *requestError) Error() string { return e.msg }

// timestamp accepts a naive wall-clock time or an RFC 3339 time. Zoned values
// are converted to the server's local wall clock.
type timestamp time.Time

func (t *timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return invalidField("expiration_date", "must be a string")
	}
	v, err := parseTimestamp(s)
	if err != nil {
		return invalidField("expiration_date", "must be YYYY-MM-DDTHH:MM:SS or RFC 3339")
	}
	*t = timestamp(v)
	return nil
}

func parseTimestamp(s string) (time.Time, error) {
	if v, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return v.Local(), nil
	}
	return time.Parse(naiveLayout, strings.TrimSuffix(s, "Z"))
}

func (t *timestamp) value() *time.Time {
	if t == nil {
		return nil
	}
	v := time.Time(*t)
	return &v
}

func invalidField(name, msg string) *requestError {
	return &requestError{
		status: http.StatusUnprocessableEntity,
		msg:    "invalid request",
		fields: map[string]string{name: msg},
	}
}

type createCouponRequest struct {
	Type           string          `json:"type" validate:"required"`
	Details        json.RawMessage `json:"details" validate:"required"`
	IsActive       *bool           `json:"is_active"`
	ExpirationDate *timestamp      `json:"expiration_date"`
}

type updateCouponRequest struct {
	Type           *string         `json:"type"`
	Details        json.RawMessage `json:"details"`
	IsActive       *bool           `json:"is_active"`
	ExpirationDate *timestamp      `json:"expiration_date"`
}

type cartItem struct {
	ProductID int64           `json:"product_id" validate:"gt=0"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	Price     decimal.Decimal `json:"price" validate:"gte=0"`
}

type cartRequest struct {
	Cart struct {
		Items []cartItem `json:"items" validate:"dive"`
	} `json:"cart"`
}

func (c *cartRequest) items() []coupon.Item {
	out := make([]coupon.Item, len(c.Cart.Items))
	for i, it := range c.Cart.Items {
		out[i] = coupon.Item{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price}
	}
	return out
}

// decode reads a JSON body into v and validates it.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var reqErr *requestError
		if errors.As(err, &reqErr) {
			return reqErr
		}
		return &requestError{status: http.StatusBadRequest, msg: "malformed JSON body: " + err.Error()}
	}
	if err := validate.Struct(v); err != nil {
		if fields := validate.Fields(err); fields != nil {
			return &requestError{status: http.StatusUnprocessableEntity, msg: "invalid request", fields: fields}
		}
		return errors.Wrap(err, "validate request")
	}
	return nil
}

func couponID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, &requestError{status: http.StatusBadRequest, msg: "invalid coupon id"}
	}
	return id, nil
}
