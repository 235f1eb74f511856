package coupon

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type discriminates the closed set of coupon variants.
type Type string

const (
	// TypeCartWise applies a percentage to the whole cart once the subtotal
	// reaches a threshold.
	TypeCartWise Type = "cart-wise"
	// TypeProductWise applies a percentage to the lines of one product.
	TypeProductWise Type = "product-wise"
	// TypeBxGy grants free units of "get" products for every full set of
	// "buy" units in the cart.
	TypeBxGy Type = "bxgy"
)

// ParseType validates a raw coupon type discriminator.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeCartWise, TypeProductWise, TypeBxGy:
		return t, nil
	default:
		return "", errors.Wrapf(ErrUnsupportedType, "%q", s)
	}
}

var (
	// ErrUnsupportedType is returned when a coupon type is outside the
	// supported set. It signals bad configuration, never a zero discount.
	ErrUnsupportedType = errors.New("unsupported coupon type")
	// ErrMalformedDetails is returned when coupon details are missing fields or
	// carry out-of-range values.
	ErrMalformedDetails = errors.New("malformed coupon details")
	// ErrBuyGetOverlap is returned when a bxgy coupon lists the same product
	// as both a buy and a get product.
	ErrBuyGetOverlap = errors.New("product appears in both buy and get products")

	// ErrNotFound is returned when a coupon id does not exist.
	ErrNotFound = errors.New("coupon not found")
	// ErrInactive is returned when applying a deactivated coupon.
	ErrInactive = errors.New("coupon is not active")
	// ErrExpired is returned when applying a coupon past its expiration date.
	ErrExpired = errors.New("coupon has expired")
	// ErrNotApplicable is returned when the cart does not meet the coupon's
	// conditions.
	ErrNotApplicable = errors.New("coupon conditions not met")
)

// DetailsError lists the invalid fields of coupon details.
type DetailsError struct {
	Fields map[string]string
}

func (e *DetailsError) Error() string {
	keys := slices.Sorted(maps.Keys(e.Fields))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return fmt.Sprintf("%s: %s", ErrMalformedDetails, strings.Join(parts, "; "))
}

func (e *DetailsError) Unwrap() error {
	return ErrMalformedDetails
}

// Item is a single cart line.
type Item struct {
	ProductID int64
	Quantity  int
	Price     decimal.Decimal
}

// Coupon is a stored coupon record.
type Coupon struct {
	ID      int64
	Type    Type
	Details Details
	Active  bool
	// ExpiresAt is a wall-clock timestamp without zone information.
	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt *time.Time
}

// Expired reports whether the coupon is past its expiration date. Both values
// are compared by their wall clock, ignoring locations.
func (c *Coupon) Expired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return wallClock(now).After(wallClock(*c.ExpiresAt))
}

func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// Application records one successful apply of a coupon to a cart.
type Application struct {
	ID            uuid.UUID
	CouponID      int64
	Type          Type
	Subtotal      decimal.Decimal
	TotalDiscount decimal.Decimal
	FinalTotal    decimal.Decimal
	Items         []ResultItem
	CreatedAt     time.Time
}

// Repository persists coupon records.
type Repository interface {
	Create(ctx context.Context, c *Coupon) error
	Get(ctx context.Context, id int64) (*Coupon, error)
	List(ctx context.Context) ([]Coupon, error)
	// ListActive returns active coupons ordered by id. Expiration is not
	// filtered here.
	ListActive(ctx context.Context) ([]Coupon, error)
	Update(ctx context.Context, c *Coupon) error
	Delete(ctx context.Context, id int64) error
}

// ApplicationRepository stores the application log.
type ApplicationRepository interface {
	Create(ctx context.Context, a *Application) error
}
