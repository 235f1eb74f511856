package coupon

import (
	"bytes"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-coupons/internal/validate"
)

// Details holds the typed parameters of one coupon variant. The set of
// implementations is closed: CartWise, ProductWise and BxGy.
type Details interface {
	Type() Type
	isDetails()
}

// CartWise discounts the whole cart by Percent once the subtotal reaches
// Threshold.
type CartWise struct {
	Threshold decimal.Decimal `json:"threshold" validate:"gte=0"`
	Percent   decimal.Decimal `json:"discount_percent" validate:"gte=0,lte=100"`
}

// ProductWise discounts every line of ProductID by Percent.
type ProductWise struct {
	ProductID int64           `json:"product_id" validate:"gt=0"`
	Percent   decimal.Decimal `json:"discount_percent" validate:"gte=0,lte=100"`
}

// BxGyProduct is a product and unit count in a bxgy rule.
type BxGyProduct struct {
	ProductID int64 `json:"product_id" validate:"gt=0"`
	Quantity  int   `json:"quantity" validate:"gt=0"`
}

// BxGy grants Get units for every full set of Buy units, at most
// RepetitionLimit times.
type BxGy struct {
	Buy             []BxGyProduct `json:"buy_products" validate:"min=1,unique=ProductID,dive"`
	Get             []BxGyProduct `json:"get_products" validate:"min=1,unique=ProductID,dive"`
	RepetitionLimit int           `json:"repetition_limit" validate:"gt=0"`
}

func (CartWise) Type() Type    { return TypeCartWise }
func (ProductWise) Type() Type { return TypeProductWise }
func (BxGy) Type() Type        { return TypeBxGy }

func (CartWise) isDetails()    {}
func (ProductWise) isDetails() {}
func (BxGy) isDetails()        {}

// Validate checks d the way coupon creation does: value ranges plus the
// rejection of products listed as both buy and get.
func Validate(d Details) error {
	if err := checkDetails(d); err != nil {
		return err
	}
	if b, ok := d.(BxGy); ok {
		return b.checkOverlap()
	}
	return nil
}

// checkDetails checks the variant and value ranges of d. Overlap is left to
// Validate so that stored coupons still compute.
func checkDetails(d Details) error {
	switch d.(type) {
	case CartWise, ProductWise, BxGy:
	default:
		return errors.Wrapf(ErrUnsupportedType, "%T", d)
	}
	if err := validate.Struct(d); err != nil {
		if fields := validate.Fields(err); fields != nil {
			return &DetailsError{Fields: fields}
		}
		return errors.Wrap(err, "validate details")
	}
	return nil
}

func (b BxGy) checkOverlap() error {
	buy := make(map[int64]struct{}, len(b.Buy))
	for _, p := range b.Buy {
		buy[p.ProductID] = struct{}{}
	}
	for _, p := range b.Get {
		if _, ok := buy[p.ProductID]; ok {
			return errors.Wrapf(ErrBuyGetOverlap, "product %d", p.ProductID)
		}
	}
	return nil
}

// Wire shapes with pointer fields so that a missing value can be told apart
// from a zero one.
type (
	cartWiseJSON struct {
		Threshold *decimal.Decimal `json:"threshold" validate:"required"`
		Percent   *decimal.Decimal `json:"discount_percent" validate:"required"`
	}
	productWiseJSON struct {
		ProductID *int64           `json:"product_id" validate:"required"`
		Percent   *decimal.Decimal `json:"discount_percent" validate:"required"`
	}
	bxgyProductJSON struct {
		ProductID *int64 `json:"product_id" validate:"required"`
		Quantity  *int   `json:"quantity" validate:"required"`
	}
	bxgyJSON struct {
		Buy             []bxgyProductJSON `json:"buy_products" validate:"required,dive"`
		Get             []bxgyProductJSON `json:"get_products" validate:"required,dive"`
		RepetitionLimit *int              `json:"repetition_limit"`
	}
)

const defaultRepetitionLimit = 1

// ParseDetails decodes raw JSON details for coupon type t and validates them.
// Unknown fields are rejected.
func ParseDetails(t Type, raw []byte) (Details, error) {
	var d Details
	switch t {
	case TypeCartWise:
		var v cartWiseJSON
		if err := decodeStrict(raw, &v); err != nil {
			return nil, err
		}
		d = CartWise{Threshold: *v.Threshold, Percent: *v.Percent}
	case TypeProductWise:
		var v productWiseJSON
		if err := decodeStrict(raw, &v); err != nil {
			return nil, err
		}
		d = ProductWise{ProductID: *v.ProductID, Percent: *v.Percent}
	case TypeBxGy:
		var v bxgyJSON
		if err := decodeStrict(raw, &v); err != nil {
			return nil, err
		}
		limit := defaultRepetitionLimit
		if v.RepetitionLimit != nil {
			limit = *v.RepetitionLimit
		}
		d = BxGy{
			Buy:             toBxGyProducts(v.Buy),
			Get:             toBxGyProducts(v.Get),
			RepetitionLimit: limit,
		}
	default:
		return nil, errors.Wrapf(ErrUnsupportedType, "%q", t)
	}
	if err := Validate(d); err != nil {
		return nil, err
	}
	return d, nil
}

func toBxGyProducts(in []bxgyProductJSON) []BxGyProduct {
	out := make([]BxGyProduct, len(in))
	for i, p := range in {
		out[i] = BxGyProduct{ProductID: *p.ProductID, Quantity: *p.Quantity}
	}
	return out
}

func decodeStrict(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &DetailsError{Fields: map[string]string{"details": err.Error()}}
	}
	if err := validate.Struct(v); err != nil {
		if fields := validate.Fields(err); fields != nil {
			return &DetailsError{Fields: fields}
		}
		return &DetailsError{Fields: map[string]string{"details": err.Error()}}
	}
	return nil
}

// MarshalDetails encodes d in the same shape ParseDetails accepts.
func MarshalDetails(d Details) ([]byte, error) {
	switch d.(type) {
	case CartWise, ProductWise, BxGy:
	default:
		return nil, errors.Wrapf(ErrUnsupportedType, "%T", d)
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %s details", d.Type())
	}
	return data, nil
}
