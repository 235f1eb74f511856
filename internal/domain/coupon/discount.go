package coupon

import (
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// Result is the discount breakdown for one coupon applied to one cart.
type Result struct {
	Type Type
	// Subtotal is the sum of OriginalPrice over Items.
	Subtotal      decimal.Decimal
	TotalDiscount decimal.Decimal
	// FinalTotal is the sum of DiscountedPrice over Items.
	FinalTotal decimal.Decimal
	Items      []ResultItem
	// Repetitions and FreeUnits are set for bxgy coupons only. FreeUnits is
	// listed in distribution order.
	Repetitions int
	FreeUnits   []FreeUnit
}

// ResultItem is one line of the discounted cart.
type ResultItem struct {
	ProductID       int64           `json:"product_id"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	OriginalPrice   decimal.Decimal `json:"original_price"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	DiscountedPrice decimal.Decimal `json:"discounted_price"`
	// Added marks a bxgy get product that was not in the cart.
	Added bool `json:"added,omitempty"`
}

// FreeUnit is the number of free units granted for one get product.
type FreeUnit struct {
	ProductID int64
	Quantity  int
}

// IsApplicable reports whether the coupon's preconditions hold for the cart.
// It returns an error only for unsupported or malformed details.
func IsApplicable(items []Item, d Details) (bool, error) {
	if err := checkDetails(d); err != nil {
		return false, err
	}
	switch d := d.(type) {
	case CartWise:
		return calcSubtotal(items).GreaterThanOrEqual(d.Threshold), nil
	case ProductWise:
		return findLine(items, d.ProductID) >= 0, nil
	case BxGy:
		return bxgyRepetitions(items, d) > 0, nil
	}
	// Unreachable: checkDetails rejects unknown variants.
	return false, ErrUnsupportedType
}

// Compute calculates the discount of the coupon for the cart. A coupon whose
// conditions are not met yields a zero discount, not an error. Items are not
// modified.
func Compute(items []Item, d Details) (Result, error) {
	if err := checkDetails(d); err != nil {
		return Result{}, err
	}
	var res Result
	switch d := d.(type) {
	case CartWise:
		res = applyCartWise(items, d)
	case ProductWise:
		res = applyProductWise(items, d)
	case BxGy:
		res = applyBxGy(items, d)
	default:
		return Result{}, ErrUnsupportedType
	}
	res.Type = d.Type()
	res.total()
	return res, nil
}

func applyCartWise(items []Item, d CartWise) Result {
	res := Result{Items: undiscounted(items)}
	subtotal := calcSubtotal(items)
	if subtotal.LessThan(d.Threshold) || subtotal.IsZero() {
		return res
	}

	total := subtotal.Mul(d.Percent).Div(hundred).Round(2)
	allocated := zero
	for i := range res.Items {
		line := &res.Items[i]
		share := total.Mul(line.OriginalPrice).Div(subtotal).Round(2)
		line.DiscountAmount = share
		allocated = allocated.Add(share)
	}
	// The last line absorbs the rounding residual so that lines sum to total.
	if n := len(res.Items); n > 0 {
		last := &res.Items[n-1]
		last.DiscountAmount = last.DiscountAmount.Add(total.Sub(allocated))
	}
	return res
}

func applyProductWise(items []Item, d ProductWise) Result {
	res := Result{Items: undiscounted(items)}
	for i := range res.Items {
		line := &res.Items[i]
		if line.ProductID != d.ProductID {
			continue
		}
		line.DiscountAmount = line.OriginalPrice.Mul(d.Percent).Div(hundred).Round(2)
	}
	return res
}

// total fills discounted prices and the result totals from line discounts.
func (r *Result) total() {
	r.Subtotal, r.TotalDiscount, r.FinalTotal = zero, zero, zero
	for i := range r.Items {
		line := &r.Items[i]
		line.DiscountedPrice = floorAtZero(line.OriginalPrice.Sub(line.DiscountAmount))
		r.Subtotal = r.Subtotal.Add(line.OriginalPrice)
		r.TotalDiscount = r.TotalDiscount.Add(line.DiscountAmount)
		r.FinalTotal = r.FinalTotal.Add(line.DiscountedPrice)
	}
}

// undiscounted mirrors the cart into result lines with no discount applied.
func undiscounted(items []Item) []ResultItem {
	out := make([]ResultItem, len(items))
	for i, item := range items {
		out[i] = ResultItem{
			ProductID:     item.ProductID,
			Quantity:      item.Quantity,
			UnitPrice:     item.Price,
			OriginalPrice: lineTotal(item.Price, item.Quantity),
		}
	}
	return out
}

// calcSubtotal returns the sum of price * quantity across all items.
func calcSubtotal(items []Item) decimal.Decimal {
	sum := zero
	for _, item := range items {
		sum = sum.Add(lineTotal(item.Price, item.Quantity))
	}
	return sum
}

func lineTotal(price decimal.Decimal, qty int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(qty)))
}

// findLine returns the index of the first line holding productID, or -1.
func findLine(items []Item, productID int64) int {
	for i, item := range items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}
