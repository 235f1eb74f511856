package coupon

import (
	"slices"

	"github.com/shopspring/decimal"
)

// bxgyRepetitions returns how many times the buy rule is satisfied by the
// cart, capped at the repetition limit.
func bxgyRepetitions(items []Item, d BxGy) int {
	var needed, units int
	for _, p := range d.Buy {
		needed += p.Quantity
		units += quantityOf(items, p.ProductID)
	}
	if needed <= 0 {
		return 0
	}
	return min(units/needed, d.RepetitionLimit)
}

// quantityOf sums quantities over every line of productID.
func quantityOf(items []Item, productID int64) int {
	var qty int
	for _, item := range items {
		if item.ProductID == productID {
			qty += item.Quantity
		}
	}
	return qty
}

// getSlot is a get product prepared for free unit distribution.
type getSlot struct {
	product BxGyProduct
	// line is the index of the product's first cart line, or -1 when the
	// product is not in the cart. Its price is then unknown and taken as zero.
	line  int
	price decimal.Decimal
}

func applyBxGy(items []Item, d BxGy) Result {
	res := Result{Items: undiscounted(items)}
	reps := bxgyRepetitions(items, d)
	if reps == 0 {
		return res
	}
	res.Repetitions = reps

	slots := make([]getSlot, len(d.Get))
	budget := 0
	for i, p := range d.Get {
		s := getSlot{product: p, line: findLine(items, p.ProductID), price: zero}
		if s.line >= 0 {
			s.price = items[s.line].Price
		}
		slots[i] = s
		budget += reps * p.Quantity
	}

	// Cheapest first. The stable sort keeps coupon order for equal prices.
	slices.SortStableFunc(slots, func(a, b getSlot) int {
		return a.price.Cmp(b.price)
	})

	for _, s := range slots {
		if budget == 0 {
			break
		}
		free := min(reps*s.product.Quantity, budget)
		budget -= free
		res.FreeUnits = append(res.FreeUnits, FreeUnit{ProductID: s.product.ProductID, Quantity: free})

		if s.line < 0 {
			res.Items = append(res.Items, ResultItem{
				ProductID:      s.product.ProductID,
				Quantity:       free,
				UnitPrice:      zero,
				OriginalPrice:  zero,
				DiscountAmount: zero,
				Added:          true,
			})
			continue
		}

		line := &res.Items[s.line]
		line.Quantity += free
		line.OriginalPrice = lineTotal(line.UnitPrice, line.Quantity)
		line.DiscountAmount = line.DiscountAmount.Add(lineTotal(line.UnitPrice, free).Round(2))
	}
	return res
}
