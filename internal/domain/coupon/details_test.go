package coupon

import (
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	for _, s := range []string{"cart-wise", "product-wise", "bxgy"} {
		typ, err := ParseType(s)
		require.NoError(t, err)
		assert.Equal(t, Type(s), typ)
	}

	_, err := ParseType("flat-amount")
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestParseDetails(t *testing.T) {
	tests := []struct {
		name       string
		typ        Type
		raw        string
		want       Details
		wantErr    error
		wantFields []string
	}{
		{
			name: "cart-wise",
			typ:  TypeCartWise,
			raw:  `{"threshold": 100, "discount_percent": 10}`,
			want: CartWise{Threshold: d("100"), Percent: d("10")},
		},
		{
			name: "cart-wise accepts quoted decimals",
			typ:  TypeCartWise,
			raw:  `{"threshold": "99.50", "discount_percent": "12.5"}`,
			want: CartWise{Threshold: d("99.5"), Percent: d("12.5")},
		},
		{
			name: "cart-wise zero threshold",
			typ:  TypeCartWise,
			raw:  `{"threshold": 0, "discount_percent": 5}`,
			want: CartWise{Threshold: d("0"), Percent: d("5")},
		},
		{
			name:       "cart-wise missing threshold",
			typ:        TypeCartWise,
			raw:        `{"discount_percent": 10}`,
			wantErr:    ErrMalformedDetails,
			wantFields: []string{"threshold"},
		},
		{
			name:       "cart-wise percent out of range",
			typ:        TypeCartWise,
			raw:        `{"threshold": 10, "discount_percent": 110}`,
			wantErr:    ErrMalformedDetails,
			wantFields: []string{"discount_percent"},
		},
		{
			name:    "unknown field",
			typ:     TypeCartWise,
			raw:     `{"threshold": 10, "discount": 10}`,
			wantErr: ErrMalformedDetails,
		},
		{
			name:    "not an object",
			typ:     TypeProductWise,
			raw:     `[1, 2]`,
			wantErr: ErrMalformedDetails,
		},
		{
			name: "product-wise",
			typ:  TypeProductWise,
			raw:  `{"product_id": 7, "discount_percent": 20}`,
			want: ProductWise{ProductID: 7, Percent: d("20")},
		},
		{
			name:       "product-wise null",
			typ:        TypeProductWise,
			raw:        `null`,
			wantErr:    ErrMalformedDetails,
			wantFields: []string{"product_id", "discount_percent"},
		},
		{
			name: "bxgy with default repetition limit",
			typ:  TypeBxGy,
			raw:  `{"buy_products":[{"product_id":1,"quantity":2}],"get_products":[{"product_id":3,"quantity":1}]}`,
			want: BxGy{
				Buy:             []BxGyProduct{{ProductID: 1, Quantity: 2}},
				Get:             []BxGyProduct{{ProductID: 3, Quantity: 1}},
				RepetitionLimit: 1,
			},
		},
		{
			name:       "bxgy empty get list",
			typ:        TypeBxGy,
			raw:        `{"buy_products":[{"product_id":1,"quantity":2}],"get_products":[],"repetition_limit":2}`,
			wantErr:    ErrMalformedDetails,
			wantFields: []string{"get_products"},
		},
		{
			name:       "bxgy zero quantity",
			typ:        TypeBxGy,
			raw:        `{"buy_products":[{"product_id":1,"quantity":0}],"get_products":[{"product_id":3,"quantity":1}]}`,
			wantErr:    ErrMalformedDetails,
			wantFields: []string{"buy_products[0].quantity"},
		},
		{
			name:       "bxgy missing quantity",
			typ:        TypeBxGy,
			raw:        `{"buy_products":[{"product_id":1}],"get_products":[{"product_id":3,"quantity":1}]}`,
			wantErr:    ErrMalformedDetails,
			wantFields: []string{"buy_products[0].quantity"},
		},
		{
			name:       "bxgy duplicate buy product",
			typ:        TypeBxGy,
			raw:        `{"buy_products":[{"product_id":1,"quantity":1},{"product_id":1,"quantity":2}],"get_products":[{"product_id":3,"quantity":1}]}`,
			wantErr:    ErrMalformedDetails,
			wantFields: []string{"buy_products"},
		},
		{
			name:       "bxgy negative repetition limit",
			typ:        TypeBxGy,
			raw:        `{"buy_products":[{"product_id":1,"quantity":1}],"get_products":[{"product_id":3,"quantity":1}],"repetition_limit":-1}`,
			wantErr:    ErrMalformedDetails,
			wantFields: []string{"repetition_limit"},
		},
		{
			name:    "bxgy buy and get overlap",
			typ:     TypeBxGy,
			raw:     `{"buy_products":[{"product_id":1,"quantity":3}],"get_products":[{"product_id":1,"quantity":1}],"repetition_limit":2}`,
			wantErr: ErrBuyGetOverlap,
		},
		{
			name:    "unsupported type",
			typ:     Type("shipping"),
			raw:     `{}`,
			wantErr: ErrUnsupportedType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDetails(tt.typ, []byte(tt.raw))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				if len(tt.wantFields) > 0 {
					var de *DetailsError
					require.True(t, errors.As(err, &de))
					for _, f := range tt.wantFields {
						assert.Contains(t, de.Fields, f)
					}
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.typ, got.Type())
			assertDetailsEqual(t, tt.want, got)
		})
	}
}

func assertDetailsEqual(t *testing.T, want, got Details) {
	t.Helper()
	switch w := want.(type) {
	case CartWise:
		g, ok := got.(CartWise)
		require.True(t, ok)
		assertDecimal(t, w.Threshold, g.Threshold)
		assertDecimal(t, w.Percent, g.Percent)
	case ProductWise:
		g, ok := got.(ProductWise)
		require.True(t, ok)
		assert.Equal(t, w.ProductID, g.ProductID)
		assertDecimal(t, w.Percent, g.Percent)
	default:
		assert.Equal(t, want, got)
	}
}

func TestMarshalDetails(t *testing.T) {
	in := BxGy{
		Buy:             []BxGyProduct{{ProductID: 1, Quantity: 3}, {ProductID: 2, Quantity: 3}},
		Get:             []BxGyProduct{{ProductID: 3, Quantity: 1}},
		RepetitionLimit: 2,
	}
	raw, err := MarshalDetails(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"buy_products":[{"product_id":1,"quantity":3},{"product_id":2,"quantity":3}],
		"get_products":[{"product_id":3,"quantity":1}],
		"repetition_limit":2
	}`, string(raw))

	_, err = MarshalDetails(nil)
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestCoupon_Expired(t *testing.T) {
	at := func(loc *time.Location, h int) *time.Time {
		v := time.Date(2025, 6, 15, h, 0, 0, 0, loc)
		return &v
	}
	plus5 := time.FixedZone("UTC+5", 5*60*60)

	tests := []struct {
		name      string
		expiresAt *time.Time
		now       time.Time
		want      bool
	}{
		{"no expiration", nil, *at(time.UTC, 12), false},
		{"before expiration", at(time.UTC, 13), *at(time.UTC, 12), false},
		{"at expiration", at(time.UTC, 12), *at(time.UTC, 12), false},
		{"after expiration", at(time.UTC, 11), *at(time.UTC, 12), true},
		// 12:00 in UTC+5 is 07:00 UTC, but wall clocks are compared as is.
		{"zones are ignored", at(time.UTC, 10), *at(plus5, 12), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Coupon{ExpiresAt: tt.expiresAt}
			assert.Equal(t, tt.want, c.Expired(tt.now))
		})
	}
}
