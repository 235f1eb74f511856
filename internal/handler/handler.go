// Package handler exposes the coupon service over HTTP.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/kart-coupons/internal/domain/coupon"
)

const meterName = "github.com/xenking/kart-coupons/handler"

// Handler serves coupon CRUD and cart evaluation endpoints.
type Handler struct {
	coupons *coupon.Service

	applied metric.Int64Counter
	scanned metric.Int64Counter
}

// New builds a Handler that records its counters through mp.
func New(coupons *coupon.Service, mp metric.MeterProvider) (*Handler, error) {
	meter := mp.Meter(meterName)
	applied, err := meter.Int64Counter("coupons.applied",
		metric.WithDescription("Coupons successfully applied to a cart"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "coupons.applied counter")
	}
	scanned, err := meter.Int64Counter("coupons.applicable.scanned",
		metric.WithDescription("Coupons reported as applicable by cart scans"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "coupons.applicable.scanned counter")
	}
	return &Handler{coupons: coupons, applied: applied, scanned: scanned}, nil
}

// Register mounts the API routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/", h.root)
	r.Route("/coupons", func(r chi.Router) {
		r.Post("/", h.createCoupon)
		r.Get("/", h.listCoupons)
		r.Get("/{id}", h.getCoupon)
		r.Put("/{id}", h.updateCoupon)
		r.Delete("/{id}", h.deleteCoupon)
	})
	r.Post("/applicable-coupons", h.applicableCoupons)
	r.Post("/apply-coupon/{id}", h.applyCoupon)
}

func (h *Handler) root(w http.ResponseWriter, _ *http.Request) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("message", func(e *jx.Encoder) { e.Str("Coupon service is running") })
	})
	writeJSON(w, http.StatusOK, &e)
}
