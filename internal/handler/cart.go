package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func (h *Handler) applicableCoupons(w http.ResponseWriter, r *http.Request) {
	var req cartRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.coupons.Applicable(r.Context(), req.items())
	if err != nil {
		writeError(w, r, err)
		return
	}
	for _, a := range list {
		h.scanned.Add(r.Context(), 1, metric.WithAttributes(attribute.String("coupon.type", string(a.Type))))
	}

	var e jx.Encoder
	encodeApplicable(&e, list)
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := couponID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req cartRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.coupons.Apply(r.Context(), id, req.items())
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.applied.Add(r.Context(), 1, metric.WithAttributes(attribute.String("coupon.type", string(res.Coupon.Type))))

	var e jx.Encoder
	encodeUpdatedCart(&e, res.Result)
	writeJSON(w, http.StatusOK, &e)
}
