package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/kart-coupons/internal/domain/coupon"
)

func (h *Handler) createCoupon(w http.ResponseWriter, r *http.Request) {
	var req createCouponRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	typ, err := coupon.ParseType(req.Type)
	if err != nil {
		writeError(w, r, err)
		return
	}
	details, err := coupon.ParseDetails(typ, req.Details)
	if err != nil {
		writeError(w, r, err)
		return
	}

	c, err := h.coupons.Create(r.Context(), coupon.CreateRequest{
		Details:   details,
		Active:    req.IsActive,
		ExpiresAt: req.ExpirationDate.value(),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeCoupon(w, r, http.StatusCreated, c)
}

func (h *Handler) listCoupons(w http.ResponseWriter, r *http.Request) {
	list, err := h.coupons.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	var e jx.Encoder
	e.ArrStart()
	for i := range list {
		if err := encodeCoupon(&e, &list[i]); err != nil {
			writeError(w, r, err)
			return
		}
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) getCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := couponID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.coupons.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeCoupon(w, r, http.StatusOK, c)
}

func (h *Handler) updateCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := couponID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateCouponRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	upd := coupon.UpdateRequest{
		Details:   req.Details,
		Active:    req.IsActive,
		ExpiresAt: req.ExpirationDate.value(),
	}
	if req.Type != nil {
		typ, err := coupon.ParseType(*req.Type)
		if err != nil {
			writeError(w, r, err)
			return
		}
		upd.Type = &typ
	}

	c, err := h.coupons.Update(r.Context(), id, upd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeCoupon(w, r, http.StatusOK, c)
}

func (h *Handler) deleteCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := couponID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.coupons.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeCoupon(w http.ResponseWriter, r *http.Request, status int, c *coupon.Coupon) {
	var e jx.Encoder
	if err := encodeCoupon(&e, c); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, &e)
}
