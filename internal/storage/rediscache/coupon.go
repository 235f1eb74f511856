// Package rediscache provides a read-through Redis cache in front of a
// coupon repository.
package rediscache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/kart-coupons/internal/domain/coupon"
)

const (
	keyPrefix = "coupons:"
	activeKey = keyPrefix + "active"
)

func idKey(id int64) string {
	return keyPrefix + "id:" + strconv.FormatInt(id, 10)
}

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository caches single coupon lookups and the active coupon list.
// Writes go to the wrapped repository and invalidate the affected keys.
// Redis errors are logged and fall back to the wrapped repository.
type CouponRepository struct {
	next coupon.Repository
	rdb  redis.Cmdable
	ttl  time.Duration
}

// New wraps next with a cache stored in rdb.
func New(next coupon.Repository, rdb redis.Cmdable, ttl time.Duration) *CouponRepository {
	return &CouponRepository{next: next, rdb: rdb, ttl: ttl}
}

// record is the cached form of a coupon.
type record struct {
	ID        int64           `json:"id"`
	Type      coupon.Type     `json:"type"`
	Details   json.RawMessage `json:"details"`
	Active    bool            `json:"active"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt *time.Time      `json:"updated_at,omitempty"`
}

func toRecord(c *coupon.Coupon) (record, error) {
	details, err := coupon.MarshalDetails(c.Details)
	if err != nil {
		return record{}, err
	}
	return record{
		ID:        c.ID,
		Type:      c.Type,
		Details:   details,
		Active:    c.Active,
		ExpiresAt: c.ExpiresAt,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}, nil
}

func (r record) toDomain() (coupon.Coupon, error) {
	details, err := coupon.ParseDetails(r.Type, r.Details)
	if err != nil {
		return coupon.Coupon{}, err
	}
	return coupon.Coupon{
		ID:        r.ID,
		Type:      r.Type,
		Details:   details,
		Active:    r.Active,
		ExpiresAt: r.ExpiresAt,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

// Create stores c and drops the cached active list.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	if err := r.next.Create(ctx, c); err != nil {
		return err
	}
	r.invalidate(ctx, activeKey)
	return nil
}

// Get returns the coupon from cache, loading it on a miss.
func (r *CouponRepository) Get(ctx context.Context, id int64) (*coupon.Coupon, error) {
	var rec record
	if r.load(ctx, idKey(id), &rec) {
		c, err := rec.toDomain()
		if err == nil {
			return &c, nil
		}
		r.warn(ctx, "Decode cached coupon", err)
	}

	c, err := r.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec, err := toRecord(c); err == nil {
		r.store(ctx, idKey(id), rec)
	}
	return c, nil
}

// List is not cached.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	return r.next.List(ctx)
}

// ListActive returns the cached active coupon list, loading it on a miss.
func (r *CouponRepository) ListActive(ctx context.Context) ([]coupon.Coupon, error) {
	var recs []record
	if r.load(ctx, activeKey, &recs) {
		out, err := fromRecords(recs)
		if err == nil {
			return out, nil
		}
		r.warn(ctx, "Decode cached active coupons", err)
	}

	coupons, err := r.next.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	recs = make([]record, 0, len(coupons))
	for i := range coupons {
		rec, err := toRecord(&coupons[i])
		if err != nil {
			return coupons, nil
		}
		recs = append(recs, rec)
	}
	r.store(ctx, activeKey, recs)
	return coupons, nil
}

func fromRecords(recs []record) ([]coupon.Coupon, error) {
	out := make([]coupon.Coupon, 0, len(recs))
	for _, rec := range recs {
		c, err := rec.toDomain()
		if err != nil {
			return nil, errors.Wrapf(err, "coupon %d", rec.ID)
		}
		out = append(out, c)
	}
	return out, nil
}

// Update writes c and drops its cached entries.
func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	if err := r.next.Update(ctx, c); err != nil {
		return err
	}
	r.invalidate(ctx, idKey(c.ID), activeKey)
	return nil
}

// Delete removes the coupon and drops its cached entries.
func (r *CouponRepository) Delete(ctx context.Context, id int64) error {
	if err := r.next.Delete(ctx, id); err != nil {
		return err
	}
	r.invalidate(ctx, idKey(id), activeKey)
	return nil
}

// load reports whether key was found and decoded into v.
func (r *CouponRepository) load(ctx context.Context, key string, v any) bool {
	data, err := r.rdb.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return false
	case err != nil:
		r.warn(ctx, "Read coupon cache", err)
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		r.warn(ctx, "Decode coupon cache entry", err)
		return false
	}
	return true
}

func (r *CouponRepository) store(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		r.warn(ctx, "Encode coupon cache entry", err)
		return
	}
	if err := r.rdb.Set(ctx, key, data, r.ttl).Err(); err != nil {
		r.warn(ctx, "Write coupon cache", err)
	}
}

func (r *CouponRepository) invalidate(ctx context.Context, keys ...string) {
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		r.warn(ctx, "Invalidate coupon cache", err)
	}
}

func (r *CouponRepository) warn(ctx context.Context, msg string, err error) {
	zctx.From(ctx).Warn(msg, zap.Error(err))
}
