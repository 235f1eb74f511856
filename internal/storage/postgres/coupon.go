package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xenking/kart-coupons/internal/domain/coupon"
)

const (
	couponColumns = `id, type, details, is_active, expires_at, created_at, updated_at`

	insertCouponSQL = `INSERT INTO coupons (type, details, is_active, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	getCouponSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`

	listCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons ORDER BY id`

	listActiveCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE is_active ORDER BY id`

	updateCouponSQL = `UPDATE coupons
		SET type = $2, details = $3, is_active = $4, expires_at = $5, updated_at = $6
		WHERE id = $1`

	deleteCouponSQL = `DELETE FROM coupons WHERE id = $1`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

type couponRow struct {
	ID        int64      `db:"id"`
	Type      string     `db:"type"`
	Details   []byte     `db:"details"`
	IsActive  bool       `db:"is_active"`
	ExpiresAt *time.Time `db:"expires_at"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt *time.Time `db:"updated_at"`
}

func (r couponRow) toDomain() (coupon.Coupon, error) {
	typ, err := coupon.ParseType(r.Type)
	if err != nil {
		return coupon.Coupon{}, errors.Wrapf(err, "coupon %d", r.ID)
	}
	details, err := coupon.ParseDetails(typ, r.Details)
	if err != nil {
		return coupon.Coupon{}, errors.Wrapf(err, "coupon %d", r.ID)
	}
	return coupon.Coupon{
		ID:        r.ID,
		Type:      typ,
		Details:   details,
		Active:    r.IsActive,
		ExpiresAt: r.ExpiresAt,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

// Create inserts c and sets its ID.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	details, err := coupon.MarshalDetails(c.Details)
	if err != nil {
		return err
	}
	err = r.pool.QueryRow(ctx, insertCouponSQL,
		string(c.Type), details, c.Active, c.ExpiresAt, c.CreatedAt,
	).Scan(&c.ID)
	if err != nil {
		return errors.Wrap(err, "insert coupon")
	}
	return nil
}

// Get returns the coupon with the given id or coupon.ErrNotFound.
func (r *CouponRepository) Get(ctx context.Context, id int64) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get coupon %d", id)
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[couponRow])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get coupon %d", id)
	}
	c, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// List returns all coupons ordered by id.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	return r.list(ctx, listCouponsSQL)
}

// ListActive returns active coupons ordered by id.
func (r *CouponRepository) ListActive(ctx context.Context) ([]coupon.Coupon, error) {
	return r.list(ctx, listActiveCouponsSQL)
}

func (r *CouponRepository) list(ctx context.Context, query string) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	records, err := pgx.CollectRows(rows, pgx.RowToStructByName[couponRow])
	if err != nil {
		return nil, errors.Wrap(err, "scan coupons")
	}

	out := make([]coupon.Coupon, 0, len(records))
	for _, rec := range records {
		c, err := rec.toDomain()
		if err != nil {
			zctx.From(ctx).Warn("Skipping unreadable coupon", zap.Int64("coupon_id", rec.ID), zap.Error(err))
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Update overwrites the stored coupon with c.
func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	details, err := coupon.MarshalDetails(c.Details)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, updateCouponSQL,
		c.ID, string(c.Type), details, c.Active, c.ExpiresAt, c.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "update coupon %d", c.ID)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Delete removes the coupon and its application log.
func (r *CouponRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteCouponSQL, id)
	if err != nil {
		return errors.Wrapf(err, "delete coupon %d", id)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}
