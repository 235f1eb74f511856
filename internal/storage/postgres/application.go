package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-coupons/internal/domain/coupon"
)

const insertApplicationSQL = `INSERT INTO coupon_applications
	(id, coupon_id, type, subtotal, total_discount, final_total, items, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

var _ coupon.ApplicationRepository = (*ApplicationRepository)(nil)

// ApplicationRepository implements coupon.ApplicationRepository backed by
// PostgreSQL.
type ApplicationRepository struct {
	pool *pgxpool.Pool
}

// NewApplicationRepository returns an ApplicationRepository that uses the
// given pool.
func NewApplicationRepository(pool *pgxpool.Pool) *ApplicationRepository {
	return &ApplicationRepository{pool: pool}
}

// Create persists an application. The discounted lines are serialized to
// JSON for the JSONB column.
func (r *ApplicationRepository) Create(ctx context.Context, a *coupon.Application) error {
	items, err := json.Marshal(a.Items)
	if err != nil {
		return errors.Wrap(err, "marshal application items")
	}

	_, err = r.pool.Exec(ctx, insertApplicationSQL,
		a.ID, a.CouponID, string(a.Type),
		a.Subtotal, a.TotalDiscount, a.FinalTotal,
		items, a.CreatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "insert application %s", a.ID)
	}
	return nil
}
