package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-coupons/internal/domain/coupon"
	"github.com/xenking/kart-coupons/internal/storage/postgres"
)

func main() {
	var databaseURL string

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	svc := coupon.NewService(
		postgres.NewCouponRepository(pool),
		postgres.NewApplicationRepository(pool),
	)
	if err := seedCoupons(ctx, svc, time.Now()); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	return nil
}

type seed struct {
	name string
	req  coupon.CreateRequest
}

// demoCoupons returns one coupon of each type plus an inactive and an
// expired one, so every apply failure path can be tried by hand.
func demoCoupons(now time.Time) []seed {
	inactive := false
	expired := now.AddDate(0, 0, -1)
	nextYear := now.AddDate(1, 0, 0)

	return []seed{
		{
			name: "10% off carts over 100",
			req: coupon.CreateRequest{Details: coupon.CartWise{
				Threshold: decimal.NewFromInt(100),
				Percent:   decimal.NewFromInt(10),
			}},
		},
		{
			name: "20% off product 1",
			req: coupon.CreateRequest{
				Details:   coupon.ProductWise{ProductID: 1, Percent: decimal.NewFromInt(20)},
				ExpiresAt: &nextYear,
			},
		},
		{
			name: "buy 3 of products 1 or 2, get product 3 free",
			req: coupon.CreateRequest{Details: coupon.BxGy{
				Buy: []coupon.BxGyProduct{
					{ProductID: 1, Quantity: 3},
					{ProductID: 2, Quantity: 3},
				},
				Get:             []coupon.BxGyProduct{{ProductID: 3, Quantity: 1}},
				RepetitionLimit: 2,
			}},
		},
		{
			name: "disabled 50% off",
			req: coupon.CreateRequest{
				Details: coupon.CartWise{Threshold: decimal.Zero, Percent: decimal.NewFromInt(50)},
				Active:  &inactive,
			},
		},
		{
			name: "expired 5% off product 2",
			req: coupon.CreateRequest{
				Details:   coupon.ProductWise{ProductID: 2, Percent: decimal.NewFromInt(5)},
				ExpiresAt: &expired,
			},
		},
	}
}

func seedCoupons(ctx context.Context, svc *coupon.Service, now time.Time) error {
	slog.Info("seeding demo coupons")

	for _, s := range demoCoupons(now) {
		c, err := svc.Create(ctx, s.req)
		if err != nil {
			return errors.Wrapf(err, "create %q", s.name)
		}

		slog.Info("created coupon",
			slog.Int64("id", c.ID),
			slog.String("type", string(c.Type)),
			slog.String("name", s.name),
		)
	}

	return nil
}
