//go:build integration

package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/kart-coupons/internal/domain/coupon"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "coupons",
				"POSTGRES_PASSWORD": "coupons",
				"POSTGRES_DB":       "coupons",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := pg.Terminate(context.Background()); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	host, err := pg.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := pg.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://coupons:coupons@%s:%s/coupons?sslmode=disable", host, port.Port())
	testPool, err = NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrations: %v", err)
	}
	// The schema is idempotent.
	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("second migration run: %v", err)
	}

	return m.Run()
}

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestCouponRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewCouponRepository(testPool)

	expires := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	c := &coupon.Coupon{
		Type: coupon.TypeBxGy,
		Details: coupon.BxGy{
			Buy:             []coupon.BxGyProduct{{ProductID: 1, Quantity: 3}},
			Get:             []coupon.BxGyProduct{{ProductID: 3, Quantity: 1}},
			RepetitionLimit: 2,
		},
		Active:    true,
		ExpiresAt: &expires,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, repo.Create(ctx, c))
	require.NotZero(t, c.ID)

	got, err := repo.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, coupon.TypeBxGy, got.Type)
	assert.Equal(t, c.Details, got.Details)
	require.NotNil(t, got.ExpiresAt)
	assert.Equal(t, expires, got.ExpiresAt.UTC())
	assert.Nil(t, got.UpdatedAt)

	updatedAt := time.Now().UTC().Truncate(time.Microsecond)
	got.Active = false
	got.UpdatedAt = &updatedAt
	require.NoError(t, repo.Update(ctx, got))

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	for _, a := range active {
		assert.NotEqual(t, c.ID, a.ID)
	}

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, all)

	require.NoError(t, repo.Delete(ctx, c.ID))
	_, err = repo.Get(ctx, c.ID)
	require.ErrorIs(t, err, coupon.ErrNotFound)
	require.ErrorIs(t, repo.Delete(ctx, c.ID), coupon.ErrNotFound)
	require.ErrorIs(t, repo.Update(ctx, got), coupon.ErrNotFound)
}

func TestApplicationRepository_Create(t *testing.T) {
	ctx := context.Background()
	coupons := NewCouponRepository(testPool)
	apps := NewApplicationRepository(testPool)

	c := &coupon.Coupon{
		Type:      coupon.TypeCartWise,
		Details:   coupon.CartWise{Threshold: d("100"), Percent: d("10")},
		Active:    true,
		CreatedAt: time.Now(),
	}
	require.NoError(t, coupons.Create(ctx, c))

	items := []coupon.Item{
		{ProductID: 1, Quantity: 2, Price: d("50")},
		{ProductID: 2, Quantity: 1, Price: d("30")},
	}
	res, err := coupon.Compute(items, c.Details)
	require.NoError(t, err)

	app := &coupon.Application{
		ID:            uuid.New(),
		CouponID:      c.ID,
		Type:          c.Type,
		Subtotal:      res.Subtotal,
		TotalDiscount: res.TotalDiscount,
		FinalTotal:    res.FinalTotal,
		Items:         res.Items,
		CreatedAt:     time.Now(),
	}
	require.NoError(t, apps.Create(ctx, app))

	var total decimal.Decimal
	err = testPool.QueryRow(ctx,
		`SELECT total_discount FROM coupon_applications WHERE id = $1`, app.ID,
	).Scan(&total)
	require.NoError(t, err)
	assert.True(t, d("13").Equal(total), "expected 13, got %s", total)
}
