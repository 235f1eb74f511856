package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-coupons/internal/domain/coupon"
	"github.com/xenking/kart-coupons/internal/storage/postgres"
)

const insertWorkers = 8

func main() {
	var (
		databaseURL string
		dryRun      bool
		strict      bool
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.BoolVar(&dryRun, "dry-run", false, "validate files without writing to the database")
	flag.BoolVar(&strict, "strict", false, "abort without writing if any line is rejected")
	flag.Usage = func() {
		_, _ = os.Stderr.WriteString("usage: coupon-import [flags] coupons.jsonl.gz...\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, files, dryRun, strict); err != nil {
		slog.Error("import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("import completed successfully")
}

func run(ctx context.Context, databaseURL string, files []string, dryRun, strict bool) error {
	requests, rejected, err := parseFiles(ctx, files)
	if err != nil {
		return err
	}

	for _, le := range rejected {
		slog.Warn("rejected line",
			slog.String("file", filepath.Base(le.Path)),
			slog.Int("line", le.Line),
			slog.String("error", le.Err.Error()),
		)
	}
	slog.Info("parsed import files",
		slog.Int("files", len(files)),
		slog.Int("accepted", len(requests)),
		slog.Int("rejected", len(rejected)),
	)

	if strict && len(rejected) > 0 {
		return errors.Errorf("%d lines rejected", len(rejected))
	}
	if dryRun {
		return nil
	}

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
	return writeCoupons(ctx, svc, requests)
}

// parseFiles reads all files concurrently. Results keep file order and line
// order within each file.
func parseFiles(ctx context.Context, files []string) ([]coupon.CreateRequest, []*lineError, error) {
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			res, err := readFile(ctx, path)
			if err != nil {
				return err
			}
			slog.Info("parsed file",
				slog.String("file", filepath.Base(path)),
				slog.Int("accepted", len(res.requests)),
				slog.Int("rejected", len(res.rejected)),
			)
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var (
		requests []coupon.CreateRequest
		rejected []*lineError
	)
	for _, r := range results {
		requests = append(requests, r.requests...)
		rejected = append(rejected, r.rejected...)
	}
	return requests, rejected, nil
}

func writeCoupons(ctx context.Context, svc *coupon.Service, requests []coupon.CreateRequest) error {
	slog.Info("writing coupons to database", slog.Int("count", len(requests)))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(insertWorkers)
	for i, req := range requests {
		g.Go(func() error {
			if _, err := svc.Create(ctx, req); err != nil {
				return errors.Wrapf(err, "create coupon %d", i+1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("write complete", slog.Int("written", len(requests)))
	return nil
}
