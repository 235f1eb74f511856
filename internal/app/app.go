package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-coupons/internal/domain/coupon"
	"github.com/xenking/kart-coupons/internal/events"
	"github.com/xenking/kart-coupons/internal/handler"
	"github.com/xenking/kart-coupons/internal/storage/postgres"
	"github.com/xenking/kart-coupons/internal/storage/rediscache"
	"github.com/xenking/kart-coupons/pkg/health"
	"github.com/xenking/kart-coupons/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	monitor := health.New()
	monitor.Readiness("postgres", pool.Ping, health.Timeout(5*time.Second))
	monitor.Liveness("goroutines", health.Goroutines(10000))
	monitor.Liveness("gc", health.GCPause(time.Second), health.FailureThreshold(5))

	g, ctx := errgroup.WithContext(ctx)

	var coupons coupon.Repository = postgres.NewCouponRepository(pool)
	var limiter httpmiddleware.Limiter
	if cfg.Redis.URL != "" {
		rdb, err := newRedis(cfg.Redis, m)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()

		monitor.Readiness("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		coupons = rediscache.New(coupons, rdb, cfg.Redis.TTL)
		limiter = httpmiddleware.NewRedisLimiter(rdb, "coupons:ratelimit:", cfg.RateLimit.Max, cfg.RateLimit.Window)
		lg.Info("Redis cache enabled", zap.Duration("ttl", cfg.Redis.TTL))
	} else {
		mem := httpmiddleware.NewMemoryLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window)
		g.Go(func() error {
			mem.Run(ctx)
			return nil
		})
		limiter = mem
	}

	var publisher coupon.Publisher = events.LogPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kcfg := events.KafkaConfig{
			Brokers:           cfg.Kafka.Brokers,
			ClientID:          cfg.Kafka.ClientID,
			Topic:             cfg.Kafka.Topic,
			Partitions:        cfg.Kafka.Partitions,
			ReplicationFactor: cfg.Kafka.ReplicationFactor,
		}
		client, err := events.NewKafkaClient(kcfg)
		if err != nil {
			return err
		}
		defer client.Close()

		if err := events.EnsureTopic(ctx, client, kcfg); err != nil {
			lg.Warn("Ensure events topic", zap.String("topic", kcfg.Topic), zap.Error(err))
		}
		kp := events.NewKafkaPublisher(client, kcfg.Topic)
		monitor.Readiness("kafka", kp.Ping, health.Timeout(3*time.Second))
		publisher = kp
		lg.Info("Kafka events enabled", zap.Strings("brokers", kcfg.Brokers), zap.String("topic", kcfg.Topic))
	}

	svc := coupon.NewService(coupons, postgres.NewApplicationRepository(pool),
		coupon.WithPublisher(publisher),
		coupon.WithTracerProvider(m.TracerProvider()),
	)
	h, err := handler.New(svc, m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create handler")
	}

	monitor.Start(ctx, 10*time.Second)
	defer monitor.Stop()
	monitor.SetReady(true)

	r := chi.NewRouter()
	r.Use(httpmiddleware.LogRequests(), httpmiddleware.Labeler())
	r.Method(http.MethodGet, "/livez", monitor.LiveHandler())
	r.Method(http.MethodGet, "/readyz", monitor.ReadyHandler())
	r.Group(func(r chi.Router) {
		r.Use(httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{Limiter: limiter}))
		h.Register(r)
	})

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(
			httpmiddleware.Wrap(r,
				httpmiddleware.RequestID(),
				httpmiddleware.InjectLogger(zctx.From(ctx)),
				httpmiddleware.Recovery(),
				httpmiddleware.CORS(httpmiddleware.CORSConfig{
					Origins:          cfg.CORS.Origins,
					AllowCredentials: cfg.CORS.AllowCredentials,
					MaxAge:           86400,
				}),
			),
			"coupons-api",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}

	g.Go(func() error {
		<-ctx.Done()
		monitor.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	return g.Wait()
}

func newRedis(cfg RedisConfig, m *app.Telemetry) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	rdb := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(rdb, redisotel.WithTracerProvider(m.TracerProvider())); err != nil {
		return nil, errors.Wrap(err, "instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(rdb, redisotel.WithMeterProvider(m.MeterProvider())); err != nil {
		return nil, errors.Wrap(err, "instrument redis metrics")
	}
	return rdb, nil
}
