package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/booktrade/internal/domain/discount"
	"github.com/xenking/booktrade/internal/domain/inventory"
	"github.com/xenking/booktrade/internal/domain/order"
	"github.com/xenking/booktrade/internal/domain/payment"
	"github.com/xenking/booktrade/internal/gateway"
	"github.com/xenking/booktrade/internal/handler"
	"github.com/xenking/booktrade/internal/loginguard"
	"github.com/xenking/booktrade/internal/repository"
	"github.com/xenking/booktrade/pkg/health"
	"github.com/xenking/booktrade/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server and background
// workers, and handles graceful shutdown. It is the single wiring point
// for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Redis client for the login guard.
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddReadinessCheck("redis", 5*time.Second, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	bookRepo := repository.NewBookRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	discountRepo := repository.NewDiscountRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	paymentRepo := repository.NewPaymentRepository(pool)
	apikeyRepo := repository.NewAPIKeyRepository(pool)
	txManager := repository.NewTxManager(pool)

	// Payment gateways.
	gateways := gateway.Registry{}
	if cfg.Momo.PartnerCode != "" {
		gateways[gateway.ProviderMomo] = gateway.NewMomo(gateway.MomoConfig{
			PartnerCode: cfg.Momo.PartnerCode,
			AccessKey:   cfg.Momo.AccessKey,
			SecretKey:   cfg.Momo.SecretKey,
			Endpoint:    cfg.Momo.Endpoint,
		}, nil)
	}
	if cfg.VnPay.TmnCode != "" {
		gateways[gateway.ProviderVnPay] = gateway.NewVnPay(gateway.VnPayConfig{
			TmnCode:    cfg.VnPay.TmnCode,
			HashSecret: cfg.VnPay.HashSecret,
			PayURL:     cfg.VnPay.PayURL,
			ReturnURL:  cfg.VnPay.ReturnURL,
		})
	}

	// Domain services.
	ledger := inventory.NewLedger(bookRepo)
	orderService := order.NewService(bookRepo, userRepo, discountRepo, orderRepo)
	paymentService := payment.NewService(paymentRepo, orderRepo, ledger, discountRepo, gateways, txManager)
	sweeper := discount.NewSweeper(discountRepo, cfg.Sweeper.Interval)

	// HTTP transport.
	guard := loginguard.New(rdb, loginguard.Config{
		MaxFailures: cfg.LoginGuard.MaxFailures,
		Window:      cfg.LoginGuard.Window,
		BlockFor:    cfg.LoginGuard.BlockFor,
	})
	security := handler.NewSecurity(apikeyRepo, []byte(cfg.APIKeyPepper), guard)
	h := handler.NewHandler(bookRepo, orderService, paymentService, gateways, security)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", h.Routes())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("booktrade-api", m),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	<-shutdownDone
	return nil
}
