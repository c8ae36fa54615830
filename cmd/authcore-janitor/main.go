// Command authcore-janitor periodically removes expired sessions, refresh
// tokens and one-time codes.
//
// Configuration comes from AUTHCORE_* environment variables, optionally
// loaded from an env file:
//
//	authcore-janitor -env-file .env -interval 10m -metrics-addr :9102
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/metrics/export/prometheus"
	"github.com/MrEthical07/authcore/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	var (
		envFile     = flag.String("env-file", ".env", "optional env file with AUTHCORE_* settings")
		interval    = flag.Duration("interval", 15*time.Minute, "time between cleanup runs")
		once        = flag.Bool("once", false, "run a single cleanup and exit")
		migrate     = flag.Bool("migrate", false, "apply schema migrations before starting")
		metricsAddr = flag.String("metrics-addr", "", "serve Prometheus metrics on this address")
	)
	flag.Parse()

	if *interval <= 0 {
		fmt.Fprintln(os.Stderr, "interval must be > 0")
		os.Exit(2)
	}

	logger, err := newLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, options{
		envFile:     *envFile,
		interval:    *interval,
		once:        *once,
		migrate:     *migrate,
		metricsAddr: *metricsAddr,
	}); err != nil {
		logger.Error("janitor stopped", zap.Error(err))
		os.Exit(1)
	}
}

type options struct {
	envFile     string
	interval    time.Duration
	once        bool
	migrate     bool
	metricsAddr string
}

func run(ctx context.Context, logger *zap.Logger, opts options) error {
	cfg, err := authcore.LoadConfigFromEnv(opts.envFile)
	if err != nil {
		return err
	}
	if cfg.Database.DSN == "" {
		return errors.New("AUTHCORE_DATABASE_DSN is required")
	}

	st, err := store.Open(ctx, cfg.Database.DSN, cfg.Database.Pool)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if opts.migrate {
		if err := st.Migrate(ctx); err != nil {
			return err
		}
		logger.Info("schema migrated")
	}

	engine, err := authcore.New().
		WithConfig(cfg).
		WithStore(st).
		WithLogger(logger).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	if opts.metricsAddr != "" {
		srv := serveMetrics(logger, opts.metricsAddr, engine)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	sweep(ctx, logger, engine)
	if opts.once {
		return nil
	}

	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case <-ticker.C:
			sweep(ctx, logger, engine)
		}
	}
}

func sweep(ctx context.Context, logger *zap.Logger, engine *authcore.Engine) {
	start := time.Now()
	report, err := engine.Cleanup(ctx)
	fields := []zap.Field{
		zap.Int64("sessions", report.SessionsInvalidated),
		zap.Int64("refresh_tokens", report.RefreshTokensDeleted),
		zap.Int64("otps", report.OTPsDeleted),
		zap.Duration("took", time.Since(start)),
	}
	if err != nil {
		logger.Warn("cleanup incomplete", append(fields, zap.Error(err))...)
		return
	}
	logger.Info("cleanup finished", fields...)
}

func serveMetrics(logger *zap.Logger, addr string, engine *authcore.Engine) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", prometheus.New(engine).Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
	return srv
}

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}
