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

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	auth "github.com/chipcloud/ielts-practice/internal/auth/middleware"
	"github.com/chipcloud/ielts-practice/internal/cache"
	"github.com/chipcloud/ielts-practice/internal/config"
	"github.com/chipcloud/ielts-practice/internal/db"
	"github.com/chipcloud/ielts-practice/internal/exam"
	"github.com/chipcloud/ielts-practice/internal/grading"
	"github.com/chipcloud/ielts-practice/internal/logger"
	"github.com/chipcloud/ielts-practice/internal/metrics"
	"github.com/chipcloud/ielts-practice/internal/ratelimit"
	"github.com/chipcloud/ielts-practice/internal/storage"
	syncx "github.com/chipcloud/ielts-practice/internal/sync"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default ./config.yaml if present)")
	flag.Parse()

	// .env is optional; real environment variables win
	_ = godotenv.Load()

	var cfg config.Config
	v, err := config.New(*configPath)
	if err == nil {
		cfg, err = config.Load(v)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log, level := logger.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	if v.ConfigFileUsed() != "" {
		config.Watch(v, func(c config.Config, err error) {
			if err != nil {
				log.Warn("config reload failed", zap.Error(err))
				return
			}
			level.SetLevel(logger.ParseLevel(c.Log.Level))
			log.Info("config reloaded", zap.String("log_level", c.Log.Level))
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("gateway stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	// --- DB ---
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	dbh, err := db.Open(openCtx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		return err
	}
	defer dbh.Close()
	store := exam.NewSQLStore(dbh, cfg.DBDriver)

	// --- Auth ---
	users := auth.NewUserStore(dbh)
	if cfg.AdminUser != "" && cfg.AdminPassHash != "" {
		if _, err := users.EnsureAdmin(openCtx, cfg.AdminUser, []byte(cfg.AdminPassHash)); err != nil {
			return err
		}
	}
	authSvc := auth.NewAuthService(cfg.JWTSecret, cfg.JWTTTL, users)

	// --- Grading service ---
	m := metrics.New()
	events := syncx.NewEventRepo(dbh, cfg.SiteID)
	opts := []exam.ServiceOption{
		exam.WithGrader(grading.NewDefaultGrader(
			grading.WithStrictTFNG(cfg.Grading.StrictTFNG),
			grading.WithPositionalGapFallback(cfg.Grading.PositionalGapFallback),
		)),
		exam.WithEvents(events),
		exam.WithMetrics(m),
		exam.WithLogger(log.Named("exam")),
		exam.WithWorkers(cfg.Grading.Workers),
	}
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedis(openCtx, cfg.Redis, log.Named("cache"))
		if err != nil {
			log.Warn("question cache disabled", zap.Error(err))
		} else {
			defer rc.Close()
			opts = append(opts, exam.WithCache(rc))
		}
	}
	svc := exam.NewService(store, opts...)

	// --- Blob store ---
	var blobs storage.BlobStore
	switch cfg.BlobDriver {
	case "minio":
		blobs, err = storage.NewMinioStore(openCtx, cfg.Minio)
	default:
		blobs, err = storage.NewFSStore(cfg.BlobBasePath, cfg.PublicURL)
	}
	if err != nil {
		return err
	}

	authLimiter := ratelimit.New(cfg.RateLimit.AuthPerMinute, cfg.RateLimit.Burst, nil)
	submitLimiter := ratelimit.New(cfg.RateLimit.SubmitPerMinute, cfg.RateLimit.Burst, subjectOrIP)
	go authLimiter.Run(ctx)
	go submitLimiter.Run(ctx)

	r := newRouter(routerDeps{
		cfg:           cfg,
		log:           log,
		svc:           svc,
		auth:          authSvc,
		users:         users,
		blobs:         blobs,
		events:        events,
		metrics:       m,
		authLimiter:   authLimiter,
		submitLimiter: submitLimiter,
		ready:         store.Ping,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("mode", string(cfg.Mode)),
			zap.String("db", cfg.DBDriver),
			zap.String("blobs", cfg.BlobDriver),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	return srv.Shutdown(shutdownCtx)
}

// subjectOrIP counts authenticated requests per user.
func subjectOrIP(r *http.Request) string {
	if sub := auth.SubjectFromContext(r.Context()); sub != "" {
		return "sub:" + sub
	}
	return ratelimit.ClientIP(r)
}
