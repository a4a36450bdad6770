package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callqa/internal/analytics"
	"callqa/internal/audit"
	"callqa/internal/auth"
	"callqa/internal/calls"
	"callqa/internal/config"
	"callqa/internal/health"
	"callqa/internal/httpapi"
	"callqa/internal/notify"
	"callqa/internal/pipeline"
	"callqa/internal/scoring"
	"callqa/internal/transcription"
	"callqa/internal/uploads"
	"callqa/pkg/logger"
	"callqa/pkg/metrics"
	"callqa/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A missing .env is fine; real deployments set env directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)
	metrics.Init()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	var authManager *auth.Manager
	if cfg.AuthEnabled() {
		authManager, err = auth.NewManager(cfg.Auth)
		if err != nil {
			log.Error("auth init failed", "err", err)
			os.Exit(1)
		}
	} else {
		log.Warn("JWT_SECRET not set; /v1 is unauthenticated")
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{
		ConnectWindow: cfg.DB.ConnectWindow,
	})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{
		Addr:          cfg.RedisAddr(),
		Password:      cfg.Redis.Password,
		ConnectWindow: cfg.DB.ConnectWindow,
	})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	var publisher notify.Publisher = notify.Noop{}
	if cfg.AMQP.URL != "" {
		amqpPub, err := notify.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			// Outcome events are best-effort; run without them.
			log.Warn("amqp unavailable; outcome events disabled", "err", err)
		} else {
			defer amqpPub.Close()
			publisher = amqpPub
		}
	}

	store := calls.NewPostgresRepo(db)
	events := audit.NewService(audit.NewPostgresRepo(db))
	stt := transcription.NewHTTPClient(cfg.Upstream.TranscriptionURL, cfg.Upstream.TranscriptionTimeout)
	qa := scoring.NewHTTPClient(cfg.Upstream.ScoringURL, cfg.Upstream.ScoringTimeout)

	uploadStore, err := uploads.NewLocalStore(cfg.App.UploadDir, cfg.App.UploadMaxBytes)
	if err != nil {
		log.Error("upload dir init failed", "err", err)
		os.Exit(1)
	}

	probeClient := &http.Client{Timeout: 2 * time.Second}
	checker := health.NewChecker(3*time.Second).
		Register("database", health.Postgres(db, 2*time.Second)).
		Register("redis", health.Redis(rdb, 2*time.Second)).
		Register("stt", health.HTTP(probeClient, cfg.Upstream.TranscriptionURL)).
		Register("qa", health.HTTP(probeClient, cfg.Upstream.ScoringURL))

	h := httpapi.Handlers{
		Pipeline: pipeline.NewService(store, stt, qa,
			pipeline.WithLimiter(pipeline.NewRedisLimiter(rdb, cfg.Pipeline.MaxInFlight, cfg.Pipeline.InFlightTTL)),
			pipeline.WithEvents(events),
			pipeline.WithPublisher(publisher),
		),
		Calls:     store,
		Events:    events,
		Analytics: analytics.NewService(store),
		Uploads:   uploadStore,
		Health:    checker,
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(utils.CORS(cfg.App.CORSOrigins))

	registerRoutes(r, h, authManager)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      cfg.WriteTimeout(),
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening",
			"addr", srv.Addr,
			"env", cfg.App.Env,
			"stt", cfg.Upstream.TranscriptionURL,
			"qa", cfg.Upstream.ScoringURL,
			"max_in_flight", cfg.Pipeline.MaxInFlight,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	// In-flight uploads may still be waiting on transcription.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.WriteTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
