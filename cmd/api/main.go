package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dan9191/bank-cards/internal/auth"
	"github.com/Dan9191/bank-cards/internal/config"
	"github.com/Dan9191/bank-cards/internal/handler"
	"github.com/Dan9191/bank-cards/internal/middleware"
	"github.com/Dan9191/bank-cards/internal/repository"
	"github.com/Dan9191/bank-cards/internal/service"
	"github.com/Dan9191/bank-cards/internal/utils"
	"github.com/Dan9191/bank-cards/internal/utils/email"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	key, err := cfg.EncryptionKeyBytes()
	if err != nil {
		logger.Fatalf("Invalid encryption key: %v", err)
	}
	cipher, err := utils.NewCardCipher(key, cfg.HMACSecret)
	if err != nil {
		logger.Fatalf("Failed to init card cipher: %v", err)
	}

	// Initialize storage
	var store service.Store
	var health func(ctx context.Context) error
	switch cfg.Storage {
	case config.StorageMemory:
		logger.Warn("Using in-memory storage, data is lost on restart")
		store = repository.NewMemoryRepository()
		health = func(context.Context) error { return nil }
	default:
		db, err := sql.Open("postgres", cfg.DBConn)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatalf("Failed to ping database: %v", err)
		}
		repo := repository.NewRepository(db, cipher, cfg.DBLockTimeout)
		if err := repo.Migrate(context.Background()); err != nil {
			logger.Fatalf("Failed to migrate database: %v", err)
		}
		store = repo
		health = db.PingContext
	}

	// Initialize layers
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.JWTTTL)
	svc := service.NewService(store, tokens, logger, cfg)
	h := handler.NewHandler(svc, logger)

	if cfg.BootstrapAdminUsername != "" {
		if err := svc.EnsureAdmin(context.Background(), cfg.BootstrapAdminUsername, cfg.BootstrapAdminPassword); err != nil {
			logger.Fatalf("Failed to create bootstrap admin: %v", err)
		}
	}

	loc, err := time.LoadLocation(cfg.SweepTimezone)
	if err != nil {
		logger.Fatalf("Invalid sweep timezone: %v", err)
	}
	sweeper := service.NewExpirationSweeper(store, logger, loc)
	if cfg.MailEnabled() {
		sweeper.WithNotifier(email.NewSender(cfg, logger))
	}
	if err := sweeper.Start(cfg.SweepSchedule); err != nil {
		logger.Fatalf("Failed to start expiration sweeper: %v", err)
	}
	defer sweeper.Stop()

	// Setup router
	r := mux.NewRouter()
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.AuthMiddleware(svc, logger))
	middleware.ObserveUnmatched(r, logger)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		w.Header().Set("Content-Type", "application/json")
		if err := health(ctx); err != nil {
			logger.WithError(err).Error("Health probe failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"degraded"}`))
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)
	h.Routes(r)

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Infof("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Graceful shutdown failed: %v", err)
	}
}
