package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"luckydraw/internal/config"
	"luckydraw/internal/handlers"
	"luckydraw/internal/metrics"
	"luckydraw/internal/services"
	"luckydraw/internal/store"
	"luckydraw/internal/store/memory"
	"luckydraw/internal/store/postgres"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	// 1. Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// 2. Initialize logging
	logOut := io.Discard
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			logger.Fatalf("Failed to open log file: %v", err)
		}
		defer f.Close()
		logOut = f
	}
	// without a log file the console is the only sink
	verbose := cfg.Log.Verbose || cfg.Log.File == ""
	defer logger.Init("luckydraw", verbose, false, logOut).Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open the store
	st, closeStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to open store: %v", err)
	}
	defer closeStore()

	// 4. Initialize the Lottery Service
	lotteryService := services.NewLotteryService(st, services.WithCodeLength(cfg.Lottery.CodeLength))
	if cfg.Lottery.SeedDemo {
		if err := lotteryService.SeedDefaults(ctx); err != nil {
			logger.Fatalf("Failed to seed demo data: %v", err)
		}
	}

	// 5. Set up the Gin router
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery(), metrics.Middleware())
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	handlers.NewHTTPHandler(lotteryService).RegisterRoutes(r)

	// 6. Run the server until a signal arrives
	srv := &http.Server{Addr: cfg.Addr(), Handler: r}
	go func() {
		logger.Infof("Server starting on http://localhost%s (store: %s)", cfg.Addr(), cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to run server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Graceful shutdown failed: %v", err)
	}
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, func(), error) {
	if cfg.Driver != config.DriverPostgres {
		return memory.New(), func() {}, nil
	}

	db, err := postgres.Open(ctx, cfg.DSN, cfg.MaxOpenConns)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Migrate {
		if err := postgres.Migrate(db); err != nil {
			db.Close()
			return nil, nil, err
		}
	}
	return postgres.New(db), func() { db.Close() }, nil
}
