package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/verifai/internal/auth"
	"github.com/example/verifai/internal/backend"
	"github.com/example/verifai/internal/backend/classifier"
	"github.com/example/verifai/internal/config"
	"github.com/example/verifai/internal/grpcclient"
	"github.com/example/verifai/internal/handlers"
	"github.com/example/verifai/internal/logging"
	"github.com/example/verifai/internal/repository"
	"github.com/example/verifai/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var repo usecase.VerificationRepository
	if cfg.DatabaseDSN != "" {
		r := repository.NewVerificationRepository(initDatabase(ctx, cfg.DatabaseDSN, logger), logger)
		if err := r.AutoMigrate(ctx); err != nil {
			logger.Fatal("auto migrate failed", zap.Error(err))
		}
		repo = r
	}

	var cache usecase.Cache
	if cfg.RedisAddr != "" {
		redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
		cache = usecase.NewRedisCache(initRedis(redisCtx, cfg.RedisAddr, logger), "verification:")
		redisCancel()
	}

	// The backend must be ready, or have failed for good, before traffic is
	// accepted. A failed backend keeps the process up and /verify answers 503.
	handle := backend.NewHandle()
	var closers []func() error
	if err := handle.Init(ctx, func(ctx context.Context) (backend.Backend, error) {
		b, closer, err := buildBackend(ctx, cfg, logger)
		if closer != nil {
			closers = append(closers, closer)
		}
		return b, err
	}); err != nil {
		logger.Error("backend initialization failed", zap.String("backend", cfg.Backend), zap.Error(err))
	} else {
		logger.Info("backend ready", zap.String("backend", handle.Name()))
	}
	defer func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				logger.Warn("failed to close backend resource", zap.Error(err))
			}
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	uc := usecase.NewVerificationUseCase(handle, repo, cache, usecase.NewMetrics(registry), logger)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), cors.New(corsConfig(cfg.CORSAllowedOrigins)))

	opts := handlers.Options{RequestTimeout: cfg.RequestTimeout, Gatherer: registry}
	if cfg.JWTSecret != "" {
		opts.Auth = auth.JWTMiddleware(cfg.JWTSecret, cfg.JWTAudience)
	}
	handlers.RegisterRoutes(r, uc, handle, opts)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("VerifAI API listening", zap.String("addr", server.Addr), zap.String("backend", cfg.Backend))
	if err := serveHTTPServer(server, cfg.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

// buildBackend constructs the configured backend. The returned closer, if
// any, releases its connections at shutdown.
func buildBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (backend.Backend, func() error, error) {
	switch cfg.Backend {
	case config.BackendStatic:
		return backend.NewStaticRule(), nil, nil
	case config.BackendTable:
		return backend.NewTableLookup(), nil, nil
	case config.BackendClassifier:
		artifacts, err := classifier.NewStore(cfg.ArtifactDir, logger).LoadOrCreate()
		if err != nil {
			return nil, nil, err
		}
		return backend.NewLearnedClassifier(artifacts), nil, nil
	case config.BackendGemini:
		gen, err := backend.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, nil, err
		}
		return backend.NewGenerative(gen, logger), gen.Close, nil
	case config.BackendOpenAI:
		gen, err := backend.NewOpenAI(cfg.OpenAIURL, cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.RequestTimeout)
		if err != nil {
			return nil, nil, err
		}
		return backend.NewGenerative(gen, logger), nil, nil
	case config.BackendGRPC:
		proc, conn, err := grpcclient.DialImageProcessor(ctx, cfg.ImageProcessorAddr, logger)
		if err != nil {
			return nil, nil, err
		}
		return proc, conn.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 1 && origins[0] == "*" {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}

func initDatabase(ctx context.Context, dsn string, zapLogger *zap.Logger) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
