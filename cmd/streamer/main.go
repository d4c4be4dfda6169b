// Package main runs the gesture streaming client: camera capture, the classifier link,
// the control API and the UI event socket, with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/signstream/streamer/config"
	"github.com/signstream/streamer/internal/capture"
	"github.com/signstream/streamer/internal/classifier"
	"github.com/signstream/streamer/internal/control"
	"github.com/signstream/streamer/internal/encoder"
	"github.com/signstream/streamer/internal/middleware"
	"github.com/signstream/streamer/internal/progress"
	"github.com/signstream/streamer/internal/realtime"
	"github.com/signstream/streamer/internal/session"
	"github.com/signstream/streamer/pkg/database"
	"github.com/signstream/streamer/pkg/queue"
	"github.com/signstream/streamer/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	tunables, err := cfg.Pipeline.Resolve()
	if err != nil {
		logger.Fatal("pipeline config", zap.Error(err))
	}

	ctx := context.Background()

	// Redis and Postgres are optional for a local client: without them outcomes are
	// only logged and events stay on this instance.
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		rdb, err = redis.NewClient(pingCtx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		cancel()
		if err != nil {
			logger.Warn("redis disabled", zap.Error(err))
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	var repo *progress.Repository
	if cfg.Database.URL != "" {
		dbCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		pool, err := database.NewPostgresPool(dbCtx, cfg.Database.URL, logger)
		if err == nil {
			err = database.Migrate(dbCtx, pool)
			if err != nil {
				pool.Close()
			}
		}
		cancel()
		if err != nil {
			logger.Warn("database disabled", zap.Error(err))
		} else {
			defer pool.Close()
			repo = progress.NewRepository(pool)
		}
	}

	var store session.ProgressStore
	switch {
	case rdb != nil:
		store = progress.NewQueueStore(queue.NewQueue(rdb.Client, logger), logger)
	case repo != nil:
		store = repo
	default:
		store = progress.NewLogStore(logger)
	}

	var hub *realtime.Hub
	if rdb != nil {
		redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
		hub = realtime.NewHub(logger, redisPubSub, redisPubSub)
	} else {
		hub = realtime.NewHub(logger, nil, nil)
	}

	host := classifier.NewHostClient(cfg.Classifier.HTTPURL, cfg.Classifier.HandshakeTimeout, logger)
	enc := encoder.New(encoder.Config{
		Width:   cfg.Capture.FrameWidth,
		Height:  cfg.Capture.FrameHeight,
		Quality: cfg.Capture.JPEGQuality,
	})
	sessionCfg := session.Config{
		Tunables:    tunables,
		Endpoint:    cfg.Classifier.WSURL,
		HealthCheck: cfg.Classifier.HealthCheck,
	}

	newPolicy, err := classifier.ReconnectPolicyFactory(cfg.Classifier.ReconnectPolicy, tunables.ReconnectDelay)
	if err != nil {
		logger.Fatal("reconnect policy", zap.Error(err))
	}
	newSession := func() *session.Session {
		conn := classifier.NewConn(classifier.Options{
			HandshakeTimeout: cfg.Classifier.HandshakeTimeout,
			FrameTimeout:     tunables.FrameTimeout,
			Reconnect:        newPolicy(),
			Config:           classifier.NewConfigMessage(cfg.Classifier.FastMode, tunables.ConfidenceThreshold),
		}, logger)
		return session.New(sessionCfg, session.Deps{
			Camera:   newCamera(cfg.Capture),
			Encoder:  enc,
			Conn:     conn,
			Host:     host,
			Store:    store,
			Listener: hub,
			Logger:   logger,
		})
	}
	registry := session.NewRegistry(newSession, logger)
	hub.SetCommandHandler(control.HubCommands(registry))
	origins := middleware.NewOriginPolicy(cfg.Server.CORSAllowedOrigins)
	hub.SetOriginPolicy(origins.Allows)

	var outcomes control.OutcomeLister
	if repo != nil {
		outcomes = repo
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(origins))
	router.Use(middleware.Logger(logger))
	control.NewHandler(registry, host, outcomes, logger).Register(router, hub)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("control API listening",
			zap.String("port", cfg.Server.Port),
			zap.String("profile", cfg.Pipeline.Profile),
			zap.String("classifier", cfg.Classifier.WSURL),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	registry.Stop()
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("streamer stopped")
}

func newCamera(cfg config.CaptureConfig) capture.Camera {
	if cfg.Source == "dir" {
		return capture.NewDirCamera(cfg.Dir)
	}
	return capture.NewSyntheticCamera(cfg.FrameWidth*2, cfg.FrameHeight*2)
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
