package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/lesion-check/internal/analysis"
	"github.com/example/lesion-check/internal/config"
	"github.com/example/lesion-check/internal/consent"
	"github.com/example/lesion-check/internal/handlers"
	"github.com/example/lesion-check/internal/logging"
	"github.com/example/lesion-check/internal/media"
	"github.com/example/lesion-check/internal/notify"
	"github.com/example/lesion-check/internal/predictclient"
	"github.com/example/lesion-check/internal/predictor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	gin.SetMode(gin.ReleaseMode)
	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build workflow", zap.Error(err))
	}
	defer a.Close()

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: a.router,
	}

	logger.Info("lesion-check workflow listening",
		zap.String("addr", cfg.ListenAddr),
		zap.String("predict_url", cfg.Predict.BaseURL+cfg.Predict.Path),
		zap.Bool("camera", cfg.Camera.SnapshotURL != ""),
		zap.Bool("cache", cfg.Cache.RedisAddr != ""),
	)
	if err := serveHTTPServer(server, cfg.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

type app struct {
	router       *gin.Engine
	orchestrator *analysis.Orchestrator
	closers      []func() error
}

func newApp(cfg config.Config, logger *zap.Logger) (*app, error) {
	client, err := predictclient.New(predictclient.Options{
		BaseURL: cfg.Predict.BaseURL,
		Path:    cfg.Predict.Path,
		Timeout: cfg.Predict.Timeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	a := &app{}
	var predict predictor.Client = client
	if cfg.Cache.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		redisClient, err := initRedis(ctx, cfg.Cache.RedisAddr)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, redisClient.Close)
		predict = predictor.NewCachingClient(client, predictor.NewRedisCache(redisClient), cfg.Cache.TTL, logger)
	}

	bus := notify.NewBus()
	inbox := notify.NewInbox(50)
	if err := inbox.Attach(bus); err != nil {
		return nil, logging.NewOperationError("main.attach_inbox", "", err)
	}

	gate := &consent.Gate{}
	a.orchestrator = analysis.New(predict, gate, bus, logger, analysis.WithFallbackDelay(cfg.Fallback.Delay))

	var camera media.Camera
	if cfg.Camera.SnapshotURL != "" {
		camera = media.NewSnapshotCamera(cfg.Camera.SnapshotURL, 10*time.Second)
	}

	a.router = gin.New()
	a.router.Use(gin.Logger(), gin.Recovery())
	a.router.MaxMultipartMemory = cfg.Media.MaxBytes + 1<<20

	handlers.RegisterRoutes(a.router, handlers.Deps{
		Orchestrator: a.orchestrator,
		Acquirer:     media.NewAcquirer(cfg.Media.MaxBytes, logger),
		Gate:         gate,
		Camera:       camera,
		Facing:       media.Facing(cfg.Camera.Facing),
		Notifier:     bus,
		Inbox:        inbox,
		Logger:       logger,
	})
	return a, nil
}

// Close abandons any in-flight submission and releases connections.
func (a *app) Close() {
	a.orchestrator.Reset()
	for _, closeFn := range a.closers {
		_ = closeFn()
	}
}

func initRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, logging.NewOperationError("main.init_redis", "", err)
	}
	return client, nil
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
