package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"garage-sentry-backend/config"
	"garage-sentry-backend/internal/accessory"
	"garage-sentry-backend/internal/api"
	"garage-sentry-backend/internal/db"
	"garage-sentry-backend/internal/device"
	"garage-sentry-backend/internal/discovery"
	"garage-sentry-backend/internal/door"
	"garage-sentry-backend/internal/gateway"
	"garage-sentry-backend/internal/logging"
	"garage-sentry-backend/internal/mqtt"
	"garage-sentry-backend/internal/notification"
	"garage-sentry-backend/internal/poller"
	"garage-sentry-backend/internal/reconciler"
	"garage-sentry-backend/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the door service",
	RunE:  runServe,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Poll the device once and print the door state",
	RunE:  runStatus,
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	path := resolveConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration from %s: %w", path, err)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("configuration loaded", zap.String("path", path))
	return cfg, logger, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	client, err := device.NewClient(&cfg.Device, logger)
	if err != nil {
		return err
	}
	snap, err := client.FetchState(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", cfg.Device.Name, door.StateFromClosed(snap.IsClosed))
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := device.NewClient(&cfg.Device, logger.Named("device"))
	if err != nil {
		return err
	}

	gw := gateway.New(client, logger.Named("gateway"))
	rec := reconciler.New(client, gw, reconciler.Options{
		DoorTimeout: cfg.Device.DoorTimeout,
		Logger:      logger.Named("reconciler"),
	})
	gw.SetReporter(rec)
	initial := rec.Initialize(ctx)

	info := accessory.NewInfo(&cfg.Device)
	adapter := accessory.New(rec, info, logger.Named("accessory"))
	rec.AddListener(adapter)

	var webpushOptions *webpush.Options
	var pool *notification.WorkerPool

	gormDB, err := db.Init(&cfg.Database, logger.Named("db"))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	appStore := store.NewGormStore(gormDB)
	if err := accessory.Register(ctx, appStore, info, initial); err != nil {
		return err
	}
	adapter.AddPublisher(accessory.NewRegistryPublisher(appStore, info.SerialNumber))

	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool = notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions, logger.Named("notification"))
		rec.AddListener(pool.Listener(info.Name))
	} else {
		logger.Warn("VAPID keys not configured, obstruction alerts disabled")
	}

	hub := api.NewHub(logger.Named("events"))
	adapter.AddPublisher(hub)

	if cfg.MQTT.Enabled {
		topics := mqtt.Topics{Prefix: cfg.MQTT.TopicPrefix, DeviceID: cfg.Device.DeviceID}
		mqttClient, err := mqtt.Connect(&cfg.MQTT, topics, logger.Named("mqtt"))
		if err != nil {
			return err
		}
		defer mqttClient.Close()

		bridge := mqtt.NewBridge(mqttClient, topics, adapter, logger.Named("mqtt"))
		if err := bridge.Start(ctx); err != nil {
			return err
		}
		if err := bridge.PublishUpdate(reconciler.Update{
			Current: initial.Current,
			Target:  initial.Target,
			Reason:  reconciler.ReasonObserved,
			At:      time.Now().UTC(),
		}); err != nil {
			logger.Warn("failed to publish initial state", zap.Error(err))
		}
		adapter.AddPublisher(bridge)
	}

	go rec.Run(ctx)
	go adapter.Run(ctx)
	gw.Start(ctx)
	if pool != nil {
		pool.Start(ctx)
	}
	go poller.New(client, rec, cfg.Device.PollRate, logger.Named("poller")).Run(ctx)

	handler := api.NewHandler(adapter, appStore, webpushOptions, hub, logger.Named("api"))
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewRouter(handler, &cfg.Server),
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if cfg.Discovery.Enabled {
		if err := discovery.Advertise(ctx, cfg.Discovery.Instance, cfg.Discovery.Service, cfg.Server.Port, info, logger.Named("discovery")); err != nil {
			logger.Warn("mDNS advertisement failed", zap.Error(err))
		}
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutdown signal received, stopping services")
	case err := <-serverErr:
		return fmt.Errorf("HTTP server ListenAndServe: %w", err)
	}

	cancel()
	hub.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server Shutdown: %w", err)
	}

	logger.Info("server gracefully stopped")
	return nil
}
