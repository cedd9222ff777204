// Command main is the entry point for the FundSphere API server.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fundsphere/internal/bootstrap"
	"fundsphere/internal/config"
	"fundsphere/internal/jobs"
	"fundsphere/internal/middleware"
	"fundsphere/internal/notifications"
	"fundsphere/internal/observability"
	"fundsphere/internal/server"
	"fundsphere/internal/service"
)

// @title FundSphere API
// @version 1.0
// @description Crowdfunding campaigns, accounts and administration

// @contact.name API Support

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:4000
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token. Browsers send the session cookie instead.

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logCloser := middleware.ConfigureLogger(middleware.LogOptions{Env: cfg.Env, Level: cfg.LogLevel, File: cfg.LogFile})
	defer func() { _ = logCloser.Close() }()

	shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    "fundsphere-api",
		ServiceVersion: "1.0",
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TracingSampleRatio,
	})
	if err != nil {
		return err
	}

	ctx := context.Background()
	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{WithMedia: true, EnsureRootAdmin: true})
	if err != nil {
		return err
	}

	srv, err := server.NewServer(server.Deps{
		Config:    cfg,
		Stores:    rt.Stores,
		Redis:     rt.Redis,
		Ingestor:  rt.Ingestor,
		UploadDir: rt.UploadDir,
		Clock:     service.SystemClock{},
	})
	if err != nil {
		_ = rt.Close(ctx)
		return err
	}

	scheduler, err := jobs.NewManager()
	if err != nil {
		_ = rt.Close(ctx)
		return err
	}
	if err := scheduler.Register(jobs.NewReconcileJob(srv.Deleter(), cfg.ReconcileInterval)); err != nil {
		_ = rt.Close(ctx)
		return err
	}
	scheduler.Start()

	eventsCtx, stopEvents := context.WithCancel(ctx)
	defer stopEvents()
	if err := srv.Notifier().StartCampaignSubscriber(eventsCtx, logCampaignEvent); err != nil {
		middleware.Logger.Warn("campaign event subscriber not started", slog.String("error", err.Error()))
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		middleware.Logger.Info("shutting down", slog.String("signal", sig.String()))
	case runErr = <-serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	stopEvents()
	errs := []error{runErr}
	errs = append(errs, srv.Shutdown(shutdownCtx))
	errs = append(errs, scheduler.Stop())
	errs = append(errs, rt.Close(shutdownCtx))
	errs = append(errs, shutdownTracing(shutdownCtx))
	return errors.Join(errs...)
}

func logCampaignEvent(ev notifications.CampaignEvent) {
	middleware.Logger.Info("campaign event",
		slog.String("type", ev.Type),
		slog.String("campaign_id", ev.CampaignID),
		slog.String("actor_id", ev.ActorID),
		slog.Int64("affected", ev.Affected),
	)
}
