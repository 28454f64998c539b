package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agrosurvey/internal/analytics"
	"agrosurvey/internal/app"
	"agrosurvey/internal/auth"
	"agrosurvey/internal/survey"

	"go.uber.org/zap"
)

func main() {
	cfg := app.LoadConfig()

	logger, err := app.NewLogger(cfg)
	if err != nil {
		log.Printf("logger error: %v", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg app.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sv, tax, err := app.LoadSchema(cfg, logger)
	if err != nil {
		return err
	}

	responses, dbConn, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	if dbConn != nil {
		defer dbConn.Close()
	} else {
		logger.Warn("using in-memory response store; responses are lost on restart and admin login is disabled")
	}

	surveySvc, err := survey.NewService(survey.ServiceConfig{
		Survey:        sv,
		Taxonomy:      tax,
		Writer:        responses,
		SurveyVersion: cfg.SurveyVersion,
		SessionTTL:    cfg.SessionTTL(),
		Logger:        logger.Named("survey"),
	})
	if err != nil {
		return err
	}

	r := app.NewRouter(cfg, app.Dependencies{
		DB:        dbConn,
		Logger:    logger.Named("http"),
		Survey:    surveySvc,
		Analytics: analytics.NewService(responses, sv, tax, logger.Named("analytics")),
		Auth: auth.NewService(dbConn, auth.ServiceConfig{
			SessionTTL: cfg.AdminSessionTTL(),
			Logger:     logger.Named("auth"),
		}),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("agrosurvey web listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("store", cfg.StoreDriver),
			zap.String("survey_version", surveySvc.Version()),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
