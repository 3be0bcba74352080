package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"pdfquiz"

	"github.com/sirupsen/logrus"
)

func main() {
	var (
		configFile = flag.String("config", os.Getenv("PDFQUIZ_CONFIG"), "Path to a YAML config file")
		verbose    = flag.Bool("verbose", false, "Enable verbose debugging output")
	)
	flag.Parse()

	cfg, err := pdfquiz.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := pdfquiz.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	pdfquiz.SetVerbose(logger, *verbose)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("Server stopped")
	}
}

func run(cfg *pdfquiz.Config, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	completer, err := pdfquiz.NewCompleter(ctx, cfg.LLM, logger)
	if err != nil {
		return fmt.Errorf("failed to create completion client: %w", err)
	}
	if closer, ok := completer.(io.Closer); ok {
		defer closer.Close()
	}

	var metrics *pdfquiz.Metrics
	var recorder pdfquiz.StageRecorder
	if cfg.Metrics.Enabled {
		metrics = pdfquiz.NewMetrics()
		recorder = metrics
	}
	pipeline := pdfquiz.NewPipelineFromConfig(cfg, completer, recorder, logger)

	var db *pdfquiz.DB
	if cfg.Store.Path != "" {
		db, err = pdfquiz.OpenDB(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer db.CloseDB()
	}

	server := newServer(cfg, pipeline, db, metrics, logger)
	e := server.routes()
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":     addr,
			"provider": cfg.LLM.Provider,
			"engine":   cfg.Extract.Engine,
			"archive":  cfg.Store.Path != "",
		}).Info("Starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
