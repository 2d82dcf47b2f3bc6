package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cortex-x/go-smartcard-bridge/internal/api"
	"github.com/cortex-x/go-smartcard-bridge/internal/bridge"
	"github.com/cortex-x/go-smartcard-bridge/internal/codec"
	"github.com/cortex-x/go-smartcard-bridge/internal/config"
	"github.com/cortex-x/go-smartcard-bridge/internal/infra/smartcard"
	"github.com/cortex-x/go-smartcard-bridge/internal/logging"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bridge server",
	RunE:  runServe,
}

func setup() (*config.Config, logging.Logger, io.Closer, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, closer, err := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return cfg, logger, closer, nil
}

func newDriver(cfg *config.Config, logger logging.Logger) (*smartcard.PCSCDriver, error) {
	return smartcard.NewPCSCDriver(smartcard.Config{
		ReaderName:    cfg.Reader.Name,
		PollInterval:  cfg.Reader.PollInterval,
		RetryInterval: cfg.Reader.RetryInterval,
		Logger:        logger,
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, logCloser, err := setup()
	if err != nil {
		return err
	}
	defer logCloser.Close()

	// A nil Driver leaves the endpoint reporting the driver as unavailable.
	var driver bridge.Driver
	pcsc, err := newDriver(cfg, logger)
	if err != nil {
		logger.Warn("Failed to initialize card reader", "error", err.Error())
	} else {
		driver = pcsc
	}

	endpoint := bridge.NewEndpoint(driver,
		bridge.WithEncoder(codec.NewEncoder(codec.WithRawOIDs(cfg.Codec.IncludeRawOIDs))),
		bridge.WithLogger(logger),
	)

	if pcsc != nil {
		if err := pcsc.StartMonitoring(); err != nil {
			logger.Error("Failed to start card monitoring", "error", err.Error())
		} else {
			logger.Info("Card reader monitoring started")
		}
	}

	server := api.NewServer(cfg, endpoint, logger)
	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	var serveErr error
	select {
	case <-quit:
	case serveErr = <-errCh:
		logger.Error("Server failed", "error", serveErr.Error())
	}

	logger.Info("Shutting down server...")

	endpoint.Close()
	if pcsc != nil {
		if err := pcsc.Close(); err != nil {
			logger.Warn("Failed to release card reader", "error", err.Error())
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited")
	return serveErr
}
