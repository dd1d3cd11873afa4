package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vdavid/statusreport/backend/internal/config"
	"github.com/vdavid/statusreport/backend/internal/gmail"
	"github.com/vdavid/statusreport/backend/internal/logging"
	"github.com/vdavid/statusreport/backend/internal/middleware"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}

	root := &cobra.Command{
		Use:          "server",
		Short:        "Project status reporter",
		Long:         "Collects board, mailbox and chat activity into a status report, analyzes it and posts the analysis to chat.",
		SilenceUsage: true,
		RunE:         runServe,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	root.AddCommand(serve, newReportCmd(), newGmailAuthCmd())
	return root
}

func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Generate one report and print it as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			app, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			resp, err := app.pipeline.Run(cmd.Context(), middleware.NewRequestID())
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(resp)
		},
	}
}

func newGmailAuthCmd() *cobra.Command {
	var credentialsPath, tokenPath string

	cmd := &cobra.Command{
		Use:   "gmail-auth",
		Short: "Authorize mailbox access and write the OAuth token file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			config.LoadDotEnv()
			if credentialsPath == "" {
				credentialsPath = envOr("GMAIL_CREDENTIALS_PATH", "credentials.json")
			}
			if tokenPath == "" {
				tokenPath = envOr("GMAIL_TOKEN_PATH", "token.json")
			}
			return gmail.Authorize(cmd.Context(), credentialsPath, tokenPath, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&credentialsPath, "credentials", "", "OAuth client secrets file (default $GMAIL_CREDENTIALS_PATH or credentials.json)")
	cmd.Flags().StringVar(&tokenPath, "token", "", "token file to write (default $GMAIL_TOKEN_PATH or token.json)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           NewServer(cfg, logger, app.pipeline, app.hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Server starting",
			zap.String("address", server.Addr),
			zap.String("environment", cfg.Environment),
			zap.String("version", cfg.ProjectVersion),
		)
		errChan <- server.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		logger.Error("Server failed", zap.Error(err))
		return err
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	app.hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Some requests did not finish before shutdown", zap.Error(err))
		return err
	}
	logger.Info("Server stopped")
	return nil
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return cfg, logger, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
