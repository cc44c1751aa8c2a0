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

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	appanalysis "github.com/bryanwahyu/supplement-advisor/internal/application/analysis"
	"github.com/bryanwahyu/supplement-advisor/internal/config"
	"github.com/bryanwahyu/supplement-advisor/internal/infra/httpserver"
	"github.com/bryanwahyu/supplement-advisor/internal/logger"
)

var (
	configPath  string
	autoMigrate bool
	formFile    string
	seedCatalog bool

	cfg *config.Config
	log *zap.Logger

	rootCmd = &cobra.Command{
		Use:           "supplement-advisor",
		Short:         "Supplement recommendations from a medical intake questionnaire",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return fmt.Errorf("config load error: %w", err)
			}
			log = logger.New(logger.Config{
				Level:       cfg.Log.Level,
				Format:      cfg.Log.Format,
				Development: cfg.Server.Debug,
			})
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if log != nil {
				_ = log.Sync()
			}
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	migrateUpCmd = &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), true)
		},
	}
	migrateDownCmd = &cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), false)
		},
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	analyzeCmd = &cobra.Command{
		Use:   "analyze",
		Short: "Analyze one questionnaire from a JSON file and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			return analyzeFile(cmd.Context())
		},
	}
)

func init() {
	defaultPath := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		defaultPath = v
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultPath, "path to the YAML config file (optional)")

	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&autoMigrate, "migrate", true, "apply migrations on startup when a database is configured")

	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
	migrateUpCmd.Flags().BoolVar(&seedCatalog, "seed", false, "load the built-in supplement catalog after migrating")

	rootCmd.AddCommand(configCmd)

	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVarP(&formFile, "file", "f", "", "questionnaire JSON: {\"form_data\": {...}, \"user_id\": \"...\"} or bare answers")
	_ = analyzeCmd.MarkFlagRequired("file")
}

func serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, log, autoMigrate)
	if err != nil {
		return err
	}
	defer a.Close()

	handler := httpserver.NewRouter(a.svc, httpserver.Options{
		Logger:       log,
		Metrics:      a.metrics,
		Checkers:     a.checkers,
		CORSOrigins:  cfg.Server.CORSOrigins,
		AllowedHosts: cfg.Server.AllowedHosts,
		APIKeys:      cfg.Server.APIKeys,
		RateLimitRPS: cfg.Server.RateLimit.RPS,
		RateBurst:    cfg.Server.RateLimit.Burst,
		Debug:        cfg.Server.Debug,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.LLM.Timeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.Bool("ai_configured", a.svc.AIConfigured()),
			zap.String("cache", cfg.Cache.Backend),
			zap.String("database", cfg.DatabaseDriver()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}

func analyzeFile(ctx context.Context) error {
	data, err := os.ReadFile(formFile)
	if err != nil {
		return err
	}
	var body struct {
		FormData map[string]any `json:"form_data"`
		UserID   string         `json:"user_id"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return fmt.Errorf("decode %s: %w", formFile, err)
	}
	if body.FormData == nil {
		if err := json.Unmarshal(data, &body.FormData); err != nil {
			return fmt.Errorf("decode %s: %w", formFile, err)
		}
	}

	a, err := buildApp(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer a.Close()

	formID := "form_" + body.UserID
	if body.UserID == "" {
		formID = "form_" + uuid.NewString()
	}
	res := a.svc.Analyze(ctx, appanalysis.Request{FormID: formID, UserID: body.UserID, Answers: body.FormData})

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
