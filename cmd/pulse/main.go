// Package main provides the CLI entry point for the pulse realtime
// operations service.
//
// Pulse backs the vendor marketplace with realtime messaging, inventory and
// order derivations, vendor risk assessment, and application review SLAs.
//
// # Basic Usage
//
// Start the server:
//
//	pulse serve --config pulse.yaml
//
// Validate a configuration file:
//
//	pulse check --config pulse.yaml
//
// Issue a token for local testing:
//
//	pulse token --user vendor-1 --type vendor
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vendorlane/pulse/internal/auth"
	"github.com/vendorlane/pulse/internal/config"
	"github.com/vendorlane/pulse/internal/gateway"
	"github.com/vendorlane/pulse/internal/observability"
	"github.com/vendorlane/pulse/internal/risk"
	"github.com/vendorlane/pulse/internal/store"
	"github.com/vendorlane/pulse/pkg/models"
)

// Build information - populated by ldflags during build.
//
// Example build command:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "pulse",
		Short:        "Pulse - realtime operations service for the vendor marketplace",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildCheckCmd(),
		buildTokenCmd(),
		buildAssessCmd(),
	)
	return rootCmd
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the pulse gateway server",
		Long: `Start the gateway: the HTTP API, the websocket hub, and the review
SLA sweeper. Graceful shutdown is handled on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if debug {
		cfg.Observability.Logging.Level = "debug"
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:          cfg.Observability.Logging.Level,
		Format:         cfg.Observability.Logging.Format,
		RedactPatterns: cfg.Observability.Logging.RedactPatterns,
	})
	slog.SetDefault(logger.Slog())

	var metrics *observability.Metrics
	if cfg.Observability.Metrics.Enabled {
		metrics = observability.NewMetrics()
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, shutdownTracing, err := observability.NewTracer(ctx, observability.TraceConfig{
		ServiceName:    cfg.Observability.Tracing.ServiceName,
		ServiceVersion: version,
		Endpoint:       tracingEndpoint(cfg),
		SamplingRate:   cfg.Observability.Tracing.SampleRatio,
		EnableInsecure: true,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer shutdownTracing(context.Background()) //nolint:errcheck

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	authService := auth.NewService(auth.Config{
		JWTSecret:   cfg.Auth.JWTSecret,
		TokenExpiry: cfg.Auth.TokenExpiry,
		APIKeys:     apiKeys(cfg),
	})

	server, err := gateway.NewServer(gateway.Options{
		Config:  cfg,
		Store:   st,
		Auth:    authService,
		Logger:  logger.Slog(),
		Metrics: metrics,
	})
	if err != nil {
		return err
	}

	slog.Info("starting pulse", "version", version, "commit", commit, "storage", cfg.Storage.Driver)
	if err := server.Start(ctx); err != nil {
		return err
	}

	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, logger.Slog(), func(updated *config.Config) {
				logger.SetLevel(updated.Observability.Logging.Level)
			})
			if err != nil && ctx.Err() == nil {
				slog.Warn("config watch stopped", "error", err)
			}
		}()
	}

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	server.Stop(shutdownCtx)
	return nil
}

func tracingEndpoint(cfg *config.Config) string {
	if !cfg.Observability.Tracing.Enabled {
		return ""
	}
	return cfg.Observability.Tracing.Endpoint
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Storage.Driver {
	case "sqlite":
		return store.NewSQLiteStore(cfg.Storage.SQLite.Path)
	case "postgres":
		pg := cfg.Storage.Postgres
		return store.NewPostgresStore(&store.PostgresConfig{
			Host:            pg.Host,
			Port:            pg.Port,
			User:            pg.User,
			Password:        pg.Password,
			Database:        pg.Database,
			SSLMode:         pg.SSLMode,
			MaxOpenConns:    pg.MaxConnections,
			ConnMaxLifetime: pg.ConnMaxLifetime,
		})
	default:
		return store.NewMemoryStore(), nil
	}
}

func apiKeys(cfg *config.Config) []auth.APIKeyConfig {
	out := make([]auth.APIKeyConfig, 0, len(cfg.Auth.APIKeys))
	for _, key := range cfg.Auth.APIKeys {
		out = append(out, auth.APIKeyConfig{
			Key:    key.Key,
			UserID: key.UserID,
			Type:   key.Type,
			Email:  key.Email,
			Name:   key.Name,
		})
	}
	return out
}

func buildCheckCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: storage=%s listen=%s:%d\n",
				cfg.Storage.Driver, cfg.Server.Host, cfg.Server.Port)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func buildTokenCmd() *cobra.Command {
	var (
		configPath string
		userID     string
		userType   string
		secret     string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a JWT for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			jwtSecret := secret
			if jwtSecret == "" {
				cfg, err := loadConfig(configPath)
				if err != nil {
					return err
				}
				jwtSecret = cfg.Auth.JWTSecret
			}
			if jwtSecret == "" {
				return fmt.Errorf("no jwt secret configured; pass --secret or a config file")
			}

			service := auth.NewService(auth.Config{JWTSecret: jwtSecret})
			token, err := service.GenerateJWT(&models.User{
				ID:   userID,
				Type: models.UserType(userType),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&userID, "user", "", "User id to embed in the token")
	cmd.Flags().StringVar(&userType, "type", "customer", "User type (vendor, customer, admin)")
	cmd.Flags().StringVar(&secret, "secret", "", "JWT secret (overrides config)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func buildAssessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assess [application.json]",
		Short: "Run a risk assessment on an application JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var app models.Application
			if err := json.Unmarshal(data, &app); err != nil {
				return fmt.Errorf("parse application: %w", err)
			}

			assessment := risk.Evaluate(&app)
			out, err := json.MarshalIndent(assessment, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	return cmd
}
