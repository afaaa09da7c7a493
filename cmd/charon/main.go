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

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"charon/internal/attachment"
	"charon/internal/config"
	"charon/internal/gateway"
	"charon/internal/principal"
	"charon/internal/schema"
	"charon/internal/store"
)

const version = "1.1.0"

var (
	configPath string
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "charon",
	Short: "charon - label-aware document gateway",
	Long: `charon is an attribute-based access-control gateway over a document
database. Documents and their sub-objects carry {cat, diss} security labels;
reads are redacted server-side to what the caller is cleared for, and writes
are admitted only when the caller dominates every label they touch.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the charon version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("charon %s\n", version)
	},
}

func serve(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	schemas, err := schema.Load(cfg.SchemaSource)
	if err != nil {
		return err
	}
	logger.Info("loaded resource schemas",
		zap.Strings("resources", schemas.Resources()))

	docs, err := store.NewMongoStore(cfg.Database.Host, cfg.Database.Name, store.Auth{
		Username:   cfg.Database.Username,
		Password:   cfg.Database.Password,
		AuthSource: cfg.Database.AuthSource,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := docs.Close(shutdownCtx); err != nil {
			logger.Warn("closing database client", zap.Error(err))
		}
	}()

	directory := principal.NewMongoDirectory(docs.Database(), cfg.Database.PermissionsCollection)

	var blobs attachment.BlobStore
	if cfg.Attachments.Enabled() {
		s3blobs, err := attachment.NewS3Blobs(ctx, attachment.S3Config{
			AccessKey: cfg.BlobStore.AccessKey,
			SecretKey: cfg.BlobStore.SecretKey,
			Region:    cfg.BlobStore.Region,
			Bucket:    cfg.BlobStore.Bucket,
			Endpoint:  cfg.BlobStore.Endpoint,
		})
		if err != nil {
			return err
		}
		blobs = s3blobs
	}
	attachments := attachment.NewService(cfg.Attachments.Enabled(), blobs, logger)

	srv := gateway.New(logger, schemas, docs, directory, attachments)
	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening",
			zap.String("addr", cfg.Listen),
			zap.Bool("attachments", cfg.Attachments.Enabled()))
		errCh <- httpSrv.ListenAndServe()
	}()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-sigCtx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.AddCommand(serveCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
