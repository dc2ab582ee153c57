package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"legacy2norm/internal/app"
	"legacy2norm/internal/config"
	"legacy2norm/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "legacy2norm",
	Short: "Migrate legacy MongoDB collections into normalized ones",
	Long:  `A checkpointed, resumable batch migration tool that drains legacy collections into normalized target collections, with dry-run simulation and post-hoc count verification.`,
	RunE:  runMigration,
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run the advisory count check for every configured step",
	RunE:  runVerify,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ./config.yaml)")

	// Database flags
	rootCmd.PersistentFlags().String("mongo-uri", "", "MongoDB connection URI")
	rootCmd.PersistentFlags().String("mongo-db", "", "Database name")

	// Checkpoint flags
	rootCmd.Flags().String("checkpoint-backend", "mongo", "Checkpoint backend (mongo/sqlite/memory)")
	rootCmd.Flags().String("checkpoint-collection", "migration_checkpoints", "Checkpoint collection (mongo backend)")
	rootCmd.Flags().String("checkpoint-path", "./checkpoint.db", "Checkpoint database file (sqlite backend)")

	// Archive flags
	rootCmd.Flags().String("archive-endpoint", "", "S3-compatible endpoint for pre-migration batch backups")
	rootCmd.Flags().String("archive-access-key", "", "Archive access key")
	rootCmd.Flags().String("archive-secret-key", "", "Archive secret key")
	rootCmd.Flags().Bool("archive-secure", true, "Use HTTPS for the archive endpoint")
	rootCmd.Flags().String("archive-bucket", "", "Archive bucket name")
	rootCmd.Flags().String("archive-prefix", "", "Archive object key prefix")

	// Migration flags
	rootCmd.Flags().Int("batch-size", 500, "Documents fetched and processed per batch")
	rootCmd.Flags().Bool("dry-run", false, "Read and transform without writing or tallying")
	rootCmd.Flags().Bool("resume", false, "Resume steps from their checkpoints")
	rootCmd.Flags().Bool("show-progress", true, "Show progress display (auto-disabled for dry-run)")
	rootCmd.Flags().String("log-level", "info", "Log level (debug/info/warn/error)")
	rootCmd.Flags().String("metrics-addr", ":8080", "Prometheus metrics listen address")

	rootCmd.AddCommand(verifyCmd)
}

func runMigration(cmd *cobra.Command, args []string) error {
	migrator, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("Received shutdown signal, stopping after the current batch...")
		cancel()
	}()

	err = migrator.Run(ctx)

	if closeErr := migrator.Close(context.Background()); closeErr != nil {
		log.Error("Error closing migrator", zap.Error(closeErr))
	}

	return err
}

func runVerify(cmd *cobra.Command, args []string) error {
	migrator, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := context.Background()
	err = migrator.Verify(ctx)

	if closeErr := migrator.Close(ctx); closeErr != nil {
		log.Error("Error closing migrator", zap.Error(closeErr))
	}

	return err
}

func setup(cmd *cobra.Command) (*app.Migrator, *zap.Logger, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return app.New(cfg, log), log, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
