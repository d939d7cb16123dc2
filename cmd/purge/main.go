package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GoPolymarket/reqlog/internal/config"
	"github.com/GoPolymarket/reqlog/internal/handler"
	"github.com/GoPolymarket/reqlog/internal/pkg/logger"
	"github.com/GoPolymarket/reqlog/internal/repository"
	"github.com/GoPolymarket/reqlog/internal/service"
)

var (
	olderThan string
	dsn       string
)

var rootCmd = &cobra.Command{
	Use:   "reqlog-purge",
	Short: "Delete stored request records older than a retention window.",
	Long: `Delete stored request records older than a retention window.

--older-than takes a Go duration ("72h") or a number of days ("30").
When omitted, database.retention_days from the config is used.`,
	SilenceUsage: true,
	RunE:         runPurge,
}

func init() {
	rootCmd.Flags().StringVar(&olderThan, "older-than", "", "retention window, e.g. 72h or 30")
	rootCmd.Flags().StringVar(&dsn, "dsn", "", "override database.dsn")
}

func runPurge(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)

	if dsn != "" {
		cfg.Database.DSN = dsn
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is not configured")
	}

	window := olderThan
	if window == "" {
		window = strconv.Itoa(cfg.Database.RetentionDays)
	}
	retention, err := handler.ParseRetention(window)
	if err != nil {
		return err
	}

	db, err := repository.NewDB(cfg)
	if err != nil {
		return err
	}
	recorder := service.NewRecorderService(cfg.RequestLog, repository.NewPostgresRequestStore(db), nil)

	removed, err := recorder.Purge(cmd.Context(), retention)
	if err != nil {
		return err
	}
	logger.Info("purged request records", "removed", removed, "older_than", retention.String())
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d request records\n", removed)
	return nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
