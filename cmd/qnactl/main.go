// Command qnactl is the operator tool for a qna deployment: schema
// migrations, database backups and one-off maintenance on questions.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/garnizeh/qna/internal/config"
	"github.com/garnizeh/qna/internal/db"
	"github.com/garnizeh/qna/internal/logging"
	"github.com/garnizeh/qna/internal/repository/sqlite"
)

var (
	version = "dev"

	configPath string
)

var rootCmd = &cobra.Command{
	Use:           "qnactl",
	Short:         "Operate a qna deployment",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config YAML file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "qnactl: %v\n", err)
		os.Exit(1)
	}
}

// env is what the commands share: the loaded config and an open store.
type env struct {
	cfg    *config.Config
	conn   *db.DB
	repo   *sqlite.SQLiteRepo
	logger *slog.Logger
}

func (e *env) Close() error {
	return e.conn.Close()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.DatabasePath == "" {
		return nil, fmt.Errorf("database_path is required")
	}
	return cfg, nil
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, _ := logging.New(config.LogConfig{Level: "warn"})

	conn, err := db.New(ctx, cfg.DatabasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return &env{cfg: cfg, conn: conn, repo: sqlite.New(conn, logger), logger: logger}, nil
}
