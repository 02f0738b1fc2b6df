package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	dbfs "github.com/garnizeh/qna/db"
	"github.com/garnizeh/qna/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply migrations and seed data",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

var backupCmd = &cobra.Command{
	Use:   "backup [destination]",
	Short: "Write a consistent copy of the database",
	Long:  `Writes a snapshot with VACUUM INTO, so it is safe while the server runs. The default destination is <database_path>.bak.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBackup,
}

var restoreCmd = &cobra.Command{
	Use:   "restore [source]",
	Short: "Replace the database with a backup",
	Long:  `Copies a backup over the database file. Stop the server first. The default source is <database_path>.bak.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRestore,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := db.Migrate(ctx, e.conn, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Database migrated.")
	return nil
}

func runBackup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	dst := e.cfg.DatabasePath + ".bak"
	if len(args) == 1 {
		dst = args[0]
	}
	// VACUUM INTO refuses to overwrite
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove old backup: %w", err)
	}
	if _, err := e.conn.Exec(ctx, `VACUUM INTO ?`, dst); err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Database backup written to %s.\n", dst)
	return nil
}

func runRestore(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	src := cfg.DatabasePath + ".bak"
	if len(args) == 1 {
		src = args[0]
	}
	if err := copyFile(src, cfg.DatabasePath); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	// stale journals would be replayed over the restored file
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(cfg.DatabasePath + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", suffix, err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Database restored from %s.\n", src)
	return nil
}

func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dstFile, srcFile); err != nil {
		dstFile.Close()
		return err
	}
	return dstFile.Close()
}
