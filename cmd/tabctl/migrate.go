package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Dosada05/debate-tab/db"
	"github.com/spf13/cobra"
)

var (
	migrateDSN     string
	migratePrint   bool
	migrateTimeout time.Duration
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	Long:  `Applies the embedded schema. Every statement is idempotent, so running it twice is safe.`,
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrateDSN, "dsn", os.Getenv("DATABASE_URL"), "Postgres connection string (default $DATABASE_URL)")
	migrateCmd.Flags().BoolVar(&migratePrint, "print", false, "print the schema instead of applying it")
	migrateCmd.Flags().DurationVar(&migrateTimeout, "timeout", 30*time.Second, "connect and migrate timeout")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if migratePrint {
		_, err := fmt.Fprint(cmd.OutOrStdout(), db.Schema())
		return err
	}
	if migrateDSN == "" {
		return errors.New("no database: pass --dsn or set DATABASE_URL")
	}

	conn, err := db.Connect(migrateDSN, migrateTimeout, db.DefaultPoolOptions)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), migrateTimeout)
	defer cancel()
	if err := db.Migrate(ctx, conn); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
	return nil
}
