// Command ledgerctl administers a churchledger SQLite database: schema
// migrations, report export, period rollups and API tokens.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"churchledger/internal/cli"
	"churchledger/internal/config"
	applog "churchledger/internal/log"
	"churchledger/internal/storage"
)

type app struct {
	cfg    *config.Config
	logger *applog.Logger
	dbPath string
}

func main() {
	cli.LoadEnvFile()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd(config.Load(), os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd(cfg *config.Config, logOut io.Writer) *cobra.Command {
	a := &app{cfg: cfg}

	cmd := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Administer a churchledger database",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.logger = applog.New(applog.ConfigFor("ledgerctl", cfg.LogLevel, cfg.LogFormat, logOut))
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&a.dbPath, "db", cfg.SQLiteDBPath, "SQLite database path")

	cmd.AddCommand(
		a.migrateCmd(),
		a.reportCmd(),
		a.rollupCmd(),
		a.tokenCmd(),
		wordsCmd(),
	)
	return cmd
}

// openStore opens the database, applying pending migrations.
func (a *app) openStore() (*storage.SQLiteRepository, error) {
	repo, err := storage.NewSQLiteRepository(a.dbPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", a.dbPath, err)
	}
	return repo, nil
}
