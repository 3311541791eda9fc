package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/IlyasAtabaev731/bank-ledger/internal/config"
	"github.com/IlyasAtabaev731/bank-ledger/internal/seed"
	"github.com/IlyasAtabaev731/bank-ledger/internal/services/auth"
	"github.com/IlyasAtabaev731/bank-ledger/internal/services/ledger"
	"github.com/IlyasAtabaev731/bank-ledger/internal/storage/postgres"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create demo users, accounts and transactions",
	Long: `Create the demo users with their accounts and a short random history.
Users that already exist are skipped, so the command can be re-run safely.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runSeed,
}

func init() {
	rootCmd.Flags().StringP("config", "c", os.Getenv("CONFIG_PATH"), "Path to the config file")
	rootCmd.Flags().Int("movements", 5, "Random deposits and withdrawals per account")
	rootCmd.Flags().Int("transfers", 3, "Random transfers between seeded accounts")
	rootCmd.Flags().Uint64("seed", 1, "Random seed")
	rootCmd.Flags().Bool("migrate", false, "Apply migrations before seeding")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSeed(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	movements, _ := cmd.Flags().GetInt("movements")
	transfers, _ := cmd.Flags().GetInt("transfers")
	rndSeed, _ := cmd.Flags().GetUint64("seed")
	migrate, _ := cmd.Flags().GetBool("migrate")

	if path == "" {
		return fmt.Errorf("config path is required: use --config or CONFIG_PATH")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	dbUrl := cfg.Postgres.URL()
	if migrate {
		if _, err := postgres.Migrate(dbUrl, cfg.Postgres.MigrationsPath, "migrations"); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	st, err := postgres.New(dbUrl, postgres.Pool{MaxOpenConns: cfg.Postgres.MaxOpenConns}, log)
	if err != nil {
		return err
	}
	defer func() { _ = st.Stop() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := seed.New(log, auth.New(log, st, st, cfg.Auth.BcryptCost), ledger.New(log, st, nil))
	report, err := s.Run(ctx, seed.Options{
		Users:     seed.DemoUsers,
		Movements: movements,
		Transfers: transfers,
		Seed:      rndSeed,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "users created: %d, skipped: %d\n", report.Users, len(report.Skipped))
	fmt.Fprintf(out, "accounts created: %d\n", len(report.Accounts))
	fmt.Fprintf(out, "movements: %d, transfers: %d\n", report.Movements, report.Transfers)
	if report.Users > 0 {
		fmt.Fprintln(out, "\nDemo logins:")
		for _, u := range seed.DemoUsers {
			fmt.Fprintf(out, "  %-14s %s\n", u.Username, u.Password)
		}
	}
	return nil
}
