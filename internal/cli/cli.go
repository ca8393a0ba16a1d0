// Package cli wires configuration, storage and services into the
// auction-market commands.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"auction-market/internal/config"
	"auction-market/internal/server"
	"auction-market/utils"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	envFiles []string
}

// NewRootCommand builds the root auction-market command
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "auction-market",
		Short:         "Auction marketplace with bidding, wallets and settlement",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", nil, "dotenv files to load before the environment (default .env)")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newSweepCmd(opts))
	root.AddCommand(newMigrateCmd(opts))

	return root
}

// Execute runs the CLI until it finishes or the process is interrupted
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return err
	}
	return nil
}

// loadConfig reads and validates configuration, then applies the logger settings
func loadConfig(opts *rootOptions, override func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load(opts.envFiles...)
	if err != nil {
		return nil, err
	}
	if override != nil {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := utils.ConfigureLogger(cfg.LogLevel, cfg.LogFormat); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		address string
		dsn     string
		seed    bool
	)

	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"run"},
		Short:   "Run the HTTP service and the closing sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts, func(c *config.Config) {
				if address != "" {
					c.HTTP.Address = address
				}
				if dsn != "" {
					c.Store.DSN = dsn
					c.Store.Driver = config.DriverPostgres
				}
			})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					utils.Warn("failed closing resources", map[string]any{"error": err.Error()})
				}
			}()

			if seed {
				if err := a.seedDemo(ctx); err != nil {
					return err
				}
			}

			if cfg.Sweep.Enabled {
				a.sweeper.Start(ctx)
				defer func() {
					cancel()
					a.sweeper.Wait()
				}()
			}

			router := server.SetupRouter(server.Deps{
				Bidding: a.service,
				Settler: a.settler,
				Wallets: a.ledger,
				Metrics: a.metrics,
			})
			return server.Run(ctx, cfg.HTTP.Address, router)
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "listen address, overrides HTTP_ADDRESS")
	cmd.Flags().StringVar(&dsn, "dsn", "", "postgres DSN, overrides DATABASE_DSN and selects the postgres store")
	cmd.Flags().BoolVar(&seed, "seed", false, "create demo auctions and wallets on startup")
	return cmd
}

func newSweepCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Settle every auction that is due, once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts, nil)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.sweeper.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "due=%d settled=%d skipped=%d failed=%d\n",
				stats.Due, stats.Settled, stats.Skipped, stats.Failed)
			return nil
		},
	}
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	var dsn string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the postgres schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts, func(c *config.Config) {
				c.Store.Driver = config.DriverPostgres
				if dsn != "" {
					c.Store.DSN = dsn
				}
			})
			if err != nil {
				return err
			}

			// opening the postgres store migrates it
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "postgres DSN, overrides DATABASE_DSN")
	return cmd
}
