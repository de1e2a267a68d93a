// Command dx is the operator CLI: it opens the record store directly and
// runs economy operations without going through the HTTP surface.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/zlin234/DxBux/internal/config"
	"github.com/zlin234/DxBux/internal/economy"
	"github.com/zlin234/DxBux/internal/store/pgstore"
)

func main() {
	root := &cobra.Command{
		Use:          "dx",
		Short:        "DxBux economy admin tool",
		SilenceUsage: true,
	}

	root.AddCommand(
		newBalanceCmd(),
		newCreditCmd(),
		newDebitCmd(),
		newMarketCmd(),
		newRestockCmd(),
		newSeedCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// openService connects to the configured Postgres store. The CLI is an
// operator tool, so the in-process store is not an option here.
func openService(ctx context.Context) (*economy.Service, func(), error) {
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required")
	}
	catalog, err := economy.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load catalog: %w", err)
	}
	st, err := pgstore.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("db connect: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return economy.NewService(st, catalog, logger), st.Close, nil
}

func withService(cmd *cobra.Command, fn func(ctx context.Context, svc *economy.Service) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	svc, closeFn, err := openService(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, svc)
}

func newBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance <user>",
		Short: "Show a user's wallet balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *economy.Service) error {
				balance, err := svc.GetBalance(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("%s: %d\n", args[0], balance)
				return nil
			})
		},
	}
}

func newCreditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "credit <user> <amount>",
		Short: "Credit a user's wallet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q", args[1])
			}
			return withService(cmd, func(ctx context.Context, svc *economy.Service) error {
				balance, err := svc.Credit(ctx, args[0], amount)
				if err != nil {
					return err
				}
				fmt.Printf("%s: %d\n", args[0], balance)
				return nil
			})
		},
	}
}

func newDebitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "debit <user> <amount>",
		Short: "Debit a user's wallet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q", args[1])
			}
			return withService(cmd, func(ctx context.Context, svc *economy.Service) error {
				balance, err := svc.Debit(ctx, args[0], amount)
				if err != nil {
					return err
				}
				fmt.Printf("%s: %d\n", args[0], balance)
				return nil
			})
		},
	}
}

func newMarketCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "market",
		Short: "List currency quotes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *economy.Service) error {
				quotes, err := svc.ListQuotes(ctx)
				if err != nil {
					return err
				}
				for _, q := range quotes {
					fmt.Printf("%-6s price=%.2f stock=%d\n", q.Symbol, q.Price, q.Stock)
				}
				return nil
			})
		},
	}
}

func newRestockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restock",
		Short: "Run a market restock pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *economy.Service) error {
				if err := svc.Restock(ctx); err != nil {
					return err
				}
				fmt.Println("restock complete")
				return nil
			})
		},
	}
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create any missing market currencies from the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *economy.Service) error {
				if err := svc.EnsureMarket(ctx); err != nil {
					return err
				}
				fmt.Println("market seeded")
				return nil
			})
		},
	}
}
