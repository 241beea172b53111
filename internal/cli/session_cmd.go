package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/parley/internal/config"
)

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Print the persisted conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			coord, cleanup, err := buildCoordinator(cfg)
			if err != nil {
				return err
			}
			defer cleanup()
			defer coord.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := coord.Initialize(ctx); err != nil {
				return err
			}

			for _, msg := range coord.Snapshot().Messages {
				fmt.Printf("%s  [%s/%s]  %s\n",
					msg.CreatedAt.Local().Format(time.DateTime),
					msg.Origin, msg.Delivery, msg.Text)
			}
			return nil
		},
	}
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete the persisted conversation and start fresh",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			coord, cleanup, err := buildCoordinator(cfg)
			if err != nil {
				return err
			}
			defer cleanup()
			defer coord.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := coord.Initialize(ctx); err != nil {
				return err
			}
			if err := coord.Clear(ctx); err != nil {
				return err
			}

			fmt.Println("session reset")
			return nil
		},
	}
}
