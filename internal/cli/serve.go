package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soyeahso/parley/internal/config"
	"github.com/soyeahso/parley/internal/gateway"
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway server",
		Long:  "Serves the session over HTTP and WebSocket so external clients can read state, submit messages, and observe state-change events.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Gateway.Port = port
			}
			if err := paths.EnsureDirs(); err != nil {
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

			srv := gateway.NewServer(cfg.Gateway, coord, log)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override the gateway port")
	return cmd
}
