package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soyeahso/parley/internal/config"
	"github.com/soyeahso/parley/internal/domain"
	"github.com/soyeahso/parley/internal/session"
)

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long:  "Opens the persisted session, prints its history, and reads messages from stdin. Commands: /history, /clear, /quit.",
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
				printMessage(msg)
			}

			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					fmt.Println()
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())

				switch line {
				case "":
					continue
				case "/quit", "/exit":
					return nil
				case "/history":
					for _, entry := range coord.History() {
						who := "assistant"
						if entry.IsUser {
							who = "user"
						}
						fmt.Printf("[%s] %s\n", who, entry.Content)
					}
					continue
				case "/clear":
					if err := coord.Clear(ctx); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "clear failed: %v\n", err)
						continue
					}
					fmt.Println("session cleared")
					printMessage(coord.Snapshot().Messages[0])
					continue
				}

				if err := coord.Submit(ctx, line); err != nil {
					if errors.Is(err, session.ErrClosed) || ctx.Err() != nil {
						return nil
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
					continue
				}

				state := coord.Snapshot()
				printMessage(state.Messages[len(state.Messages)-1])
			}
		},
	}
}

func printMessage(msg domain.Message) {
	prefix := "parley"
	if msg.Origin == domain.OriginUser {
		prefix = "you"
	}
	fmt.Printf("%s: %s\n", prefix, msg.Text)
}
