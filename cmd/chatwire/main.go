// chatwire is the chat messaging daemon. It connects the legacy
// WebSocket path and, when configured, the enterprise AMQP path, and
// routes traffic between them according to the migration mode.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	chatwire "github.com/chatwire/chatwire-go"
	"github.com/chatwire/chatwire-go/config"
	"github.com/chatwire/chatwire-go/migration"
)

func NewChatwireCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chatwire",
		Short: "Real-time chat messaging daemon",
	}

	cmd.AddCommand(
		newRunCommand(),
		newRecommendCommand(),
	)

	return cmd
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the daemon and serve chat traffic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(),
				syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client, err := chatwire.NewClient(ctx, cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			<-ctx.Done()
			fmt.Fprintln(os.Stderr, "shutting down")
			return nil
		},
	}
}

func newRecommendCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Connect briefly and report whether switching migration mode looks safe",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			client, err := chatwire.NewClient(ctx, cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			rec := client.Chat().Recommendations()
			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(rec)
			}
			printRecommendations(rec)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the recommendation as JSON")

	return cmd
}

func printRecommendations(rec migration.Recommendations) {
	fmt.Printf("recommended mode:     %s\n", rec.RecommendedMode)
	fmt.Printf("can switch to adapter: %v\n", rec.CanSwitchToAdapter)
	if len(rec.Issues) > 0 {
		fmt.Println("issues:")
		for _, issue := range rec.Issues {
			fmt.Printf("  - %s\n", issue)
		}
	}
	if len(rec.Benefits) > 0 {
		fmt.Println("benefits:")
		for _, benefit := range rec.Benefits {
			fmt.Printf("  - %s\n", benefit)
		}
	}
}

func main() {
	if err := NewChatwireCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
