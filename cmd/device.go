package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/motorctl/app"
	"github.com/kilianp07/motorctl/config"
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Run a simulated motor device listening on the command topics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return app.RunDevice(ctx, cfg)
	},
}
