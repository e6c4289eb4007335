package app

import (
	"context"
	"fmt"

	"github.com/kilianp07/motorctl/config"
	"github.com/kilianp07/motorctl/infra/logger"
	"github.com/kilianp07/motorctl/infra/mqtt"
	"github.com/kilianp07/motorctl/simulator"
)

// RunDevice connects a simulated device to the broker and serves it until
// ctx is cancelled.
func RunDevice(ctx context.Context, cfg *config.Config) error {
	logger.SetLevel(cfg.Logging.Level)
	mcfg := cfg.MQTT
	mcfg.ClientID += "-device"
	link, err := mqtt.NewPahoLink(mcfg)
	if err != nil {
		return fmt.Errorf("mqtt link: %w", err)
	}
	defer link.Close()

	link.Connect()
	if err := link.AwaitConnected(ctx); err != nil {
		return fmt.Errorf("device connect: %w", err)
	}
	dev := simulator.NewDevice(cfg.Session.Motors, logger.New("device"))
	return dev.Run(ctx, link)
}
