package app

import (
	"context"
	"fmt"
	"io"

	"github.com/kilianp07/motorctl/config"
	coremetrics "github.com/kilianp07/motorctl/core/metrics"
	coremqtt "github.com/kilianp07/motorctl/core/mqtt"
	"github.com/kilianp07/motorctl/core/session"
	"github.com/kilianp07/motorctl/console"
	"github.com/kilianp07/motorctl/infra/logger"
	"github.com/kilianp07/motorctl/infra/metrics"
	"github.com/kilianp07/motorctl/infra/mqtt"
)

var newLink = func(cfg mqtt.Config) (coremqtt.Link, error) {
	return mqtt.NewPahoLink(cfg)
}

// Service wires the broker link, the session controller, metrics and the
// console.
type Service struct {
	Controller  *session.Controller
	log         logger.Logger
	promEnabled bool
	promAddr    string
}

// New creates a Service from the configuration. The broker connection
// attempt starts immediately.
func New(cfg *config.Config) (*Service, error) {
	logger.SetLevel(cfg.Logging.Level)
	logg := logger.New("service")

	var rec coremetrics.Recorder = coremetrics.NopRecorder{}
	if cfg.Metrics.PrometheusEnabled {
		prom, err := metrics.NewPromRecorder()
		if err != nil {
			return nil, fmt.Errorf("prom recorder: %w", err)
		}
		rec = prom
	}

	link, err := newLink(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("mqtt link: %w", err)
	}
	ctrl, err := session.NewController(cfg.Session, link,
		session.WithLogger(logger.New("session")),
		session.WithRecorder(rec),
	)
	if err != nil {
		link.Close()
		return nil, fmt.Errorf("session: %w", err)
	}
	logg.Infof("session started against %s with %d motors", cfg.MQTT.Broker, cfg.Session.Motors)
	return &Service{
		Controller:  ctrl,
		log:         logg,
		promEnabled: cfg.Metrics.PrometheusEnabled,
		promAddr:    cfg.Metrics.PrometheusAddr,
	}, nil
}

// Run serves metrics if enabled and runs the console on in/out until the
// operator quits, in reaches EOF or ctx is cancelled.
func (s *Service) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if s.promEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promAddr, nil); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	return console.New(s.Controller, out).Run(ctx, in)
}

// Close ends the session and releases the broker connection.
func (s *Service) Close() error {
	s.Controller.Close()
	return nil
}
