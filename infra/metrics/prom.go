package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/motorctl/core/metrics"
	coremqtt "github.com/kilianp07/motorctl/core/mqtt"
	"github.com/kilianp07/motorctl/core/motor"
)

// PromRecorder records session activity in Prometheus metrics.
type PromRecorder struct {
	commands *prometheus.CounterVec
	movement *prometheus.HistogramVec
	status   *prometheus.GaugeVec
}

// NewPromRecorder registers the session metrics on the default registerer.
func NewPromRecorder() (*PromRecorder, error) {
	return NewPromRecorderWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromRecorderWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// that are already registered are reused.
func NewPromRecorderWithRegistry(reg prometheus.Registerer) (*PromRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "motorctl_commands_total",
		Help: "Commands issued by the operator, by topic, action and publish outcome",
	}, []string{"topic", "action", "published"})
	movement := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "motorctl_movement_duration_seconds",
		Help:    "Time between a start command and the following stop",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"motor", "direction"})
	status := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "motorctl_broker_status",
		Help: "Broker link status, 1 for the current status",
	}, []string{"status"})

	var err error
	if commands, err = register(reg, commands); err != nil {
		return nil, err
	}
	if movement, err = register(reg, movement); err != nil {
		return nil, err
	}
	if status, err = register(reg, status); err != nil {
		return nil, err
	}
	return &PromRecorder{commands: commands, movement: movement, status: status}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordCommand increments the command counter.
func (r *PromRecorder) RecordCommand(topic, action string, published bool) error {
	r.commands.WithLabelValues(topic, action, strconv.FormatBool(published)).Inc()
	return nil
}

// RecordMovement observes a movement duration.
func (r *PromRecorder) RecordMovement(id motor.ID, dir motor.Direction, d time.Duration) error {
	r.movement.WithLabelValues(strconv.Itoa(int(id)), dir.String()).Observe(d.Seconds())
	return nil
}

// RecordStatus sets the gauge of s to 1 and every other status to 0.
func (r *PromRecorder) RecordStatus(s coremqtt.Status) error {
	for _, st := range coremqtt.Statuses {
		v := 0.0
		if st == s {
			v = 1
		}
		r.status.WithLabelValues(st.String()).Set(v)
	}
	return nil
}

var _ coremetrics.Recorder = (*PromRecorder)(nil)
