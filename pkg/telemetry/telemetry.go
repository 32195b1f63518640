package telemetry

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/absmach/hivemon/peer"
	"github.com/absmach/hivemon/pkg/mqtt"
)

var metricsTopicTemplate = "collab/%s/monitor/metrics"

// Sink receives the aggregated snapshot once per advancing tick. Reporting
// is best effort: a failed report never blocks or fails the tick.
type Sink interface {
	Report(ctx context.Context, snap peer.Snapshot) error
}

type mqttSink struct {
	pubsub mqtt.PubSub
	topic  string
}

// NewMQTTSink publishes each snapshot on the collaboration channel so
// dashboards and peers can follow global progress.
func NewMQTTSink(pubsub mqtt.PubSub, experiment string) Sink {
	return &mqttSink{
		pubsub: pubsub,
		topic:  fmt.Sprintf(metricsTopicTemplate, experiment),
	}
}

func (s *mqttSink) Report(ctx context.Context, snap peer.Snapshot) error {
	return s.pubsub.Publish(ctx, s.topic, snap)
}

type promSink struct {
	step       prometheus.Gauge
	loss       prometheus.Gauge
	alivePeers prometheus.Gauge
	samples    prometheus.Gauge
	throughput prometheus.Gauge
}

// NewPrometheusSink exposes the snapshot as gauges on the monitor's own
// /metrics endpoint.
func NewPrometheusSink(reg prometheus.Registerer, experiment string) Sink {
	labels := prometheus.Labels{"experiment": experiment}
	factory := promauto.With(reg)

	return &promSink{
		step: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "hivemon",
			Name:        "global_step",
			Help:        "Highest optimizer step observed across live peers.",
			ConstLabels: labels,
		}),
		loss: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "hivemon",
			Name:        "aggregate_loss",
			Help:        "Mini-step weighted loss across live peers.",
			ConstLabels: labels,
		}),
		alivePeers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "hivemon",
			Name:        "alive_peers",
			Help:        "Number of peers contributing to the snapshot.",
			ConstLabels: labels,
		}),
		samples: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "hivemon",
			Name:        "samples_accumulated",
			Help:        "Samples accumulated since the last optimizer step.",
			ConstLabels: labels,
		}),
		throughput: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "hivemon",
			Name:        "samples_per_second",
			Help:        "Summed instantaneous throughput across live peers.",
			ConstLabels: labels,
		}),
	}
}

func (s *promSink) Report(_ context.Context, snap peer.Snapshot) error {
	s.step.Set(float64(snap.Step))
	s.loss.Set(snap.Loss)
	s.alivePeers.Set(float64(snap.AlivePeers))
	s.samples.Set(float64(snap.Samples))
	s.throughput.Set(snap.Throughput)

	return nil
}

type multiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) Sink {
	return &multiSink{sinks: sinks}
}

func (s *multiSink) Report(ctx context.Context, snap peer.Snapshot) error {
	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Report(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
