// Package notify delivers committed safety events to sinks off the request
// path. Delivery is best effort: a full queue drops events, it never blocks
// the command that produced them.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mr1hm/spot-safety/internal/metrics"
	"github.com/mr1hm/spot-safety/internal/models"
	"github.com/mr1hm/spot-safety/internal/worker"
)

type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev models.Event) error
}

type Dispatcher struct {
	pool    *worker.Pool[models.Event]
	sinks   []Sink
	metrics *metrics.Metrics
}

func NewDispatcher(workers, bufferSize int, m *metrics.Metrics, sinks ...Sink) *Dispatcher {
	if m == nil {
		m = metrics.New(nil)
	}
	d := &Dispatcher{sinks: sinks, metrics: m}
	d.pool = worker.NewPool(workers, bufferSize, d.deliver)
	return d
}

func (d *Dispatcher) Start(ctx context.Context) {
	d.pool.Start(ctx)
}

// Stop flushes queued events and waits for the workers to exit.
func (d *Dispatcher) Stop() {
	d.pool.Stop()
}

// Notify implements safety.Notifier.
func (d *Dispatcher) Notify(ev models.Event) {
	if !d.pool.TrySubmit(ev) {
		d.metrics.NotificationsDrop.Inc()
		slog.Warn("notification dropped", "type", ev.Type, "spot_id", ev.SpotID)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev models.Event) error {
	var errs []error
	for _, sink := range d.sinks {
		if err := sink.Deliver(ctx, ev); err != nil {
			d.metrics.NotificationErrors.WithLabelValues(sink.Name()).Inc()
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}
