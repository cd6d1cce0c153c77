package notification

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kickzhub/storefront/internal/domain/order"
	"github.com/kickzhub/storefront/internal/domain/user"
)

const instrumentationName = "github.com/kickzhub/storefront/internal/domain/notification"

// Options configures a Dispatcher.
type Options struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
	// MeterProvider is optional; counters are skipped when nil.
	MeterProvider metric.MeterProvider
}

func (o *Options) setDefaults() {
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = 10 * time.Second
	}
}

type job struct {
	notice Notice
	lg     *zap.Logger
}

// Stats are the running delivery counts of a Dispatcher.
type Stats struct {
	Sent    int64
	Failed  int64
	Dropped int64
}

// Dispatcher fans placed orders out to every Sender from a bounded queue
// drained by a fixed set of workers. It implements order.Notifier.
type Dispatcher struct {
	senders []Sender
	queue   chan job
	opts    Options

	sent    atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64

	sentCounter    metric.Int64Counter
	failedCounter  metric.Int64Counter
	droppedCounter metric.Int64Counter
}

var _ order.Notifier = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher. Call Run to start delivery.
func NewDispatcher(opts Options, senders ...Sender) (*Dispatcher, error) {
	opts.setDefaults()
	d := &Dispatcher{
		senders: senders,
		queue:   make(chan job, opts.QueueSize),
		opts:    opts,
	}
	if opts.MeterProvider == nil {
		return d, nil
	}

	meter := opts.MeterProvider.Meter(instrumentationName)
	var err error
	if d.sentCounter, err = meter.Int64Counter("notifications.sent"); err != nil {
		return nil, errors.Wrap(err, "notifications.sent counter")
	}
	if d.failedCounter, err = meter.Int64Counter("notifications.failed"); err != nil {
		return nil, errors.Wrap(err, "notifications.failed counter")
	}
	if d.droppedCounter, err = meter.Int64Counter("notifications.dropped"); err != nil {
		return nil, errors.Wrap(err, "notifications.dropped counter")
	}
	return d, nil
}

// OrderPlaced enqueues a confirmation for o. It never blocks: when the queue
// is full the notice is dropped and logged.
func (d *Dispatcher) OrderPlaced(ctx context.Context, customer user.User, o order.Order) {
	lg := zctx.From(ctx)
	j := job{notice: NewNotice(customer, o), lg: lg}

	select {
	case d.queue <- j:
	default:
		d.dropped.Add(1)
		if d.droppedCounter != nil {
			d.droppedCounter.Add(context.WithoutCancel(ctx), 1)
		}
		lg.Warn("Notification queue full, dropping",
			zap.String("order_id", o.ID),
			zap.Int("queue_size", cap(d.queue)),
		)
	}
}

// Run drains the queue until ctx is done. Notices still queued at that point
// are discarded.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for range d.opts.Workers {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case j := <-d.queue:
					d.deliver(ctx, j)
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if n := len(d.queue); n > 0 {
		zctx.From(ctx).Warn("Discarding undelivered notifications", zap.Int("count", n))
	}
	return nil
}

// Pending returns the number of queued notices.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Stats returns delivery counts since creation.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Sent:    d.sent.Load(),
		Failed:  d.failed.Load(),
		Dropped: d.dropped.Load(),
	}
}

func (d *Dispatcher) deliver(ctx context.Context, j job) {
	for _, s := range d.senders {
		d.send(ctx, s, j)
	}
}

func (d *Dispatcher) send(ctx context.Context, s Sender, j job) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.SendTimeout)
	defer cancel()

	attrs := metric.WithAttributes(attribute.String("sender", s.Name()))
	if err := s.Send(ctx, j.notice); err != nil {
		d.failed.Add(1)
		if d.failedCounter != nil {
			d.failedCounter.Add(ctx, 1, attrs)
		}
		j.lg.Error("Notification failed",
			zap.String("sender", s.Name()),
			zap.String("order_id", j.notice.OrderID),
			zap.Error(err),
		)
		return
	}

	d.sent.Add(1)
	if d.sentCounter != nil {
		d.sentCounter.Add(ctx, 1, attrs)
	}
	j.lg.Debug("Notification sent",
		zap.String("sender", s.Name()),
		zap.String("order_id", j.notice.OrderID),
	)
}
