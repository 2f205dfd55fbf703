package audit

import (
	"context"
	"log/slog"
	"time"
)

const (
	defaultBuffer         = 256
	defaultPublishTimeout = 5 * time.Second
	drainTimeout          = 10 * time.Second
)

// DropCounter observes events discarded because the buffer was full.
type DropCounter interface {
	AuditDropped()
}

// Dispatcher is a Sink backed by a bounded queue and one background
// publisher goroutine started with Run.
type Dispatcher struct {
	events         chan Event
	publisher      Publisher
	logger         *slog.Logger
	dropped        DropCounter
	publishTimeout time.Duration
}

// DispatcherConfig collects Dispatcher dependencies.
type DispatcherConfig struct {
	Publisher      Publisher
	Logger         *slog.Logger
	Buffer         int
	PublishTimeout time.Duration
	Dropped        DropCounter
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		events:         make(chan Event, buffer),
		publisher:      cfg.Publisher,
		logger:         logger,
		dropped:        cfg.Dropped,
		publishTimeout: timeout,
	}
}

// Emit queues the event. When the queue is full the event is dropped and
// counted; the caller never waits.
func (d *Dispatcher) Emit(_ context.Context, event Event) {
	if d == nil {
		return
	}
	select {
	case d.events <- event:
	default:
		if d.dropped != nil {
			d.dropped.AuditDropped()
		}
		d.logger.Warn("audit buffer full, event dropped", slog.String("message", event.Message))
	}
}

// Pending reports how many events wait to be published.
func (d *Dispatcher) Pending() int {
	return len(d.events)
}

// Run publishes queued events until ctx is cancelled, then drains what is
// left within a bounded grace period.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.drain(context.WithoutCancel(ctx))
			return nil
		case event := <-d.events:
			d.publish(ctx, event)
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			if n := len(d.events); n > 0 {
				d.logger.Warn("audit drain timed out", slog.Int("pending", n))
			}
			return
		case event := <-d.events:
			d.publish(ctx, event)
		default:
			return
		}
	}
}

func (d *Dispatcher) publish(ctx context.Context, event Event) {
	if d.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, d.publishTimeout)
	defer cancel()
	if err := d.publisher.Publish(ctx, event); err != nil {
		d.logger.Error("publish audit event", slog.String("message", event.Message), slog.Any("error", err))
	}
}
