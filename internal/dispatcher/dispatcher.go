// Package dispatcher turns pipeline events into outbound side effects:
// interview prep-kit generation and notifications. It consumes the event bus
// asynchronously and never touches card status.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"jobmate/campaign-service/internal/events"
	"jobmate/campaign-service/internal/kanban"
	"jobmate/campaign-service/internal/logger"
	"jobmate/campaign-service/internal/metrics"
	"jobmate/campaign-service/internal/notify"
)

const (
	kindPrepKit = "prepkit"
	kindNotify  = "notify"

	notifyTimeout = 5 * time.Second
)

// PrepKitGenerator is the content-generation collaborator. It is treated as
// slow and unreliable.
type PrepKitGenerator interface {
	GeneratePrepKit(ctx context.Context, card *kanban.ApplicationCard) (artifactRef string, err error)
}

// Notifier delivers notifications. Errors are logged and dropped.
type Notifier interface {
	Emit(ctx context.Context, n notify.Notification) error
}

// Cards is the card access the dispatcher needs.
type Cards interface {
	GetCard(ctx context.Context, id string) (*kanban.ApplicationCard, error)
	AttachPrepKit(ctx context.Context, id, ref string) error
}

// DispatchFailed is the diagnostic emitted when a side effect is abandoned.
type DispatchFailed struct {
	Event    kanban.PipelineEvent
	Kind     string
	Attempts int
	Err      error
}

// Config sizes the dispatcher.
type Config struct {
	Consumers      int
	Retry          RetryConfig
	AttemptTimeout time.Duration
}

// Dispatcher consumes one event subscription with a fixed set of consumers.
type Dispatcher struct {
	cfg       Config
	cards     Cards
	generator PrepKitGenerator
	notifier  Notifier
	onFailure func(DispatchFailed)
	log       logger.Logger
	metrics   *metrics.Metrics
	wg        sync.WaitGroup
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithNotifier enables notifications for every transition.
func WithNotifier(n Notifier) Option { return func(d *Dispatcher) { d.notifier = n } }

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option { return func(d *Dispatcher) { d.metrics = m } }

// OnFailure registers an observer for DispatchFailed diagnostics.
func OnFailure(fn func(DispatchFailed)) Option { return func(d *Dispatcher) { d.onFailure = fn } }

// New returns a Dispatcher. generator may be nil to disable prep kits.
func New(cfg Config, cards Cards, generator PrepKitGenerator, log logger.Logger, opts ...Option) *Dispatcher {
	if cfg.Consumers < 1 {
		cfg.Consumers = 1
	}
	d := &Dispatcher{
		cfg:       cfg,
		cards:     cards,
		generator: generator,
		log:       log.With(logger.String("component", "dispatcher")),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Start launches the consumers on sub. They stop when ctx is done or the bus
// is closed and the queue drained.
func (d *Dispatcher) Start(ctx context.Context, sub *events.Subscription) {
	for i := 0; i < d.cfg.Consumers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				ev, ok := sub.Next(ctx)
				if !ok {
					return
				}
				d.Dispatch(ctx, ev)
			}
		}()
	}
	d.log.Info("dispatcher started", logger.Int("consumers", d.cfg.Consumers))
}

// Wait blocks until every consumer has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
	d.log.Info("dispatcher stopped")
}

// Dispatch runs the side effects of one event. It never returns an error:
// the transition already happened and side-effect failures only surface as
// DispatchFailed diagnostics.
func (d *Dispatcher) Dispatch(ctx context.Context, ev kanban.PipelineEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("dispatch panic",
				logger.String("event_id", ev.ID),
				logger.Any("panic", r),
			)
		}
	}()

	if d.notifier != nil {
		d.notify(ctx, notify.FromEvent(ev))
	}
	if kanban.TriggersPrepKit(ev.To) && d.generator != nil {
		d.generatePrepKit(ctx, ev)
	}
}

// notify is fire-and-forget.
func (d *Dispatcher) notify(ctx context.Context, n notify.Notification) {
	nctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	err := d.notifier.Emit(nctx, n)
	d.metrics.ObserveDispatchAttempt(kindNotify, err)
	if err != nil {
		d.log.Warn("notification failed",
			logger.String("type", n.Type),
			logger.String("card_id", n.CardID),
			logger.Error(err),
		)
	}
}

func (d *Dispatcher) generatePrepKit(ctx context.Context, ev kanban.PipelineEvent) {
	log := d.log.With(logger.String("card_id", ev.CardID), logger.String("event_id", ev.ID))

	attempts, err := Retry(ctx, d.cfg.Retry, func(ctx context.Context, attempt int) error {
		actx := ctx
		if d.cfg.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			actx, cancel = context.WithTimeout(ctx, d.cfg.AttemptTimeout)
			defer cancel()
		}

		card, err := d.cards.GetCard(actx, ev.CardID)
		if err != nil {
			return fmt.Errorf("load card: %w", err)
		}
		if card.PrepKitRef != "" {
			return nil
		}

		ref, err := d.generator.GeneratePrepKit(actx, card)
		d.metrics.ObserveDispatchAttempt(kindPrepKit, err)
		if err != nil {
			log.Warn("prep kit attempt failed", logger.Int("attempt", attempt), logger.Error(err))
			return err
		}
		if err := d.cards.AttachPrepKit(ctx, ev.CardID, ref); err != nil {
			return fmt.Errorf("attach prep kit: %w", err)
		}
		log.Info("prep kit attached", logger.String("ref", ref), logger.Int("attempts", attempt))
		return nil
	})
	if err == nil {
		return
	}

	d.fail(ctx, DispatchFailed{Event: ev, Kind: kindPrepKit, Attempts: attempts, Err: err})
}

func (d *Dispatcher) fail(ctx context.Context, f DispatchFailed) {
	d.metrics.IncDispatchFailed(f.Kind)
	d.log.Error("dispatch failed",
		logger.String("kind", f.Kind),
		logger.String("card_id", f.Event.CardID),
		logger.Int("attempts", f.Attempts),
		logger.Error(f.Err),
	)
	if d.onFailure != nil {
		d.onFailure(f)
	}
	if d.notifier != nil {
		n := notify.FromEvent(f.Event)
		n.Type = notify.TypeDispatchFailed
		n.Attempts = f.Attempts
		n.Error = f.Err.Error()
		// a cancelled ctx must not swallow the diagnostic
		d.notify(context.WithoutCancel(ctx), n)
	}
}
