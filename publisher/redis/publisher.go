// Package redis publishes license plate change events to Redis Pub/Sub so
// that out-of-process consumers can follow inventory movement.
//
// Delivery is at-most-once. A subscriber that is not connected when an
// event is published never sees it.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/plate/event"
	"github.com/xraph/plate/plugin"
)

var (
	_ plugin.Plugin                = (*Publisher)(nil)
	_ plugin.OnLicensePlateChanged = (*Publisher)(nil)
	_ plugin.OnShutdown            = (*Publisher)(nil)
)

// DefaultPrefix is the channel prefix used when none is configured.
const DefaultPrefix = "plate"

// Channel returns the channel carrying change events for tenantID.
func Channel(prefix, tenantID string) string {
	return fmt.Sprintf("%s:%s:lp_events", prefix, tenantID)
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithPrefix sets the channel prefix.
func WithPrefix(prefix string) Option {
	return func(p *Publisher) { p.prefix = prefix }
}

// WithLogger sets the logger used to report publish failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

// WithCloseClient makes the publisher close its client on engine shutdown.
func WithCloseClient() Option {
	return func(p *Publisher) { p.closeClient = true }
}

// Publisher is a plugin that forwards every committed change event to
// Redis as JSON.
type Publisher struct {
	rdb         goredis.UniversalClient
	prefix      string
	logger      *slog.Logger
	closeClient bool
}

// New returns a Publisher that writes through rdb.
func New(rdb goredis.UniversalClient, opts ...Option) *Publisher {
	p := &Publisher{
		rdb:    rdb,
		prefix: DefaultPrefix,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements plugin.Plugin.
func (p *Publisher) Name() string { return "redis-publisher" }

// OnLicensePlateChanged implements plugin.OnLicensePlateChanged.
func (p *Publisher) OnLicensePlateChanged(ctx context.Context, e *event.ChangeEvent) error {
	return p.Publish(ctx, e)
}

// OnShutdown implements plugin.OnShutdown.
func (p *Publisher) OnShutdown(_ context.Context) error {
	if !p.closeClient {
		return nil
	}
	return p.rdb.Close()
}

// Publish sends e on its tenant's channel.
func (p *Publisher) Publish(ctx context.Context, e *event.ChangeEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("plate/redis: marshal event %s: %w", e.ID, err)
	}

	channel := Channel(p.prefix, e.TenantID)
	if err := p.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		p.logger.Warn("plate/redis: publish failed",
			"channel", channel,
			"event_id", e.ID.String(),
			"kind", string(e.Kind),
			"error", err,
		)
		return fmt.Errorf("plate/redis: publish to %s: %w", channel, err)
	}
	return nil
}

// Subscription is an active subscription to a tenant's change events.
// Callers must Close it when done.
type Subscription struct {
	events <-chan *event.ChangeEvent
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of decoded events. It is closed when the
// subscription ends.
func (s *Subscription) Events() <-chan *event.ChangeEvent { return s.events }

// Errors returns decode failures. Undecodable messages are skipped.
func (s *Subscription) Errors() <-chan error { return s.errors }

// Close stops the subscription. Implements io.Closer.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// Subscribe listens for change events of tenantID. The subscription is
// confirmed by the server before Subscribe returns, so events published
// afterwards are delivered.
func Subscribe(ctx context.Context, rdb goredis.UniversalClient, prefix, tenantID string) (*Subscription, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	channel := Channel(prefix, tenantID)
	pubsub := rdb.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("plate/redis: subscribe to %s: %w", channel, err)
	}

	events := make(chan *event.ChangeEvent, 16)
	errs := make(chan error, 16)
	subCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(events)
		defer close(errs)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var e event.ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					select {
					case errs <- fmt.Errorf("plate/redis: decode event on %s: %w", msg.Channel, err):
					case <-subCtx.Done():
						return
					}
					continue
				}
				select {
				case events <- &e:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{events: events, errors: errs, cancel: cancel}, nil
}
