package changefeed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// Bus publishes changes to NATS. When the change stream exists publishes go
// through JetStream and are acknowledged; otherwise plain core NATS is used.
// Subscribers always use core subscriptions so every server instance sees
// every change.
type Bus struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger zerolog.Logger
}

func NewBus(nc *nats.Conn, logger zerolog.Logger) *Bus {
	return &Bus{nc: nc, logger: logger}
}

// Connect dials an external NATS server.
func Connect(url string, logger zerolog.Logger) (*Bus, error) {
	nc, err := nats.Connect(url,
		nats.Name("bedboard-server"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return NewBus(nc, logger), nil
}

// EnsureStream creates or updates the change stream, which keeps a day of
// changes for replay and inspection. Brokers without JetStream leave the
// bus on core publishing.
func (b *Bus) EnsureStream(ctx context.Context) error {
	js, err := jetstream.New(b.nc)
	if err != nil {
		return fmt.Errorf("jetstream: %w", err)
	}
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "bed board table change notifications",
		Subjects:    []string{SubjectAll},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		MaxMsgs:     100000,
	})
	if err != nil {
		return fmt.Errorf("create change stream: %w", err)
	}
	b.js = js
	return nil
}

func (b *Bus) Publish(ctx context.Context, changes ...Change) error {
	var errs []error
	for _, c := range changes {
		if c.At.IsZero() {
			c.At = time.Now().UTC()
		}
		data, err := encode(c)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if b.js != nil {
			_, err = b.js.Publish(ctx, c.Subject(), data)
		} else {
			err = b.nc.Publish(c.Subject(), data)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", c.Subject(), err))
		}
	}
	return errors.Join(errs...)
}

// Subscribe delivers every change to handler on the NATS dispatch goroutine.
// Undecodable messages are logged and dropped.
func (b *Bus) Subscribe(handler func(Change)) (*nats.Subscription, error) {
	sub, err := b.nc.Subscribe(SubjectAll, func(msg *nats.Msg) {
		c, err := decode(msg.Data)
		if err != nil {
			b.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping malformed change")
			return
		}
		handler(c)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", SubjectAll, err)
	}
	return sub, nil
}

// Flush waits until the server has processed everything published so far.
func (b *Bus) Flush() error {
	return b.nc.Flush()
}

// Check is a health probe.
func (b *Bus) Check(_ context.Context) error {
	if !b.nc.IsConnected() {
		return fmt.Errorf("nats not connected: %s", b.nc.Status())
	}
	return nil
}

func (b *Bus) Close() {
	if b.nc != nil {
		_ = b.nc.Drain()
	}
}
