// Package messaging wraps the NATS JetStream connection used to move match
// requests between the HTTP front door, the worker, and the dead-letter
// stream. JetStream gives the worker explicit acks, redelivery on nak, and
// durable consumer state across restarts.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/linguamatch/match-worker/internal/request"
)

// Stream and subject names.
const (
	StreamName         = "MATCH"
	SubjectRequests    = "match.requests"
	SubjectDeadLetter  = "match.deadletter"
	ConsumerDurable    = "match-worker"
	ConsumerQueueGroup = "match-workers"
)

// nakDelay is the redelivery backoff for nacked (not republished) messages.
const nakDelay = 2 * time.Second

// Config holds NATS connection settings.
type Config struct {
	URL           string
	Name          string
	ReconnectWait time.Duration
	MaxReconnects int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "match-worker",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// Broker is the JetStream-backed transport for match requests.
type Broker struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	sub  *nats.Subscription
}

// NewBroker connects to NATS, sets up JetStream, and ensures the MATCH
// stream exists.
func NewBroker(config Config) (*Broker, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[broker] disconnected: %v", err)
			} else {
				log.Printf("[broker] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[broker] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[broker] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("broker: connect: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("broker: jetstream: %w", err)
	}

	if _, err := js.StreamInfo(StreamName); errors.Is(err, nats.ErrStreamNotFound) {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:      StreamName,
			Subjects:  []string{SubjectRequests, SubjectDeadLetter},
			Retention: nats.WorkQueuePolicy,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("broker: add stream: %w", err)
		}
	} else if err != nil {
		nc.Close()
		return nil, fmt.Errorf("broker: stream info: %w", err)
	}

	log.Printf("[broker] connected to %s", nc.ConnectedUrl())
	return &Broker{conn: nc, js: js}, nil
}

// PublishRequest publishes a match request, optionally after a delay.
// JetStream has no scheduled publish, so the delay is an in-process timer;
// the searching sentinel TTL backstops requests lost to a worker crash
// while a timer is pending.
func (b *Broker) PublishRequest(req request.Request, delay time.Duration) error {
	data, err := req.Encode()
	if err != nil {
		return fmt.Errorf("broker: encode request for %d: %w", req.UserID, err)
	}

	if delay <= 0 {
		if _, err := b.js.Publish(SubjectRequests, data); err != nil {
			return fmt.Errorf("broker: publish request for %d: %w", req.UserID, err)
		}
		return nil
	}

	time.AfterFunc(delay, func() {
		if _, err := b.js.Publish(SubjectRequests, data); err != nil {
			log.Printf("[broker] delayed publish for user %d: %v", req.UserID, err)
		}
	})
	return nil
}

// PublishDeadLetter moves a request to the dead-letter subject with the
// failure reason attached.
func (b *Broker) PublishDeadLetter(req request.Request, errMsg string) error {
	data, err := req.WithError(errMsg).Encode()
	if err != nil {
		return fmt.Errorf("broker: encode dead letter for %d: %w", req.UserID, err)
	}
	if _, err := b.js.Publish(SubjectDeadLetter, data); err != nil {
		return fmt.Errorf("broker: publish dead letter for %d: %w", req.UserID, err)
	}
	log.Printf("[broker] dead-lettered request for user %d: %s", req.UserID, errMsg)
	return nil
}

// HandlerFunc processes one delivery. Returning true acknowledges the
// message; false asks the broker to redeliver it after a short delay.
type HandlerFunc func(ctx context.Context, data []byte) bool

// ConsumeRequests starts the durable queue consumer for match requests.
// Prefetch is one message per worker: an attempt must ack or nak before
// the next delivery arrives.
func (b *Broker) ConsumeRequests(ctx context.Context, fn HandlerFunc) error {
	sub, err := b.js.QueueSubscribe(SubjectRequests, ConsumerQueueGroup,
		func(msg *nats.Msg) {
			if fn(ctx, msg.Data) {
				if err := msg.Ack(); err != nil {
					log.Printf("[broker] ack: %v", err)
				}
				return
			}
			if err := msg.NakWithDelay(nakDelay); err != nil {
				log.Printf("[broker] nak: %v", err)
			}
		},
		nats.Durable(ConsumerDurable),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.MaxAckPending(1),
	)
	if err != nil {
		return fmt.Errorf("broker: subscribe %s: %w", SubjectRequests, err)
	}
	b.sub = sub
	log.Printf("[broker] consuming %s (durable=%s)", SubjectRequests, ConsumerDurable)
	return nil
}

// Close drains the subscription and the connection.
func (b *Broker) Close() {
	if b.sub != nil {
		if err := b.sub.Drain(); err != nil {
			log.Printf("[broker] drain subscription: %v", err)
		}
	}
	if err := b.conn.Drain(); err != nil {
		log.Printf("[broker] connection drain: %v", err)
	}
	log.Printf("[broker] closed")
}
