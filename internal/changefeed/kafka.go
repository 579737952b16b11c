// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package changefeed

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
	"golang.org/x/sync/errgroup"
)

// KafkaConfig holds the Kafka connection settings of the change feed.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	// TopicPrefix is prepended to logical topic names to form Kafka topics.
	TopicPrefix string `mapstructure:"topic_prefix"`

	// SASL/SCRAM authentication
	SASLEnabled   bool   `mapstructure:"sasl_enabled"`
	SASLMechanism string `mapstructure:"sasl_mechanism"` // "PLAIN", "SCRAM-SHA-256" or "SCRAM-SHA-512"
	SASLUsername  string `mapstructure:"sasl_username"`
	SASLPassword  string `mapstructure:"sasl_password"`

	// TLS configuration
	TLSEnabled    bool `mapstructure:"tls_enabled"`
	TLSSkipVerify bool `mapstructure:"tls_skip_verify"`

	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
	MaxWait           time.Duration `mapstructure:"max_wait"`
	BatchTimeout      time.Duration `mapstructure:"batch_timeout"`
	// HealthInterval is how often a subscribed session re-checks that the
	// brokers still answer metadata requests.
	HealthInterval time.Duration `mapstructure:"health_interval"`

	// Topic layout used when syncing the feed topics.
	Partitions        int           `mapstructure:"partitions"`
	ReplicationFactor int           `mapstructure:"replication_factor"`
	Retention         time.Duration `mapstructure:"retention"`
}

func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Brokers:           []string{"localhost:9092"},
		TopicPrefix:       "pulseboard.",
		SASLMechanism:     "SCRAM-SHA-256",
		ConnectionTimeout: 10 * time.Second,
		MaxWait:           500 * time.Millisecond,
		BatchTimeout:      10 * time.Millisecond,
		HealthInterval:    15 * time.Second,
		Partitions:        3,
		ReplicationFactor: 1,
		Retention:         24 * time.Hour,
	}
}

// KafkaTopic maps a logical topic to its Kafka topic name.
func (c KafkaConfig) KafkaTopic(topic string) string {
	return c.TopicPrefix + topic
}

// LogicalTopic reverses KafkaTopic.
func (c KafkaConfig) LogicalTopic(kafkaTopic string) string {
	return strings.TrimPrefix(kafkaTopic, c.TopicPrefix)
}

func (c KafkaConfig) saslMechanism() (sasl.Mechanism, error) {
	if !c.SASLEnabled {
		return nil, nil
	}
	switch c.SASLMechanism {
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, c.SASLUsername, c.SASLPassword)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, c.SASLUsername, c.SASLPassword)
	case "PLAIN":
		return plain.Mechanism{
			Username: c.SASLUsername,
			Password: c.SASLPassword,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism: %s", c.SASLMechanism)
	}
}

func (c KafkaConfig) tlsConfig() *tls.Config {
	if !c.TLSEnabled {
		return nil
	}
	return &tls.Config{InsecureSkipVerify: c.TLSSkipVerify}
}

func (c KafkaConfig) dialer() (*kafka.Dialer, error) {
	mechanism, err := c.saslMechanism()
	if err != nil {
		return nil, fmt.Errorf("failed to create SASL mechanism: %w", err)
	}
	timeout := c.ConnectionTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &kafka.Dialer{
		Timeout:       timeout,
		SASLMechanism: mechanism,
		TLS:           c.tlsConfig(),
	}, nil
}

// KafkaTransport subscribes with one groupless reader per partition, each
// starting at the partition's last offset. Every session sees every event
// published after it joins and leaves no consumer group behind.
type KafkaTransport struct {
	cfg    KafkaConfig
	dialer *kafka.Dialer
}

var _ Transport = (*KafkaTransport)(nil)

func NewKafkaTransport(cfg KafkaConfig) (*KafkaTransport, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = 15 * time.Second
	}
	d, err := cfg.dialer()
	if err != nil {
		return nil, err
	}
	return &KafkaTransport{cfg: cfg, dialer: d}, nil
}

type kafkaSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func (s *kafkaSubscription) Unsubscribe() error {
	s.cancel()
	<-s.done
	return s.err
}

// Subscribe checks broker reachability and topic metadata, then consumes
// every partition from the latest offset, forwarding each message as an
// Event. The channel name only labels the session in logs.
func (t *KafkaTransport) Subscribe(ctx context.Context, channel string, topics []string, h Handler) (Subscription, error) {
	kafkaTopics := make([]string, len(topics))
	for i, topic := range topics {
		kafkaTopics[i] = t.cfg.KafkaTopic(topic)
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &kafkaSubscription{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		sub.err = t.run(ctx, channel, kafkaTopics, h)
	}()
	return sub, nil
}

// run returns the error from closing the readers; every other failure is
// reported through h.
func (t *KafkaTransport) run(ctx context.Context, channel string, topics []string, h Handler) error {
	partitions, err := t.probe(ctx, topics)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		h.OnStatus(kafkaStatus(err), err)
		return nil
	}

	readers := make([]*kafka.Reader, 0, len(partitions))
	closeReaders := func() error {
		var result *multierror.Error
		for _, r := range readers {
			if err := r.Close(); err != nil {
				result = multierror.Append(result, err)
			}
		}
		return result.ErrorOrNil()
	}
	for _, p := range partitions {
		r := kafka.NewReader(kafka.ReaderConfig{
			Brokers:   t.cfg.Brokers,
			Topic:     p.Topic,
			Partition: p.ID,
			MaxWait:   t.cfg.MaxWait,
			Dialer:    t.dialer,
		})
		readers = append(readers, r)
		if err := r.SetOffset(kafka.LastOffset); err != nil {
			h.OnStatus(StatusErrored, fmt.Errorf("seek %s/%d: %w", p.Topic, p.ID, err))
			return closeReaders()
		}
	}
	if ctx.Err() != nil {
		return closeReaders()
	}
	slog.Debug("Kafka change feed subscribed",
		slog.String("channel", channel),
		slog.Int("partitions", len(readers)))
	h.OnStatus(StatusSubscribed, nil)

	g, gctx := errgroup.WithContext(ctx)
	msgs := make(chan kafka.Message)
	for _, r := range readers {
		g.Go(func() error {
			for {
				msg, err := r.ReadMessage(gctx)
				if err != nil {
					return err
				}
				select {
				case msgs <- msg:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		})
	}
	g.Go(func() error {
		return t.watchBrokers(gctx, topics)
	})

	waitErr := make(chan error, 1)
	go func() { waitErr <- g.Wait() }()
	for {
		select {
		case msg := <-msgs:
			h.OnEvent(t.decode(msg))
		case err := <-waitErr:
			closeErr := closeReaders()
			if ctx.Err() != nil {
				return closeErr
			}
			h.OnStatus(kafkaStatus(err), kafkaError(err))
			return closeErr
		}
	}
}

// watchBrokers re-probes the brokers every HealthInterval. A probe that
// times out ends the subscription with ErrIdleTimeout.
func (t *KafkaTransport) watchBrokers(ctx context.Context, topics []string) error {
	ticker := time.NewTicker(t.cfg.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := t.probe(ctx, topics); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if kafkaStatus(err) == StatusTimedOut {
					return fmt.Errorf("%w: %v", ErrIdleTimeout, err)
				}
				return err
			}
		}
	}
}

func kafkaStatus(err error) Status {
	switch {
	case errors.Is(err, io.EOF):
		return StatusClosed
	case errors.Is(err, ErrIdleTimeout), errors.Is(err, context.DeadlineExceeded), isTimeout(err):
		return StatusTimedOut
	default:
		return StatusErrored
	}
}

func kafkaError(err error) error {
	if errors.Is(err, io.EOF) {
		return ErrChannelClosed
	}
	return err
}

// probe dials one broker and reads partition metadata for every topic.
func (t *KafkaTransport) probe(ctx context.Context, topics []string) ([]kafka.Partition, error) {
	dialCtx, cancel := context.WithTimeout(ctx, t.dialer.Timeout)
	defer cancel()

	var lastErr error
	for _, broker := range t.cfg.Brokers {
		conn, err := t.dialer.DialContext(dialCtx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		_ = conn.SetDeadline(time.Now().Add(t.dialer.Timeout))
		partitions, err := conn.ReadPartitions(topics...)
		_ = conn.Close()
		if err != nil {
			return nil, fmt.Errorf("read partitions: %w", err)
		}
		return partitions, nil
	}
	if dialCtx.Err() != nil {
		return nil, dialCtx.Err()
	}
	return nil, fmt.Errorf("dial kafka: %w", lastErr)
}

// decode never fails: an unreadable payload still signals a change.
func (t *KafkaTransport) decode(msg kafka.Message) Event {
	var ev Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		slog.Debug("Undecodable change event payload", slog.String("topic", msg.Topic), slog.Any("error", err))
	}
	ev.Topic = t.cfg.LogicalTopic(msg.Topic)
	if ev.At.IsZero() {
		ev.At = msg.Time
	}
	return ev
}

// KafkaPublisher writes change events to their Kafka topics.
type KafkaPublisher struct {
	cfg    KafkaConfig
	writer *kafka.Writer
}

var _ Publisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	mechanism, err := cfg.saslMechanism()
	if err != nil {
		return nil, fmt.Errorf("failed to create SASL mechanism: %w", err)
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireOne,
		Transport: &kafka.Transport{
			SASL: mechanism,
			TLS:  cfg.tlsConfig(),
		},
	}
	return &KafkaPublisher{cfg: cfg, writer: w}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.cfg.KafkaTopic(ev.Topic),
		Key:   []byte(ev.Topic),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("publish change event to %s: %w", ev.Topic, err)
	}
	eventsPublished.Add(ctx, 1)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
