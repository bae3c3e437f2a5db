// Package kafka forwards consumed stream fragments to a Kafka topic.
package kafka

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"time"

	"conduit/internal/egress"

	"github.com/twmb/franz-go/pkg/kgo"
)

type Config struct {
	Enabled  bool
	Brokers  []string
	Topic    string
	ClientID string
	Linger   time.Duration
	Auth     AuthConfig
}

type AuthConfig struct {
	TLS TLSConfig
}

type TLSConfig struct {
	Enabled            bool
	InsecureSkipVerify bool
}

func (c *Config) withDefaults() {
	if c.Linger < 0 {
		c.Linger = 0
	}
}

func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Brokers) == 0 {
		return errors.New("kafka.brokers is required")
	}
	if c.Topic == "" {
		return errors.New("kafka.topic is required")
	}
	return nil
}

// Adapter publishes one Kafka record per fragment, keyed by session id so a
// session's fragments stay ordered within a partition. Produce is
// synchronous: the bridge must not advance the subscriber position until the
// broker has acknowledged the fragment.
type Adapter struct {
	cfg    Config
	client *kgo.Client
}

func NewAdapter(cfg Config, opts ...kgo.Opt) (*Adapter, error) {
	cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	kopts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ProducerLinger(cfg.Linger),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}
	if cfg.ClientID != "" {
		kopts = append(kopts, kgo.ClientID(cfg.ClientID))
	}
	if cfg.Auth.TLS.Enabled {
		kopts = append(kopts, kgo.DialTLSConfig(&tls.Config{InsecureSkipVerify: cfg.Auth.TLS.InsecureSkipVerify}))
	}
	kopts = append(kopts, opts...)

	cl, err := kgo.NewClient(kopts...)
	if err != nil {
		return nil, fmt.Errorf("new kafka client: %w", err)
	}
	return &Adapter{cfg: cfg, client: cl}, nil
}

func (a *Adapter) Name() string { return "kafka" }

func (a *Adapter) Forward(ctx context.Context, rec *egress.Record) error {
	body, err := egress.Encode(rec)
	if err != nil {
		return err
	}
	kr := &kgo.Record{
		Key:   []byte(strconv.FormatInt(int64(rec.SessionId), 10)),
		Value: body,
		Headers: []kgo.RecordHeader{
			{Key: "stream-position", Value: []byte(strconv.FormatInt(rec.Position, 10))},
		},
	}
	if err := a.client.ProduceSync(ctx, kr).FirstErr(); err != nil {
		return fmt.Errorf("produce fragment at position %d: %w", rec.Position, err)
	}
	return nil
}

func (a *Adapter) Close() error {
	a.client.Close()
	return nil
}
