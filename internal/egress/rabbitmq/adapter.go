// Package rabbitmq publishes consumed stream fragments to a RabbitMQ
// exchange.
package rabbitmq

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"
	"strings"

	"conduit/internal/egress"

	"github.com/rabbitmq/amqp091-go"
)

type Config struct {
	Enabled    bool
	URL        string
	Endpoints  []string
	Exchange   string
	RoutingKey string
	Confirms   bool
	TLS        TLSConfig
	Auth       AuthConfig
}

type TLSConfig struct {
	Enabled            bool
	InsecureSkipVerify bool
	ServerName         string
}

type AuthConfig struct {
	Username string
	Password string
}

func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Exchange == "" {
		return fmt.Errorf("rabbitmq exchange is required")
	}
	if c.endpoint() == "" {
		return fmt.Errorf("rabbitmq url or endpoints is required")
	}
	return nil
}

func (c Config) endpoint() string {
	if strings.TrimSpace(c.URL) != "" {
		return strings.TrimSpace(c.URL)
	}
	for _, e := range c.Endpoints {
		if strings.TrimSpace(e) != "" {
			return strings.TrimSpace(e)
		}
	}
	return ""
}

// Adapter publishes one message per fragment. With Confirms enabled each
// publish waits for broker acknowledgement before the bridge may advance the
// subscriber position.
type Adapter struct {
	cfg  Config
	conn *amqp091.Connection
	ch   *amqp091.Channel
}

func NewAdapter(cfg Config) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dialCfg := amqp091.Config{}
	if cfg.Auth.Username != "" {
		dialCfg.SASL = []amqp091.Authentication{&amqp091.PlainAuth{Username: cfg.Auth.Username, Password: cfg.Auth.Password}}
	}
	if cfg.TLS.Enabled {
		dialCfg.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: cfg.TLS.InsecureSkipVerify,
			ServerName:         cfg.TLS.ServerName,
		}
	}

	conn, err := amqp091.DialConfig(cfg.endpoint(), dialCfg)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	if cfg.Confirms {
		if err := ch.Confirm(false); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("enable confirms: %w", err)
		}
	}
	return &Adapter{cfg: cfg, conn: conn, ch: ch}, nil
}

func (a *Adapter) Name() string { return "rabbitmq" }

func (a *Adapter) Forward(ctx context.Context, rec *egress.Record) error {
	body, err := egress.Encode(rec)
	if err != nil {
		return err
	}

	routingKey := a.cfg.RoutingKey
	if routingKey == "" {
		routingKey = "session." + strconv.FormatInt(int64(rec.SessionId), 10)
	}
	msg := amqp091.Publishing{
		ContentType:  "application/x-protobuf",
		DeliveryMode: amqp091.Persistent,
		MessageId:    strconv.FormatInt(rec.Position, 10),
		Body:         body,
	}

	if a.cfg.Confirms {
		confirm, err := a.ch.PublishWithDeferredConfirmWithContext(ctx, a.cfg.Exchange, routingKey, false, false, msg)
		if err != nil {
			return fmt.Errorf("publish fragment at position %d: %w", rec.Position, err)
		}
		acked, err := confirm.WaitContext(ctx)
		if err != nil {
			return fmt.Errorf("await confirm at position %d: %w", rec.Position, err)
		}
		if !acked {
			return fmt.Errorf("broker nacked fragment at position %d", rec.Position)
		}
		return nil
	}

	if err := a.ch.PublishWithContext(ctx, a.cfg.Exchange, routingKey, false, false, msg); err != nil {
		return fmt.Errorf("publish fragment at position %d: %w", rec.Position, err)
	}
	return nil
}

func (a *Adapter) Close() error {
	var errs []error
	if a.ch != nil {
		if err := a.ch.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close rabbitmq: %v", errs)
	}
	return nil
}
