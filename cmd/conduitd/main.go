package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	archivesqlite "conduit/internal/archive/sqlite"
	"conduit/internal/config"
	"conduit/internal/counters"
	"conduit/internal/egress"
	"conduit/internal/egress/kafka"
	"conduit/internal/egress/rabbitmq"
	egresssocket "conduit/internal/egress/socket"
	"conduit/internal/image"
	"conduit/internal/logbuffer"
)

func main() {
	cfgPath := flag.String("config", "conduit.yaml", "path to config file")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(log)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("conduitd exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	logBuffers, err := logbuffer.MapExisting(cfg.Client.LogFile)
	if err != nil {
		return err
	}
	defer logBuffers.Close()

	countersReader, err := counters.MapFile(cfg.Client.CountersFile)
	if err != nil {
		return err
	}
	defer countersReader.Close()

	position, err := countersReader.Position(cfg.Client.CounterID)
	if err != nil {
		return err
	}

	img := image.New(
		cfg.Client.SessionID,
		cfg.Client.CorrelationID,
		cfg.Client.RegistrationID,
		cfg.Client.SourceIdentity,
		position,
		logBuffers,
		func(err error) { log.Error("fragment handler failed", "error", err) },
	)
	defer img.Close()

	sinks, err := buildSinks(ctx, cfg, log)
	if err != nil {
		return err
	}

	bridge, err := egress.NewBridge(img, sinks, egress.BridgeConfig{
		FragmentLimit:  cfg.Bridge.FragmentLimit,
		CommitInterval: cfg.Bridge.CommitInterval,
		Window:         cfg.Bridge.WindowBytes,
		IdleSleep:      cfg.Bridge.IdleSleep,
	}, log)
	if err != nil {
		return err
	}
	defer bridge.Close()

	log.Info("conduitd polling",
		"session", cfg.Client.SessionID,
		"counter", cfg.Client.CounterID,
		"join_position", img.JoinPosition(),
		"term_length", img.TermBufferLength(),
		"sinks", len(sinks),
	)
	return bridge.Run(ctx)
}

func buildSinks(ctx context.Context, cfg config.Config, log *slog.Logger) ([]egress.Sink, error) {
	var sinks []egress.Sink

	if cfg.Archive.SQLite.Enabled {
		store, err := archivesqlite.Open(cfg.Archive.SQLite.Path)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, store)
	}
	if cfg.Egress.Kafka.Enabled {
		adapter, err := kafka.NewAdapter(kafka.Config{
			Enabled:  true,
			Brokers:  cfg.Egress.Kafka.Brokers,
			Topic:    cfg.Egress.Kafka.Topic,
			ClientID: cfg.Egress.Kafka.ClientID,
			Linger:   cfg.Egress.Kafka.Linger,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, adapter)
	}
	if cfg.Egress.RabbitMQ.Enabled {
		adapter, err := rabbitmq.NewAdapter(rabbitmq.Config{
			Enabled:    true,
			URL:        cfg.Egress.RabbitMQ.URL,
			Endpoints:  cfg.Egress.RabbitMQ.Endpoints,
			Exchange:   cfg.Egress.RabbitMQ.Exchange,
			RoutingKey: cfg.Egress.RabbitMQ.RoutingKey,
			Confirms:   cfg.Egress.RabbitMQ.Confirms,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, adapter)
	}
	if cfg.Egress.Socket.Enabled {
		server := egresssocket.NewServer(egresssocket.Config{
			Enabled:        true,
			Network:        cfg.Egress.Socket.Network,
			Address:        cfg.Egress.Socket.Address,
			UnixSocketPath: cfg.Egress.Socket.UnixSocketPath,
		})
		if err := server.Start(ctx); err != nil {
			return nil, err
		}
		log.Info("socket egress listening", "addr", server.Addr())
		sinks = append(sinks, server)
	}

	return sinks, nil
}
