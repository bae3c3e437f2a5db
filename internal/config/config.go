package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Client  ClientConfig  `mapstructure:"client"`
	Bridge  BridgeConfig  `mapstructure:"bridge"`
	Egress  EgressConfig  `mapstructure:"egress"`
	Archive ArchiveConfig `mapstructure:"archive"`
}

// ClientConfig locates the shared log and counters files and carries the
// image identity published by the media driver.
type ClientConfig struct {
	LogFile        string `mapstructure:"log_file"`
	CountersFile   string `mapstructure:"counters_file"`
	CounterID      int32  `mapstructure:"counter_id"`
	SessionID      int32  `mapstructure:"session_id"`
	StreamID       int32  `mapstructure:"stream_id"`
	CorrelationID  int64  `mapstructure:"correlation_id"`
	RegistrationID int64  `mapstructure:"registration_id"`
	SourceIdentity string `mapstructure:"source_identity"`
}

type BridgeConfig struct {
	FragmentLimit  int           `mapstructure:"fragment_limit"`
	CommitInterval int           `mapstructure:"commit_interval"`
	WindowBytes    int64         `mapstructure:"window_bytes"`
	IdleSleep      time.Duration `mapstructure:"idle_sleep"`
}

type EgressConfig struct {
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	Socket   SocketConfig   `mapstructure:"socket"`
}

type KafkaConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Brokers  []string      `mapstructure:"brokers"`
	Topic    string        `mapstructure:"topic"`
	ClientID string        `mapstructure:"client_id"`
	Linger   time.Duration `mapstructure:"linger"`
}

type RabbitMQConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	URL        string   `mapstructure:"url"`
	Endpoints  []string `mapstructure:"endpoints"`
	Exchange   string   `mapstructure:"exchange"`
	RoutingKey string   `mapstructure:"routing_key"`
	Confirms   bool     `mapstructure:"confirms"`
}

type SocketConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Network        string `mapstructure:"network"`
	Address        string `mapstructure:"address"`
	UnixSocketPath string `mapstructure:"unix_socket_path"`
}

type ArchiveConfig struct {
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

type SQLiteConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("conduit")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bridge.fragment_limit", 100)
	v.SetDefault("bridge.idle_sleep", time.Millisecond)
	v.SetDefault("egress.socket.network", "tcp")
}

func (c Config) Validate() error {
	if c.Client.LogFile == "" {
		return fmt.Errorf("client.log_file is required")
	}
	if c.Client.CountersFile == "" {
		return fmt.Errorf("client.counters_file is required")
	}
	if c.Client.CounterID < 0 {
		return fmt.Errorf("client.counter_id must be >= 0")
	}
	if !c.Egress.Kafka.Enabled && !c.Egress.RabbitMQ.Enabled && !c.Egress.Socket.Enabled && !c.Archive.SQLite.Enabled {
		return fmt.Errorf("at least one egress sink or the archive must be enabled")
	}
	if c.Egress.Kafka.Enabled && len(c.Egress.Kafka.Brokers) == 0 {
		return fmt.Errorf("egress.kafka.brokers is required")
	}
	if c.Egress.Kafka.Enabled && c.Egress.Kafka.Topic == "" {
		return fmt.Errorf("egress.kafka.topic is required")
	}
	if c.Egress.RabbitMQ.Enabled && c.Egress.RabbitMQ.Exchange == "" {
		return fmt.Errorf("egress.rabbitmq.exchange is required")
	}
	if c.Archive.SQLite.Enabled && c.Archive.SQLite.Path == "" {
		return fmt.Errorf("archive.sqlite.path is required")
	}
	return nil
}
