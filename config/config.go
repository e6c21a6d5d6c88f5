// Package config loads process configuration from the environment,
// optionally seeded from a .env file. CLI positional arguments override
// the port and thread count.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Engine    EngineConfig
	EventLog  EventLogConfig
	Kafka     KafkaConfig
	Metrics   MetricsConfig
	Logging   LoggingConfig
	Simulator SimulatorConfig
}

type ServerConfig struct {
	Port           int
	IOThreads      int
	MaxConnections int
}

type EngineConfig struct {
	MaxOrders   int
	InboxCap    uint64
	OutboxCap   uint64
	IdleBackoff time.Duration
}

type EventLogConfig struct {
	Enabled bool
	Dir     string
}

type KafkaConfig struct {
	Enabled   bool
	Brokers   []string
	Topic     string
	OutboxDir string
	Interval  time.Duration
}

type MetricsConfig struct {
	Enabled bool
	Port    int
}

type LoggingConfig struct {
	Level string
}

type SimulatorConfig struct {
	Address          string
	Instances        int
	TickPeriod       time.Duration
	LambdaInsertBase float64
	LambdaCancelBase float64
	BucketBounds     []int64
}

// Load reads the environment. A missing .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvInt("HELIX_PORT", 16000),
			IOThreads:      getEnvInt("HELIX_IO_THREADS", 0),
			MaxConnections: getEnvInt("HELIX_MAX_CONNECTIONS", 128),
		},
		Engine: EngineConfig{
			MaxOrders:   getEnvInt("HELIX_MAX_ORDERS", 1000),
			InboxCap:    uint64(getEnvInt("HELIX_INBOX_CAP", 4096)),
			OutboxCap:   uint64(getEnvInt("HELIX_OUTBOX_CAP", 4096)),
			IdleBackoff: getEnvDuration("HELIX_ENGINE_IDLE_BACKOFF", 50*time.Microsecond),
		},
		EventLog: EventLogConfig{
			Enabled: getEnvBool("HELIX_EVENT_LOG_ENABLED", false),
			Dir:     getEnvString("HELIX_EVENT_LOG_DIR", "./logs"),
		},
		Kafka: KafkaConfig{
			Enabled:   getEnvBool("HELIX_KAFKA_ENABLED", false),
			Brokers:   getEnvList("HELIX_KAFKA_BROKERS", []string{"127.0.0.1:9092"}),
			Topic:     getEnvString("HELIX_KAFKA_TOPIC", "helix.market-data"),
			OutboxDir: getEnvString("HELIX_OUTBOX_DIR", "./outbox"),
			Interval:  getEnvDuration("HELIX_KAFKA_INTERVAL", 250*time.Millisecond),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("HELIX_METRICS_ENABLED", false),
			Port:    getEnvInt("HELIX_METRICS_PORT", 9090),
		},
		Logging: LoggingConfig{
			Level: getEnvString("HELIX_LOG_LEVEL", "info"),
		},
		Simulator: SimulatorConfig{
			Address:          getEnvString("HELIX_SIM_ADDRESS", "127.0.0.1:16000"),
			Instances:        getEnvInt("HELIX_SIM_INSTANCES", 1),
			TickPeriod:       getEnvDuration("HELIX_SIM_TICK", time.Millisecond),
			LambdaInsertBase: getEnvFloat("HELIX_SIM_LAMBDA_INSERT", 40.0),
			LambdaCancelBase: getEnvFloat("HELIX_SIM_LAMBDA_CANCEL", 20.0),
			BucketBounds:     getEnvInt64List("HELIX_SIM_BUCKETS", []int64{1, 5, 10}),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.MaxConnections <= 0 {
		return fmt.Errorf("invalid max connections: %d", c.Server.MaxConnections)
	}
	if c.Engine.MaxOrders <= 0 {
		return fmt.Errorf("invalid max orders: %d", c.Engine.MaxOrders)
	}
	if c.Engine.InboxCap&(c.Engine.InboxCap-1) != 0 || c.Engine.OutboxCap&(c.Engine.OutboxCap-1) != 0 {
		return fmt.Errorf("queue capacities must be powers of two")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka enabled with no brokers")
	}
	if c.Simulator.Instances <= 0 {
		return fmt.Errorf("invalid simulator instance count: %d", c.Simulator.Instances)
	}
	return nil
}

func getEnvString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "true", "yes", "1":
			return true
		case "false", "no", "0":
			return false
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}

func getEnvInt64List(key string, def []int64) []int64 {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]int64, 0, len(parts))
		for _, p := range parts {
			n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
			if err != nil {
				return def
			}
			out = append(out, n)
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}
