package config

import (
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	mu sync.RWMutex `yaml:"-"`

	Robot    RobotConfig    `yaml:"robot"`
	Proxy    ProxyConfig    `yaml:"proxy"`
	Live     LiveConfig     `yaml:"live"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	Web      WebConfig      `yaml:"web"`
}

// RobotConfig drives the state fetcher and the retry/poll scheduler.
type RobotConfig struct {
	Name               string        `yaml:"name"`
	Endpoint           string        `yaml:"endpoint"`
	AuthToken          string        `yaml:"auth_token"`
	AuthHeader         string        `yaml:"auth_header"`
	Timeout            time.Duration `yaml:"timeout"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	BackoffBase        time.Duration `yaml:"backoff_base"`
	MaxAttempts        int           `yaml:"max_attempts"`
	PlaceholderMessage bool          `yaml:"placeholder_message"`
}

type ProxyConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type LiveConfig struct {
	Backend string      `yaml:"backend"` // none, mqtt, kafka, sse
	Topic   string      `yaml:"topic"`
	MQTT    MQTTConfig  `yaml:"mqtt"`
	Kafka   KafkaConfig `yaml:"kafka"`
	SSE     SSEConfig   `yaml:"sse"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	GroupID string   `yaml:"group_id"`
}

type SSEConfig struct {
	URL   string `yaml:"url"`
	Event string `yaml:"event"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type DatabaseConfig struct {
	Driver      string         `yaml:"driver"`
	SQLite      SQLiteConfig   `yaml:"sqlite"`
	Postgres    PostgresConfig `yaml:"postgres"`
	HistoryKeep int            `yaml:"history_keep"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type WebConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	SessionSecret string `yaml:"session_secret"`
	RelayToken    string `yaml:"relay_token"`
}

func Defaults() *Config {
	return &Config{
		Robot: RobotConfig{
			Name:         "arachne-1",
			Endpoint:     "http://localhost:8787/robot-state",
			Timeout:      10 * time.Second,
			PollInterval: 10 * time.Second,
			BackoffBase:  3 * time.Second,
			MaxAttempts:  2,
		},
		Proxy: ProxyConfig{
			BaseURL: "http://localhost:8787",
			Timeout: 30 * time.Second,
		},
		Live: LiveConfig{
			Backend: "none",
			Topic:   "hexapod.robot-state",
			MQTT: MQTTConfig{
				Broker: "localhost",
				Port:   1883,
			},
			Kafka: KafkaConfig{
				Brokers: []string{"localhost:9092"},
				GroupID: "hexapod-server",
			},
			SSE: SSEConfig{
				Event: "stateUpdate",
			},
		},
		Redis: RedisConfig{
			Address: "localhost:6379",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{Path: "hexapod.db"},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "hexapod",
				User:     "hexapod",
				SSLMode:  "disable",
			},
			HistoryKeep: 5000,
		},
		Web: WebConfig{
			Host:          "0.0.0.0",
			Port:          8080,
			SessionSecret: "change-me-in-production",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
