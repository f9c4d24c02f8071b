// internal/config/config.go
// Loads server configuration from a YAML file, an optional .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/erilali/gameroom/internal/logger"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the whole server configuration.
type Config struct {
	Server struct {
		Addr            string        `yaml:"addr"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		AllowedOrigins  []string      `yaml:"allowed_origins"`
	} `yaml:"server"`

	Log logger.LogConfig `yaml:"log"`

	Rooms struct {
		Timeout       time.Duration `yaml:"timeout"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
	} `yaml:"rooms"`

	Chat struct {
		Backend            string        `yaml:"backend"` // memory or redis
		RateLimit          int           `yaml:"rate_limit"`
		Window             time.Duration `yaml:"window"`
		MaxHistory         int           `yaml:"max_history"`
		DuplicateThreshold time.Duration `yaml:"duplicate_threshold"`
		BlockedWords       []string      `yaml:"blocked_words"`
	} `yaml:"chat"`

	WebSocket struct {
		ReadLimit    int64   `yaml:"read_limit"`
		SendBuffer   int     `yaml:"send_buffer"`
		MessageRate  float64 `yaml:"message_rate"`
		MessageBurst int     `yaml:"message_burst"`
	} `yaml:"websocket"`

	Storage struct {
		Driver       string        `yaml:"driver"` // none, memory, postgres, sqlite
		DSN          string        `yaml:"dsn"`
		Migrate      bool          `yaml:"migrate"`
		MaxConns     int32         `yaml:"max_conns"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		QueueSize    int           `yaml:"queue_size"`
	} `yaml:"storage"`

	NATS struct {
		Enabled   bool          `yaml:"enabled"`
		URL       string        `yaml:"url"`
		Retention time.Duration `yaml:"retention"`
	} `yaml:"nats"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Addr = ":5000"
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Log = logger.DefaultLogConfig()

	cfg.Rooms.Timeout = 30 * time.Minute
	cfg.Rooms.SweepInterval = 5 * time.Minute

	cfg.Chat.Backend = "memory"
	cfg.Chat.RateLimit = 3
	cfg.Chat.Window = 10 * time.Second
	cfg.Chat.MaxHistory = 100
	cfg.Chat.DuplicateThreshold = 5 * time.Second

	cfg.WebSocket.ReadLimit = 4096
	cfg.WebSocket.SendBuffer = 256
	cfg.WebSocket.MessageRate = 20
	cfg.WebSocket.MessageBurst = 40

	cfg.Storage.Driver = "none"
	cfg.Storage.Migrate = true
	cfg.Storage.MaxConns = 10
	cfg.Storage.WriteTimeout = 5 * time.Second
	cfg.Storage.QueueSize = 128

	cfg.NATS.Enabled = false
	cfg.NATS.URL = "nats://127.0.0.1:4222"
	cfg.NATS.Retention = 24 * time.Hour

	cfg.Redis.Addr = "localhost:6379"
	return cfg
}

// Load reads path over the defaults. A missing file is not an error. Values from a .env file
// in the working directory and from the process environment override the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg.applyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	host, port := getenv("HOST"), getenv("PORT")
	if host != "" || port != "" {
		curHost, curPort, err := net.SplitHostPort(c.Server.Addr)
		if err != nil {
			curHost, curPort = "", "5000"
		}
		if host != "" {
			curHost = host
		}
		if port != "" {
			curPort = port
		}
		c.Server.Addr = net.JoinHostPort(curHost, curPort)
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("DATABASE_URL"); v != "" {
		c.Storage.DSN = v
		if c.Storage.Driver == "none" {
			c.Storage.Driver = "postgres"
		}
	}
	if v := getenv("STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := getenv("NATS_URL"); v != "" {
		c.NATS.URL = v
		c.NATS.Enabled = true
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := getenv("ROOM_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.Rooms.Timeout = time.Duration(secs) * time.Second
		}
	}
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	var problems []string
	if c.Server.Addr == "" {
		problems = append(problems, "server.addr is required")
	}
	if c.Rooms.Timeout <= 0 {
		problems = append(problems, "rooms.timeout must be positive")
	}
	if c.Rooms.SweepInterval <= 0 {
		problems = append(problems, "rooms.sweep_interval must be positive")
	}
	if c.Chat.RateLimit <= 0 || c.Chat.Window <= 0 {
		problems = append(problems, "chat.rate_limit and chat.window must be positive")
	}
	if c.Chat.MaxHistory <= 0 {
		problems = append(problems, "chat.max_history must be positive")
	}
	switch c.Chat.Backend {
	case "memory", "redis":
	default:
		problems = append(problems, fmt.Sprintf("chat.backend %q is not one of memory, redis", c.Chat.Backend))
	}
	switch c.Storage.Driver {
	case "none", "memory":
	case "postgres", "sqlite":
		if c.Storage.DSN == "" {
			problems = append(problems, "storage.dsn is required for "+c.Storage.Driver)
		}
	default:
		problems = append(problems, fmt.Sprintf("storage.driver %q is not one of none, memory, postgres, sqlite", c.Storage.Driver))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
