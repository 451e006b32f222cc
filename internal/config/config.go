// Package config loads process settings for the chat binaries. Defaults come
// from struct tags, the environment overrides them and command line flags
// override the environment.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
)

type Server struct {
	Addr         string        `env:"CHAT_ADDR,default=:5000" validate:"required"`
	MetricsAddr  string        `env:"CHAT_METRICS_ADDR,default=:9090"`
	LogLevel     string        `env:"CHAT_LOG_LEVEL,default=info" validate:"oneof=debug info warn error"`
	WriteTimeout time.Duration `env:"CHAT_WRITE_TIMEOUT,default=10s" validate:"gt=0"`
	MaxFrameSize int           `env:"CHAT_MAX_FRAME_SIZE,default=16777216" validate:"min=0,max=4294967295"`
}

type Client struct {
	Host string `env:"CHAT_HOST,default=localhost" validate:"required"`
	Port int    `env:"CHAT_PORT,default=5000" validate:"min=1,max=65535"`
}

var validate = validator.New()

// LoadServer reads server settings from the environment, then applies flags
// parsed from args.
func LoadServer(fs *flag.FlagSet, args []string) (Server, error) {
	var cfg Server
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Server{}, fmt.Errorf("config: environment: %w", err)
	}

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "chat listen address")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "metrics listen address, empty disables")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "per envelope write deadline, must be positive")
	fs.IntVar(&cfg.MaxFrameSize, "max-frame-size", cfg.MaxFrameSize, "largest accepted envelope body in bytes, 0 disables")
	if err := fs.Parse(args); err != nil {
		return Server{}, err
	}

	if err := validate.Struct(cfg); err != nil {
		return Server{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LoadClient reads client settings. The classic command line shape
// "<host> <port>" is accepted as positional arguments.
func LoadClient(fs *flag.FlagSet, args []string) (Client, error) {
	var cfg Client
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Client{}, fmt.Errorf("config: environment: %w", err)
	}

	fs.StringVar(&cfg.Host, "host", cfg.Host, "chat server host")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "chat server port")
	if err := fs.Parse(args); err != nil {
		return Client{}, err
	}

	switch rest := fs.Args(); len(rest) {
	case 0:
	case 2:
		cfg.Host = rest[0]
		if _, err := fmt.Sscanf(rest[1], "%d", &cfg.Port); err != nil {
			return Client{}, fmt.Errorf("config: port %q: %w", rest[1], err)
		}
	default:
		return Client{}, fmt.Errorf("config: expected <host> <port>, got %d arguments", len(rest))
	}

	if err := validate.Struct(cfg); err != nil {
		return Client{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Address joins host and port for net.Dial.
func (c Client) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Level maps the configured log level onto slog.
func (s Server) Level() slog.Level {
	switch strings.ToLower(s.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
