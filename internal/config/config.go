// Package config loads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/omochice/room-chat-client/internal/chat"
)

// Transport names accepted by ROOMCHAT_TRANSPORT.
const (
	TransportCoder  = "coder"
	TransportGobwas = "gobwas"
)

// Store backends accepted by ROOMCHAT_STORE_BACKEND.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Config holds every setting the client reads at startup.
type Config struct {
	ServerURL     string `env:"ROOMCHAT_SERVER_URL" envDefault:"http://localhost:9099" validate:"required,url" label:"server url"`
	WebSocketPath string `env:"ROOMCHAT_WS_PATH" envDefault:"/ws" validate:"required,startswith=/" label:"websocket path"`

	Transport    string `env:"ROOMCHAT_TRANSPORT" envDefault:"coder" validate:"oneof=coder gobwas" label:"transport"`
	StoreBackend string `env:"ROOMCHAT_STORE_BACKEND" envDefault:"file" validate:"oneof=file sqlite memory" label:"store backend"`
	StoreDir     string `env:"ROOMCHAT_STORE_DIR"`

	CloseTimeout   time.Duration `env:"ROOMCHAT_CLOSE_TIMEOUT" envDefault:"3s" validate:"gt=0" label:"close timeout"`
	WriteTimeout   time.Duration `env:"ROOMCHAT_WRITE_TIMEOUT" envDefault:"5s" validate:"gt=0" label:"write timeout"`
	PingInterval   time.Duration `env:"ROOMCHAT_PING_INTERVAL" envDefault:"0s" validate:"gte=0" label:"ping interval"`
	RequestTimeout time.Duration `env:"ROOMCHAT_REQUEST_TIMEOUT" envDefault:"10s" validate:"gt=0" label:"request timeout"`

	LogFormat string `env:"LOG_FORMAT" envDefault:"text" validate:"oneof=text json" label:"log format"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error" label:"log level"`
}

// Load reads the given .env files (".env" when none are given) and then
// parses the environment. Missing .env files are not an error; variables
// already set in the environment win over file values.
func Load(filenames ...string) (Config, error) {
	if err := godotenv.Load(filenames...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	return Parse()
}

// Parse reads the configuration from the process environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.StoreDir == "" {
		cfg.StoreDir = defaultStoreDir()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enum values and URL shapes.
func (c Config) Validate() error {
	if err := chat.ValidateStruct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid config: %w", chat.Validation("server url", "must use http or https"))
	}
	return nil
}

// APIBaseURL returns the server URL without a trailing slash.
func (c Config) APIBaseURL() string {
	return strings.TrimRight(c.ServerURL, "/")
}

// WebSocketURL derives the websocket endpoint from the server URL:
// http becomes ws and https becomes wss.
func (c Config) WebSocketURL() (string, error) {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path = c.WebSocketPath
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

func defaultStoreDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".roomchat"
	}
	return filepath.Join(home, ".roomchat")
}
