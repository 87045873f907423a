package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the settings of both commands. The relay reads the HTTP,
// storage and token fields; the client reads Client.
type Config struct {
	AppName string `env:"APP_NAME" envDefault:"zChat relay"`
	Host    string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port    int    `env:"HTTP_PORT" envDefault:"8000"`

	SQLiteDSN string `env:"SQLITE_DSN" envDefault:"zchat.db"`

	JWTSecret          string `env:"JWT_SECRET"`
	AccessTokenMinutes int    `env:"ACCESS_TOKEN_EXPIRE_MINUTES" envDefault:"1440"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:5173"`
	Debug       bool     `env:"ZCHAT_DEBUG" envDefault:"false"`

	Client ClientConfig
}

// ClientConfig configures the chat client.
type ClientConfig struct {
	ServerURL string `env:"ZCHAT_SERVER_URL" envDefault:"http://localhost:8000"`
	// WSURL defaults to ServerURL with a ws scheme and the /ws path.
	WSURL    string `env:"ZCHAT_WS_URL"`
	Username string `env:"ZCHAT_USERNAME"`
	Password string `env:"ZCHAT_PASSWORD"`

	IdleDelay          time.Duration `env:"ZCHAT_IDLE_DELAY" envDefault:"10ms"`
	HistoryPage        int           `env:"ZCHAT_HISTORY_PAGE" envDefault:"50"`
	MaxPendingMessages int           `env:"ZCHAT_MAX_PENDING_MESSAGES" envDefault:"256"`
	ReplyWelcome       bool          `env:"ZCHAT_REPLY_WELCOME" envDefault:"true"`
	BackendRPS         float64       `env:"ZCHAT_BACKEND_RPS" envDefault:"5"`
}

// Load reads the environment. It does not validate; each command calls the
// matching Validate method.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	origins := cfg.CORSOrigins[:0]
	for _, o := range cfg.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	cfg.CORSOrigins = origins

	if cfg.Client.WSURL == "" {
		ws, err := deriveWSURL(cfg.Client.ServerURL)
		if err != nil {
			return nil, err
		}
		cfg.Client.WSURL = ws
	}
	return cfg, nil
}

// ValidateServer checks what the relay needs.
func (c *Config) ValidateServer() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("HTTP_PORT %d out of range", c.Port)
	}
	if c.AccessTokenMinutes <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_EXPIRE_MINUTES must be positive")
	}
	return nil
}

// ValidateClient checks what the chat client needs.
func (c *Config) ValidateClient() error {
	cc := c.Client
	if cc.Username == "" {
		return fmt.Errorf("ZCHAT_USERNAME is required")
	}
	if cc.HistoryPage <= 0 {
		return fmt.Errorf("ZCHAT_HISTORY_PAGE must be positive")
	}
	if cc.MaxPendingMessages <= 0 {
		return fmt.Errorf("ZCHAT_MAX_PENDING_MESSAGES must be positive")
	}
	if cc.IdleDelay < 0 {
		return fmt.Errorf("ZCHAT_IDLE_DELAY must not be negative")
	}
	return nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func deriveWSURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid ZCHAT_SERVER_URL %q", serverURL)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}
