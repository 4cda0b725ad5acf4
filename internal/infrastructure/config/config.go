package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Shell     ShellConfig
	Window    WindowConfig
	Remote    RemoteConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8000"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	// CORSOrigins lists browser display origins; "*" allows any.
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
	// Output is "stdout", "stderr" or a file path.
	Output string `envconfig:"LOG_OUTPUT" default:"stdout"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	// IdleTTL forgets clients silent for this long.
	IdleTTL time.Duration `envconfig:"RATE_LIMIT_IDLE_TTL" default:"10m"`
}

// ShellConfig holds shell process configuration.
type ShellConfig struct {
	// ProfilesPath points at a .yaml or .toml profile file; empty uses the user's shell.
	ProfilesPath   string        `envconfig:"SHELL_PROFILES"`
	DefaultProfile string        `envconfig:"SHELL_DEFAULT_PROFILE"`
	PTY            bool          `envconfig:"SHELL_PTY" default:"true"`
	InitTimeout    time.Duration `envconfig:"SHELL_INIT_TIMEOUT" default:"0s"`
}

// WindowConfig holds window and display surface configuration.
type WindowConfig struct {
	Width             int           `envconfig:"WINDOW_WIDTH" default:"800"`
	Height            int           `envconfig:"WINDOW_HEIGHT" default:"600"`
	QueueLimit        int           `envconfig:"WINDOW_QUEUE_LIMIT" default:"1024"`
	WriteTimeout      time.Duration `envconfig:"WINDOW_WRITE_TIMEOUT" default:"10s"`
	CloseOnDisconnect bool          `envconfig:"WINDOW_CLOSE_ON_DISCONNECT" default:"false"`
}

// RemoteConfig holds display side configuration.
type RemoteConfig struct {
	ServerURL   string `envconfig:"SHELLHOST_URL" default:"http://localhost:8000"`
	BufferBytes int    `envconfig:"REMOTE_BUFFER_BYTES" default:"1048576"`
	KeepChunks  bool   `envconfig:"REMOTE_KEEP_CHUNKS" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	switch {
	case c.Server.Port == "":
		return fmt.Errorf("invalid config: empty port")
	case c.Window.Width < 0 || c.Window.Height < 0:
		return fmt.Errorf("invalid config: negative window size %dx%d", c.Window.Width, c.Window.Height)
	case c.Window.QueueLimit < 0:
		return fmt.Errorf("invalid config: negative queue limit %d", c.Window.QueueLimit)
	case c.Remote.BufferBytes < 0:
		return fmt.Errorf("invalid config: negative buffer size %d", c.Remote.BufferBytes)
	case c.Shell.InitTimeout < 0:
		return fmt.Errorf("invalid config: negative init timeout %s", c.Shell.InitTimeout)
	case c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0:
		return fmt.Errorf("invalid config: rate limit needs a positive rate")
	}
	for _, origin := range c.Server.CORSOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("invalid config: CORS origin %q needs an http or https scheme", origin)
		}
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
			Output:      "stdout",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
			IdleTTL:           10 * time.Minute,
		},
		Shell: ShellConfig{
			PTY: true,
		},
		Window: WindowConfig{
			Width:        800,
			Height:       600,
			QueueLimit:   1024,
			WriteTimeout: 10 * time.Second,
		},
		Remote: RemoteConfig{
			ServerURL:   "http://localhost:8000",
			BufferBytes: 1 << 20,
		},
	}
}
