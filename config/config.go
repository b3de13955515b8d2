// Package config loads the cashflow.yaml configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the top-level cashflow.yaml configuration.
type Config struct {
	Server      ServerConfig   `yaml:"server"`
	Database    DatabaseConfig `yaml:"database"`
	Log         LogConfig      `yaml:"log"`
	Monitor     MonitorConfig  `yaml:"monitor"`
	SMTP        SMTPConfig     `yaml:"smtp"`
	Preferences Preferences    `yaml:"preferences"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port           int           `yaml:"port"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
}

// DatabaseConfig selects the ledger store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite3", "postgres" or "memory"
	DSN    string `yaml:"dsn"`
}

// LogConfig controls logrus.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// MonitorConfig schedules the negative-balance risk check.
type MonitorConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Schedule string   `yaml:"schedule"` // cron spec, e.g. "@daily"
	Months   int      `yaml:"months"`
	Owners   []string `yaml:"owners"`
}

// SMTPConfig configures email notifications. Empty Host disables email.
type SMTPConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

// Enabled reports whether email can be sent.
func (s SMTPConfig) Enabled() bool { return s.Host != "" && s.From != "" && len(s.To) > 0 }

// Addr is host:port.
func (s SMTPConfig) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// Preferences are user-facing settings injected into the presentation
// layer. The engine never reads them.
type Preferences struct {
	Owner             string   `yaml:"owner" json:"owner"`
	ProjectionMonths  int      `yaml:"projection_months" json:"projection_months"`
	HiddenWidgets     []string `yaml:"hidden_widgets" json:"hidden_widgets"`
	DefaultCategoryID string   `yaml:"default_category_id,omitempty" json:"default_category_id,omitempty"`
}

// WidgetVisible reports whether a dashboard widget should be shown.
func (p Preferences) WidgetVisible(name string) bool {
	for _, w := range p.HiddenWidgets {
		if strings.EqualFold(w, name) {
			return false
		}
	}
	return true
}

// Default returns a Config with sensible defaults for a new installation.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			IdleTimeout:    60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "cashflow.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Monitor: MonitorConfig{
			Enabled:  false,
			Schedule: "@daily",
			Months:   6,
		},
		SMTP: SMTPConfig{
			Port: 587,
		},
		Preferences: Preferences{
			Owner:            "default",
			ProjectionMonths: 6,
		},
	}
}

// Load reads a cashflow.yaml file from disk on top of Default().
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from CASHFLOW_* and LOG_LEVEL variables.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv("CASHFLOW_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CASHFLOW_PORT: %w", err)
		}
		c.Server.Port = port
	}
	c.Database.Driver = getEnv("CASHFLOW_DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("CASHFLOW_DB_DSN", c.Database.DSN)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)

	c.SMTP.Host = getEnv("CASHFLOW_SMTP_HOST", c.SMTP.Host)
	if v, ok := os.LookupEnv("CASHFLOW_SMTP_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CASHFLOW_SMTP_PORT: %w", err)
		}
		c.SMTP.Port = port
	}
	c.SMTP.Username = getEnv("CASHFLOW_SMTP_USERNAME", c.SMTP.Username)
	c.SMTP.Password = getEnv("CASHFLOW_SMTP_PASSWORD", c.SMTP.Password)
	c.SMTP.From = getEnv("CASHFLOW_SMTP_FROM", c.SMTP.From)
	if v, ok := os.LookupEnv("CASHFLOW_SMTP_TO"); ok {
		c.SMTP.To = splitList(v)
	}
	return nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Database.Driver {
	case "sqlite3", "postgres", "memory":
	default:
		return fmt.Errorf("database.driver %q must be sqlite3, postgres or memory", c.Database.Driver)
	}
	if c.Database.Driver != "memory" && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format %q must be json or text", c.Log.Format)
	}
	if c.Monitor.Enabled && c.Monitor.Schedule == "" {
		return fmt.Errorf("monitor.schedule is required when the monitor is enabled")
	}
	if c.Monitor.Months < 0 || c.Preferences.ProjectionMonths < 0 {
		return fmt.Errorf("projection months must not be negative")
	}
	if c.Preferences.Owner == "" {
		return fmt.Errorf("preferences.owner is required")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
