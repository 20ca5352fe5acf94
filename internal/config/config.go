package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const Prefix = "TOOLFORM_"

type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Server struct {
		Addr            string        `env:"ADDR" envDefault:":3000"`
		ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
		WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
		ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`
	} `envPrefix:"SERVER_"`
	Data struct {
		EmployeesPath string `env:"EMPLOYEES_PATH" envDefault:"employees.xlsx"`
		ToolsPath     string `env:"TOOLS_PATH" envDefault:"Tool_mapping.xlsx"`
		RequestsPath  string `env:"REQUESTS_PATH" envDefault:"requests.xlsx"`
		BackupLog     bool   `env:"BACKUP_LOG" envDefault:"true"`
	} `envPrefix:"DATA_"`
	Form struct {
		Sites                []string `env:"SITES" envSeparator:"," envDefault:"Industrial Zone 1,Industrial Zone 2,Gizri,Defence,Korangi"`
		TimezoneOffsetHours  int      `env:"TIMEZONE_OFFSET_HOURS" envDefault:"5"`
		RecentLimit          int      `env:"RECENT_LIMIT" envDefault:"50"`
		HighlightDesignation string   `env:"HIGHLIGHT_DESIGNATION" envDefault:"Technician"`
	} `envPrefix:"FORM_"`
	Export struct {
		Passphrase  string `env:"PASSPHRASE" envDefault:"2313"`
		MaxAttempts int    `env:"MAX_ATTEMPTS" envDefault:"3"`
	} `envPrefix:"EXPORT_"`
	Session struct {
		Backend       string        `env:"BACKEND" envDefault:"memory"`
		TTL           time.Duration `env:"TTL" envDefault:"12h"`
		RedisAddr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
		RedisPassword string        `env:"REDIS_PASSWORD"`
		RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	} `envPrefix:"SESSION_"`
	AMQP struct {
		DSN            string        `env:"DSN"`
		Queue          string        `env:"QUEUE" envDefault:"tool_requests"`
		PublishTimeout time.Duration `env:"PUBLISH_TIMEOUT" envDefault:"5s"`
	} `envPrefix:"AMQP_"`
	Sheets struct {
		SpreadsheetID   string `env:"SPREADSHEET_ID"`
		EmployeesRange  string `env:"EMPLOYEES_RANGE" envDefault:"Employees!A1:D"`
		ToolsRange      string `env:"TOOLS_RANGE" envDefault:"Tools!A1:B"`
		CredentialsJSON string `env:"CREDENTIALS_JSON"`
		CredentialsFile string `env:"CREDENTIALS_FILE"`
	} `envPrefix:"SHEETS_"`
}

// Load parses TOOLFORM_* environment variables into a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: Prefix}); err != nil {
		aggErr := env.AggregateError{}
		if errors.As(err, &aggErr) && len(aggErr.Errors) > 0 {
			return nil, aggErr.Errors[0]
		}
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	sites := make([]string, 0, len(c.Form.Sites))
	for _, site := range c.Form.Sites {
		if site = strings.TrimSpace(site); site != "" {
			sites = append(sites, site)
		}
	}
	if len(sites) == 0 {
		return errors.New("at least one site is required")
	}
	c.Form.Sites = sites

	if strings.TrimSpace(c.Export.Passphrase) == "" {
		return errors.New("export passphrase is required")
	}
	if c.Export.MaxAttempts < 1 {
		return fmt.Errorf("export max attempts must be positive, got %d", c.Export.MaxAttempts)
	}
	if c.Form.RecentLimit < 1 {
		return fmt.Errorf("recent limit must be positive, got %d", c.Form.RecentLimit)
	}
	switch c.Session.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}
	return nil
}
