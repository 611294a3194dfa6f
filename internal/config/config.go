package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // timezone names resolve in minimal containers

	"venuebook/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App           AppConfig          `yaml:"app"`
	Database      DatabaseConfig     `yaml:"database"`
	Redis         RedisConfig        `yaml:"redis"`
	Booking       BookingConfig      `yaml:"booking"`
	Notifications NotificationConfig `yaml:"notifications"`
	Backup        BackupConfig       `yaml:"backup"`
	Monitoring    MonitoringConfig   `yaml:"monitoring"`
	Logging       LoggingConfig      `yaml:"logging"`
	API           APIConfig          `yaml:"api"`
	SpacesFile    string             `yaml:"spaces_file"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// BookingConfig drives the conflict resolver and the reconciler.
type BookingConfig struct {
	BlockingStatuses []string      `yaml:"blocking_statuses"`
	Timezone         string        `yaml:"timezone"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`
	LockTTL          time.Duration `yaml:"lock_ttl"`
	MaxAdvanceDays   int           `yaml:"max_advance_days"` // 0 disables the horizon
}

type NotificationConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Retry    RetryConfig    `yaml:"retry"`
	Telegram TelegramConfig `yaml:"telegram"`
	Google   GoogleConfig   `yaml:"google"`
}

type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
}

type TelegramConfig struct {
	BotToken     string  `yaml:"bot_token"`
	AdminChatIDs []int64 `yaml:"admin_chat_ids"`
	Debug        bool    `yaml:"debug"`
	// AdminBot also listens for review commands from the admin chats.
	AdminBot bool `yaml:"admin_bot"`
}

type GoogleConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	SheetName       string `yaml:"sheet_name"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

// APIAuthConfig configures bearer token verification.
type APIAuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; variables may come from the environment directly.
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.API.HTTP.Enabled && c.API.Auth.JWTSecret == "" {
		return errors.New("api.auth.jwt_secret is required when the HTTP API is enabled")
	}
	if _, err := c.Booking.Location(); err != nil {
		return err
	}
	if _, err := c.Booking.Statuses(); err != nil {
		return err
	}
	if c.Booking.MaxAdvanceDays < 0 {
		return errors.New("booking.max_advance_days must not be negative")
	}
	if c.Notifications.Telegram.BotToken != "" && len(c.Notifications.Telegram.AdminChatIDs) == 0 {
		return errors.New("notifications.telegram.admin_chat_ids is required when a bot token is set")
	}
	if c.Notifications.Google.SpreadsheetID != "" && c.Notifications.Google.CredentialsFile == "" {
		return errors.New("notifications.google.credentials_file is required when a spreadsheet is set")
	}
	return nil
}

// ValidateSpaces checks seed spaces before they are written to the store.
func ValidateSpaces(spaces []models.Space) error {
	names := make(map[string]bool)
	for _, s := range spaces {
		name := strings.TrimSpace(s.Name)
		if len(name) < 2 {
			return fmt.Errorf("space name %q is too short", s.Name)
		}
		if s.Capacity <= 0 {
			return fmt.Errorf("space '%s' has invalid capacity %d", name, s.Capacity)
		}
		if s.PricePerDay != nil && *s.PricePerDay < 0 {
			return fmt.Errorf("space '%s' has negative price", name)
		}
		if names[name] {
			return fmt.Errorf("duplicate space name found: %s", name)
		}
		names[name] = true
	}
	return nil
}

// Location resolves the timezone used for calendar dates.
// SinkNames lists the notification sinks a fully connected API process would
// run, in delivery order. Processes that only enqueue use it to address tasks.
func (n NotificationConfig) SinkNames() []string {
	if !n.Enabled {
		return nil
	}
	names := []string{"log"}
	if n.Telegram.BotToken != "" {
		names = append(names, "telegram")
	}
	if n.Google.SpreadsheetID != "" {
		names = append(names, "sheets")
	}
	return names
}

func (b BookingConfig) Location() (*time.Location, error) {
	if b.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid booking timezone %q: %w", b.Timezone, err)
	}
	return loc, nil
}

// Statuses parses the blocking status set.
func (b BookingConfig) Statuses() ([]models.BookingStatus, error) {
	out := make([]models.BookingStatus, 0, len(b.BlockingStatuses))
	for _, raw := range b.BlockingStatuses {
		s, err := models.ParseBookingStatus(strings.TrimSpace(raw))
		if err != nil {
			return nil, err
		}
		if s.IsTerminal() {
			return nil, fmt.Errorf("terminal status %s cannot block bookings", s)
		}
		out = append(out, s)
	}
	return out, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "venuebook"
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.Auth.Issuer == "" {
		c.API.Auth.Issuer = c.App.Name
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 10
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 20
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if len(c.Booking.BlockingStatuses) == 0 {
		c.Booking.BlockingStatuses = []string{string(models.StatusPending), string(models.StatusConfirmed)}
	}
	if c.Booking.SweepInterval == 0 {
		c.Booking.SweepInterval = 5 * time.Minute
	}
	if c.Booking.LockTTL == 0 {
		c.Booking.LockTTL = 10 * time.Second
	}

	if c.Notifications.Retry.MaxRetries == 0 {
		c.Notifications.Retry.MaxRetries = 5
	}
	if c.Notifications.Retry.BaseDelay == 0 {
		c.Notifications.Retry.BaseDelay = 2 * time.Second
	}
	if c.Notifications.Retry.MaxDelay == 0 {
		c.Notifications.Retry.MaxDelay = time.Minute
	}
	if c.Notifications.Google.SheetName == "" {
		c.Notifications.Google.SheetName = "Bookings"
	}
}
