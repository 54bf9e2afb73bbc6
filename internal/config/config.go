package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds the process-wide configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Reminders RemindersConfig `mapstructure:"reminders"`
	Mail      MailConfig      `mapstructure:"mail"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	LogLevel  string          `mapstructure:"log_level"`
}

type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Mode           string   `mapstructure:"mode"`
	TrustedProxies []string `mapstructure:"trusted_proxies"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnectRetries  int           `mapstructure:"connect_retries"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	LogSQL          bool          `mapstructure:"log_sql"`
}

// RemindersConfig is the plugin-level configuration shared by every course
type RemindersConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	MaxInactivityDays string `mapstructure:"max_inactivity_days"`
	SendAsAdmin       bool   `mapstructure:"send_as_admin"`
	SendAsName        string `mapstructure:"send_as_name"`
	TitlePrefix       string `mapstructure:"title_prefix"`
	SiteURL           string `mapstructure:"site_url"`
}

// MailConfig selects the transport and the sender identities
type MailConfig struct {
	Transport      string `mapstructure:"transport"` // "sendgrid" or "smtp"
	SendGridAPIKey string `mapstructure:"sendgrid_api_key"`
	SMTPHost       string `mapstructure:"smtp_host"`
	SMTPPort       int    `mapstructure:"smtp_port"`
	SMTPUser       string `mapstructure:"smtp_user"`
	SMTPPassword   string `mapstructure:"smtp_password"`
	NoReplyEmail   string `mapstructure:"noreply_email"`
	NoReplyName    string `mapstructure:"noreply_name"`
	AdminEmail     string `mapstructure:"admin_email"`
	AdminName      string `mapstructure:"admin_name"`
}

type RedisConfig struct {
	Address  string        `mapstructure:"address"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockKey  string        `mapstructure:"lock_key"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type WorkerConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// DSN returns the postgres connection string. A full URL wins over the
// individual connection parameters.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC connect_timeout=10",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.trusted_proxies", []string{"127.0.0.1"})

	v.SetDefault("database.port", "5432")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.connect_retries", 5)
	v.SetDefault("database.retry_delay", 5*time.Second)

	v.SetDefault("reminders.enabled", false)
	v.SetDefault("reminders.title_prefix", "Reminder")

	v.SetDefault("mail.transport", "sendgrid")
	v.SetDefault("mail.smtp_port", 587)
	v.SetDefault("mail.noreply_name", "No Reply")

	v.SetDefault("redis.lock_key", "advancedreminders:run")
	v.SetDefault("redis.lock_ttl", time.Hour)

	v.SetDefault("auth.issuer", "advancedreminders")
	v.SetDefault("worker.interval", time.Hour)
	v.SetDefault("log_level", "info")
}

// Load reads .env (if present), config/config.yaml (if present) and the
// environment. Environment keys use upper case with underscores, e.g.
// REMINDERS_ENABLED or DATABASE_HOST.
func Load(paths ...string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("no .env file loaded")
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"./config", "."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	// AutomaticEnv only applies to keys viper already knows about
	for _, key := range envOnlyKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

var envOnlyKeys = []string{
	"database.url",
	"database.host",
	"database.user",
	"database.password",
	"database.name",
	"database.log_sql",
	"reminders.max_inactivity_days",
	"reminders.send_as_admin",
	"reminders.send_as_name",
	"reminders.site_url",
	"mail.sendgrid_api_key",
	"mail.smtp_host",
	"mail.smtp_user",
	"mail.smtp_password",
	"mail.noreply_email",
	"mail.admin_email",
	"mail.admin_name",
	"redis.address",
	"redis.password",
	"redis.db",
	"auth.jwt_secret",
	"server.allowed_origins",
}
