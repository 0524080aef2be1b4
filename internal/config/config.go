package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Database      DatabaseConfig       `mapstructure:"database"`
	Backup        BackupConfig         `mapstructure:"backup"`
	Schedule      ScheduleConfig       `mapstructure:"schedule"`
	Log           LogConfig            `mapstructure:"log"`
	Mirror        MirrorConfig         `mapstructure:"mirror"`
	Notifications []NotificationConfig `mapstructure:"notifications"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

type BackupConfig struct {
	Path          string        `mapstructure:"path"`
	RetentionDays int           `mapstructure:"retention_days"`
	Timeout       time.Duration `mapstructure:"timeout"`
	DumpBinary    string        `mapstructure:"dump_binary"`
	RestoreBinary string        `mapstructure:"restore_binary"`
}

// Retention is the retention window as a duration.
func (b BackupConfig) Retention() time.Duration {
	return time.Duration(b.RetentionDays) * 24 * time.Hour
}

type ScheduleConfig struct {
	Cron     string `mapstructure:"cron"`
	Timezone string `mapstructure:"timezone"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type MirrorConfig struct {
	S3 S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	// Endpoint points at an S3-compatible service instead of AWS.
	Endpoint  string `mapstructure:"endpoint"`
}

// Enabled reports whether an S3 mirror was configured at all.
func (s S3Config) Enabled() bool {
	return s.Bucket != ""
}

type NotificationConfig struct {
	Type   string              `mapstructure:"type"`
	On     []string            `mapstructure:"on"`
	Config NotificationDetails `mapstructure:"config"`
}

type NotificationDetails struct {
	SMTPHost string            `mapstructure:"smtp_host"`
	SMTPPort int               `mapstructure:"smtp_port"`
	From     string            `mapstructure:"from"`
	To       string            `mapstructure:"to"`
	Username string            `mapstructure:"username"`
	Password string            `mapstructure:"password"`
	URL      string            `mapstructure:"url"`
	Headers  map[string]string `mapstructure:"headers"`
}

// envBindings maps config keys to the environment variables that feed them.
var envBindings = map[string]string{
	"database.host":         "DB_HOST",
	"database.port":         "DB_PORT",
	"database.user":         "DB_USER",
	"database.password":     "DB_PASSWORD",
	"database.name":         "DB_NAME",
	"backup.path":           "BACKUP_PATH",
	"backup.retention_days": "RETENTION_DAYS",
	"backup.timeout":        "BACKUP_TIMEOUT",
	"backup.dump_binary":    "DUMP_BINARY",
	"backup.restore_binary": "RESTORE_BINARY",
	"schedule.cron":         "CRON_SCHEDULE",
	"schedule.timezone":     "CRON_TIMEZONE",
	"log.level":             "LOG_LEVEL",
	"mirror.s3.bucket":      "S3_BUCKET",
	"mirror.s3.region":      "S3_REGION",
	"mirror.s3.prefix":      "S3_PREFIX",
	"mirror.s3.access_key":  "S3_ACCESS_KEY",
	"mirror.s3.secret_key":  "S3_SECRET_KEY",
	"mirror.s3.endpoint":    "S3_ENDPOINT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("backup.path", "/home/ubuntu/mysql-backups")
	v.SetDefault("backup.retention_days", 7)
	v.SetDefault("backup.timeout", time.Duration(0))
	v.SetDefault("backup.dump_binary", "mysqldump")
	v.SetDefault("backup.restore_binary", "mysql")
	v.SetDefault("schedule.cron", "0 2 * * *")
	v.SetDefault("schedule.timezone", "UTC")
	v.SetDefault("log.level", "info")
}

// LoadConfig reads .env (when present), the optional config file at path and
// the environment, in increasing order of precedence.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ModifyConfig(&cfg)

	return &cfg, nil
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandFileValue resolves ${VAR} placeholders in a value read from the config
// file. A value supplied by its bound environment variable is returned verbatim,
// and a bare '$' is never touched.
func expandFileValue(key, val string) string {
	if env, ok := envBindings[key]; ok {
		if s, set := os.LookupEnv(env); set && s != "" {
			return val
		}
	}
	return placeholder.ReplaceAllStringFunc(val, func(m string) string {
		return os.Getenv(m[2 : len(m)-1])
	})
}

// ModifyConfig expands ${VAR} placeholders left in file-sourced values and trims
// whitespace around identifiers.
func ModifyConfig(cfg *Config) {
	db := &cfg.Database
	db.Host = strings.TrimSpace(expandFileValue("database.host", db.Host))
	db.User = expandFileValue("database.user", db.User)
	db.Password = expandFileValue("database.password", db.Password)
	db.Name = strings.TrimSpace(expandFileValue("database.name", db.Name))

	cfg.Backup.Path = expandFileValue("backup.path", cfg.Backup.Path)
	cfg.Schedule.Cron = strings.TrimSpace(cfg.Schedule.Cron)
	cfg.Schedule.Timezone = strings.TrimSpace(cfg.Schedule.Timezone)
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))

	s3 := &cfg.Mirror.S3
	s3.Bucket = expandFileValue("mirror.s3.bucket", s3.Bucket)
	s3.Region = expandFileValue("mirror.s3.region", s3.Region)
	s3.Prefix = expandFileValue("mirror.s3.prefix", s3.Prefix)
	s3.AccessKey = expandFileValue("mirror.s3.access_key", s3.AccessKey)
	s3.SecretKey = expandFileValue("mirror.s3.secret_key", s3.SecretKey)
	s3.Endpoint = expandFileValue("mirror.s3.endpoint", s3.Endpoint)

	// notification routes only ever come from the file
	for i := range cfg.Notifications {
		nt := &cfg.Notifications[i]
		nt.Type = expandFileValue("", nt.Type)
		for j := range nt.On {
			nt.On[j] = expandFileValue("", nt.On[j])
		}
		nt.Config.SMTPHost = expandFileValue("", nt.Config.SMTPHost)
		nt.Config.From = expandFileValue("", nt.Config.From)
		nt.Config.To = expandFileValue("", nt.Config.To)
		nt.Config.Username = expandFileValue("", nt.Config.Username)
		nt.Config.Password = expandFileValue("", nt.Config.Password)
		nt.Config.URL = expandFileValue("", nt.Config.URL)
		for k, v := range nt.Config.Headers {
			nt.Config.Headers[k] = expandFileValue("", v)
		}
	}
}
