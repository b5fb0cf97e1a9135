package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Redis     RedisConfig
	NATS      NATSConfig
	JWT       JWTConfig
	Quota     QuotaConfig
	Admission AdmissionConfig
	Log       LogConfig
	CORS      CORSConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	URL string
}

type JWTConfig struct {
	AccessSecret string
}

// QuotaConfig drives the reset scheduler. CycleLength is the billing cycle
// the subscription quotas renew on; it is deliberately explicit configuration
// rather than a hard-coded default.
type QuotaConfig struct {
	CycleLength   time.Duration
	Workers       int
	RunTimeout    time.Duration
	LeaseTTL      time.Duration
	TriggerSecret string
	Schedule      string // cron expression; empty disables the in-process trigger
}

// ClassLimit is the fixed-window budget for one action class.
type ClassLimit struct {
	Limit  int
	Window time.Duration
}

// AdmissionConfig maps the closed set of privileged action classes to their
// rate-limit budgets. Backend selects the bucket store implementation.
type AdmissionConfig struct {
	Backend string // "memory" or "redis"
	General ClassLimit
	Batch   ClassLimit
	Delete  ClassLimit
}

type LogConfig struct {
	Level  string
	Format string
}

type CORSConfig struct {
	AllowedOrigins []string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		DB: DBConfig{
			Host:     k.String("db.host"),
			Port:     k.Int("db.port"),
			User:     k.String("db.user"),
			Password: k.String("db.password"),
			Name:     k.String("db.name"),
			SSLMode:  k.String("db.sslmode"),
			MaxConns: int32(k.Int("db.max.conns")),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		JWT: JWTConfig{
			AccessSecret: k.String("jwt.access.secret"),
		},
		Quota: QuotaConfig{
			Workers:       k.Int("quota.workers"),
			TriggerSecret: k.String("quota.trigger.secret"),
			Schedule:      k.String("quota.schedule"),
		},
		Admission: AdmissionConfig{
			Backend: k.String("admission.backend"),
			General: ClassLimit{Limit: k.Int("admission.general.limit")},
			Batch:   ClassLimit{Limit: k.Int("admission.batch.limit")},
			Delete:  ClassLimit{Limit: k.Int("admission.delete.limit")},
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	if origins := k.String("cors.allowed.origins"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORS.AllowedOrigins = append(cfg.CORS.AllowedOrigins, o)
			}
		}
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "metergate"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "metergate"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Quota.Workers == 0 {
		cfg.Quota.Workers = 4
	}
	if cfg.Admission.Backend == "" {
		cfg.Admission.Backend = "redis"
	}
	if cfg.Admission.General.Limit == 0 {
		cfg.Admission.General.Limit = 60
	}
	if cfg.Admission.Batch.Limit == 0 {
		cfg.Admission.Batch.Limit = 5
	}
	if cfg.Admission.Delete.Limit == 0 {
		cfg.Admission.Delete.Limit = 10
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Parse durations
	if cfg.Quota.CycleLength, err = duration(k, "quota.cycle", "720h"); err != nil {
		return nil, fmt.Errorf("parsing quota cycle: %w", err)
	}
	if cfg.Quota.RunTimeout, err = duration(k, "quota.run.timeout", "5m"); err != nil {
		return nil, fmt.Errorf("parsing quota run timeout: %w", err)
	}
	if cfg.Quota.LeaseTTL, err = duration(k, "quota.lease.ttl", "10m"); err != nil {
		return nil, fmt.Errorf("parsing quota lease ttl: %w", err)
	}
	if cfg.Admission.General.Window, err = duration(k, "admission.general.window", "60s"); err != nil {
		return nil, fmt.Errorf("parsing general admission window: %w", err)
	}
	if cfg.Admission.Batch.Window, err = duration(k, "admission.batch.window", "60s"); err != nil {
		return nil, fmt.Errorf("parsing batch admission window: %w", err)
	}
	if cfg.Admission.Delete.Window, err = duration(k, "admission.delete.window", "60s"); err != nil {
		return nil, fmt.Errorf("parsing delete admission window: %w", err)
	}

	return cfg, nil
}

func duration(k *koanf.Koanf, key, fallback string) (time.Duration, error) {
	s := k.String(key)
	if s == "" {
		s = fallback
	}
	return time.ParseDuration(s)
}
