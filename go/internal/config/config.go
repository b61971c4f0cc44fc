// Package config loads service settings from the environment, with an
// optional YAML file for tuning values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mcdev12/battletimer/go/internal/dbconfig"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	BackendMemory   = "memory"
	BackendNATS     = "nats"
	BackendPostgres = "postgres"
	BackendLocal    = "local"
)

type Config struct {
	Port        string
	GatewayPort string
	// ServerURL is where standalone gateways and tools reach timerd.
	ServerURL string
	NATSURL   string

	StoreBackend     string
	BroadcastBackend string
	ScheduleBackend  string
	KVBucket         string

	Tuning Tuning
	DB     dbconfig.Config

	LogLevel  string
	LogFormat string
}

// Tuning holds the values that may also come from CONFIG_FILE. Values set in
// the file win over the environment.
type Tuning struct {
	DefaultTimer    time.Duration `yaml:"default_timer"`
	BattleDuration  time.Duration `yaml:"battle_duration"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	MaxRetries      int           `yaml:"max_retries"`
}

type fileConfig struct {
	Tuning Tuning `yaml:"tuning"`
}

// FromEnv reads the configuration from environment variables and, when
// CONFIG_FILE is set, overlays the tuning section of that YAML file.
func FromEnv() (Config, error) {
	cfg := Config{
		Port:             getEnv("PORT", "8080"),
		GatewayPort:      getEnv("GATEWAY_PORT", "8081"),
		ServerURL:        getEnv("TIMERD_URL", "http://localhost:8080"),
		NATSURL:          getEnv("NATS_URL", "nats://localhost:4222"),
		StoreBackend:     getEnv("STORE_BACKEND", BackendMemory),
		BroadcastBackend: getEnv("BROADCAST_BACKEND", BackendLocal),
		ScheduleBackend:  getEnv("SCHEDULE_BACKEND", BackendMemory),
		KVBucket:         getEnv("KV_BUCKET", "battle_timers"),
		Tuning: Tuning{
			DefaultTimer:    time.Duration(getEnvAsInt("DEFAULT_TIMER_SEC", 300)) * time.Second,
			BattleDuration:  time.Duration(getEnvAsInt("BATTLE_DURATION_SEC", 3600)) * time.Second,
			RefreshInterval: getEnvAsDuration("REFRESH_INTERVAL", 200*time.Millisecond),
			MaxRetries:      getEnvAsInt("MAX_RETRIES", 5),
		},
		DB:        dbconfig.NewConfigFromEnv(),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		file, err := loadConfig(path)
		if err != nil {
			return Config{}, err
		}
		cfg.Tuning = cfg.Tuning.merge(file.Tuning)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks backend names and tuning bounds.
func (c Config) Validate() error {
	if err := oneOf("STORE_BACKEND", c.StoreBackend, BackendMemory, BackendNATS, BackendPostgres); err != nil {
		return err
	}
	if err := oneOf("BROADCAST_BACKEND", c.BroadcastBackend, BackendLocal, BackendNATS); err != nil {
		return err
	}
	if err := oneOf("SCHEDULE_BACKEND", c.ScheduleBackend, BackendMemory, BackendPostgres); err != nil {
		return err
	}
	if c.Tuning.DefaultTimer <= 0 {
		return fmt.Errorf("default timer must be positive, got %s", c.Tuning.DefaultTimer)
	}
	if c.Tuning.BattleDuration <= 0 || c.Tuning.BattleDuration > 24*time.Hour {
		return fmt.Errorf("battle duration must be within (0, 24h], got %s", c.Tuning.BattleDuration)
	}
	if c.Tuning.RefreshInterval <= 0 {
		return fmt.Errorf("refresh interval must be positive, got %s", c.Tuning.RefreshInterval)
	}
	return nil
}

func (t Tuning) merge(o Tuning) Tuning {
	if o.DefaultTimer != 0 {
		t.DefaultTimer = o.DefaultTimer
	}
	if o.BattleDuration != 0 {
		t.BattleDuration = o.BattleDuration
	}
	if o.RefreshInterval != 0 {
		t.RefreshInterval = o.RefreshInterval
	}
	if o.MaxRetries != 0 {
		t.MaxRetries = o.MaxRetries
	}
	return t
}

// SetupLogging points the global zerolog logger at stderr, in console form
// unless LOG_FORMAT is json.
func (c Config) SetupLogging() {
	if c.LogFormat != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %v, got %q", key, allowed, value)
}

func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config fileConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
