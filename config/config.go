/*
Package config loads service configuration with viper.

SOURCES (later wins):
  1. Defaults set in SetDefaults
  2. Config file: --config, or $HOME/.accrual-engine.yaml
  3. Environment: ACCRUAL_ prefix, dots become underscores
     (ACCRUAL_HTTP_PORT, ACCRUAL_ENGINE_TIMEZONE, ...)

USAGE:
  v := viper.New()
  config.SetDefaults(v)
  cfg, err := config.Load(v)

SEE ALSO:
  - cmd/server/root.go: Wires flags and the config file into viper
  - factory/modules.go: Consumes ModuleSpecs
*/
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/warp/accrual-engine/factory"
	"github.com/warp/accrual-engine/worktime"
)

// EnvPrefix is prepended to every environment variable.
const EnvPrefix = "ACCRUAL"

// FileName is the default config file name, without extension.
const FileName = ".accrual-engine"

// Config is the full service configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	DB         DBConfig         `mapstructure:"db"`
	Engine     EngineConfig     `mapstructure:"engine"`
	BalanceAPI BalanceAPIConfig `mapstructure:"balance_api"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Lock       LockConfig       `mapstructure:"lock"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type HTTPConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

// EngineConfig controls the calculation itself.
type EngineConfig struct {
	// Timezone whose midnights split time records into days.
	Timezone string `mapstructure:"timezone"`

	// NightTimezone is the civil zone night windows are evaluated in.
	NightTimezone string `mapstructure:"night_timezone"`

	// AccrualTypes lists the enabled accrual type ids, in calculation order.
	AccrualTypes []string `mapstructure:"accrual_types"`
}

// BalanceAPIConfig points the engine at a remote balance service instead
// of the local database. Empty BaseURL means local.
type BalanceAPIConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	RetryMax int           `mapstructure:"retry_max"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LockConfig struct {
	TTL  time.Duration `mapstructure:"ttl"`
	Wait time.Duration `mapstructure:"wait"`
}

// SetDefaults registers every key with its default and binds the environment.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("http.port", 8080)
	v.SetDefault("http.allowed_origins", []string{"*"})

	v.SetDefault("db.path", "./data/accruals.db")

	v.SetDefault("engine.timezone", "UTC")
	v.SetDefault("engine.night_timezone", "UTC")
	v.SetDefault("engine.accrual_types", []string{
		string(worktime.TypeAnnualTargetHours),
		string(worktime.TypeNightHours),
	})

	v.SetDefault("balance_api.base_url", "")
	v.SetDefault("balance_api.retry_max", 3)
	v.SetDefault("balance_api.timeout", 10*time.Second)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "time-record-changes")
	v.SetDefault("kafka.group_id", "accrual-engine")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("lock.ttl", 30*time.Second)
	v.SetDefault("lock.wait", 10*time.Second)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// UseFile points viper at cfgFile, or at $HOME/.accrual-engine.yaml when empty.
func UseFile(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		return nil
	}
	home, err := homedir.Dir()
	if err != nil {
		return fmt.Errorf("resolve home directory: %w", err)
	}
	v.AddConfigPath(home)
	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	return nil
}

// DefaultPath returns $HOME/.accrual-engine.yaml.
func DefaultPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, FileName+".yaml"), nil
}

// Read reads the config file if there is one. A missing default file is not
// an error.
func Read(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	// Comma separated env values arrive as a single element.
	cfg.Engine.AccrualTypes = splitList(cfg.Engine.AccrualTypes)
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	cfg.HTTP.AllowedOrigins = splitList(cfg.HTTP.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Engine.Timezone); err != nil {
		return fmt.Errorf("engine.timezone: %w", err)
	}
	if _, err := time.LoadLocation(c.Engine.NightTimezone); err != nil {
		return fmt.Errorf("engine.night_timezone: %w", err)
	}
	if len(c.Engine.AccrualTypes) == 0 {
		return errors.New("engine.accrual_types: at least one accrual type is required")
	}
	if _, err := factory.NewModuleFactory().Build(c.ModuleSpecs()); err != nil {
		return fmt.Errorf("engine.accrual_types: %w", err)
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port: %d is out of range", c.HTTP.Port)
	}
	if c.BalanceAPI.RetryMax < 0 {
		return fmt.Errorf("balance_api.retry_max: must not be negative")
	}
	return nil
}

// Location returns the day-splitting zone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Engine.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ModuleSpecs turns the enabled type ids into factory configs.
func (c *Config) ModuleSpecs() []factory.ModuleJSON {
	specs := make([]factory.ModuleJSON, 0, len(c.Engine.AccrualTypes))
	for _, id := range c.Engine.AccrualTypes {
		spec := factory.ModuleJSON{Type: id}
		if id == string(worktime.TypeNightHours) {
			spec.Timezone = c.Engine.NightTimezone
		}
		specs = append(specs, spec)
	}
	return specs
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
