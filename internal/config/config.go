// Package config loads s01l configuration.
//
// Precedence, lowest first: built-in defaults, the config file, S01L_*
// environment variables, then flags bound by the caller. Nested keys map
// to env names with underscores: ledger.path is S01L_LEDGER_PATH.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/roach88/s01l/internal/ir"
	"github.com/roach88/s01l/internal/registry"
	"github.com/roach88/s01l/internal/telemetry"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "S01L"

// DefaultPath is the project-local config file looked up when no path is
// given. A missing default file is not an error.
const DefaultPath = ".s01l/config.yaml"

// Config holds every s01l setting.
type Config struct {
	Ledger    LedgerConfig     `mapstructure:"ledger"`
	Store     StoreConfig      `mapstructure:"store"`
	Projector ProjectorConfig  `mapstructure:"projector"`
	HTTP      HTTPConfig       `mapstructure:"http"`
	Tracing   telemetry.Config `mapstructure:"tracing"`
	Log       LogConfig        `mapstructure:"log"`
}

// LedgerConfig locates the event log and describes the registry deployment.
type LedgerConfig struct {
	Path            string `mapstructure:"path" validate:"required_unless=InMemory true"`
	InMemory        bool   `mapstructure:"in_memory"`
	SyncWrites      bool   `mapstructure:"sync_writes"`
	RegistryAddress string `mapstructure:"registry_address" validate:"required,address"`
	// Deployer may be empty when reopening an existing ledger.
	Deployer string `mapstructure:"deployer" validate:"omitempty,address"`
	Cost     uint64 `mapstructure:"cost"`
}

// Registry converts the deployment settings.
func (c LedgerConfig) Registry() registry.Config {
	cfg := registry.Config{Cost: c.Cost}
	cfg.Address, _ = ir.ParseAddress(c.RegistryAddress)
	if c.Deployer != "" {
		cfg.Deployer, _ = ir.ParseAddress(c.Deployer)
	}
	return cfg
}

// StoreConfig locates the entity store.
type StoreConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// ProjectorConfig tunes the consume loop.
type ProjectorConfig struct {
	// Source is "ledger" (the local event log) or "logfile" (a tailed
	// NDJSON export).
	Source       string        `mapstructure:"source" validate:"oneof=ledger logfile"`
	LogFile      string        `mapstructure:"log_file" validate:"required_if=Source logfile"`
	Debounce     time.Duration `mapstructure:"debounce" validate:"gte=0"`
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	RetryBudget  time.Duration `mapstructure:"retry_budget" validate:"gt=0"`
}

// HTTPConfig configures the query API listener.
type HTTPConfig struct {
	Addr     string        `mapstructure:"addr" validate:"required,hostname_port"`
	CacheTTL time.Duration `mapstructure:"cache_ttl" validate:"gt=0"`
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	tracing := telemetry.DefaultConfig()

	v.SetDefault("ledger.path", ".s01l/ledger")
	v.SetDefault("ledger.in_memory", false)
	v.SetDefault("ledger.sync_writes", true)
	v.SetDefault("ledger.registry_address", "0x5011")
	v.SetDefault("ledger.deployer", "")
	v.SetDefault("ledger.cost", 0)
	v.SetDefault("store.path", ".s01l/entities.db")
	v.SetDefault("projector.source", "ledger")
	v.SetDefault("projector.log_file", "")
	v.SetDefault("projector.debounce", 100*time.Millisecond)
	v.SetDefault("projector.poll_interval", time.Second)
	v.SetDefault("projector.retry_budget", 30*time.Second)
	v.SetDefault("http.addr", "127.0.0.1:8545")
	v.SetDefault("http.cache_ttl", 5*time.Minute)
	v.SetDefault("tracing.enabled", tracing.Enabled)
	v.SetDefault("tracing.exporter", tracing.Exporter)
	v.SetDefault("tracing.file_path", "")
	v.SetDefault("tracing.sample_rate", tracing.SampleRate)
	v.SetDefault("tracing.service_name", tracing.ServiceName)
	v.SetDefault("log.level", "info")
}

// Load reads configuration into v and returns it validated. path names an
// explicit config file, which must exist; "" tries DefaultPath.
func Load(v *viper.Viper, path string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigFile(DefaultPath)
		if err := v.ReadInConfig(); err != nil && !isNotExist(err) {
			return Config{}, fmt.Errorf("read config %s: %w", DefaultPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag())
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("address", func(fl validator.FieldLevel) bool {
		_, err := ir.ParseAddress(fl.Field().String())
		return err == nil
	})
	return v
}
