package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

var ErrNoSigningMaterial = errors.New("app_id and app_certificate are required")

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	// Signing material for the media token issuer. Startup-fatal when absent.
	AppID          string `mapstructure:"app_id"`
	AppCertificate string `mapstructure:"app_certificate"`

	TokenTTL        time.Duration `mapstructure:"token_ttl"`
	RingTimeout     time.Duration `mapstructure:"ring_timeout"`
	MaxCallDuration time.Duration `mapstructure:"max_call_duration"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`

	CallLimit  int           `mapstructure:"call_limit"`
	CallWindow time.Duration `mapstructure:"call_window"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("RINGLINE")
	v.AutomaticEnv()
	// No defaults for signing material, so bind explicitly or Unmarshal
	// will never see the env values.
	_ = v.BindEnv("app_id")
	_ = v.BindEnv("app_certificate")
	_ = v.BindEnv("secret")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("token_ttl", "1h")
	v.SetDefault("ring_timeout", "60s")
	v.SetDefault("max_call_duration", "4h")
	v.SetDefault("sweep_interval", "30s")
	v.SetDefault("call_limit", 10)
	v.SetDefault("call_window", "1m")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults and env\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.AppID == "" || cfg.AppCertificate == "" {
		return nil, ErrNoSigningMaterial
	}
	return &cfg, nil
}
