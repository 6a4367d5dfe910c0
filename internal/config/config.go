package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode         string        `mapstructure:"mode"`
	Port         int           `mapstructure:"port"`
	BackendURL   string        `mapstructure:"backend_url"`
	SignalURL    string        `mapstructure:"signal_url"`
	DataDir      string        `mapstructure:"data_dir"`
	PhoneNumber  string        `mapstructure:"phone_number"`
	IdleDelay    time.Duration `mapstructure:"idle_delay"`
	OTELEndpoint string        `mapstructure:"otel_endpoint"`
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

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("backend_url", "http://localhost:8080")
	v.SetDefault("signal_url", "ws://localhost:8080/ws/engine")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("phone_number", "")
	v.SetDefault("idle_delay", "3s")
	v.SetDefault("otel_endpoint", "")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Backend: %s\n", cfg.Mode, cfg.Port, cfg.BackendURL)
	return &cfg, nil
}
