package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del cliente Bloom.
type Config struct {
	BaseURL              string        `env:"BLOOM_BASE_URL" envDefault:"http://localhost:8000"`
	UserID               string        `env:"BLOOM_USER_ID" envDefault:"default_user"`
	HTTPPort             string        `env:"HTTP_PORT" envDefault:"3001"`
	BackendHeaderTimeout time.Duration `env:"BACKEND_HEADER_TIMEOUT" envDefault:"60s"`
	ReportsClearTimeout  time.Duration `env:"REPORTS_CLEAR_TIMEOUT" envDefault:"5s"`
	LogLevel             string        `env:"LOG_LEVEL" envDefault:"info"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
