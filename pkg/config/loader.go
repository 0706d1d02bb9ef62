package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"

	"github.com/utafrali/EcommerceGo/webclient/pkg/validator"
)

// Load parses environment variables into the provided struct and then runs
// its `validate` tags. The struct should use `env` tags to define mappings.
//
// Example:
//
//	type Config struct {
//	    BaseURL  string `env:"API_BASE_URL,required" validate:"url"`
//	    LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
//	}
func Load(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if err := validator.Validate(cfg); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}
