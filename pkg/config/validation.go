package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Log level normalization is handled in ApplyDefaults, not here: validation
// accepts both uppercase and lowercase levels.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if cfg.Metrics.Enabled && cfg.Metrics.Port == cfg.Server.Port && cfg.Metrics.Host == cfg.Server.Host {
		return fmt.Errorf("metrics.port: %d is already used by server.port", cfg.Metrics.Port)
	}

	if cfg.Server.AcceptBurst > 0 && cfg.Server.AcceptRate == 0 {
		return errors.New("server.accept_burst: requires server.accept_rate > 0")
	}

	if cfg.Server.MaxQuiescent > 0 && cfg.Server.MaxQuiescent < cfg.Server.AcceptTimeout {
		return fmt.Errorf("server.max_quiescent: %v is shorter than server.accept_timeout %v",
			cfg.Server.MaxQuiescent, cfg.Server.AcceptTimeout)
	}

	if cfg.ProcMap.Enabled && cfg.ProcMap.TTL > 0 && cfg.ProcMap.TTL < cfg.ProcMap.RegisterInterval {
		return fmt.Errorf("procmap.ttl: %v is shorter than procmap.register_interval %v",
			cfg.ProcMap.TTL, cfg.ProcMap.RegisterInterval)
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
