package config

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors for configuration validation
var (
	ErrConfigNotFound     = goerr.New("configuration file not found")
	ErrInvalidConfig      = goerr.New("invalid configuration")
	ErrUnsupportedFormat  = goerr.New("unsupported configuration format")
	ErrDuplicateTenant    = goerr.New("duplicate tenant ID")
	ErrDuplicateTrigger   = goerr.New("duplicate trigger ID")
	ErrInvalidDuration    = goerr.New("invalid duration")
	ErrInvalidProvider    = goerr.New("invalid LLM provider")
	ErrInvalidRateLimit   = goerr.New("rate limit must not be negative")
	ErrInvalidThreshold   = goerr.New("confidence threshold must be between 0 and 1")
	ErrMissingName        = goerr.New("name is required")
	ErrSecretTooShort     = goerr.New("secret is too short")
	ErrInvalidWorkingTime = goerr.New("invalid working hours")
)

// Context keys for error values
const (
	ConfigPathKey = "config_path"
	TenantIDKey   = "tenant_id"
	TriggerIDKey  = "trigger_id"
	FieldKey      = "field"
	ValueKey      = "value"
)
