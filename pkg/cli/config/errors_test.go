package config_test

import (
	"errors"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/taskpilot/pkg/cli/config"
)

func TestConfigErrors_SentinelIdentification(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		sentinelError error
		wantMatch     bool
	}{
		{
			name:          "ErrConfigNotFound can be identified",
			err:           goerr.Wrap(config.ErrConfigNotFound, "failed to load config"),
			sentinelError: config.ErrConfigNotFound,
			wantMatch:     true,
		},
		{
			name:          "ErrDuplicateTenant can be identified",
			err:           goerr.Wrap(config.ErrDuplicateTenant, "found duplicate"),
			sentinelError: config.ErrDuplicateTenant,
			wantMatch:     true,
		},
		{
			name:          "ErrInvalidDuration can be identified through two wraps",
			err:           goerr.Wrap(goerr.Wrap(config.ErrInvalidDuration, "bad"), "outer"),
			sentinelError: config.ErrInvalidDuration,
			wantMatch:     true,
		},
		{
			name:          "Different sentinel errors do not match",
			err:           goerr.Wrap(config.ErrConfigNotFound, "failed to load config"),
			sentinelError: config.ErrInvalidConfig,
			wantMatch:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gt.Value(t, errors.Is(tt.err, tt.sentinelError)).Equal(tt.wantMatch)
		})
	}
}

func TestConfigErrors_AllSentinelErrorsAreDefined(t *testing.T) {
	sentinelErrors := []struct {
		name string
		err  error
	}{
		{"ErrConfigNotFound", config.ErrConfigNotFound},
		{"ErrInvalidConfig", config.ErrInvalidConfig},
		{"ErrUnsupportedFormat", config.ErrUnsupportedFormat},
		{"ErrDuplicateTenant", config.ErrDuplicateTenant},
		{"ErrDuplicateTrigger", config.ErrDuplicateTrigger},
		{"ErrInvalidDuration", config.ErrInvalidDuration},
		{"ErrInvalidProvider", config.ErrInvalidProvider},
		{"ErrInvalidRateLimit", config.ErrInvalidRateLimit},
		{"ErrInvalidThreshold", config.ErrInvalidThreshold},
		{"ErrMissingName", config.ErrMissingName},
		{"ErrSecretTooShort", config.ErrSecretTooShort},
		{"ErrInvalidWorkingTime", config.ErrInvalidWorkingTime},
	}

	for _, se := range sentinelErrors {
		t.Run(se.name, func(t *testing.T) {
			gt.Value(t, se.err).NotNil()
			gt.String(t, se.err.Error()).NotEqual("")
		})
	}
}
