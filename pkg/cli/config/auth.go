package config

import (
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
	"github.com/secmon-lab/taskpilot/pkg/usecase"
	"github.com/urfave/cli/v3"
)

// Auth holds the admin API authentication settings
type Auth struct {
	tokenSecret    string
	noAuthTenantID string
}

func (x *Auth) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "token-secret",
			Usage:       "HMAC secret of admin API bearer tokens (at least 32 bytes)",
			Category:    "Authentication",
			Sources:     cli.EnvVars("TASKPILOT_TOKEN_SECRET"),
			Destination: &x.tokenSecret,
		},
		&cli.StringFlag{
			Name:        "no-auth",
			Usage:       "Skip authentication and serve the admin API as the given tenant (development only)",
			Category:    "Authentication",
			Sources:     cli.EnvVars("TASKPILOT_NO_AUTH"),
			Destination: &x.noAuthTenantID,
		},
	}
}

func (x Auth) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("token-secret.len", len(x.tokenSecret)),
		slog.String("no_auth", x.noAuthTenantID),
	)
}

// IsNoAuthMode returns true if no-auth mode is enabled
func (x *Auth) IsNoAuthMode() bool {
	return x.noAuthTenantID != ""
}

// Configure returns the admin authenticator, or nil when neither a token
// secret nor no-auth mode is configured (the admin API is then disabled).
func (x *Auth) Configure() (usecase.AuthUseCaseInterface, error) {
	if x.noAuthTenantID != "" {
		tenantID := types.TenantID(x.noAuthTenantID)
		if err := tenantID.Validate(); err != nil {
			return nil, goerr.Wrap(err, "invalid --no-auth tenant", goerr.V(TenantIDKey, x.noAuthTenantID))
		}
		if x.tokenSecret != "" {
			slog.Warn("--no-auth is set, ignoring --token-secret")
		}
		return usecase.NewNoAuthnUseCase(tenantID, "no-auth"), nil
	}

	if x.tokenSecret == "" {
		return nil, nil
	}
	return x.Issuer()
}

// Issuer returns the token authority used to mint admin tokens
func (x *Auth) Issuer() (*usecase.AuthUseCase, error) {
	if x.tokenSecret == "" {
		return nil, goerr.New("token-secret is required")
	}
	uc, err := usecase.NewAuthUseCase(x.tokenSecret)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to configure token authority")
	}
	return uc, nil
}
