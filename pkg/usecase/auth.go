package usecase

import (
	"context"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
)

const (
	// MinTokenSecretLength is the minimum HMAC key length for admin tokens
	MinTokenSecretLength = 32

	tokenIssuer   = "taskpilot"
	tenantIDClaim = "tenant_id"
	tokenSkew     = 10 * time.Second
)

// AuthUseCaseInterface authenticates admin API callers
type AuthUseCaseInterface interface {
	ValidateToken(ctx context.Context, raw string) (*model.Principal, error)
	IsNoAuthn() bool
}

// AuthUseCase issues and validates HS256 bearer tokens scoped to one tenant
type AuthUseCase struct {
	secret []byte
	cache  *authCache
	now    func() time.Time
}

// NewAuthUseCase creates an AuthUseCase from a shared signing secret
func NewAuthUseCase(secret string) (*AuthUseCase, error) {
	if len(secret) < MinTokenSecretLength {
		return nil, goerr.New("token secret is too short",
			goerr.V("min_length", MinTokenSecretLength), goerr.T(model.TagValidation))
	}
	return &AuthUseCase{
		secret: []byte(secret),
		cache:  newAuthCache(),
		now:    time.Now,
	}, nil
}

// IsNoAuthn returns false for AuthUseCase
func (uc *AuthUseCase) IsNoAuthn() bool {
	return false
}

// IssueToken signs a token for subject that grants admin access to tenantID
func (uc *AuthUseCase) IssueToken(tenantID types.TenantID, subject string, ttl time.Duration) (string, error) {
	if err := tenantID.Validate(); err != nil {
		return "", goerr.Wrap(err, "invalid tenant", goerr.T(model.TagValidation))
	}
	if subject == "" {
		return "", goerr.New("subject is required", goerr.T(model.TagValidation))
	}

	now := uc.now()
	token, err := jwt.NewBuilder().
		Issuer(tokenIssuer).
		Subject(subject).
		IssuedAt(now).
		Expiration(now.Add(ttl)).
		Claim(tenantIDClaim, tenantID.String()).
		Build()
	if err != nil {
		return "", goerr.Wrap(err, "failed to build token")
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, uc.secret))
	if err != nil {
		return "", goerr.Wrap(err, "failed to sign token")
	}
	return string(signed), nil
}

// ValidateToken verifies the signature and expiry of a bearer token
func (uc *AuthUseCase) ValidateToken(ctx context.Context, raw string) (*model.Principal, error) {
	if raw == "" {
		return nil, goerr.New("token is required", goerr.T(model.TagAuthentication))
	}
	now := uc.now()
	if p, ok := uc.cache.get(raw, now); ok {
		return p, nil
	}

	token, err := jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.HS256, uc.secret),
		jwt.WithValidate(true),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithClock(jwt.ClockFunc(uc.now)),
		jwt.WithAcceptableSkew(tokenSkew),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid token", goerr.T(model.TagAuthentication))
	}

	claim, ok := token.Get(tenantIDClaim)
	if !ok {
		return nil, goerr.New("token has no tenant", goerr.T(model.TagAuthentication))
	}
	tenant, ok := claim.(string)
	if !ok || types.TenantID(tenant).Validate() != nil {
		return nil, goerr.New("token has invalid tenant", goerr.V("tenant_id", claim), goerr.T(model.TagAuthentication))
	}

	p := &model.Principal{
		Subject:   token.Subject(),
		TenantID:  types.TenantID(tenant),
		ExpiresAt: token.Expiration(),
	}
	uc.cache.set(raw, p, now)
	return p, nil
}
