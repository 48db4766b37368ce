package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/usecase"
	"github.com/secmon-lab/taskpilot/pkg/utils/logging"
)

type principalKey struct{}

func contextWithPrincipal(ctx context.Context, p *model.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// principalFrom returns the authenticated principal; authMiddleware guarantees one
func principalFrom(ctx context.Context) *model.Principal {
	p, _ := ctx.Value(principalKey{}).(*model.Principal)
	return p
}

// authMiddleware resolves the bearer token into a principal. Every admin
// route is scoped to the principal's tenant.
func authMiddleware(authUC usecase.AuthUseCaseInterface) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := ""
			if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
				raw = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
			}
			if raw == "" && !authUC.IsNoAuthn() {
				writeError(r.Context(), w, goerr.New("authentication required", goerr.T(model.TagAuthentication)))
				return
			}

			principal, err := authUC.ValidateToken(r.Context(), raw)
			if err != nil {
				writeError(r.Context(), w, goerr.Wrap(err, "invalid token", goerr.T(model.TagAuthentication)))
				return
			}

			ctx := contextWithPrincipal(r.Context(), principal)
			ctx = logging.With(ctx, logging.From(ctx).With("tenant_id", principal.TenantID, "subject", principal.Subject))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
