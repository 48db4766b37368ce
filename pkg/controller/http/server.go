package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/secmon-lab/taskpilot/pkg/usecase"
	"github.com/secmon-lab/taskpilot/pkg/utils/logging"
)

// maxBodyBytes bounds every inbound payload
const maxBodyBytes = 1 << 20

type Server struct {
	router             *chi.Mux
	uc                 *usecase.UseCases
	authUC             usecase.AuthUseCaseInterface
	slackSigningSecret string
}

type Options func(*Server)

func WithAuth(authUC usecase.AuthUseCaseInterface) Options {
	return func(s *Server) {
		s.authUC = authUC
	}
}

// WithSlackSigningSecret enables the Slack Events endpoint
func WithSlackSigningSecret(secret string) Options {
	return func(s *Server) {
		s.slackSigningSecret = secret
	}
}

// New builds the router. Without WithAuth the admin API is not mounted.
func New(uc *usecase.UseCases, opts ...Options) *Server {
	r := chi.NewRouter()

	s := &Server{
		router: r,
		uc:     uc,
	}
	for _, opt := range opts {
		opt(s)
	}

	r.Use(middleware.RequestID)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Signed inbound channels. Authentication happens in the normalizer
	// against the tenant's webhook secret.
	hooks := newHookHandler(uc.Task)
	r.Route("/hooks", func(r chi.Router) {
		if s.slackSigningSecret != "" {
			r.Route("/slack", func(r chi.Router) {
				r.Use(SlackSignatureMiddleware(s.slackSigningSecret))
				r.Post("/event", NewSlackWebhookHandler(uc.Task).ServeHTTP)
			})
		}
		r.Post("/{tenantID}/webhook", hooks.webhook)
		r.Post("/{tenantID}/email", hooks.email)
		r.Post("/{tenantID}/sms", hooks.sms)
	})

	if s.authUC != nil {
		api := newAPIHandler(uc)
		r.Route("/api", func(r chi.Router) {
			r.Use(authMiddleware(s.authUC))

			r.Get("/me", api.me)

			r.Post("/tasks", api.createTask)
			r.Get("/tasks", api.listTasks)
			r.Get("/tasks/{taskID}", api.getTask)
			r.Post("/tasks/{taskID}/cancel", api.cancelTask)
			r.Get("/tasks/{taskID}/decisions", api.listDecisions)

			r.Post("/decisions/{decisionID}/approve", api.approveDecision)

			r.Get("/credentials", api.listCredentials)
			r.Post("/credentials", api.saveCredential)
			r.Delete("/credentials/{credentialID}", api.revokeCredential)

			r.Get("/escalations", api.listEscalations)
			r.Post("/escalations/{escalationID}/resolve", api.resolveEscalation)

			r.Get("/audit", api.listAudit)
		})
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// accessLogger is a middleware that logs HTTP requests
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			logging.Default().Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
