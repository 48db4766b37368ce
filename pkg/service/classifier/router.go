package classifier

import (
	"context"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/interfaces"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
)

// Router sends each request to the classifier registered for its provider
type Router struct {
	routes   map[string]interfaces.Classifier
	fallback string
}

var _ interfaces.Classifier = &Router{}

// NewRouter creates a Router. Requests without a provider go to fallback.
func NewRouter(fallback string) *Router {
	return &Router{
		routes:   make(map[string]interfaces.Classifier),
		fallback: fallback,
	}
}

// Register binds a classifier to a provider name
func (r *Router) Register(provider string, c interfaces.Classifier) {
	r.routes[provider] = c
}

// Providers returns the registered provider names in sorted order
func (r *Router) Providers() []string {
	names := make([]string, 0, len(r.routes))
	for name := range r.routes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether provider can be served
func (r *Router) Has(provider string) bool {
	if provider == "" {
		provider = r.fallback
	}
	_, ok := r.routes[provider]
	return ok
}

func (r *Router) Classify(ctx context.Context, req model.ClassifyRequest) (string, error) {
	provider := req.Provider
	if provider == "" {
		provider = r.fallback
	}
	c, ok := r.routes[provider]
	if !ok {
		return "", goerr.New("no classifier for provider",
			goerr.V("provider", provider),
			goerr.T(model.TagClassification),
			goerr.T(model.TagPermanent))
	}
	return c.Classify(ctx, req)
}
