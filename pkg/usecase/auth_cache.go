package usecase

import (
	"crypto/sha256"
	"sync"
	"time"

	"github.com/secmon-lab/taskpilot/pkg/domain/model"
)

const (
	authCacheTTL = 5 * time.Minute
)

type cachedPrincipal struct {
	principal *model.Principal
	expiresAt time.Time
}

// authCache keeps validated tokens keyed by their digest so raw tokens are
// never held in memory longer than a request
type authCache struct {
	cache sync.Map
}

func newAuthCache() *authCache {
	return &authCache{}
}

func (c *authCache) get(raw string, now time.Time) (*model.Principal, bool) {
	key := sha256.Sum256([]byte(raw))
	val, ok := c.cache.Load(key)
	if !ok {
		return nil, false
	}

	cached := val.(*cachedPrincipal)
	if now.After(cached.expiresAt) || cached.principal.IsExpired(now) {
		c.cache.Delete(key)
		return nil, false
	}

	return cached.principal, true
}

func (c *authCache) set(raw string, p *model.Principal, now time.Time) {
	c.cache.Store(sha256.Sum256([]byte(raw)), &cachedPrincipal{
		principal: p,
		expiresAt: now.Add(authCacheTTL),
	})
}
