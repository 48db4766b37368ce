package model

import (
	"time"

	"github.com/secmon-lab/taskpilot/pkg/domain/types"
)

// Principal is an authenticated tenant administrator of the admin API
type Principal struct {
	Subject   string
	TenantID  types.TenantID
	ExpiresAt time.Time
}

// IsExpired reports whether the principal's token has expired
func (p *Principal) IsExpired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt)
}
