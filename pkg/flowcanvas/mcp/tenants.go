package mcp

import (
	"errors"
	"fmt"
	"sync"

	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/storage"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/tools"
)

// Tenant errors.
var (
	ErrTenantNotFound = errors.New("tenant not found")
	ErrUnauthorized   = errors.New("user not authorized for tenant")
	ErrTenantRequired = errors.New("tenant_id and user_id are required")
)

// tenants resolves request identities to tool sessions.
type tenants struct {
	mu    sync.RWMutex
	known map[string]tools.Session

	// Defaults for requests that omit identity. When set, unknown tenants
	// are registered as admins on first use.
	defaultTenant string
	defaultUser   string
}

func newTenants() *tenants {
	return &tenants{known: make(map[string]tools.Session)}
}

func (t *tenants) register(tenantID string, s tools.Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.known[tenantID] = s
}

func (t *tenants) autoRegister() bool {
	return t.defaultTenant != ""
}

// session validates the request identity and returns its session.
func (t *tenants) session(tenantID, userID string) (tools.Session, error) {
	if tenantID == "" {
		tenantID = t.defaultTenant
	}
	if userID == "" {
		userID = t.defaultUser
	}
	if tenantID == "" || userID == "" {
		return tools.Session{}, ErrTenantRequired
	}

	t.mu.RLock()
	s, ok := t.known[tenantID]
	t.mu.RUnlock()
	if ok {
		if s.Tenant.UserID != userID {
			return tools.Session{}, fmt.Errorf("%w: %s", ErrUnauthorized, tenantID)
		}
		return s, nil
	}

	if !t.autoRegister() {
		return tools.Session{}, fmt.Errorf("%w: %s", ErrTenantNotFound, tenantID)
	}
	s = tools.Session{
		Tenant: storage.Tenant{UserID: userID, OrgID: tenantID},
		Admin:  true,
	}
	t.mu.Lock()
	if existing, ok := t.known[tenantID]; ok {
		s = existing
	} else {
		t.known[tenantID] = s
	}
	t.mu.Unlock()
	if s.Tenant.UserID != userID {
		return tools.Session{}, fmt.Errorf("%w: %s", ErrUnauthorized, tenantID)
	}
	return s, nil
}
