// Package tools is the tool-execution collaborator invoked by node handlers.
//
// Invoker is the only contract the engine's handlers depend on. Local is an
// in-process implementation backed by a storage.Store. It provides the
// key-value, artifact and event tools, checks the caller's permissions, and
// rate limits each tenant separately.
package tools

import (
	"context"
	"slices"

	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/storage"
)

// Invoker runs a named tool with JSON-like arguments.
type Invoker interface {
	Invoke(ctx context.Context, tool string, args map[string]any) (any, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, tool string, args map[string]any) (any, error)

// Invoke implements Invoker.
func (f InvokerFunc) Invoke(ctx context.Context, tool string, args map[string]any) (any, error) {
	return f(ctx, tool, args)
}

// Permission grants access to a group of tools.
type Permission string

// Permissions understood by the built-in tools.
const (
	PermReadKV        Permission = "kv:read"
	PermWriteKV       Permission = "kv:write"
	PermGetArtifacts  Permission = "artifacts:get"
	PermPutArtifacts  Permission = "artifacts:put"
	PermListArtifacts Permission = "artifacts:list"
	PermSendEvents    Permission = "events:send"
	PermIntegrations  Permission = "integrations:execute"
)

// AllPermissions lists every built-in permission.
var AllPermissions = []Permission{
	PermReadKV, PermWriteKV,
	PermGetArtifacts, PermPutArtifacts, PermListArtifacts,
	PermSendEvents, PermIntegrations,
}

// Session is the caller identity attached to a context.
type Session struct {
	Tenant      storage.Tenant
	Admin       bool // admins hold every permission
	Permissions []Permission
}

// Has reports whether the session holds p. An empty p is always granted.
func (s Session) Has(p Permission) bool {
	return p == "" || s.Admin || slices.Contains(s.Permissions, p)
}

type sessionKey struct{}

// WithSession attaches s to ctx.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFrom returns the session attached to ctx.
func SessionFrom(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}
