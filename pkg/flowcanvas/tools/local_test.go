package tools

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fcerrors "github.com/randalmurphal/flowcanvas/pkg/flowcanvas/errors"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/event"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/storage"
)

var alice = Session{Tenant: storage.Tenant{UserID: "alice"}, Permissions: AllPermissions}

func newLocal(t *testing.T, opts ...LocalOption) (*Local, *storage.MemoryStore, context.Context) {
	t.Helper()
	store := storage.NewMemoryStore()
	l := NewLocal(store, append([]LocalOption{WithRateLimit(1000, 1000)}, opts...)...)
	return l, store, WithSession(context.Background(), alice)
}

func toolStatus(t *testing.T, err error) int {
	t.Helper()
	var te *fcerrors.ToolError
	require.ErrorAs(t, err, &te)
	return te.StatusCode
}

// TestKV tests set and get through the namespaced store.
func TestKV(t *testing.T) {
	l, store, ctx := newLocal(t)

	out, err := l.Invoke(ctx, ToolKVSet, map[string]any{"key": "greeting", "value": "hi"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"success": true}, out)

	raw, err := store.Get(ctx, "user:alice:kv:greeting")
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), raw)

	out, err = l.Invoke(ctx, ToolKVGet, map[string]any{"key": "greeting"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"value": "hi"}, out)

	out, err = l.Invoke(ctx, ToolKVGet, map[string]any{"key": "absent"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"value": nil}, out)
}

// TestKV_TenantIsolation tests that tenants never see each other's keys.
func TestKV_TenantIsolation(t *testing.T) {
	l, _, ctx := newLocal(t)
	_, err := l.Invoke(ctx, ToolKVSet, map[string]any{"key": "k", "value": "alice"})
	require.NoError(t, err)

	bob := WithSession(context.Background(), Session{
		Tenant:      storage.Tenant{UserID: "bob", OrgID: "acme"},
		Permissions: []Permission{PermReadKV},
	})
	out, err := l.Invoke(bob, ToolKVGet, map[string]any{"key": "k"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"value": nil}, out)
}

// TestKV_MissingArguments tests 400 responses.
func TestKV_MissingArguments(t *testing.T) {
	l, _, ctx := newLocal(t)

	_, err := l.Invoke(ctx, ToolKVGet, map[string]any{})
	assert.Equal(t, 400, toolStatus(t, err))

	_, err = l.Invoke(ctx, ToolKVSet, map[string]any{"key": "k"})
	assert.Equal(t, 400, toolStatus(t, err))
	assert.False(t, fcerrors.IsRetryable(err))
}

// TestArtifacts tests put, get and list.
func TestArtifacts(t *testing.T) {
	l, _, ctx := newLocal(t)

	for _, key := range []string{"reports/a.txt", "reports/b.txt", "img/logo.png"} {
		_, err := l.Invoke(ctx, ToolArtifactsPut, map[string]any{
			"key":     key,
			"content": base64.StdEncoding.EncodeToString([]byte("data:" + key)),
		})
		require.NoError(t, err)
	}

	out, err := l.Invoke(ctx, ToolArtifactsGet, map[string]any{"key": "reports/a.txt"})
	require.NoError(t, err)
	m := out.(map[string]any)
	assert.Equal(t, "base64", m["encoding"])
	assert.Equal(t, "text/plain", m["content_type"])
	decoded, err := base64.StdEncoding.DecodeString(m["content"].(string))
	require.NoError(t, err)
	assert.Equal(t, "data:reports/a.txt", string(decoded))

	out, err = l.Invoke(ctx, ToolArtifactsList, map[string]any{"prefix": "reports/"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"keys": []string{"reports/a.txt", "reports/b.txt"}}, out)

	out, err = l.Invoke(ctx, ToolArtifactsList, nil)
	require.NoError(t, err)
	assert.Len(t, out.(map[string]any)["keys"], 3)

	out, err = l.Invoke(ctx, ToolArtifactsGet, map[string]any{"key": "missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"content": nil}, out)

	_, err = l.Invoke(ctx, ToolArtifactsPut, map[string]any{"key": "x", "content": "not base64!"})
	assert.Equal(t, 400, toolStatus(t, err))
}

// TestEventsSend tests that events are stored and published.
func TestEventsSend(t *testing.T) {
	bus := event.NewBus(event.DefaultBusConfig)
	defer bus.Close()
	got := make(chan event.Event, 1)
	bus.Subscribe(func(_ context.Context, evt event.Event) error {
		got <- evt
		return nil
	}, event.TypeToolEvent)

	l, store, ctx := newLocal(t, WithPublisher(bus))

	out, err := l.Invoke(ctx, ToolEventsSend, map[string]any{
		"detailType": "order.created",
		"detail":     map[string]any{"id": 7},
	})
	require.NoError(t, err)
	id := out.(map[string]any)["event_id"].(string)

	_, err = store.Get(ctx, "user:alice:events:"+id)
	require.NoError(t, err)

	select {
	case evt := <-got:
		assert.Equal(t, id, evt.ID)
		assert.Equal(t, "user:alice", evt.Tenant)
		assert.Equal(t, "order.created", evt.Data.(map[string]any)["detail_type"])
	case <-time.After(time.Second):
		t.Fatal("event not published")
	}

	_, err = l.Invoke(ctx, ToolEventsSend, map[string]any{"detailType": "x"})
	assert.Equal(t, 400, toolStatus(t, err))
}

// TestInvoke_Authorization tests session and permission checks.
func TestInvoke_Authorization(t *testing.T) {
	l, _, _ := newLocal(t)

	_, err := l.Invoke(context.Background(), ToolKVGet, map[string]any{"key": "k"})
	assert.Equal(t, 401, toolStatus(t, err))

	viewer := WithSession(context.Background(), Session{
		Tenant:      storage.Tenant{UserID: "v"},
		Permissions: []Permission{PermReadKV},
	})
	_, err = l.Invoke(viewer, ToolKVSet, map[string]any{"key": "k", "value": "v"})
	assert.Equal(t, 403, toolStatus(t, err))

	admin := WithSession(context.Background(), Session{Tenant: storage.Tenant{UserID: "root"}, Admin: true})
	_, err = l.Invoke(admin, ToolKVSet, map[string]any{"key": "k", "value": "v"})
	assert.NoError(t, err)

	_, err = l.Invoke(admin, "no_such_tool", nil)
	assert.Equal(t, 404, toolStatus(t, err))
}

// TestInvoke_DefaultSession tests the fallback identity.
func TestInvoke_DefaultSession(t *testing.T) {
	l, _, _ := newLocal(t, WithDefaultSession(alice))
	_, err := l.Invoke(context.Background(), ToolKVSet, map[string]any{"key": "k", "value": "v"})
	assert.NoError(t, err)
}

// TestInvoke_RateLimitPerTenant tests the token bucket.
func TestInvoke_RateLimitPerTenant(t *testing.T) {
	store := storage.NewMemoryStore()
	l := NewLocal(store, WithRateLimit(1, 2))
	frozen := time.Unix(1_000_000, 0)
	l.now = func() time.Time { return frozen }

	ctx := WithSession(context.Background(), alice)
	args := map[string]any{"key": "k"}
	for i := 0; i < 2; i++ {
		_, err := l.Invoke(ctx, ToolKVGet, args)
		require.NoError(t, err)
	}
	_, err := l.Invoke(ctx, ToolKVGet, args)
	require.ErrorIs(t, err, fcerrors.ErrRateLimited)
	assert.Equal(t, fcerrors.CategoryThrottled, fcerrors.Categorize(err))

	other := WithSession(context.Background(), Session{Tenant: storage.Tenant{UserID: "bob"}, Admin: true})
	_, err = l.Invoke(other, ToolKVGet, args)
	assert.NoError(t, err, "other tenants have their own bucket")

	frozen = frozen.Add(time.Second)
	_, err = l.Invoke(ctx, ToolKVGet, args)
	assert.NoError(t, err, "bucket refills over time")
}

// TestRegister_PatternTools tests wildcard custom tools.
func TestRegister_PatternTools(t *testing.T) {
	l, _, ctx := newLocal(t)

	var mu sync.Mutex
	var calls []string
	l.Register(Tool{
		Name:       "integration_*",
		Permission: PermIntegrations,
		Handler: func(_ context.Context, req Request) (map[string]any, error) {
			mu.Lock()
			calls = append(calls, req.Tool)
			mu.Unlock()
			return map[string]any{"ok": req.Args.String("channel", "")}, nil
		},
	})

	out, err := l.Invoke(ctx, "integration_slack", map[string]any{"channel": "#ops"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": "#ops"}, out)
	assert.Equal(t, []string{"integration_slack"}, calls)
}

// TestList tests permission-filtered tool listing.
func TestList(t *testing.T) {
	l, _, _ := newLocal(t)

	names := func(ts []Tool) []string {
		out := make([]string, len(ts))
		for i, tl := range ts {
			out[i] = tl.Name
		}
		return out
	}

	assert.Equal(t,
		[]string{"artifacts_get", "artifacts_list", "artifacts_put", "events_send", "kv_get", "kv_set"},
		names(l.List(alice)))
	assert.Equal(t, []string{"kv_get"}, names(l.List(Session{Permissions: []Permission{PermReadKV}})))
}
