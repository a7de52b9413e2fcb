package tools

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/event"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/storage"
)

// Built-in tool names.
const (
	ToolKVGet         = "kv_get"
	ToolKVSet         = "kv_set"
	ToolArtifactsGet  = "artifacts_get"
	ToolArtifactsPut  = "artifacts_put"
	ToolArtifactsList = "artifacts_list"
	ToolEventsSend    = "events_send"
)

// DefaultKVTTL applies when kv_set is called without ttl_hours.
const DefaultKVTTL = 24 * time.Hour

// eventTTL bounds how long events_send keeps its audit record.
const eventTTL = 7 * 24 * time.Hour

type artifact struct {
	ContentType string    `json:"content_type"`
	Data        []byte    `json:"data"`
	StoredAt    time.Time `json:"stored_at"`
}

func kvKey(s Session, key string) string {
	return storage.Key(s.Tenant.Namespace(), "kv", key)
}

// Artifacts use "/" so a user-supplied prefix cannot reach past the tenant.
func artifactPrefix(s Session) string {
	return s.Tenant.Namespace() + "/artifacts/"
}

func (l *Local) builtins() []Tool {
	return []Tool{
		{
			Name: ToolKVGet, Description: "Get a value from the key-value store", Permission: PermReadKV,
			InputSchema: objectSchema([]string{"key"}, prop("key", "string", "The key to retrieve")),
			Handler:     l.kvGet,
		},
		{
			Name: ToolKVSet, Description: "Set a value in the key-value store", Permission: PermWriteKV,
			InputSchema: objectSchema([]string{"key", "value"},
				prop("key", "string", "The key to set"),
				prop("value", "string", "The value to store"),
				prop("ttl_hours", "integer", "Time to live in hours (default: 24)"),
			),
			Handler: l.kvSet,
		},
		{
			Name: ToolArtifactsGet, Description: "Get an artifact by key", Permission: PermGetArtifacts,
			InputSchema: objectSchema([]string{"key"}, prop("key", "string", "The artifact key")),
			Handler:     l.artifactsGet,
		},
		{
			Name: ToolArtifactsPut, Description: "Store an artifact", Permission: PermPutArtifacts,
			InputSchema: objectSchema([]string{"key", "content"},
				prop("key", "string", "The artifact key"),
				prop("content", "string", "The artifact content (base64 encoded)"),
				prop("content_type", "string", "The content type (default: text/plain)"),
			),
			Handler: l.artifactsPut,
		},
		{
			Name: ToolArtifactsList, Description: "List artifacts with optional prefix", Permission: PermListArtifacts,
			InputSchema: objectSchema(nil, prop("prefix", "string", "Only list keys starting with this prefix")),
			Handler:     l.artifactsList,
		},
		{
			Name: ToolEventsSend, Description: "Send an event", Permission: PermSendEvents,
			InputSchema: objectSchema([]string{"detailType"},
				prop("detailType", "string", "The event type"),
				prop("detail", "object", "The event payload"),
			),
			Handler: l.eventsSend,
		},
	}
}

type schemaProp struct {
	name string
	def  map[string]any
}

func prop(name, typ, description string) schemaProp {
	return schemaProp{name: name, def: map[string]any{"type": typ, "description": description}}
}

func objectSchema(required []string, props ...schemaProp) map[string]any {
	properties := make(map[string]any, len(props))
	for _, p := range props {
		properties[p.name] = p.def
	}
	s := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func requireString(req Request, key string) (string, error) {
	v := req.Args.String(key, "")
	if v == "" {
		return "", badRequest(req.Tool, "missing '"+key+"' parameter")
	}
	return v, nil
}

func (l *Local) kvGet(ctx context.Context, req Request) (map[string]any, error) {
	key, err := requireString(req, "key")
	if err != nil {
		return nil, err
	}
	b, err := l.store.Get(ctx, kvKey(req.Session, key))
	if errors.Is(err, storage.ErrNotFound) {
		return map[string]any{"value": nil}, nil
	}
	if err != nil {
		return nil, unavailable(req.Tool, err)
	}
	return map[string]any{"value": string(b)}, nil
}

func (l *Local) kvSet(ctx context.Context, req Request) (map[string]any, error) {
	key, err := requireString(req, "key")
	if err != nil {
		return nil, err
	}
	if !req.Args.Has("value") {
		return nil, badRequest(req.Tool, "missing 'value' parameter")
	}
	value := req.Args.String("value", "")
	ttl := DefaultKVTTL
	if hours := req.Args.Float("ttl_hours", 0); hours > 0 {
		ttl = time.Duration(hours * float64(time.Hour))
	}
	if err := l.store.Set(ctx, kvKey(req.Session, key), []byte(value), ttl); err != nil {
		return nil, unavailable(req.Tool, err)
	}
	return map[string]any{"success": true}, nil
}

func (l *Local) artifactsGet(ctx context.Context, req Request) (map[string]any, error) {
	key, err := requireString(req, "key")
	if err != nil {
		return nil, err
	}
	b, err := l.store.Get(ctx, artifactPrefix(req.Session)+key)
	if errors.Is(err, storage.ErrNotFound) {
		return map[string]any{"content": nil}, nil
	}
	if err != nil {
		return nil, unavailable(req.Tool, err)
	}
	var a artifact
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, unavailable(req.Tool, err)
	}
	return map[string]any{
		"content":      base64.StdEncoding.EncodeToString(a.Data),
		"encoding":     "base64",
		"content_type": a.ContentType,
	}, nil
}

func (l *Local) artifactsPut(ctx context.Context, req Request) (map[string]any, error) {
	key, err := requireString(req, "key")
	if err != nil {
		return nil, err
	}
	encoded, err := requireString(req, "content")
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, badRequest(req.Tool, "invalid base64 content: "+err.Error())
	}

	b, err := json.Marshal(artifact{
		ContentType: req.Args.String("content_type", "text/plain"),
		Data:        data,
		StoredAt:    l.now().UTC(),
	})
	if err != nil {
		return nil, unavailable(req.Tool, err)
	}
	if err := l.store.Set(ctx, artifactPrefix(req.Session)+key, b, 0); err != nil {
		return nil, unavailable(req.Tool, err)
	}
	return map[string]any{"success": true}, nil
}

func (l *Local) artifactsList(ctx context.Context, req Request) (map[string]any, error) {
	scanner, ok := l.store.(storage.Scanner)
	if !ok {
		return nil, &ToolUnsupportedError{Tool: req.Tool}
	}
	base := artifactPrefix(req.Session)
	keys, err := scanner.Keys(ctx, base+req.Args.String("prefix", ""))
	if err != nil {
		return nil, unavailable(req.Tool, err)
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = strings.TrimPrefix(k, base)
	}
	return map[string]any{"keys": out}, nil
}

func (l *Local) eventsSend(ctx context.Context, req Request) (map[string]any, error) {
	detailType, err := requireString(req, "detailType")
	if err != nil {
		return nil, err
	}
	detail := req.Args.Any("detail", nil)
	if detail == nil {
		return nil, badRequest(req.Tool, "missing 'detail' parameter")
	}

	ns := req.Session.Tenant.Namespace()
	evt := event.New(event.TypeToolEvent, "tools", map[string]any{
		"detail_type": detailType,
		"detail":      detail,
	}, event.WithTenant(ns))

	b, err := json.Marshal(evt)
	if err != nil {
		return nil, badRequest(req.Tool, "detail is not serialisable: "+err.Error())
	}
	if err := l.store.Set(ctx, storage.Key(ns, "events", evt.ID), b, eventTTL); err != nil {
		return nil, unavailable(req.Tool, err)
	}
	if l.bus != nil {
		if err := l.bus.Publish(ctx, evt); err != nil {
			return nil, unavailable(req.Tool, err)
		}
	}
	return map[string]any{"success": true, "event_id": evt.ID}, nil
}

// ToolUnsupportedError is returned when the store cannot serve a tool.
type ToolUnsupportedError struct {
	Tool string
}

func (e *ToolUnsupportedError) Error() string {
	return "tool " + e.Tool + " is not supported by this store"
}
