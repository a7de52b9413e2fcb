package handlers

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"dario.cat/mergo"

	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas"
	fcerrors "github.com/randalmurphal/flowcanvas/pkg/flowcanvas/errors"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/graph"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/template"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/tools"
)

// Option configures the tool-backed handlers.
type Option func(*options)

type options struct {
	retry    fcerrors.RetryConfig
	expander *template.Expander
}

// WithRetry sets the retry policy for tool calls. Default: errors.DefaultRetry.
func WithRetry(cfg fcerrors.RetryConfig) Option {
	return func(o *options) { o.retry = cfg }
}

// WithStrictTemplates fails a node when a placeholder has no value.
func WithStrictTemplates() Option {
	return func(o *options) {
		o.expander = template.NewExpander(template.WithMissingAction(template.MissingError))
	}
}

func buildOptions(opts []Option) options {
	o := options{retry: fcerrors.DefaultRetry, expander: template.NewExpander()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ToolSpec describes how a node type maps onto a tool call.
type ToolSpec struct {
	// Tool is the tool to invoke. Empty derives it from the node type by
	// replacing '-' with '_' ("integration-slack" calls "integration_slack").
	Tool string
	// Args lists the configuration keys passed as arguments. A key absent
	// from the configuration is taken from the merged inputs. Nil passes
	// the whole configuration.
	Args []string
	// Required arguments must resolve to a non-empty value.
	Required []string
	// InputArg, when set, receives the merged inputs unless configured.
	InputArg string
}

// Builtin tool mappings keyed by node type.
var Builtin = map[string]ToolSpec{
	"kv-get":         {Args: []string{"key"}, Required: []string{"key"}},
	"kv-set":         {Args: []string{"key", "value", "ttl_hours"}, Required: []string{"key", "value"}},
	"artifacts-get":  {Args: []string{"key"}, Required: []string{"key"}},
	"artifacts-put":  {Args: []string{"key", "content", "content_type"}, Required: []string{"key", "content"}},
	"artifacts-list": {Args: []string{"prefix"}},
	"events-send":    {Args: []string{"detailType", "detail"}, Required: []string{"detailType"}, InputArg: "detail"},
	"email":          {Tool: "integration_email", Args: []string{"to", "subject", "body"}, Required: []string{"to"}},
	"notification":   {Tool: "integration_notification", Args: []string{"channel", "message"}, Required: []string{"message"}},
	"agent-*":        {InputArg: "input"},
	"integration-*":  {InputArg: "input"},
}

// RegisterDefaults registers handlers for every built-in node type.
func RegisterDefaults(e *flowcanvas.Engine, inv tools.Invoker, opts ...Option) {
	for _, typ := range []string{"trigger", "webhook", "schedule"} {
		e.Register(typ, Entry())
	}
	e.Register("output", Collect())
	for typ, spec := range Builtin {
		e.Register(typ, Tool(inv, spec, opts...))
	}
}

// Entry forwards the run payload laid over the node's "payload" config.
func Entry() flowcanvas.Handler {
	return flowcanvas.HandlerFunc(func(ctx flowcanvas.Context, in flowcanvas.Input) (flowcanvas.Output, error) {
		data := maps.Clone(in.Config.Sub("payload").Raw())
		if data == nil {
			data = make(map[string]any)
		}
		if p := ctx.Payload(); len(p) > 0 {
			if err := mergo.Merge(&data, p, mergo.WithOverride); err != nil {
				return nil, fmt.Errorf("merge payload: %w", err)
			}
		}
		return flowcanvas.Output{graph.PortOutput: data}, nil
	})
}

// Collect returns everything delivered to the node under "result".
func Collect() flowcanvas.Handler {
	return flowcanvas.HandlerFunc(func(_ flowcanvas.Context, in flowcanvas.Input) (flowcanvas.Output, error) {
		return flowcanvas.Output{"result": in.Merged()}, nil
	})
}

// Tool returns a handler calling a tool through inv.
func Tool(inv tools.Invoker, spec ToolSpec, opts ...Option) flowcanvas.Handler {
	o := buildOptions(opts)
	return flowcanvas.HandlerFunc(func(ctx flowcanvas.Context, in flowcanvas.Input) (flowcanvas.Output, error) {
		merged := in.Merged()
		vars := map[string]any{
			"input":   merged,
			"payload": ctx.Payload(),
			"node":    map[string]any{"id": in.Node.ID, "type": in.Node.Type},
		}
		cfg, err := o.expander.ExpandMap(in.Config.Raw(), vars)
		if err != nil {
			return nil, err
		}

		args := spec.arguments(cfg, merged)
		for _, key := range spec.Required {
			if isEmpty(args[key]) {
				return nil, &MissingParameterError{NodeID: in.Node.ID, Param: key}
			}
		}

		name := spec.Tool
		if name == "" {
			name = strings.ReplaceAll(in.Node.Type, "-", "_")
		}

		res := fcerrors.WithRetryContext(ctx, o.retry, func(c context.Context) (any, error) {
			return inv.Invoke(c, name, args)
		})
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Attempts > 1 {
			ctx.Logger().Info("tool call succeeded after retry",
				"tool", name,
				"attempts", res.Attempts,
			)
		}
		return flowcanvas.Output{graph.PortOutput: res.Value}, nil
	})
}

func (s ToolSpec) arguments(cfg, merged map[string]any) map[string]any {
	var args map[string]any
	if s.Args == nil {
		args = maps.Clone(cfg)
		if args == nil {
			args = make(map[string]any)
		}
	} else {
		args = make(map[string]any, len(s.Args))
		for _, key := range s.Args {
			if v, ok := cfg[key]; ok && !isEmpty(v) {
				args[key] = v
			} else if v, ok := merged[key]; ok {
				args[key] = v
			}
		}
	}
	if s.InputArg != "" {
		if _, ok := args[s.InputArg]; !ok && len(merged) > 0 {
			args[s.InputArg] = merged
		}
	}
	return args
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	default:
		return false
	}
}

// MissingParameterError fails a node whose tool argument did not resolve.
type MissingParameterError struct {
	NodeID string
	Param  string
}

// Error implements the error interface.
func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("node %s: missing %q parameter", e.NodeID, e.Param)
}
