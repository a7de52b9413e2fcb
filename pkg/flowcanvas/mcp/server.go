package mcp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"

	fcerrors "github.com/randalmurphal/flowcanvas/pkg/flowcanvas/errors"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/tools"
)

// ToolSet is the tool collaborator a Server exposes. *tools.Local
// implements it.
type ToolSet interface {
	tools.Invoker
	List(s tools.Session) []tools.Tool
}

// Server answers MCP requests against a ToolSet.
type Server struct {
	tools        ToolSet
	tenants      *tenants
	logger       *slog.Logger
	name         string
	version      string
	maxInFlight  int
	drainTimeout time.Duration

	handled atomic.Int64
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Protocol output never goes to the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTenant registers a known tenant and the session its user gets.
func WithTenant(tenantID string, session tools.Session) Option {
	return func(s *Server) { s.tenants.register(tenantID, session) }
}

// WithDefaultTenant fills in identity for requests that omit it and
// registers unknown tenants as admins on first use. Local development only.
func WithDefaultTenant(tenantID, userID string) Option {
	return func(s *Server) {
		s.tenants.defaultTenant = tenantID
		s.tenants.defaultUser = userID
	}
}

// WithServerInfo sets the name and version reported by initialize.
func WithServerInfo(name, version string) Option {
	return func(s *Server) {
		s.name = name
		s.version = version
	}
}

// WithMaxInFlight bounds concurrently handled requests. Default: 16.
func WithMaxInFlight(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxInFlight = n
		}
	}
}

// WithDrainTimeout bounds how long Serve waits for in-flight requests
// after input ends. Default: 5s.
func WithDrainTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.drainTimeout = d
		}
	}
}

// NewServer creates a Server.
func NewServer(ts ToolSet, opts ...Option) *Server {
	s := &Server{
		tools:        ts,
		tenants:      newTenants(),
		logger:       slog.Default(),
		name:         "flowcanvas",
		version:      "0.1.0",
		maxInFlight:  16,
		drainTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handled returns the number of requests answered so far.
func (s *Server) Handled() int64 {
	return s.handled.Load()
}

// Serve reads requests from r until EOF or ctx is done, writing one
// response line per request to w. Requests are handled concurrently, so
// responses may arrive out of order. In-flight requests get the drain
// timeout to finish before Serve returns.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	done := make(chan struct{})
	defer close(done)

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		br := bufio.NewReader(r)
		for {
			line, err := br.ReadBytes('\n')
			if len(bytes.TrimSpace(line)) > 0 {
				select {
				case lines <- line:
				case <-done:
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	var (
		wg      sync.WaitGroup
		writeMu sync.Mutex
		sem     = make(chan struct{}, s.maxInFlight)
		err     error
	)
	write := func(resp *Response) {
		b, mErr := json.Marshal(resp)
		if mErr != nil {
			s.logger.Error("mcp response encode failed", slog.String("error", mErr.Error()))
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		if _, wErr := w.Write(append(b, '\n')); wErr != nil {
			s.logger.Error("mcp response write failed", slog.String("error", wErr.Error()))
		}
	}

	s.logger.Info("mcp server started")
loop:
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("mcp server stopping", slog.String("reason", ctx.Err().Error()))
			break loop
		case rErr := <-readErr:
			if !errors.Is(rErr, io.EOF) {
				err = rErr
			}
			s.logger.Info("mcp input closed")
			break loop
		case line := <-lines:
			sem <- struct{}{}
			wg.Add(1)
			go func() {
				defer func() {
					<-sem
					wg.Done()
				}()
				if resp := s.Handle(ctx, line); resp != nil {
					write(resp)
				}
			}()
		}
	}

	s.drain(&wg)
	return err
}

func (s *Server) drain(wg *sync.WaitGroup) {
	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(s.drainTimeout):
		s.logger.Warn("mcp drain timed out, abandoning in-flight requests")
	}
}

// Handle answers one request line. It returns nil for notifications.
func (s *Server) Handle(ctx context.Context, line []byte) *Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return &Response{JSONRPC: "2.0", ID: nullID, Error: invalidRequest("parse", err).object()}
	}
	if req.IsNotification() {
		s.logger.Debug("mcp notification", slog.String("method", req.Method))
		return nil
	}

	result, err := s.process(ctx, &req)
	s.handled.Add(1)
	if err != nil {
		s.logger.Debug("mcp request failed",
			slog.String("method", req.Method),
			slog.String("error", err.Error()),
		)
		return &Response{JSONRPC: "2.0", ID: req.ID, Error: errorObject(err)}
	}
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func (s *Server) process(ctx context.Context, req *Request) (any, error) {
	session, err := s.tenants.session(req.TenantID, req.UserID)
	if err != nil {
		if errors.Is(err, ErrTenantRequired) {
			return nil, invalidRequest("identity", err)
		}
		return nil, &Error{Code: CodeTenantError, Message: "tenant error", Err: err}
	}

	s.logger.Debug("mcp request",
		slog.String("method", req.Method),
		slog.String("namespace", session.Tenant.Namespace()),
	)

	switch req.Method {
	case "initialize":
		return s.initialize(), nil
	case "tools/list":
		return s.listTools(session), nil
	case "tools/call":
		return s.callTool(tools.WithSession(ctx, session), req.Params)
	case "notifications/initialized":
		return map[string]any{}, nil
	default:
		return nil, &Error{Code: CodeMethodNotFound, Message: "method not found: " + req.Method}
	}
}

func (s *Server) initialize() map[string]any {
	return map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]any{"tools": map[string]any{}},
		"serverInfo":      map[string]any{"name": s.name, "version": s.version},
	}
}

type toolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema"`
}

func (s *Server) listTools(session tools.Session) map[string]any {
	list := s.tools.List(session)
	out := make([]toolInfo, 0, len(list))
	for _, t := range list {
		schema := t.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		out = append(out, toolInfo{Name: t.Name, Description: t.Description, InputSchema: schema})
	}
	return map[string]any{"tools": out}
}

type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (s *Server) callTool(ctx context.Context, raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, invalidRequest("missing parameters", nil)
	}
	var p callParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidRequest("params", err)
	}
	if p.Name == "" {
		return nil, invalidRequest("missing tool name", nil)
	}
	if p.Arguments == nil {
		p.Arguments = map[string]any{}
	}

	result, err := s.tools.Invoke(ctx, p.Name, p.Arguments)
	if err != nil {
		return nil, toolFailure(err)
	}
	return result, nil
}

func toolFailure(err error) *Error {
	if errors.Is(err, fcerrors.ErrRateLimited) {
		return &Error{Code: CodeRateLimited, Message: "rate limit exceeded", Err: err}
	}
	var te *fcerrors.ToolError
	if errors.As(err, &te) {
		switch te.StatusCode {
		case http.StatusForbidden:
			return &Error{Code: CodePermissionDenied, Message: "permission denied", Err: err}
		case http.StatusNotFound:
			return &Error{Code: CodeMethodNotFound, Message: "tool not found", Err: err}
		}
	}
	return &Error{Code: CodeHandlerError, Message: "handler error", Err: err}
}
