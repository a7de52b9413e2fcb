// Package mcp serves the local tool set over the Model Context Protocol:
// newline-delimited JSON-RPC 2.0 on a reader/writer pair, usually stdio.
//
// Supported methods are initialize, tools/list, tools/call and
// notifications/initialized. Requests without an id are notifications and
// get no response. Each request names its tenant with tenant_id and
// user_id; a server with a default tenant fills in missing values and
// registers unknown tenants on first use.
package mcp

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
)

// ProtocolVersion is reported by initialize.
const ProtocolVersion = "2025-06-18"

// Error codes. InvalidRequest, MethodNotFound and Internal are standard
// JSON-RPC codes; the others are server defined.
const (
	CodeInvalidRequest   = -32600
	CodeMethodNotFound   = -32601
	CodeInternal         = -32603
	CodePermissionDenied = -32000
	CodeRateLimited      = -32001
	CodeTenantError      = -32002
	CodeHandlerError     = -32003
)

// Request is one JSON-RPC request line.
type Request struct {
	JSONRPC      string          `json:"jsonrpc"`
	ID           json.RawMessage `json:"id,omitempty"`
	Method       string          `json:"method"`
	Params       json.RawMessage `json:"params,omitempty"`
	TenantID     string          `json:"tenant_id,omitempty"`
	UserID       string          `json:"user_id,omitempty"`
	SessionToken string          `json:"session_token,omitempty"`
}

// IsNotification reports whether the request carries no id.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// Response is one JSON-RPC response line.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// ErrorObject is the JSON-RPC error member.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error is a failed request with its JSON-RPC code.
type Error struct {
	Code    int
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) object() *ErrorObject {
	return &ErrorObject{Code: e.Code, Message: e.Error()}
}

func invalidRequest(msg string, err error) *Error {
	return &Error{Code: CodeInvalidRequest, Message: "invalid request: " + msg, Err: err}
}

func errorObject(err error) *ErrorObject {
	var e *Error
	if errors.As(err, &e) {
		return e.object()
	}
	return &ErrorObject{Code: CodeInternal, Message: "internal error: " + err.Error()}
}

var nullID = json.RawMessage("null")
