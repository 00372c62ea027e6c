// Package stdio implements the line-delimited JSON-RPC frontend (spec
// §4.6): one JSON object per line on stdin, one per line on stdout,
// read/write fully decoupled the way the teacher's StdioTransport reads
// and writes its MCP subprocess pipes, just with this process playing
// the server end instead of the client end.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"mimogate/internal/dispatch"
	"mimogate/internal/gwerrors"
	"mimogate/internal/logging"
	"mimogate/internal/registry"
)

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Server serves the gateway's tool surface as a line-delimited
// JSON-RPC peer over stdin/stdout.
type Server struct {
	dispatcher  *dispatch.Dispatcher
	registry    *registry.Registry
	callTimeout time.Duration
}

// New creates a stdio Server.
func New(d *dispatch.Dispatcher, reg *registry.Registry) *Server {
	return &Server{dispatcher: d, registry: reg, callTimeout: 30 * time.Second}
}

// Serve reads requests from r and writes responses to w until EOF,
// draining gracefully and returning nil on a clean end-of-input (spec
// §4.6's "EOF -> graceful drain + exit 0").
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		resp, isNotification := s.handleLine(ctx, line)
		if isNotification {
			continue
		}
		if err := writeResponse(w, resp); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		logging.Get(logging.CategoryStdio).Warn("stdin scan error: %v", err)
		return err
	}
	logging.Get(logging.CategoryStdio).Info("stdin closed, draining")
	return nil
}

// handleLine decodes and dispatches one line. isNotification reports
// whether the request had no id (per JSON-RPC, no response is sent).
func (s *Server) handleLine(ctx context.Context, line []byte) (response, bool) {
	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		return response{
			JSONRPC: "2.0",
			ID:      nil,
			Error:   &rpcError{Code: -32700, Message: "parse error"},
		}, false
	}
	isNotification := len(req.ID) == 0 || string(req.ID) == "null"

	result, err := s.dispatchMethod(ctx, req)
	if isNotification {
		return response{}, true
	}
	if err != nil {
		return response{JSONRPC: "2.0", ID: req.ID, Error: toRPCError(err)}, false
	}
	return response{JSONRPC: "2.0", ID: req.ID, Result: result}, false
}

func (s *Server) dispatchMethod(ctx context.Context, req request) (any, error) {
	switch req.Method {
	case "initialize":
		return map[string]any{
			"protocolVersion": "2024-11-05",
			"serverInfo":      map[string]string{"name": "mimogate", "version": "1.0"},
		}, nil
	case "tools/list":
		descs := s.registry.ListAll()
		return map[string]any{"tools": descs}, nil
	case "tools/call":
		var params struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
			Sandboxed bool           `json:"sandboxed"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, gwerrors.New(gwerrors.KindInvalidArguments, "malformed tools/call params: %v", err)
		}
		callCtx := registry.Context{Sandboxed: params.Sandboxed}
		result, err := s.dispatcher.Call(callCtx, params.Name, params.Arguments, time.Now().Add(s.callTimeout))
		if err != nil {
			return nil, err
		}
		return result, nil
	default:
		return nil, gwerrors.New(gwerrors.KindUnknownTool, "unknown method: %s", req.Method)
	}
}

func toRPCError(err error) *rpcError {
	var de *gwerrors.DispatchError
	if ok := asDispatchError(err, &de); ok {
		return &rpcError{Code: de.Kind.JSONRPCCode(), Message: de.Message}
	}
	return &rpcError{Code: -32000, Message: err.Error()}
}

func asDispatchError(err error, target **gwerrors.DispatchError) bool {
	de, ok := err.(*gwerrors.DispatchError)
	if ok {
		*target = de
	}
	return ok
}

func writeResponse(w io.Writer, resp response) error {
	line, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("stdio: marshal response: %w", err)
	}
	_, err = w.Write(append(line, '\n'))
	return err
}
