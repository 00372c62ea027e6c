// Package http implements the gateway's HTTP frontend (spec §4.7):
// health, tool listing, ask/tool invocation, and an OpenAI-compatible
// chat completions adapter, all sitting in front of the same
// dispatch.Dispatcher the stdio frontend uses.
package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"mimogate/internal/dispatch"
	"mimogate/internal/gwerrors"
	"mimogate/internal/logging"
	"mimogate/internal/registry"
	"mimogate/internal/router"
)

// Server is the gateway's HTTP frontend.
type Server struct {
	dispatcher *dispatch.Dispatcher
	registry   *registry.Registry
	router     *router.Router
	apiKey     string

	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	ratePerMin int

	requestTimeout time.Duration
}

// New creates an HTTP Server. apiKey, if non-empty, is required on
// every request via the Authorization: Bearer header and compared in
// constant time. ratePerMin is the per-IP token-bucket rate (spec
// §4.7's default is 60).
func New(d *dispatch.Dispatcher, reg *registry.Registry, rt *router.Router, apiKey string, ratePerMin int) *Server {
	if ratePerMin <= 0 {
		ratePerMin = 60
	}
	return &Server{
		dispatcher:     d,
		registry:       reg,
		router:         rt,
		apiKey:         apiKey,
		limiters:       make(map[string]*rate.Limiter),
		ratePerMin:     ratePerMin,
		requestTimeout: 30 * time.Second,
	}
}

// Handler returns the server's http.Handler, wiring every route spec
// §4.7 names.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/tools", s.withAuth(s.handleListTools))
	mux.HandleFunc("POST /v1/ask", s.withAuth(s.handleAsk))
	mux.HandleFunc("POST /v1/tool", s.withAuth(s.handleTool))
	mux.HandleFunc("POST /v1/chat/completions", s.withAuth(s.handleChatCompletions))
	mux.HandleFunc("GET /v1/models", s.withAuth(s.handleModels))
	return s.withRateLimit(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": s.registry.ListAll()})
}

type askRequest struct {
	Query     string `json:"query"`
	ContextID string `json:"context_id"`
	TimeoutMs int64  `json:"timeout_ms"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		writeError(w, gwerrors.New(gwerrors.KindInvalidArguments, "missing or malformed query"))
		return
	}
	decision := s.router.Classify(r.Context(), req.Query)
	writeJSON(w, http.StatusOK, map[string]any{
		"query":    req.Query,
		"decision": decision,
	})
}

type toolRequest struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
	TimeoutMs int64          `json:"timeout_ms"`
}

func (s *Server) handleTool(w http.ResponseWriter, r *http.Request) {
	var req toolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Tool == "" {
		writeError(w, gwerrors.New(gwerrors.KindInvalidArguments, "missing or malformed tool"))
		return
	}
	timeout := s.requestTimeout
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	callCtx := registry.Context{Sandboxed: r.Header.Get("X-Sandbox") == "1"}
	result, err := s.dispatcher.Call(callCtx, req.Tool, req.Arguments, time.Now().Add(timeout))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// chatCompletionRequest is the minimal subset of the OpenAI chat
// completions schema the gateway adapts (spec §4.7).
type chatCompletionRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// handleChatCompletions adapts an OpenAI-shaped request onto the
// router + memory search path, synthesising a tool_calls entry naming
// mimo_search_memory so OpenAI-compatible clients see a recognisable
// function call in the response (spec §4.7).
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
		writeError(w, gwerrors.New(gwerrors.KindInvalidArguments, "malformed chat completion request"))
		return
	}
	lastUser := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			lastUser = req.Messages[i].Content
			break
		}
	}
	decision := s.router.Classify(r.Context(), lastUser)

	toolCallArgs, _ := json.Marshal(map[string]string{"query": lastUser, "store": decision.PrimaryStore})
	resp := map[string]any{
		"id":      "chatcmpl-mimogate",
		"object":  "chat.completion",
		"created": 0,
		"model":   req.Model,
		"choices": []map[string]any{
			{
				"index": 0,
				"message": map[string]any{
					"role":    "assistant",
					"content": nil,
					"tool_calls": []map[string]any{
						{
							"id":   "call_mimo_search_memory",
							"type": "function",
							"function": map[string]any{
								"name":      "mimo_search_memory",
								"arguments": string(toolCallArgs),
							},
						},
					},
				},
				"finish_reason": "tool_calls",
			},
		},
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"object": "list",
		"data": []map[string]string{
			{"id": "mimogate", "object": "model"},
		},
	})
}

// withAuth enforces the optional static API key with a constant-time
// comparison, per spec §4.7.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			next(w, r)
			return
		}
		got := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if len(got) <= len(prefix) || got[:len(prefix)] != prefix {
			writeError(w, gwerrors.New(gwerrors.KindUnauthenticated, "missing bearer token"))
			return
		}
		token := got[len(prefix):]
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.apiKey)) != 1 {
			writeError(w, gwerrors.New(gwerrors.KindUnauthenticated, "invalid api key"))
			return
		}
		next(w, r)
	}
}

// withRateLimit enforces a per-IP token bucket (spec §4.7, default
// 60/min), matching the model-client rate limiter idiom elsewhere in
// the corpus.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !s.limiterFor(ip).Allow() {
			writeError(w, gwerrors.New(gwerrors.KindRateLimited, "rate limit exceeded"))
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) limiterFor(ip string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	lim, ok := s.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(s.ratePerMin)/60.0), s.ratePerMin)
		s.limiters[ip] = lim
	}
	return lim
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	de, ok := err.(*gwerrors.DispatchError)
	kind := gwerrors.KindInternal
	msg := err.Error()
	if ok {
		kind = de.Kind
		msg = de.Message
	}
	logging.Get(logging.CategoryHTTP).Debug("request error: %v", err)
	writeJSON(w, kind.HTTPStatus(), map[string]any{"error": msg, "kind": string(kind)})
}
