package server

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/multiagent-chat/server/internal/agent/memory"
	"github.com/multiagent-chat/server/internal/agent/model"
	errx "github.com/multiagent-chat/server/internal/core/error"
	logx "github.com/multiagent-chat/server/pkg/logger"
)

const (
	maxBodyBytes  = 1 << 20
	healthTimeout = 2 * time.Second
	anonymousUser = "anonymous"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:           "ok",
		UptimeSeconds:    int64(s.now().Sub(s.startedAt).Seconds()),
		FrameworkVersion: model.FrameworkVersion,
		Checks:           make(map[string]string, len(s.deps.Checks)),
	}

	names := make([]string, 0, len(s.deps.Checks))
	for name := range s.deps.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		err := s.deps.Checks[name](ctx)
		cancel()
		if err != nil {
			logx.Error().Err(err).Str("check", name).Msg("health check failed")
			resp.Checks[name] = "unavailable"
			resp.Status = "degraded"
			continue
		}
		resp.Checks[name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, resp)
}

// handleAgents handles GET /agents.
func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Registry == nil {
		s.writeErr(w, errx.Unavailable("agent registry is not loaded"))
		return
	}
	reg := s.deps.Registry
	resp := AgentsResponse{
		Version:     reg.Version(),
		Description: reg.Description(),
		EntryPoint:  reg.EntryPoint(),
		Hash:        reg.Hash(),
		Agents:      []AgentSummary{},
		Edges:       reg.Edges(),
	}
	for _, a := range reg.Agents() {
		resp.Agents = append(resp.Agents, AgentSummary{
			ID:           a.ID,
			Name:         a.Name,
			Description:  a.Description,
			Kind:         a.Kind,
			Keywords:     a.Keywords,
			Capabilities: a.Capabilities,
			Priority:     a.Priority,
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleRunGraph handles POST /run_graph.
func (s *Server) handleRunGraph(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runner == nil {
		s.writeErr(w, errx.Unavailable("dispatcher is not configured"))
		return
	}

	var req RunGraphRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeErr(w, err)
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		s.writeErr(w, errx.BadRequest("question is required"))
		return
	}

	in := model.QueryInput{User: strings.TrimSpace(req.User), Question: question}
	if in.User == "" {
		in.User = anonymousUser
	}
	if p, ok := PrincipalFrom(r.Context()); ok {
		in.User = p.User.Username
		in.UserID = p.User.ID
		in.SessionID = p.SessionID
	}

	res, err := s.deps.Runner.Invoke(r.Context(), in)
	if err != nil {
		s.writeErr(w, errx.New(err, http.StatusServiceUnavailable, "request was cancelled"))
		return
	}
	logx.Info().
		Int64("user_id", in.UserID).
		Str("agent", res.Agent).
		Strs("edges", res.EdgesTraversed).
		Int64("processing_time_ms", res.ProcessingTimeMS).
		Msg("query answered")
	respondJSON(w, http.StatusOK, res)
}

// ================ Conversation ================

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	if s.deps.Transcripts == nil {
		s.writeErr(w, errx.Unavailable("conversation store is not configured"))
		return
	}
	p, _ := PrincipalFrom(r.Context())
	id := memory.TranscriptID(p.SessionID, p.User.Username)
	msgs, err := s.deps.Transcripts.History(r.Context(), id)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ConversationResponse{SessionID: id, Messages: msgs})
}

func (s *Server) handleClearConversation(w http.ResponseWriter, r *http.Request) {
	if s.deps.Transcripts == nil {
		s.writeErr(w, errx.Unavailable("conversation store is not configured"))
		return
	}
	p, _ := PrincipalFrom(r.Context())
	id := memory.TranscriptID(p.SessionID, p.User.Username)
	if err := s.deps.Transcripts.ClearHistory(r.Context(), id); err != nil {
		s.writeErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, MessageResponse{Message: "conversation cleared"})
}

// ================ Auth ================

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if s.deps.Auth == nil {
		s.writeErr(w, errx.Unavailable("authentication is not configured"))
		return
	}
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeErr(w, err)
		return
	}
	res, err := s.deps.Auth.Register(r.Context(), req.Username, req.Email, req.Password, clientIP(r))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.deps.Auth == nil {
		s.writeErr(w, errx.Unavailable("authentication is not configured"))
		return
	}
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeErr(w, err)
		return
	}
	res, err := s.deps.Auth.Login(r.Context(), req.Username, req.Password, clientIP(r))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, _ := ExtractBearer(r)
	if err := s.deps.Auth.Logout(r.Context(), token, clientIP(r)); err != nil {
		s.writeErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, MessageResponse{Message: "logged out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	respondJSON(w, http.StatusOK, MeResponse{User: p.User, SessionID: p.SessionID})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	p, _ := PrincipalFrom(r.Context())
	rows, err := s.deps.Auth.Activity(r.Context(), p.User.ID, limit)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ActivityResponse{Activities: rows, Count: len(rows)})
}

func (s *Server) handleQueries(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	p, _ := PrincipalFrom(r.Context())
	rows, err := s.deps.Auth.Queries(r.Context(), p.User.ID, limit)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, QueriesResponse{Queries: rows, Count: len(rows)})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	st, err := s.deps.Auth.Stats(r.Context(), p.User)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// ================ Helpers ================

// limitParam reads ?limit. Zero means the service default.
func limitParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errx.BadRequest("limit must be a non-negative integer")
	}
	return n, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errx.New(err, http.StatusBadRequest, "invalid JSON body")
	}
	return nil
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeErr maps err to its status and safe message. Server-side failures are
// logged with the underlying cause.
func (s *Server) writeErr(w http.ResponseWriter, err error) {
	status, msg := errx.StatusOf(err)
	if status >= http.StatusInternalServerError {
		logx.Error().Err(err).Int("status", status).Msg("request failed")
	}
	respondJSON(w, status, ErrorResponse{Error: msg})
}
