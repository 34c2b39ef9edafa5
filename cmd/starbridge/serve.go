package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/starbridge/executor"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for code execution",
	Long: `Start an HTTP server that provides REST endpoints for code execution.

Endpoints:
  POST   /execute              Execute code (stateless)
  POST   /sessions             Create session, returns {"session_id":"..."}
  POST   /sessions/{id}/exec   Execute in session (state persists)
  DELETE /sessions/{id}        Close session
  GET    /modules              List importable Starlark modules
  GET    /health               Health check`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().Duration("session-ttl", 15*time.Minute, "Close sessions idle for longer than this")
	rootCmd.AddCommand(serveCmd)
}

type sessionManager struct {
	sessions map[string]*serverSession
	mu       sync.RWMutex
	ttl      time.Duration
	stop     chan struct{}
	once     sync.Once
}

type serverSession struct {
	session  *executor.Session
	lastUsed time.Time
}

func newSessionManager(ttl time.Duration) *sessionManager {
	sm := &sessionManager{
		sessions: make(map[string]*serverSession),
		ttl:      ttl,
		stop:     make(chan struct{}),
	}
	go sm.cleanup()
	return sm
}

func (sm *sessionManager) create(exec *executor.Executor, opts ...executor.SessionOption) (string, error) {
	session, err := exec.NewSession(opts...)
	if err != nil {
		return "", err
	}

	id := generateSessionID()
	sm.mu.Lock()
	sm.sessions[id] = &serverSession{
		session:  session,
		lastUsed: time.Now(),
	}
	sm.mu.Unlock()
	return id, nil
}

func (sm *sessionManager) get(id string) (*executor.Session, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	ss, ok := sm.sessions[id]
	if !ok {
		return nil, false
	}
	ss.lastUsed = time.Now()
	return ss.session, true
}

func (sm *sessionManager) close(id string) bool {
	sm.mu.Lock()
	ss, ok := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()
	if ok {
		ss.session.Close()
	}
	return ok
}

func (sm *sessionManager) count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

func (sm *sessionManager) cleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-sm.stop:
			return
		case <-ticker.C:
			sm.expire(time.Now())
		}
	}
}

// expire closes the sessions idle since before now minus the TTL.
func (sm *sessionManager) expire(now time.Time) {
	var expired []*executor.Session
	sm.mu.Lock()
	for id, ss := range sm.sessions {
		if now.Sub(ss.lastUsed) > sm.ttl {
			expired = append(expired, ss.session)
			delete(sm.sessions, id)
		}
	}
	sm.mu.Unlock()

	// Close waits for a Run in progress; do it outside the lock.
	for _, s := range expired {
		s.Close()
	}
}

func (sm *sessionManager) closeAll() {
	sm.once.Do(func() { close(sm.stop) })
	sm.mu.Lock()
	all := sm.sessions
	sm.sessions = make(map[string]*serverSession)
	sm.mu.Unlock()
	for _, ss := range all {
		ss.session.Close()
	}
}

func generateSessionID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x", b)
}

type executeRequest struct {
	Code    string `json:"code"`
	Timeout string `json:"timeout,omitempty"`
}

type executeResponse struct {
	Output     string `json:"output"`
	Value      string `json:"value,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

type server struct {
	exec     *executor.Executor
	sessions *sessionManager
	timeout  time.Duration
	log      *slog.Logger
}

// newServer returns the HTTP handler of the serve command.
func newServer(exec *executor.Executor, sessions *sessionManager, timeout time.Duration, log *slog.Logger) http.Handler {
	s := &server{exec: exec, sessions: sessions, timeout: timeout, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /execute", s.handleExecute)
	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("POST /sessions/{id}/exec", s.handleSessionExec)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleCloseSession)
	mux.HandleFunc("GET /modules", s.handleModules)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeExecute(w http.ResponseWriter, r *http.Request) (executeRequest, bool) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return req, false
	}
	if req.Code == "" {
		http.Error(w, "code required", http.StatusBadRequest)
		return req, false
	}
	if req.Timeout != "" {
		if _, err := time.ParseDuration(req.Timeout); err != nil {
			http.Error(w, "invalid timeout", http.StatusBadRequest)
			return req, false
		}
	}
	return req, true
}

func toResponse(result executor.Result) executeResponse {
	resp := executeResponse{
		Output:     result.Output,
		Value:      result.Value,
		DurationMs: result.Duration.Milliseconds(),
	}
	if result.Error != nil {
		resp.Error = result.Error.Error()
	}
	return resp
}

func (s *server) handleExecute(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeExecute(w, r)
	if !ok {
		return
	}

	timeout := s.timeout
	if req.Timeout != "" {
		timeout, _ = time.ParseDuration(req.Timeout)
	}

	result := s.exec.Run(r.Context(), req.Code, executor.WithTimeout(timeout))
	s.log.Debug("execute", "duration", result.Duration, "error", result.Error)
	writeJSON(w, http.StatusOK, toResponse(result))
}

func (s *server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.sessions.create(s.exec, executor.WithSessionTimeout(s.timeout))
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to create session: %v", err), http.StatusInternalServerError)
		return
	}
	s.log.Info("session created", "id", id)
	writeJSON(w, http.StatusOK, createSessionResponse{SessionID: id})
}

func (s *server) handleSessionExec(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessions.get(r.PathValue("id"))
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	req, ok := decodeExecute(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	if req.Timeout != "" {
		d, _ := time.ParseDuration(req.Timeout)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	result := session.Run(ctx, req.Code)
	status := http.StatusOK
	if errors.Is(result.Error, executor.ErrSessionBusy) {
		status = http.StatusConflict
	}
	writeJSON(w, status, toResponse(result))
}

func (s *server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.sessions.close(id) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	s.log.Info("session closed", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleModules(w http.ResponseWriter, r *http.Request) {
	modules, err := s.exec.Modules()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"modules": modules})
}

func runServe(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetInt("port")
	ttl, _ := cmd.Flags().GetDuration("session-ttl")

	exec, cfg, err := newExecutor(cmd)
	if err != nil {
		return err
	}
	defer exec.Close()

	if !cmd.Flags().Changed("port") && cfg.Serve.Port != 0 {
		port = cfg.Serve.Port
	}
	if !cmd.Flags().Changed("session-ttl") {
		ttl = cfg.duration(cfg.Serve.SessionTTL, ttl)
	}

	level, _ := cmd.Flags().GetString("log-level")
	logger, err := newLogger(cmd.ErrOrStderr(), level)
	if err != nil {
		return err
	}

	sessions := newSessionManager(ttl)
	defer sessions.closeAll()

	srv := &http.Server{
		Addr:     fmt.Sprintf(":%d", port),
		Handler:  newServer(exec, sessions, timeoutFor(cmd, cfg), logger),
		ErrorLog: slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
