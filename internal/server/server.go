package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"feasibility-bot/internal/feasibility"
)

// Checker runs one feasibility check and reports through m.
type Checker interface {
	Run(ctx context.Context, input string, m feasibility.Messenger) *feasibility.Report
}

type Server struct {
	router     *mux.Router
	checker    Checker
	limiter    *feasibility.Limiter
	logger     *zap.Logger
	httpServer *http.Server
	wsUpgrader websocket.Upgrader

	// checks tracks runs in flight, including those on hijacked websocket
	// connections that http.Server.Shutdown does not wait for.
	checks sync.WaitGroup
}

type ActionRequest struct {
	Action string                 `json:"action"`
	Params map[string]interface{} `json:"params"`
}

type ActionResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Frame is one message produced by a check. Images are base64 PNG.
type Frame struct {
	Type    string       `json:"type"`
	Text    string       `json:"text,omitempty"`
	Image   string       `json:"image,omitempty"`
	Caption string       `json:"caption,omitempty"`
	Result  *CheckResult `json:"result,omitempty"`
}

const (
	FrameText   = "text"
	FrameImage  = "image"
	FrameResult = "result"
)

type CheckResult struct {
	RunID      string   `json:"run_id"`
	Outcome    string   `json:"outcome"`
	Error      string   `json:"error,omitempty"`
	Trail      []string `json:"trail"`
	DurationMs int64    `json:"duration_ms"`
	Messages   []Frame  `json:"messages,omitempty"`
}

func NewServer(checker Checker, limiter *feasibility.Limiter, addr string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		router:  mux.NewRouter(),
		checker: checker,
		limiter: limiter,
		logger:  logger.Named("server"),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.setupRoutes()

	// Checks run synchronously and can take minutes.
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/check", s.handleCheck).Methods("POST")
	s.router.HandleFunc("/api/status", s.handleStatus).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(req.Address) == "" {
		s.sendError(w, "address is required", http.StatusBadRequest)
		return
	}

	if !s.limiter.TryAcquire() {
		s.sendError(w, "too many checks in progress", http.StatusTooManyRequests)
		return
	}
	defer s.limiter.Release()

	collector := &collectingMessenger{}
	report := s.runCheck(r.Context(), req.Address, collector)
	result := newCheckResult(report)
	result.Messages = collector.Frames()

	var validation *feasibility.ValidationError
	switch {
	case report.Succeeded():
		s.sendSuccess(w, "Check completed", result)
	case errors.As(report.Err, &validation):
		s.sendJSON(w, http.StatusBadRequest, ActionResponse{Success: false, Message: report.Err.Error(), Data: result})
	default:
		s.sendJSON(w, http.StatusOK, ActionResponse{Success: false, Message: fmt.Sprintf("Check failed: %v", report.Err), Data: result})
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.sendSuccess(w, "Status retrieved", map[string]interface{}{
		"active": s.limiter.Active(),
		"limit":  s.limiter.Limit(),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	s.logger.Info("websocket client connected", zap.String("remote", r.RemoteAddr))
	out := &wsMessenger{conn: conn}

	for {
		var req ActionRequest
		err := conn.ReadJSON(&req)
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read error", zap.Error(err))
			}
			break
		}

		switch req.Action {
		case "check":
			address, ok := req.Params["address"].(string)
			if !ok || strings.TrimSpace(address) == "" {
				err = out.writeJSON(ActionResponse{Success: false, Message: "address parameter is required"})
				break
			}
			if !s.limiter.TryAcquire() {
				err = out.writeJSON(ActionResponse{Success: false, Message: "too many checks in progress"})
				break
			}
			report := s.runCheck(r.Context(), address, out)
			s.limiter.Release()
			err = out.writeJSON(Frame{Type: FrameResult, Result: newCheckResult(report)})

		default:
			err = out.writeJSON(ActionResponse{Success: false, Message: "Unknown action"})
		}

		if err != nil {
			s.logger.Debug("websocket write error", zap.Error(err))
			break
		}
	}

	s.logger.Info("websocket client disconnected", zap.String("remote", r.RemoteAddr))
}

// runCheck runs one check detached from the request: a client that goes away
// does not stop it midway. The orchestrator's own timeouts still bound it.
func (s *Server) runCheck(ctx context.Context, address string, m feasibility.Messenger) *feasibility.Report {
	s.checks.Add(1)
	defer s.checks.Done()
	return s.checker.Run(context.WithoutCancel(ctx), address, m)
}

func newCheckResult(report *feasibility.Report) *CheckResult {
	res := &CheckResult{
		RunID:      report.RunID,
		Outcome:    string(report.Outcome),
		DurationMs: report.Duration.Milliseconds(),
	}
	if report.Err != nil {
		res.Error = report.Err.Error()
	}
	for _, st := range report.Trail {
		res.Trail = append(res.Trail, string(st))
	}
	return res
}

func (s *Server) sendSuccess(w http.ResponseWriter, message string, data interface{}) {
	s.sendJSON(w, http.StatusOK, ActionResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	s.sendJSON(w, statusCode, ActionResponse{
		Success: false,
		Message: message,
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, statusCode int, resp ActionResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Debug("write response failed", zap.Error(err))
	}
}

func (s *Server) Start() error {
	s.logger.Info("server starting", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting requests and waits for running checks until ctx
// is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	err := s.httpServer.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.checks.Wait()
		close(done)
	}()

	select {
	case <-done:
		return err
	case <-ctx.Done():
		return errors.Join(err, fmt.Errorf("checks still running: %w", ctx.Err()))
	}
}

// collectingMessenger buffers a check's messages for a single response.
type collectingMessenger struct {
	mu     sync.Mutex
	frames []Frame
}

func (m *collectingMessenger) SendText(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, Frame{Type: FrameText, Text: text})
	return nil
}

func (m *collectingMessenger) SendImage(_ context.Context, image []byte, caption string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, Frame{
		Type:    FrameImage,
		Image:   base64.StdEncoding.EncodeToString(image),
		Caption: caption,
	})
	return nil
}

func (m *collectingMessenger) Frames() []Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Frame(nil), m.frames...)
}

// wsMessenger streams each message as a frame as soon as it is produced.
type wsMessenger struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (m *wsMessenger) SendText(_ context.Context, text string) error {
	return m.writeJSON(Frame{Type: FrameText, Text: text})
}

func (m *wsMessenger) SendImage(_ context.Context, image []byte, caption string) error {
	return m.writeJSON(Frame{
		Type:    FrameImage,
		Image:   base64.StdEncoding.EncodeToString(image),
		Caption: caption,
	})
}

func (m *wsMessenger) writeJSON(v interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn.WriteJSON(v)
}
