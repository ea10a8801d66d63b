// Package api exposes the daemon's HTTP surface: health, state and log
// queries, ask responses, task control, and the WebSocket upgrade endpoint.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentbridge/agentbridge/internal/agentstate"
	"github.com/agentbridge/agentbridge/internal/common/config"
	apperrors "github.com/agentbridge/agentbridge/internal/common/errors"
	"github.com/agentbridge/agentbridge/internal/common/httpmw"
	"github.com/agentbridge/agentbridge/internal/common/logger"
	"github.com/agentbridge/agentbridge/internal/dispatch"
	gateway "github.com/agentbridge/agentbridge/internal/gateway/websocket"
	"github.com/agentbridge/agentbridge/pkg/taskstream"
)

// TaskRunner manages task lifecycle and awaits completion. The bridge host
// implements it.
type TaskRunner interface {
	gateway.TaskLifecycle
	WaitForCompletion(ctx context.Context, timeout time.Duration) (taskstream.TaskMessage, error)
}

// Server is the HTTP/WebSocket front door of the bridge daemon.
type Server struct {
	cfg     config.ServerConfig
	ipcCfg  config.IPCConfig
	engine  *gin.Engine
	http    *http.Server
	hub     *gateway.Hub
	state   *agentstate.Client
	asks    *dispatch.Dispatcher
	runner  TaskRunner
	logger  *logger.Logger
	baseCtx context.Context
}

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The daemon binds to loopback; front-ends connect from arbitrary
	// origins (CLI, electron shells).
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewServer builds the router. Run starts serving.
func NewServer(cfg config.ServerConfig, ipcCfg config.IPCConfig, state *agentstate.Client, asks *dispatch.Dispatcher, runner TaskRunner, hub *gateway.Hub, log *logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpmw.OtelTracing("agentbridge-api"))

	s := &Server{
		cfg:    cfg,
		ipcCfg: ipcCfg,
		engine: engine,
		hub:    hub,
		state:  state,
		asks:   asks,
		runner: runner,
		logger: log.WithFields(zap.String("component", "api-server")),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/ws", s.handleWebSocket)

	v1 := s.engine.Group("/api/v1")
	{
		v1.GET("/state", s.handleState)
		v1.GET("/messages", s.handleMessages)
		v1.POST("/ask/respond", s.handleAskRespond)
		v1.POST("/tasks", s.handleNewTask)
		v1.GET("/tasks/wait", s.handleWaitForCompletion)
		v1.POST("/tasks/cancel", s.handleCancelTask)
		v1.POST("/tasks/clear", s.handleClearTask)
		v1.POST("/terminal", s.handleTerminalSignal)
	}
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.baseCtx = ctx
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.ReadTimeoutDuration(),
		WriteTimeout: s.cfg.WriteTimeoutDuration(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeoutDuration())
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, s.state.GetAgentState())
}

func (s *Server) handleMessages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"messages": s.state.Messages()})
}

type askRespondBody struct {
	Approved bool   `json:"approved"`
	Text     string `json:"text"`
}

func (s *Server) handleAskRespond(c *gin.Context) {
	var body askRespondBody
	if err := c.ShouldBindJSON(&body); err != nil {
		appErr := apperrors.BadRequest("invalid request body: " + err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}
	if err := s.asks.Answer(c.Request.Context(), dispatch.Decision{Approved: body.Approved, Text: body.Text}); err != nil {
		appErr := apperrors.Conflict(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type newTaskBody struct {
	Text string `json:"text"`
}

func (s *Server) handleNewTask(c *gin.Context) {
	var body newTaskBody
	if err := c.ShouldBindJSON(&body); err != nil || body.Text == "" {
		appErr := apperrors.ValidationError("text", "must be a non-empty string")
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}
	taskID, err := s.runner.BeginTask(c.Request.Context(), body.Text)
	if err != nil {
		appErr := apperrors.Wrap(err, "failed to start task")
		c.JSON(apperrors.GetHTTPStatus(appErr), appErr)
		return
	}
	s.asks.NewTask(body.Text)
	c.JSON(http.StatusAccepted, gin.H{"success": true, "task_id": taskID})
}

// handleWaitForCompletion blocks until the current task finishes. The bound
// is the completion timeout, sized for a whole agent turn rather than a
// single request.
func (s *Server) handleWaitForCompletion(c *gin.Context) {
	msg, err := s.runner.WaitForCompletion(c.Request.Context(), s.ipcCfg.CompletionTimeoutDuration())
	if err != nil {
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"completion": msg})
}

func (s *Server) handleCancelTask(c *gin.Context) {
	s.asks.CancelTask()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleClearTask(c *gin.Context) {
	s.asks.ClearTask()
	if err := s.runner.ClearTask(c.Request.Context()); err != nil {
		appErr := apperrors.InternalError("failed to clear task", err)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type terminalBody struct {
	Signal string `json:"signal"`
}

func (s *Server) handleTerminalSignal(c *gin.Context) {
	var body terminalBody
	if err := c.ShouldBindJSON(&body); err != nil {
		appErr := apperrors.BadRequest("invalid request body: " + err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}
	switch body.Signal {
	case "continue":
		s.asks.TerminalContinue()
	case "abort":
		s.asks.TerminalAbort()
	default:
		appErr := apperrors.ValidationError("signal", "must be 'continue' or 'abort'")
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := gateway.NewClient(uuid.New().String(), conn, s.hub, s.logger)
	s.hub.Register(client)

	// The request context dies with the handler; the pumps live as long as
	// the server does.
	ctx := s.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	go client.WritePump()
	go client.ReadPump(ctx)
}
