// Package server exposes the agent's HTTP surface: task intake, status
// reads, a websocket watch stream, health and Prometheus metrics.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Mikeyy1405/Writgoai.nl/internal/logging"
	"github.com/Mikeyy1405/Writgoai.nl/internal/observability"
	"github.com/Mikeyy1405/Writgoai.nl/internal/task"
)

const (
	readTimeout  = 30 * time.Second
	writeTimeout = 30 * time.Second

	// watchInterval is how often the watch stream pushes a fresh record
	// snapshot to a connected client.
	watchInterval = 2 * time.Second
)

// Config holds the HTTP server settings.
type Config struct {
	Host string
	Port int

	// Secret guards task intake. Requests to POST /tasks/execute must
	// carry it as a bearer token. An empty secret disables the check,
	// which is only sensible for local standalone use.
	Secret string

	// MetricsEnabled mounts GET /metrics with the Prometheus exposition
	// handler.
	MetricsEnabled bool
}

// Server is the HTTP front door for the task service.
type Server struct {
	cfg     Config
	tasks   *task.Service
	engine  *gin.Engine
	httpSrv *http.Server

	upgrader  websocket.Upgrader
	watchTick time.Duration

	logger logging.Logger
}

// New builds the router and wires all routes. The server does not listen
// until Start is called.
func New(cfg Config, tasks *task.Service) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:   cfg,
		tasks: tasks,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		watchTick: watchInterval,
		logger:    logging.NewComponentLogger("server"),
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(s.logger))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.AllowWebSockets = true
	engine.Use(cors.New(corsConfig))

	s.engine = engine
	s.routes()

	if cfg.Secret == "" {
		s.logger.Warn("Task intake auth disabled: WRITGO_WEBHOOK_SECRET not configured")
	}

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      engine,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)

	tasks := s.engine.Group("/tasks")
	tasks.POST("/execute", s.requireBearer(), s.handleExecute)
	tasks.GET("/:task_id/status", s.handleStatus)
	tasks.GET("/:task_id/watch", s.handleWatch)

	if s.cfg.MetricsEnabled {
		s.engine.GET("/metrics", gin.WrapH(observability.MetricsHandler()))
	}
}

// Start serves requests until the listener stops. A graceful shutdown is
// not reported as an error.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening on %s", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("HTTP server shutting down")
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, s.tasks.Health(c.Request.Context()))
}

func (s *Server) handleExecute(c *gin.Context) {
	var req task.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task payload: " + err.Error()})
		return
	}

	if err := s.tasks.Execute(req); err != nil {
		if errors.Is(err, task.ErrDuplicateTask) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":  "accepted",
		"message": fmt.Sprintf("Task %s queued for execution", req.TaskID),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	rec, ok := s.tasks.Status(c.Param("task_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// handleWatch upgrades the connection to a websocket and streams record
// snapshots until the task reaches a terminal status or is evicted.
func (s *Server) handleWatch(c *gin.Context) {
	taskID := c.Param("task_id")
	if _, ok := s.tasks.Status(taskID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the failure response.
		s.logger.Warn("Websocket upgrade failed for task %s: %v", taskID, err)
		return
	}
	defer conn.Close()

	s.watchTask(conn, taskID)
}

func (s *Server) watchTask(conn *websocket.Conn, taskID string) {
	// Drain reads so a client-side close surfaces without waiting for
	// the next failed write.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.watchTick)
	defer ticker.Stop()

	for {
		rec, ok := s.tasks.Status(taskID)
		if !ok {
			s.closeWatch(conn, "task evicted")
			return
		}
		if err := conn.WriteJSON(rec); err != nil {
			return
		}
		if rec.Terminal() {
			s.closeWatch(conn, "task "+rec.Status)
			return
		}

		select {
		case <-clientGone:
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) closeWatch(conn *websocket.Conn, reason string) {
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
}

// requireBearer rejects requests whose Authorization header does not carry
// the configured intake secret.
func (s *Server) requireBearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.Secret == "" {
			c.Next()
			return
		}
		token := extractBearerToken(c.GetHeader("Authorization"))
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.Secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing bearer token"})
			return
		}
		c.Next()
	}
}

// extractBearerToken pulls the token out of an Authorization header,
// tolerating case variation and surrounding whitespace.
func extractBearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// requestLogger logs one line per request through the component logger.
func requestLogger(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("%s %s -> %d (%s)",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(),
			time.Since(start).Round(time.Millisecond))
	}
}
