// Package operator exposes the gateway to the grid operator: an HTTP API for
// inbound FMS and control instructions plus outbound HTTP adapters.
package operator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/control"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/fms"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/model"
	coremon "github.com/kfoerderer/gridcontrol-bems-sub001/core/monitoring"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/scheduler"
	"github.com/kfoerderer/gridcontrol-bems-sub001/infra/journal"
	"github.com/kfoerderer/gridcontrol-bems-sub001/infra/logger"
)

// StatusProvider reports the scheduler status.
type StatusProvider interface {
	Status() scheduler.Status
}

// JournalReader queries the publication journal.
type JournalReader interface {
	Query(ctx context.Context, q journal.Query) ([]scheduler.JournalEntry, error)
}

// Deps are the handlers behind the API. Journal may be nil.
type Deps struct {
	FMS     fms.Listener
	Control control.Listener
	Status  StatusProvider
	Journal JournalReader
}

// Server is the operator HTTP API.
type Server struct {
	cfg     ServerConfig
	deps    Deps
	log     logger.Logger
	engine  *gin.Engine
	handler http.Handler
}

// NewServer builds the router.
func NewServer(cfg ServerConfig, deps Deps, log logger.Logger) *Server {
	cfg.SetDefaults()
	if log == nil {
		log = logger.New("operator")
	}
	s := &Server{cfg: cfg, deps: deps, log: log}

	r := gin.New()
	r.Use(s.recovery(), s.observe())
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	api := r.Group("/api/v1", s.bearer())
	{
		api.POST("/fms/schedule", s.updateSchedule)
		api.POST("/fms/request", s.requestSchedule)
		api.POST("/control/target", s.setTarget)
		api.GET("/status", s.status)
		api.GET("/journal", s.journal)
	}
	s.engine = r

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.handler = cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(r)
	return s
}

// Handler returns the HTTP handler including CORS.
func (s *Server) Handler() http.Handler { return s.handler }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.Addr, Handler: s.handler, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("operator API listening on %s", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown operator API: %w", err)
	}
	return nil
}

func (s *Server) recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		err := fmt.Errorf("panic in %s: %v", c.FullPath(), recovered)
		s.log.Errorf("%v", err)
		coremon.CaptureException(err, map[string]string{"module": "operator", "route": c.FullPath()})
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody("INTERNAL_ERROR", "an unexpected error occurred"))
	})
}

func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

func (s *Server) bearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.Token != "" && c.GetHeader("Authorization") != "Bearer "+s.cfg.Token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("UNAUTHORIZED", "missing or invalid bearer token"))
			return
		}
		c.Next()
	}
}

func errorBody(code, msg string) gin.H {
	return gin.H{"error": gin.H{"code": code, "message": msg}}
}

// fail maps validation errors to 400 so the sender does not retry them.
func (s *Server) fail(c *gin.Context, err error) {
	if isInvalid(err) {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_REQUEST", err.Error()))
		return
	}
	s.log.Errorf("%s: %v", c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, errorBody("INTERNAL_ERROR", err.Error()))
}

type scheduleRequest struct {
	Type     string         `json:"type"`
	Schedule model.Schedule `json:"schedule"`
}

func (s *Server) updateSchedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_REQUEST", err.Error()))
		return
	}
	if req.Type != "" {
		t, err := fms.ParsePublicationType(req.Type)
		if err != nil || (t != fms.TargetSchedule && t != fms.TargetScheduleUpdate) {
			c.JSON(http.StatusBadRequest, errorBody("INVALID_REQUEST", fmt.Sprintf("unexpected type %q", req.Type)))
			return
		}
	}
	if err := s.deps.FMS.UpdateSchedule(c.Request.Context(), req.Schedule); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (s *Server) requestSchedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_REQUEST", err.Error()))
		return
	}
	if err := s.deps.FMS.RequestSchedule(c.Request.Context(), req.Schedule); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

type targetRequest struct {
	SOC  *int  `json:"soc"`
	Wh   *int  `json:"wh"`
	Time int64 `json:"time"`
}

func (s *Server) setTarget(c *gin.Context) {
	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_REQUEST", err.Error()))
		return
	}
	var err error
	switch {
	case (req.SOC == nil) == (req.Wh == nil):
		c.JSON(http.StatusBadRequest, errorBody("INVALID_REQUEST", "exactly one of soc and wh must be set"))
		return
	case req.SOC != nil:
		err = s.deps.Control.SetTargetSOC(c.Request.Context(), *req.SOC, req.Time)
	default:
		err = s.deps.Control.SetTargetWh(c.Request.Context(), *req.Wh, req.Time)
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Status.Status())
}

func (s *Server) journal(c *gin.Context) {
	if s.deps.Journal == nil {
		c.JSON(http.StatusNotFound, errorBody("NOT_FOUND", "journal disabled"))
		return
	}
	q, err := parseJournalQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_REQUEST", err.Error()))
		return
	}
	entries, err := s.deps.Journal.Query(c.Request.Context(), q)
	if err != nil {
		s.fail(c, err)
		return
	}
	if entries == nil {
		entries = []scheduler.JournalEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

func parseJournalQuery(c *gin.Context) (journal.Query, error) {
	q := journal.Query{Kind: model.PublicationKind(c.Query("kind")), Outcome: c.Query("outcome"), Limit: 100}
	for name, dst := range map[string]*int64{"from": &q.From, "to": &q.To} {
		if v := c.Query(name); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return q, fmt.Errorf("%s: %w", name, err)
			}
			*dst = n
		}
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return q, fmt.Errorf("limit must be a non-negative integer")
		}
		q.Limit = n
	}
	return q, nil
}
