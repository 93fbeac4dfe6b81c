// Package httpapi exposes read-only challenge views and an authenticated
// manual tick over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stake-plus/fitbet/src/config"
	"github.com/stake-plus/fitbet/src/engine"
	"github.com/stake-plus/fitbet/src/modules/core"
	"github.com/stake-plus/fitbet/src/modules/scheduler"
	"github.com/stake-plus/fitbet/src/shared/fit"
)

var _ core.Module = (*Module)(nil)

// Reader is the engine's query surface.
type Reader interface {
	Challenge(ctx context.Context, id uint64) (*fit.Challenge, error)
	Roster(ctx context.Context, challengeID uint64) ([]fit.Participant, error)
	Windows(ctx context.Context, challengeID uint64) ([]fit.CheckinWindow, error)
	Standings(ctx context.Context, challengeID uint64) ([]engine.Score, error)
}

// TickRunner triggers a tick on demand.
type TickRunner interface {
	RunNow(ctx context.Context) scheduler.Report
	Last() scheduler.Report
}

// Module serves the API until stopped.
type Module struct {
	cfg    config.APIConfig
	reader Reader
	ticks  TickRunner
	srv    *http.Server
	cancel context.CancelFunc
}

// New prepares the server; ticks may be nil when the scheduler is disabled.
func New(cfg config.APIConfig, reader Reader, ticks TickRunner) *Module {
	return &Module{cfg: cfg, reader: reader, ticks: ticks}
}

// Name implements core.Module.
func (m *Module) Name() string { return "httpapi" }

// Start listens in the background.
func (m *Module) Start(ctx context.Context) error {
	if len(m.cfg.JWTSecret) == 0 {
		return errors.New("httpapi: JWT_SECRET is required")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	gin.SetMode(gin.ReleaseMode)
	m.srv = &http.Server{
		Addr:              ":" + m.cfg.Port,
		Handler:           NewRouter(runCtx, m.cfg, m.reader, m.ticks),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := m.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("httpapi: serve: %v", err)
		}
	}()
	log.Printf("httpapi: listening on %s", m.srv.Addr)
	return nil
}

// Stop drains in-flight requests for up to ten seconds.
func (m *Module) Stop(ctx context.Context) {
	if m.srv == nil {
		return
	}
	shutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := m.srv.Shutdown(shutCtx); err != nil {
		log.Printf("httpapi: shutdown: %v", err)
	}
	m.cancel()
	m.srv = nil
}

// NewRouter builds the gin engine. ctx bounds the rate limiter's janitor.
func NewRouter(ctx context.Context, cfg config.APIConfig, reader Reader, ticks TickRunner) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	r.Use(cors.New(corsCfg))

	h := handlers{reader: reader, ticks: ticks}
	r.GET("/healthz", h.health)

	v1 := r.Group("/v1")
	{
		v1.GET("/challenges/:id", h.challenge)
		v1.GET("/challenges/:id/participants", h.participants)
		v1.GET("/challenges/:id/windows", h.windows)
		v1.GET("/challenges/:id/standings", h.standings)
	}

	admin := v1.Group("/admin")
	admin.Use(JWTMiddleware([]byte(cfg.JWTSecret)))
	admin.Use(RateLimitMiddleware(NewRateLimiter(ctx, cfg.AdminRate, cfg.AdminWindow)))
	{
		admin.POST("/tick", h.tick)
	}
	return r
}

type handlers struct {
	reader Reader
	ticks  TickRunner
}

func (h handlers) health(c *gin.Context) {
	body := gin.H{"ok": true}
	if h.ticks != nil {
		body["last_tick"] = h.ticks.Last()
	}
	c.JSON(http.StatusOK, body)
}

func (h handlers) challenge(c *gin.Context) {
	id, ok := challengeID(c)
	if !ok {
		return
	}
	ch, err := h.reader.Challenge(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newChallengeView(ch))
}

func (h handlers) participants(c *gin.Context) {
	id, ok := challengeID(c)
	if !ok {
		return
	}
	ps, err := h.reader.Roster(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"participants": newParticipantViews(ps)})
}

func (h handlers) windows(c *gin.Context) {
	id, ok := challengeID(c)
	if !ok {
		return
	}
	ws, err := h.reader.Windows(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"windows": newWindowViews(ws)})
}

func (h handlers) standings(c *gin.Context) {
	id, ok := challengeID(c)
	if !ok {
		return
	}
	scores, err := h.reader.Standings(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"standings": scores})
}

func (h handlers) tick(c *gin.Context) {
	if h.ticks == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"err": "scheduler disabled"})
		return
	}
	log.Printf("httpapi: manual tick requested by %s", c.GetString(subjectKey))
	rep := h.ticks.RunNow(c.Request.Context())
	status := http.StatusOK
	if rep.Skipped {
		status = http.StatusConflict
	}
	c.JSON(status, rep)
}

func challengeID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"err": fmt.Sprintf("invalid challenge id %q", c.Param("id"))})
		return 0, false
	}
	return id, true
}

// statusFor maps error kinds to HTTP statuses.
func statusFor(kind fit.Kind) int {
	switch kind {
	case fit.KindValidation:
		return http.StatusBadRequest
	case fit.KindPrecondition, fit.KindConflict:
		return http.StatusConflict
	case fit.KindNotFound:
		return http.StatusNotFound
	case fit.KindCollaborator:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	kind := fit.KindOf(err)
	status := statusFor(kind)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		log.Printf("httpapi: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		msg = http.StatusText(status)
	}
	c.JSON(status, gin.H{"err": msg})
}
