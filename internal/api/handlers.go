package api

import (
	"io"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"nse-agent/internal/agent"
	apperrors "nse-agent/internal/errors"
	"nse-agent/internal/security"
	"nse-agent/internal/stream"
)

const maxBodyBytes = 64 << 10

type handlers struct {
	agent  *agent.Agent
	hub    *stream.Hub
	logger zerolog.Logger
}

func (h *handlers) register(g *gin.RouterGroup) {
	g.GET("/config", h.getConfig)
	g.POST("/configure", h.configure)

	g.POST("/scan", h.scan)
	g.GET("/signals", h.signals)
	g.POST("/approve/:id", h.approve)
	g.POST("/reject/:id", h.reject)

	g.POST("/auto/start", h.autoStart)
	g.POST("/auto/stop", h.autoStop)
	g.POST("/auto/force", h.autoForce)
	g.GET("/auto/status", h.autoStatus)

	g.GET("/trades/open", h.openTrades)
	g.GET("/trades", h.closedTrades)
	g.GET("/trades/summary", h.tradeSummary)

	g.POST("/kill", h.kill)
	g.POST("/activate", h.activate)
	g.GET("/log", h.decisionLog)
	g.GET("/search", h.search)
	g.GET("/stream", h.stream)
}

func (h *handlers) getConfig(c *gin.Context) {
	ok(c, gin.H{
		"config":            h.agent.Config.Get(),
		"available_sectors": h.agent.Config.AvailableSectors(),
	})
}

func (h *handlers) configure(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		failErr(c, h.logger, apperrors.NewValidationError("body", nil, "unreadable request body"))
		return
	}
	cfg, err := h.agent.Config.Configure(c.Request.Context(), body)
	if err != nil {
		failErr(c, h.logger, err)
		return
	}
	ok(c, cfg)
}

func (h *handlers) scan(c *gin.Context) {
	res, err := h.agent.Engine.Scan(c.Request.Context())
	if err != nil {
		failErr(c, h.logger, err)
		return
	}
	ok(c, res)
}

func (h *handlers) signals(c *gin.Context) {
	view, err := h.agent.Engine.Latest(c.Request.Context())
	if err != nil {
		failErr(c, h.logger, err)
		return
	}
	ok(c, view)
}

func (h *handlers) approve(c *gin.Context) {
	id := c.Param("id")
	if err := security.ValidateSignalID(id); err != nil {
		failErr(c, h.logger, err)
		return
	}
	pos, err := h.agent.Gateway.Approve(c.Request.Context(), id)
	if err != nil {
		failErr(c, h.logger, err)
		return
	}
	ok(c, gin.H{"signal_id": id, "user_action": "APPROVED", "position": pos})
}

func (h *handlers) reject(c *gin.Context) {
	id := c.Param("id")
	if err := security.ValidateSignalID(id); err != nil {
		failErr(c, h.logger, err)
		return
	}
	sig, err := h.agent.Gateway.Reject(c.Request.Context(), id)
	if err != nil {
		failErr(c, h.logger, err)
		return
	}
	ok(c, sig)
}

type autoStartRequest struct {
	Interval int `json:"interval"`
}

func (h *handlers) autoStart(c *gin.Context) {
	var req autoStartRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			failErr(c, h.logger, apperrors.NewValidationError("interval", nil, "expected {\"interval\": seconds}"))
			return
		}
	}
	if req.Interval < 0 {
		failErr(c, h.logger, apperrors.NewValidationError("interval", req.Interval, "interval must be non-negative"))
		return
	}
	res, err := h.agent.Scheduler.Start(c.Request.Context(), time.Duration(req.Interval)*time.Second)
	if err != nil {
		failErr(c, h.logger, err)
		return
	}
	status := "started"
	if res.AlreadyRunning {
		status = "already_running"
	}
	ok(c, gin.H{"state": status, "interval_seconds": res.IntervalSeconds})
}

func (h *handlers) autoStop(c *gin.Context) {
	stopped := h.agent.Scheduler.Stop(c.Request.Context())
	state := "stopped"
	if !stopped {
		state = "not_running"
	}
	ok(c, gin.H{"state": state})
}

func (h *handlers) autoForce(c *gin.Context) {
	res, err := h.agent.Scheduler.ForceRun(c.Request.Context())
	if err != nil {
		failErr(c, h.logger, err)
		return
	}
	ok(c, res)
}

func (h *handlers) autoStatus(c *gin.Context) {
	st, err := h.agent.Scheduler.Status(c.Request.Context())
	if err != nil {
		failErr(c, h.logger, err)
		return
	}
	ok(c, st)
}

func (h *handlers) openTrades(c *gin.Context) {
	open, err := h.agent.Ledger.OpenPositions(c.Request.Context())
	if err != nil {
		failErr(c, h.logger, err)
		return
	}
	ok(c, open)
}

func (h *handlers) closedTrades(c *gin.Context) {
	limit, err := intQuery(c, "limit")
	if err != nil {
		failErr(c, h.logger, err)
		return
	}
	days, err := intQuery(c, "days")
	if err != nil {
		failErr(c, h.logger, err)
		return
	}
	closed, err := h.agent.Ledger.ClosedPositions(c.Request.Context(), limit, days)
	if err != nil {
		failErr(c, h.logger, err)
		return
	}
	ok(c, closed)
}

func (h *handlers) tradeSummary(c *gin.Context) {
	days, err := intQuery(c, "days")
	if err != nil {
		failErr(c, h.logger, err)
		return
	}
	summary, err := h.agent.Ledger.Summary(c.Request.Context(), days)
	if err != nil {
		failErr(c, h.logger, err)
		return
	}
	ok(c, summary)
}

func (h *handlers) kill(c *gin.Context) {
	res, err := h.agent.Controller.Kill(c.Request.Context())
	if err != nil {
		failErr(c, h.logger, err)
		return
	}
	ok(c, res)
}

func (h *handlers) activate(c *gin.Context) {
	cfg, err := h.agent.Controller.Activate(c.Request.Context())
	if err != nil {
		failErr(c, h.logger, err)
		return
	}
	ok(c, cfg)
}

func (h *handlers) decisionLog(c *gin.Context) {
	limit, err := intQuery(c, "limit")
	if err != nil {
		failErr(c, h.logger, err)
		return
	}
	entries, err := h.agent.Log.Tail(c.Request.Context(), limit)
	if err != nil {
		failErr(c, h.logger, err)
		return
	}
	ok(c, entries)
}

func (h *handlers) search(c *gin.Context) {
	q, err := security.ValidateSearchQuery(c.Query("q"))
	if err != nil {
		failErr(c, h.logger, err)
		return
	}
	matches, err := h.agent.Market.Search(c.Request.Context(), q)
	if err != nil {
		failErr(c, h.logger, err)
		return
	}
	ok(c, matches)
}

// intQuery parses an optional non-negative integer query parameter.
func intQuery(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperrors.NewValidationError(name, raw, "must be a non-negative integer")
	}
	return n, nil
}
