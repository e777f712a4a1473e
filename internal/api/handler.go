package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mr1hm/spot-safety/internal/broadcast"
	"github.com/mr1hm/spot-safety/internal/models"
	"github.com/mr1hm/spot-safety/internal/repository"
	"github.com/mr1hm/spot-safety/internal/safety"
)

const (
	codeInvalidBody safety.Code = "InvalidBody"
	codeInternal    safety.Code = "Internal"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	svc         *safety.Service
	cmds        *safety.Commands
	db          Pinger
	broadcaster *broadcast.Broadcaster
	gatherer    prometheus.Gatherer
}

// NewHandler wires the HTTP surface. gatherer may be nil to leave /metrics
// unregistered.
func NewHandler(svc *safety.Service, db Pinger, broadcaster *broadcast.Broadcaster, gatherer prometheus.Gatherer) *Handler {
	return &Handler{
		svc:         svc,
		cmds:        safety.NewCommands(svc, safety.ContextIdentity{}),
		db:          db,
		broadcaster: broadcaster,
		gatherer:    gatherer,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)
	if h.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	api.GET("/spots", h.listSpots)
	api.GET("/spots/:spotId", h.getSpot)
	api.GET("/spots/:spotId/alerts", h.listAlerts)
	api.GET("/proposals", h.listProposals)
	api.GET("/proposals/:proposalId", h.getProposal)
	if h.broadcaster != nil {
		api.GET("/events", h.events)
	}

	write := api.Group("", ActorMiddleware())
	write.POST("/spots", h.upsertSpot)
	write.POST("/spots/:spotId/alerts", h.reportAlert)
	write.POST("/spots/:spotId/confirmations", h.confirmAlert)
	write.POST("/spots/:spotId/proposals", h.proposeDeletion)
	write.POST("/alerts/:alertId/dismiss", h.dismissAlert)
	write.POST("/alerts/:alertId/resolve", h.resolveAlert)
	write.POST("/proposals/:proposalId/votes", h.vote)
	write.POST("/proposals/:proposalId/deleted", h.markDeleted)
}

func (h *Handler) health(c *gin.Context) {
	if h.db != nil {
		if err := h.db.Ping(c.Request.Context()); err != nil {
			slog.Error("health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type spotRequest struct {
	ID        string  `json:"id" binding:"required"`
	Name      string  `json:"name" binding:"required"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (h *Handler) upsertSpot(c *gin.Context) {
	var req spotRequest
	if !bind(c, &req, false) {
		return
	}
	sp, err := h.svc.UpsertSpot(c.Request.Context(), &models.Spot{
		ID:        req.ID,
		Name:      req.Name,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
	reply(c, http.StatusOK, sp, err)
}

func (h *Handler) listSpots(c *gin.Context) {
	spots, err := h.svc.Spots(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}

	fc := toGeoJSON(spots)
	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, fc)
}

func (h *Handler) getSpot(c *gin.Context) {
	sp, err := h.svc.Spot(c.Request.Context(), c.Param("spotId"))
	reply(c, http.StatusOK, sp, err)
}

func (h *Handler) listAlerts(c *gin.Context) {
	includeDismissed, _ := strconv.ParseBool(c.Query("include_dismissed"))
	alerts, err := h.svc.SpotAlerts(c.Request.Context(), c.Param("spotId"), includeDismissed)
	reply(c, http.StatusOK, alerts, err)
}

type reportRequest struct {
	Reason  string `json:"reason"`
	Details string `json:"details"`
}

func (h *Handler) reportAlert(c *gin.Context) {
	var req reportRequest
	if !bind(c, &req, false) {
		return
	}
	res, err := h.cmds.ReportAlert(c.Request.Context(), c.Param("spotId"), req.Reason, req.Details)
	send(c, http.StatusCreated, res, err)
}

type alertRef struct {
	AlertID string `json:"alertId"`
}

func (h *Handler) confirmAlert(c *gin.Context) {
	var req alertRef
	if !bind(c, &req, true) {
		return
	}
	res, err := h.cmds.ConfirmAlert(c.Request.Context(), c.Param("spotId"), req.AlertID)
	send(c, http.StatusOK, res, err)
}

func (h *Handler) proposeDeletion(c *gin.Context) {
	var req alertRef
	if !bind(c, &req, true) {
		return
	}
	res, err := h.cmds.ProposeDeletion(c.Request.Context(), c.Param("spotId"), req.AlertID)
	send(c, http.StatusCreated, res, err)
}

type moderationRequest struct {
	Reason     string `json:"reason"`
	Resolution string `json:"resolution"`
}

func (h *Handler) dismissAlert(c *gin.Context) {
	var req moderationRequest
	if !bind(c, &req, true) {
		return
	}
	res, err := h.cmds.DismissAlert(c.Request.Context(), c.Param("alertId"), req.Reason)
	send(c, http.StatusOK, res, err)
}

func (h *Handler) resolveAlert(c *gin.Context) {
	var req moderationRequest
	if !bind(c, &req, true) {
		return
	}
	res, err := h.cmds.ResolveAlert(c.Request.Context(), c.Param("alertId"), req.Resolution)
	send(c, http.StatusOK, res, err)
}

type voteRequest struct {
	Choice string `json:"choice"`
}

func (h *Handler) vote(c *gin.Context) {
	var req voteRequest
	if !bind(c, &req, false) {
		return
	}
	res, err := h.cmds.VoteOnProposal(c.Request.Context(), c.Param("proposalId"), req.Choice)
	send(c, http.StatusOK, res, err)
}

func (h *Handler) markDeleted(c *gin.Context) {
	res, err := h.cmds.MarkDeleted(c.Request.Context(), c.Param("proposalId"))
	send(c, http.StatusOK, res, err)
}

func (h *Handler) getProposal(c *gin.Context) {
	p, err := h.svc.Proposal(c.Request.Context(), c.Param("proposalId"))
	reply(c, http.StatusOK, p, err)
}

func (h *Handler) listProposals(c *gin.Context) {
	filter := repository.ProposalFilter{
		Limit:  20, // Default page size when limit is not supplied
		SpotID: c.Query("spot_id"),
	}

	if s := c.Query("status"); s != "" {
		status, ok := models.ParseProposalStatus(s)
		if !ok {
			c.JSON(http.StatusBadRequest, safety.Result[any]{Error: &safety.Error{Code: codeInvalidBody, Message: "unknown status " + s}})
			return
		}
		filter.Status = &status
	}
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= 500 {
			filter.Limit = lim
		}
	}
	if o := c.Query("offset"); o != "" {
		if off, err := strconv.Atoi(o); err == nil && off >= 0 {
			filter.Offset = off
		}
	}

	proposals, err := h.svc.Proposals(c.Request.Context(), filter)
	reply(c, http.StatusOK, proposals, err)
}

// events streams committed events as server-sent events until the client
// disconnects or the broadcaster closes.
func (h *Handler) events(c *gin.Context) {
	id, ch := h.broadcaster.Subscribe(c.Query("spot_id"))
	defer h.broadcaster.Unsubscribe(id)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		}
	})
}

// bind decodes the JSON body into req. Commands whose fields are all optional
// accept an empty body.
func bind(c *gin.Context, req any, optional bool) bool {
	err := c.ShouldBindJSON(req)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	c.JSON(http.StatusBadRequest, safety.Result[any]{Error: &safety.Error{Code: codeInvalidBody, Message: err.Error()}})
	return false
}

// send writes a command result. Business errors keep the envelope and pick
// the status from their code; anything else is a 500.
func send[T any](c *gin.Context, status int, res safety.Result[T], err error) {
	if err != nil {
		internalError(c, err)
		return
	}
	if !res.Success {
		c.JSON(statusFor(res.Error.Code), res)
		return
	}
	c.JSON(status, res)
}

func reply[T any](c *gin.Context, status int, v T, err error) {
	if err == nil {
		send(c, status, safety.Result[T]{Success: true, Value: v}, nil)
		return
	}
	if e, ok := safety.AsError(err); ok {
		send(c, status, safety.Result[T]{Error: e}, nil)
		return
	}
	internalError(c, err)
}

func internalError(c *gin.Context, err error) {
	slog.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, safety.Result[any]{
		Error: &safety.Error{Code: codeInternal, Message: "internal error"},
	})
}

func statusFor(code safety.Code) int {
	switch code.Kind() {
	case safety.KindNotFound:
		return http.StatusNotFound
	case safety.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func actorID(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(ActorHeader))
}
