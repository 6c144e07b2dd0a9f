// Package api implements the four owner-gated control-plane routes spec
// §6 names, wired the way the teacher's pkg/api/server.go wires its own
// routes: a struct holding the gin.Engine and a logger, one method per
// route, gin.H envelopes. Auth, CORS, rate limiting, and request logging
// are out of scope (spec §1) — this router trusts that upstream middleware
// has already set an owner id on the gin context.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ExclusiveAccount/discovery-engine/internal/apperr"
	"github.com/ExclusiveAccount/discovery-engine/internal/engine"
	"github.com/ExclusiveAccount/discovery-engine/internal/store"
)

// ownerContextKey is the gin context key the out-of-scope auth middleware
// is expected to set after validating a caller's token.
const ownerContextKey = "ownerID"

// Router wires engine.Service onto the four discovery routes.
type Router struct {
	engine   engine.Service
	profiles *store.ProfileStore
	log      *logrus.Logger
	*gin.Engine
}

// NewRouter builds a gin.Engine with the discovery routes registered under
// /api/discovery. svc may be an *engine.Engine (in-process) or a
// *transport.Proxy (request domain) — the router is written against the
// Service interface and never knows which. profiles is the request
// domain's own store pool (SPEC_FULL.md §5): handleStart uses it for a
// read-only ownership lookup before ever enqueueing onto the discovery
// worker pool, so a request for a profile the caller doesn't own fails
// fast without occupying a discovery worker. middleware (e.g. the out-of-
// scope auth layer that sets ownerContextKey) runs ahead of every route and
// must be supplied here, since gin only applies Use-registered handlers to
// routes added after the call.
func NewRouter(svc engine.Service, profiles *store.ProfileStore, log *logrus.Logger, middleware ...gin.HandlerFunc) *Router {
	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	g.Use(gin.Recovery())
	for _, m := range middleware {
		g.Use(m)
	}

	r := &Router{engine: svc, profiles: profiles, log: log, Engine: g}
	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	group := r.Group("/api/discovery")
	group.POST("/start", r.handleStart)
	group.GET("/status/:jobId", r.handleStatus)
	group.GET("/results/:jobId", r.handleResults)
	group.DELETE("/job/:jobId", r.handleCancel)
}

func (r *Router) handleStart(c *gin.Context) {
	var body startDiscoveryRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	// Fast-fail ownership check against the request domain's own pool,
	// before enqueueing onto the discovery worker pool (SPEC_FULL.md §5).
	// Engine.Begin repeats this check on the discovery-domain pool once
	// the request is picked up, since this lookup and that one run against
	// independent connections and neither is authoritative over the other.
	if _, err := r.profiles.GetForOwner(body.CredentialProfileID, owner(c)); err != nil {
		respondEngineError(c, err)
		return
	}

	jobID, err := r.engine.StartDiscovery(c.Request.Context(), engine.StartRequest{
		Name:                body.Name,
		TargetRange:         body.TargetRange,
		CredentialProfileID: body.CredentialProfileID,
	}, owner(c))
	if err != nil {
		respondEngineError(c, err)
		return
	}

	respondSuccess(c, http.StatusCreated, gin.H{"jobId": jobID})
}

func (r *Router) handleStatus(c *gin.Context) {
	job, err := r.engine.GetDiscoveryStatus(c.Request.Context(), c.Param("jobId"), owner(c))
	if err != nil {
		respondEngineError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"job": newJobView(job)})
}

func (r *Router) handleResults(c *gin.Context) {
	devices, err := r.engine.GetDiscoveryResults(c.Request.Context(), c.Param("jobId"), owner(c))
	if err != nil {
		respondEngineError(c, err)
		return
	}

	views := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		views = append(views, newDeviceView(d))
	}
	respondSuccess(c, http.StatusOK, gin.H{"devices": views, "count": len(views)})
}

func (r *Router) handleCancel(c *gin.Context) {
	if err := r.engine.CancelDiscovery(c.Request.Context(), c.Param("jobId"), owner(c)); err != nil {
		respondEngineError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{})
}

func owner(c *gin.Context) string {
	return c.GetString(ownerContextKey)
}

// respondSuccess writes the common envelope spec §6 requires on every
// response: success, timestamp (epoch ms), plus the domain payload merged
// in at the top level.
func respondSuccess(c *gin.Context, status int, payload gin.H) {
	body := gin.H{"success": true, "timestamp": time.Now().UnixMilli()}
	for k, v := range payload {
		body[k] = v
	}
	c.JSON(status, body)
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"success":   false,
		"timestamp": time.Now().UnixMilli(),
		"error":     http.StatusText(status),
		"message":   message,
	})
}

// respondEngineError maps an apperr.Kind to the HTTP status spec §6/§7
// prescribe for each route.
func respondEngineError(c *gin.Context, err error) {
	switch {
	case apperr.Is(err, apperr.InvalidArgument):
		respondError(c, http.StatusBadRequest, err.Error())
	case apperr.Is(err, apperr.NotFound):
		respondError(c, http.StatusNotFound, err.Error())
	case apperr.Is(err, apperr.TransportFailure):
		respondError(c, http.StatusInternalServerError, err.Error())
	default:
		respondError(c, http.StatusInternalServerError, err.Error())
	}
}
