package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stackup-dev/stackup/internal/service"
)

// Stack is the read-only view of a running orchestrator the admin API serves.
type Stack interface {
	State() string
	Statuses() []service.Status
}

// Router provides embeddable HTTP handlers exposing the stack's state.
// Endpoints:
//
//	GET {basePath}/state      current lifecycle state
//	GET {basePath}/services   status snapshot of every launched service
//	GET {basePath}/healthz    200 while the stack is ready, 503 otherwise
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	stack    Stack
	basePath string
}

// NewRouter constructs a Router with configurable basePath.
func NewRouter(stack Stack, basePath string) *Router {
	return &Router{stack: stack, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/state", r.handleState)
	group.GET("/services", r.handleServices)
	group.GET("/healthz", r.handleHealthz)
	return g
}

// NewServer starts a standalone admin HTTP server on addr using this router.
// Call Close on the returned server to stop it.
func NewServer(addr, basePath string, stack Stack) (*http.Server, error) {
	r := NewRouter(stack, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

type stateResp struct {
	State string `json:"state"`
}

func (r *Router) handleState(c *gin.Context) {
	writeJSON(c, http.StatusOK, stateResp{State: r.stack.State()})
}

func (r *Router) handleServices(c *gin.Context) {
	sts := r.stack.Statuses()
	if sts == nil {
		sts = []service.Status{}
	}
	writeJSON(c, http.StatusOK, sts)
}

func (r *Router) handleHealthz(c *gin.Context) {
	st := r.stack.State()
	if st == "ready" {
		writeJSON(c, http.StatusOK, stateResp{State: st})
		return
	}
	writeJSON(c, http.StatusServiceUnavailable, stateResp{State: st})
}
