package server

import (
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/everlast/internal/auth"
	"github.com/loykin/everlast/internal/child"
	"github.com/loykin/everlast/internal/strategy"
	"github.com/loykin/everlast/internal/supervisor"
)

// Controller is the supervisor surface the router drives.
type Controller interface {
	StartChildren(specs []child.Spec) ([]int, error)
	StartChildAt(idx int) error
	StopChild(idx int) error
	RestartChild(idx int) error
	DeleteChild(idx int) error
	StopAllChildren(ignore []int) error
	CountChildren() int
	CheckChildSpecs(specs []map[string]any) bool
	RestartStrategy() strategy.Strategy
	SetRestartStrategy(kind strategy.Kind) error
	Child(idx int) (supervisor.ChildInfo, error)
	Children() []supervisor.ChildInfo
}

// Router provides embeddable HTTP handlers for a supervisor.
// Endpoints (relative to basePath):
//
//	GET    /children               list slots
//	POST   /children               body: spec object or array of specs
//	GET    /children/:index        one slot
//	DELETE /children/:index
//	POST   /children/:index/start  restart path for a stopped slot
//	POST   /children/:index/stop
//	POST   /children/:index/restart
//	POST   /stop-all               body (optional): {"ignore":[1,2]}
//	GET    /count
//	POST   /check                  body: array of specs; never starts anything
//	GET    /strategy
//	PUT    /strategy               body: {"strategy":"one_for_all"}
//	POST   /login                  only with auth; body: auth.LoginRequest
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	sup      Controller
	basePath string
	auth     *auth.Middleware
}

// NewRouter constructs a new Router with configurable basePath.
func NewRouter(sup Controller, basePath string) *Router {
	return &Router{sup: sup, basePath: sanitizeBase(basePath)}
}

// WithAuth requires credentials on every route except /login. Reads need
// the read permission on their resource, everything else write.
func (r *Router) WithAuth(s *auth.AuthService) *Router {
	if s != nil {
		r.auth = auth.NewMiddleware(s)
	}
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	r.Register(g)
	return g
}

// Register adds the routes to an existing gin engine.
func (r *Router) Register(g *gin.Engine) {
	group := g.Group(r.basePath)
	children := group.Group("")
	strat := group.Group("")
	if r.auth != nil {
		group.POST("/login", r.auth.GinLogin())
		children.Use(r.auth.GinAuth(), r.auth.GinRequirePermission("children"))
		strat.Use(r.auth.GinAuth(), r.auth.GinRequirePermission("strategy"))
	}
	children.GET("/children", r.handleList)
	children.POST("/children", r.handleStart)
	children.GET("/children/:index", r.handleGet)
	children.DELETE("/children/:index", r.handleDelete)
	children.POST("/children/:index/start", r.indexed(r.sup.StartChildAt))
	children.POST("/children/:index/stop", r.indexed(r.sup.StopChild))
	children.POST("/children/:index/restart", r.indexed(r.sup.RestartChild))
	children.POST("/stop-all", r.handleStopAll)
	children.GET("/count", r.handleCount)
	children.POST("/check", r.handleCheck)
	strat.GET("/strategy", r.handleGetStrategy)
	strat.PUT("/strategy", r.handleSetStrategy)
}

// Options configures a standalone control API server.
type Options struct {
	Addr     string
	BasePath string
	TLS      *tls.Config       // nil serves plain HTTP
	Auth     *auth.AuthService // nil leaves the API open
	Logger   *slog.Logger
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, sup Controller) (*http.Server, error) {
	return Serve(Options{Addr: addr, BasePath: basePath}, sup)
}

// Serve binds opts.Addr and serves the control API in the background. The
// returned server's Addr is the bound address, so ":0" is usable.
func Serve(opts Options, sup Controller) (*http.Server, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return nil, err
	}
	r := NewRouter(sup, opts.BasePath).WithAuth(opts.Auth)
	server := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           r.Handler(),
		TLSConfig:         opts.TLS,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		var err error
		if opts.TLS != nil {
			err = server.ServeTLS(ln, "", "")
		} else {
			err = server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("control API stopped", "error", err)
		}
	}()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type startResp struct {
	Indices []int  `json:"indices"`
	Error   string `json:"error,omitempty"`
}

type stopAllReq struct {
	Ignore []int `json:"ignore"`
}

type strategyBody struct {
	Strategy string `json:"strategy"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, supervisor.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, supervisor.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, supervisor.ErrInvalidSpec), errors.Is(err, supervisor.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, supervisor.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeErr(c *gin.Context, err error) {
	writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
}

func indexParam(c *gin.Context) (int, bool) {
	idx, err := strconv.Atoi(c.Param("index"))
	if err != nil || idx < 0 {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "index must be a non-negative integer"})
		return 0, false
	}
	return idx, true
}

func (r *Router) indexed(op func(int) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		idx, ok := indexParam(c)
		if !ok {
			return
		}
		if err := op(idx); err != nil {
			writeErr(c, err)
			return
		}
		writeJSON(c, http.StatusOK, okResp{OK: true})
	}
}

func (r *Router) handleList(c *gin.Context) {
	list := r.sup.Children()
	if list == nil {
		list = []supervisor.ChildInfo{}
	}
	writeJSON(c, http.StatusOK, list)
}

func (r *Router) handleGet(c *gin.Context) {
	idx, ok := indexParam(c)
	if !ok {
		return
	}
	ci, err := r.sup.Child(idx)
	if err != nil {
		writeErr(c, err)
		return
	}
	writeJSON(c, http.StatusOK, ci)
}

func (r *Router) handleDelete(c *gin.Context) {
	r.indexed(r.sup.DeleteChild)(c)
}

func (r *Router) handleStart(c *gin.Context) {
	raws, ok := bindSpecs(c)
	if !ok {
		return
	}
	specs, err := child.Decode(raws)
	if err != nil {
		writeErr(c, err)
		return
	}
	// Child ids name the stdio log files.
	for _, s := range specs {
		if !isSafeName(s.ID) {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid id " + strconv.Quote(s.ID) + ": allowed [A-Za-z0-9._-] and no '..'"})
			return
		}
	}
	idxs, err := r.sup.StartChildren(specs)
	if idxs == nil {
		idxs = []int{}
	}
	if err != nil {
		writeJSON(c, statusFor(err), startResp{Indices: idxs, Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusCreated, startResp{Indices: idxs})
}

func (r *Router) handleCheck(c *gin.Context) {
	raws, ok := bindSpecs(c)
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"valid": r.sup.CheckChildSpecs(raws)})
}

func (r *Router) handleStopAll(c *gin.Context) {
	var req stopAllReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
			return
		}
	}
	if err := r.sup.StopAllChildren(req.Ignore); err != nil {
		writeErr(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleCount(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{"count": r.sup.CountChildren()})
}

func (r *Router) handleGetStrategy(c *gin.Context) {
	kind := ""
	if st := r.sup.RestartStrategy(); st != nil {
		kind = string(st.Kind())
	}
	writeJSON(c, http.StatusOK, strategyBody{Strategy: kind})
}

func (r *Router) handleSetStrategy(c *gin.Context) {
	var body strategyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	kind, err := strategy.ParseKind(body.Strategy)
	if err != nil || body.Strategy == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "unknown strategy " + strconv.Quote(body.Strategy)})
		return
	}
	if err := r.sup.SetRestartStrategy(kind); err != nil {
		writeErr(c, err)
		return
	}
	writeJSON(c, http.StatusOK, strategyBody{Strategy: string(kind)})
}
