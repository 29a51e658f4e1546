package query

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/s01l/internal/ir"
	"github.com/roach88/s01l/internal/queryir"
)

// Error codes in the JSON error body.
const (
	CodeNotFound       = "NOT_FOUND"
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeInternal       = "INTERNAL"
)

// validate checks HTTP query parameters.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("address", func(fl validator.FieldLevel) bool {
		_, err := ir.ParseAddress(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("position", func(fl validator.FieldLevel) bool {
		_, err := ir.ParsePosition(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("eventkind", func(fl validator.FieldLevel) bool {
		return ir.EventKind(fl.Field().String()).Valid()
	})
	return v
}

// listRequest is the query string of GET /v1/entities.
type listRequest struct {
	Kind            string  `form:"kind" validate:"omitempty,eventkind"`
	ContractAddress string  `form:"contract_address" validate:"omitempty,address"`
	Parent          string  `form:"parent" validate:"omitempty,address"`
	Order           string  `form:"order" validate:"omitempty,oneof=asc desc"`
	Limit           int     `form:"limit" validate:"gte=0,lte=1000"`
	After           string  `form:"after" validate:"omitempty,position"`
	FromBlock       *uint64 `form:"from_block"`
	ToBlock         *uint64 `form:"to_block"`
}

func (r listRequest) params() ListParams {
	p := ListParams{
		Kind:  ir.EventKind(r.Kind),
		Order: queryir.Order(r.Order),
		Limit: r.Limit,

		FromBlock: r.FromBlock,
		ToBlock:   r.ToBlock,
	}
	if r.ContractAddress != "" {
		p.ContractAddress = ir.MustAddress(r.ContractAddress)
	}
	if r.Parent != "" {
		p.Parent = ir.MustAddress(r.Parent)
	}
	if r.After != "" {
		pos, _ := ir.ParsePosition(r.After)
		p.After = &pos
	}
	return p
}

// NewRouter serves svc over HTTP.
//
// Endpoints:
//
//	GET /v1/entities/:id       - one entity
//	GET /v1/entities           - ordered list (kind, contract_address, parent, from_block, to_block, order, limit, after)
//	GET /v1/lineage/:address   - parent chain and children
//	GET /v1/state              - registry state reconstructed from history
//	GET /v1/status             - indexed head and counts
//	GET /metrics               - Prometheus
//	GET /healthz               - store liveness
func NewRouter(svc *Service, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{svc: svc, logger: logger}

	r := gin.New()
	r.Use(gin.Recovery(), h.observe)

	r.GET("/healthz", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.GET("/entities/:id", h.getEntity)
	v1.GET("/entities", h.listEntities)
	v1.GET("/lineage/:address", h.lineage)
	v1.GET("/state", h.state)
	v1.GET("/status", h.status)
	return r
}

type handlers struct {
	svc    *Service
	logger *slog.Logger
}

// observe records request metrics and logs each request at debug.
func (h *handlers) observe(c *gin.Context) {
	start := time.Now()
	c.Next()

	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	elapsed := time.Since(start)
	httpRequests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
	httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
	h.logger.Debug("http request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration", elapsed,
	)
}

func (h *handlers) health(c *gin.Context) {
	if err := h.svc.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) getEntity(c *gin.Context) {
	e, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *handlers) listEntities(c *gin.Context) {
	var req listRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		h.badRequest(c, err)
		return
	}
	page, err := h.svc.List(c.Request.Context(), req.params())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *handlers) lineage(c *gin.Context) {
	addr, err := ir.ParseAddress(c.Param("address"))
	if err != nil {
		h.badRequest(c, err)
		return
	}
	l, err := h.svc.Lineage(c.Request.Context(), addr)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lineage": l, "root": l.Root()})
}

func (h *handlers) state(c *gin.Context) {
	snap, err := h.svc.Reconstruct(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *handlers) status(c *gin.Context) {
	st, err := h.svc.Status(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *handlers) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": CodeNotFound})
	case errors.Is(err, queryir.ErrInvalidQuery):
		h.badRequest(c, err)
	default:
		h.logger.Error("query failed", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": CodeInternal})
	}
}

func (h *handlers) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": CodeInvalidRequest})
}
