package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"approvalScope/internal/indexer"
	"approvalScope/internal/model"
	"approvalScope/internal/storage"
)

const defaultMaxAddresses = 50

// Scanner runs a scan over a set of owners.
type Scanner interface {
	Scan(ctx context.Context, owners []common.Address, limit int) model.ScanResult
}

// Config controls request handling.
type Config struct {
	MaxAddresses int
	Concurrency  int
}

// Handler serves approval exposure queries.
type Handler struct {
	cfg     Config
	scanner Scanner
	sink    storage.Storage
	metrics http.Handler
	logger  *zap.Logger
}

// NewHandler builds a Handler. sink and metrics may be nil.
func NewHandler(cfg Config, scanner Scanner, sink storage.Storage, metrics http.Handler, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAddresses <= 0 {
		cfg.MaxAddresses = defaultMaxAddresses
	}
	return &Handler{
		cfg:     cfg,
		scanner: scanner,
		sink:    sink,
		metrics: metrics,
		logger:  logger,
	}
}

type approvalsRequest struct {
	Addresses []string `json:"addresses"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Router returns the gin engine with all routes registered.
func (h *Handler) Router() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), h.requestLogger())

	engine.GET("/", h.GetApprovals)
	api := engine.Group("/api")
	{
		api.GET("/approvals", h.GetApprovals)
		api.POST("/approvals", h.PostApprovals)
	}
	engine.GET("/health", h.Health)
	if h.metrics != nil {
		engine.GET("/metrics", gin.WrapH(h.metrics))
	}
	return engine
}

// GetApprovals handles GET requests with repeated or comma-separated `addresses`.
func (h *Handler) GetApprovals(c *gin.Context) {
	var inputs []string
	for _, value := range c.QueryArray("addresses") {
		inputs = append(inputs, strings.Split(value, ",")...)
	}
	h.scan(c, inputs)
}

// PostApprovals handles POST requests with a JSON body.
func (h *Handler) PostApprovals(c *gin.Context) {
	var req approvalsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}
	h.scan(c, req.Addresses)
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) scan(c *gin.Context, inputs []string) {
	owners, err := indexer.ParseAddresses(inputs)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if len(owners) == 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "at least one address is required"})
		return
	}
	if len(owners) > h.cfg.MaxAddresses {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "too many addresses"})
		return
	}

	ctx := c.Request.Context()
	scanID := uuid.NewString()
	scannedAt := time.Now().UTC()
	result := h.scanner.Scan(ctx, owners, h.cfg.Concurrency)

	if h.sink != nil {
		report := storage.Report{ScanID: scanID, ScannedAt: scannedAt, Result: result}
		if err := h.sink.PutReport(ctx, report); err != nil {
			h.logger.Error("store report failed", zap.String("scan_id", scanID), zap.Error(err))
		}
	}

	c.Header("X-Scan-ID", scanID)
	c.JSON(http.StatusOK, result)
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		)
	}
}
