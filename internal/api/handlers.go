// handlers.go - HTTP handlers for folder scans, reconciliation runs and lookups

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/bosocmputer/product_ocr_reconcile/internal/common"
	"github.com/bosocmputer/product_ocr_reconcile/internal/pipeline"
	"github.com/bosocmputer/product_ocr_reconcile/internal/service"
	"github.com/bosocmputer/product_ocr_reconcile/internal/storage"
)

// Reconciler is what the handlers need from the service layer
type Reconciler interface {
	ScanFolder(ctx context.Context, req service.ScanRequest) (*service.ScanResult, error)
	Reconcile(ctx context.Context, req service.ReconcileRequest, onProgress pipeline.ProgressFunc) (*service.Result, error)
	ListMunicipalities(ctx context.Context) ([]storage.Municipality, error)
	RecentExecutions(ctx context.Context, limit int) ([]storage.ExecutionLog, error)
}

// Handler serves the HTTP API
type Handler struct {
	svc    Reconciler
	logger zerolog.Logger
}

// NewHandler creates the handlers
func NewHandler(svc Reconciler, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger.With().Str("component", "api").Logger()}
}

// NewRouter registers every route with CORS for allowedOrigins
func NewRouter(h *Handler, allowedOrigins string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), h.requestLogger())

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	router.GET("/health", h.Health)

	v1 := router.Group("/api/v1")
	v1.GET("/municipalities", h.ListMunicipalities)
	v1.GET("/executions", h.RecentExecutions)
	v1.POST("/folders/scan", h.ScanFolder)
	v1.POST("/reconcile", h.Reconcile)

	return router
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

// Health reports liveness
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "product-ocr-reconcile",
		"version": "1.0.0",
	})
}

// ListMunicipalities returns the municipality directory
func (h *Handler) ListMunicipalities(c *gin.Context) {
	list, err := h.svc.ListMunicipalities(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Failed to load municipalities",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"municipalities": list})
}

// RecentExecutions returns the newest execution logs, ?limit=N (default 20)
func (h *Handler) RecentExecutions(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		limit = n
	}

	logs, err := h.svc.RecentExecutions(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load execution logs",
			"details": err.Error(),
		})
		return
	}
	if logs == nil {
		logs = []storage.ExecutionLog{}
	}
	c.JSON(http.StatusOK, gin.H{"executions": logs})
}

// ScanFolder lists business codes, product codes and image counts of a folder
func (h *Handler) ScanFolder(c *gin.Context) {
	var req service.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    "Invalid request format",
			"details":  err.Error(),
			"expected": "JSON with folder and optional business_code, product_code",
		})
		return
	}

	res, err := h.svc.ScanFolder(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, "Failed to scan folder", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Reconcile runs one reconciliation pass and returns the report tables
func (h *Handler) Reconcile(c *gin.Context) {
	var req service.ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    "Invalid request format",
			"details":  err.Error(),
			"expected": "JSON with folder, business_code and optional product_code, municipality, context_code",
		})
		return
	}
	if req.User == "" {
		req.User = c.GetHeader("X-User")
	}

	res, err := h.svc.Reconcile(c.Request.Context(), req, nil)
	if err != nil {
		h.writeError(c, "Reconciliation failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"run_id":     res.RunID,
		"incomplete": res.Report.Incomplete,
		"summary":    res.Report.Summary(),
		"display":    res.Report.Display,
		"plain":      res.Report.Plain,
		"results":    res.Report.Results,
		"metadata": gin.H{
			"processed_at": time.Now().Format(time.RFC3339),
			"usage":        res.Usage,
			"steps":        res.Steps,
		},
	})
}

func (h *Handler) writeError(c *gin.Context, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, common.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, common.ErrNoGroups):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusRequestTimeout
	}
	if status == http.StatusInternalServerError {
		h.logger.Error().Err(err).Msg(message)
	}

	c.JSON(status, gin.H{
		"error":   message,
		"details": err.Error(),
	})
}
