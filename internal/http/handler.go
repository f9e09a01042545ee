package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"plate-alert-service/internal/domain/detection"
	"plate-alert-service/internal/service"
	"plate-alert-service/internal/stream"
)

type Handler struct {
	detections *service.DetectionService
	history    *service.HistoryService
	hub        *stream.Hub
	log        zerolog.Logger
}

func NewHandler(
	detections *service.DetectionService,
	history *service.HistoryService,
	hub *stream.Hub,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		detections: detections,
		history:    history,
		hub:        hub,
		log:        log.With().Str("component", "http").Logger(),
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	// Public endpoints
	public := r.Group("/api/v1/detections")
	{
		public.POST("", h.createDetection)
		public.POST("/batch", h.createBatch)
		public.GET("", h.listDetections)
		public.GET("/metrics", h.getMetrics)
		public.GET("/health", h.getHealth)
	}

	// Admin endpoints
	protected := r.Group("/api/v1/detections")
	protected.Use(authMiddleware)
	{
		protected.POST("/cache/clear", h.clearCache)
		protected.POST("/metrics/reset", h.resetMetrics)
	}

	if h.hub != nil {
		r.GET("/ws/detections", gin.WrapH(h.hub))
	}
}

func (h *Handler) createDetection(c *gin.Context) {
	var req detection.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	result, err := h.detections.ProcessDetection(c.Request.Context(), req)
	if err != nil {
		h.handleDetectionError(c, err, result)
		return
	}

	c.JSON(http.StatusCreated, successResponse(result))
}

type batchPayload struct {
	Requests []detection.Request `json:"requests"`
}

func (h *Handler) createBatch(c *gin.Context) {
	var payload batchPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	maxConcurrent := 0
	if v := c.Query("max_concurrent"); v != "" {
		parsed, err := parseInt(v)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, errorResponse("max_concurrent must be a positive integer"))
			return
		}
		maxConcurrent = parsed
	}

	results, err := h.detections.ProcessBatch(c.Request.Context(), payload.Requests, maxConcurrent)
	if err != nil {
		h.handleError(c, err)
		return
	}

	var failed, matched int
	for _, r := range results {
		if r.Failed() {
			failed++
		}
		if r.MatchedOwnerID != nil {
			matched++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"data": results,
		"summary": gin.H{
			"total":      len(results),
			"successful": len(results) - failed,
			"failed":     failed,
			"matched":    matched,
		},
	})
}

func (h *Handler) listDetections(c *gin.Context) {
	var plateQuery *string
	if plate := strings.TrimSpace(c.Query("plate")); plate != "" {
		plateQuery = &plate
	}

	var from, to *string
	if f := strings.TrimSpace(c.Query("from")); f != "" {
		from = &f
	}
	if t := strings.TrimSpace(c.Query("to")); t != "" {
		to = &t
	}

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := parseInt(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	offset := 0
	if o := c.Query("offset"); o != "" {
		if parsed, err := parseInt(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	results, err := h.history.FindDetections(c.Request.Context(), plateQuery, from, to, limit, offset)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(results))
}

func (h *Handler) getMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, successResponse(h.detections.Metrics()))
}

func (h *Handler) getHealth(c *gin.Context) {
	report := h.detections.Health()
	status := http.StatusOK
	if report.Status == service.HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

func (h *Handler) clearCache(c *gin.Context) {
	h.detections.ClearCache()
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) resetMetrics(c *gin.Context) {
	h.detections.ResetMetrics()
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleDetectionError answers with the stored failure record next to the error.
func (h *Handler) handleDetectionError(c *gin.Context, err error, result detection.Result) {
	kind := detection.KindOf(err)
	status := statusForKind(kind)

	message := err.Error()
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("detection_id", result.ID.String()).Msg("failed to process detection")
		message = "internal error"
	}

	c.JSON(status, gin.H{
		"error":      message,
		"error_kind": kind,
		"data":       result,
	})
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, detection.ErrValidation):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func statusForKind(kind detection.ErrorKind) int {
	switch kind {
	case detection.KindValidation:
		return http.StatusBadRequest
	case detection.KindNoUsableDetection:
		return http.StatusUnprocessableEntity
	case detection.KindProviderUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(s)
}
