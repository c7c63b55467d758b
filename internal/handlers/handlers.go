package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/verifai/internal/auth"
	"github.com/example/verifai/internal/usecase"
	"github.com/example/verifai/internal/verification"
)

// MaxRequestSize bounds the JSON body of a verification request.
const MaxRequestSize = 20 << 20

const (
	msgBadRequest    = "image and object_class are required"
	msgInvalidImage  = "invalid image payload"
	msgUnavailable   = "AI model is not available."
	msgTimeout       = "AI analysis timed out."
	msgInternalError = "An internal error occurred during AI analysis."
	msgTooLarge      = "request body too large"
)

// Readiness reports whether the backend is initialized.
type Readiness interface {
	Ready() bool
	Name() string
}

// Options configures optional route behaviour.
type Options struct {
	// Auth guards /verify and /result when set.
	Auth gin.HandlerFunc
	// RequestTimeout bounds a single verification; zero disables it.
	RequestTimeout time.Duration
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, uc *usecase.VerificationUseCase, readiness Readiness, opts Options) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "VerifAI backend is running."})
	})

	router.GET("/health", func(c *gin.Context) {
		ready := readiness.Ready()
		code := http.StatusOK
		status := "ok"
		if !ready {
			code = http.StatusServiceUnavailable
			status = "starting"
		}
		c.JSON(code, gin.H{"status": status, "ready": ready, "backend": readiness.Name()})
	})

	if opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	guarded := router.Group("/")
	if opts.Auth != nil {
		guarded.Use(opts.Auth)
	}

	guarded.POST("/verify", func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxRequestSize)

		var req verification.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": msgTooLarge})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": msgBadRequest})
			return
		}

		ctx := c.Request.Context()
		if opts.RequestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, opts.RequestTimeout)
			defer cancel()
		}

		userID, _ := auth.GetUserID(ctx)
		result, err := uc.Verify(ctx, userID, req)
		if err != nil {
			code, message := errorResponse(err)
			c.JSON(code, gin.H{"error": message})
			return
		}

		c.Header("X-Request-ID", result.RequestID)
		c.JSON(http.StatusOK, result.Response)
	})

	guarded.GET("/result/:id", func(c *gin.Context) {
		requestID := c.Param("id")
		if requestID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
			return
		}

		userID, _ := auth.GetUserID(c.Request.Context())
		result, err := uc.GetResult(c.Request.Context(), userID, requestID)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, result)
		case errors.Is(err, usecase.ErrResultPending):
			c.JSON(http.StatusAccepted, gin.H{"request_id": requestID, "status": "processing"})
		case errors.Is(err, usecase.ErrResultNotFound), errors.Is(err, usecase.ErrResultsDisabled):
			c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load result"})
		}
	})

	guarded.GET("/result/:id/duplicates", func(c *gin.Context) {
		userID, _ := auth.GetUserID(c.Request.Context())
		report, err := uc.GetDuplicateReport(c.Request.Context(), userID, c.Param("id"))
		switch {
		case err == nil:
			c.JSON(http.StatusOK, report)
		case errors.Is(err, usecase.ErrResultNotFound), errors.Is(err, usecase.ErrResultsDisabled):
			c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build duplicate report"})
		}
	})

	router.GET("/metrics/summary", func(c *gin.Context) {
		summary, err := uc.GetMetricsSummary(c.Request.Context())
		if errors.Is(err, usecase.ErrMetricsUnavailable) {
			c.JSON(http.StatusNotFound, gin.H{"error": "metrics summary is not configured"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate metrics"})
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

// errorResponse maps a verification failure to a status code and a fixed
// client message. Backend output never reaches the client.
func errorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, verification.ErrInvalidImage):
		return http.StatusBadRequest, msgInvalidImage
	case errors.Is(err, verification.ErrBackendUnavailable):
		return http.StatusServiceUnavailable, msgUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, msgTimeout
	default:
		return http.StatusInternalServerError, msgInternalError
	}
}
