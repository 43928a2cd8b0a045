package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go-qr-scanner/internal/analyzer"
	"go-qr-scanner/internal/config"
	apperrors "go-qr-scanner/internal/errors"
	"go-qr-scanner/internal/frame"
	"go-qr-scanner/internal/logger"
	"go-qr-scanner/internal/observer"
	"go-qr-scanner/internal/service"
	"go-qr-scanner/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Dependencies are the services the HTTP API is built on
type Dependencies struct {
	Config  *config.Config
	Scans   service.ScanService
	Streams *service.StreamRegistry
	Metrics *observer.MetricsObserver
	Pool    *analyzer.WorkerPool
}

func NewHandler(deps Dependencies) http.Handler {
	r := gin.Default()

	// Add middleware
	r.Use(
		requestSizeLimiter(deps.Config.MaxRequestBodySize),
		errorHandler(),
	)

	// Configure routes
	r.GET("/health", healthCheck)
	r.GET("/metrics", metrics(deps))

	r.POST("/scan", scanUpload(deps.Scans, deps.Config))
	r.POST("/scan/url", scanURL(deps.Scans, deps.Config))

	streams := r.Group("/streams")
	streams.POST("", createStream(deps.Streams))
	streams.POST("/:id/frames", offerFrame(deps.Streams))
	streams.GET("/:id", streamStatus(deps.Streams))
	streams.POST("/:id/reset", resetStream(deps.Streams))
	streams.DELETE("/:id", deleteStream(deps.Streams))

	return r
}

func scanUpload(s service.ScanService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		fileHeader, err := c.FormFile("image")
		if err != nil {
			respondError(c, http.StatusBadRequest, "multipart field \"image\" is required", err)
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			respondError(c, http.StatusBadRequest, "cannot read upload", err)
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			respondError(c, http.StatusRequestEntityTooLarge, "cannot read upload", err)
			return
		}

		opts := service.ScanOptions{ExpectedText: c.PostForm("expected_text")}
		if raw := strings.TrimSpace(c.PostForm("exif_orientation")); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v < 0 || v > 8 {
				respondError(c, http.StatusBadRequest, "invalid exif_orientation",
					apperrors.NewValidationError("exif_orientation must be 0-8", err))
				return
			}
			opts.EXIFOrientation = &v
		}

		logger.WithFields(logrus.Fields{
			"filename": fileHeader.Filename,
			"bytes":    len(data),
			"ip":       c.ClientIP(),
		}).Info("Processing still image upload")

		result, err := s.ScanImage(ctx, data, "upload:"+fileHeader.Filename, opts)
		respondScan(c, result, err)
	}
}

func scanURL(s service.ScanService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		var req models.ScanURLRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}

		result, err := s.ScanURL(ctx, req.URL, service.ScanOptions{
			ExpectedText:    req.ExpectedText,
			EXIFOrientation: req.EXIFOrientation,
		})

		logger.WithFields(logrus.Fields{
			"url":                req.URL,
			"processing_time_ms": time.Since(startTime).Milliseconds(),
			"ip":                 c.ClientIP(),
		}).Info("URL scan request handled")

		respondScan(c, result, err)
	}
}

// respondScan writes a scan result. Failed outcomes keep their result body
// with the status of their error type.
func respondScan(c *gin.Context, result *models.ScanResult, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, result)
	case result != nil:
		c.JSON(determineStatusCode(err), result)
	default:
		respondError(c, determineStatusCode(err), "scan failed", err)
	}
}

func createStream(registry *service.StreamRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := registry.Create()
		if err != nil {
			respondError(c, determineStatusCode(err), "cannot create stream", err)
			return
		}
		logger.WithField("stream_id", status.ID).Info("Stream created")
		c.JSON(http.StatusCreated, status)
	}
}

func offerFrame(registry *service.StreamRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var params models.FrameParams
		if err := c.ShouldBindQuery(&params); err != nil {
			respondError(c, http.StatusBadRequest, "invalid frame parameters", err)
			return
		}

		format := frame.FormatY8
		if params.Format != "" {
			if format = frame.ParsePixelFormat(strings.ToLower(params.Format)); format == frame.FormatUnknown {
				respondError(c, http.StatusBadRequest, "invalid frame parameters",
					apperrors.NewValidationError("unsupported pixel format "+params.Format, nil))
				return
			}
		}

		data, err := io.ReadAll(c.Request.Body)
		if err != nil {
			respondError(c, http.StatusRequestEntityTooLarge, "cannot read frame", err)
			return
		}

		resp, err := registry.Offer(c.Param("id"), frame.Buffer{
			Width:           params.Width,
			Height:          params.Height,
			Stride:          params.Stride,
			Format:          format,
			Data:            data,
			RotationDegrees: params.Rotation,
		})
		if err != nil {
			respondError(c, determineStatusCode(err), "cannot offer frame", err)
			return
		}
		c.JSON(http.StatusAccepted, resp)
	}
}

func streamStatus(registry *service.StreamRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := registry.Status(c.Param("id"))
		if err != nil {
			respondError(c, determineStatusCode(err), "cannot read stream", err)
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

func resetStream(registry *service.StreamRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := registry.Reset(c.Param("id"))
		if err != nil {
			respondError(c, determineStatusCode(err), "cannot reset stream", err)
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

func deleteStream(registry *service.StreamRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := registry.Delete(c.Param("id")); err != nil {
			respondError(c, determineStatusCode(err), "cannot delete stream", err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func metrics(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{"open_streams": deps.Streams.Count()}
		if deps.Metrics != nil {
			body["scans"] = deps.Metrics.GetMetrics()
		}
		if deps.Pool != nil {
			body["worker_pool"] = deps.Pool.GetStats()
		}
		c.JSON(http.StatusOK, body)
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": "1.0.0",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Middleware and helper functions
func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last()
			respondError(c, determineStatusCode(err.Err), "request processing failed", err.Err)
		}
	}
}

func determineStatusCode(err error) int {
	// Check if it's a custom app error first
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	// Fallback to context-based errors
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, code int, message string, err error) {
	// Log the error with context
	entry := logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	})
	if code >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}

	c.AbortWithStatusJSON(code, models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: fmt.Sprintf("%s: %v", message, err),
	})
}
