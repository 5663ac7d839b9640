package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"hazard-reporter/internal/config"
	apperrors "hazard-reporter/internal/errors"
	"hazard-reporter/internal/geo"
	"hazard-reporter/internal/logger"
	"hazard-reporter/internal/submission"
	"hazard-reporter/pkg/models"
	"hazard-reporter/pkg/validation"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	defaultReportLimit = 50
	maxReportLimit     = 500
	healthCheckTimeout = 2 * time.Second
)

// SubmissionService runs the two user-triggered halves of the pipeline
type SubmissionService interface {
	Analyze(ctx context.Context, ref geo.ImageRef, reportedBy string) (*submission.Submission, error)
	Save(ctx context.Context, sub *submission.Submission) (*models.Report, error)
}

// ReportLister feeds the dashboard
type ReportLister interface {
	List(ctx context.Context, limit int) ([]models.Report, error)
}

// MetricsSource exposes pipeline counters
type MetricsSource interface {
	GetMetrics() map[string]interface{}
}

// HealthChecker probes a downstream dependency
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Services are the handler's collaborators. Metrics and Health may be nil.
type Services struct {
	Submissions SubmissionService
	Reports     ReportLister
	Registry    *Registry
	Hub         *Hub
	Validator   *validation.ImageValidator
	Metrics     MetricsSource
	Health      HealthChecker
}

func NewHandler(svc Services, cfg *config.Config) http.Handler {
	if svc.Validator == nil {
		svc.Validator = validation.NewImageValidator()
	}

	r := gin.New()

	// Add middleware
	r.Use(
		gin.Recovery(),
		requestLogger(),
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	// Configure routes
	r.GET("/health", healthCheck(svc.Health))
	r.GET("/metrics", metrics(svc))

	api := r.Group("/api/v1")
	api.POST("/submissions", createSubmission(svc, cfg))
	api.GET("/submissions/:id", withSubmission(svc.Registry, getSubmission))
	api.GET("/submissions/:id/artifact", withSubmission(svc.Registry, getArtifact))
	api.POST("/submissions/:id/report", withSubmission(svc.Registry, saveReport(svc, cfg)))
	api.DELETE("/submissions/:id", deleteSubmission(svc.Registry))
	api.GET("/submissions/:id/events", withSubmission(svc.Registry, streamEvents(svc.Hub)))
	api.GET("/reports", listReports(svc.Reports))

	return r
}

func createSubmission(svc Services, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		image, err := readFormImage(c, "image", true)
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "invalid image", err)
			return
		}
		if _, err := svc.Validator.Validate(image); err != nil {
			respondError(c, apperrors.GetStatusCode(err), "invalid image", err)
			return
		}
		original, err := readFormImage(c, "original", false)
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "invalid original image", err)
			return
		}
		reporter := models.ReporterName(c.PostForm("reporter"), c.PostForm("email"))

		sub, err := svc.Submissions.Analyze(ctx, geo.BytesRef{Data: image, Original: original}, reporter)
		if err != nil {
			respondError(c, statusFor(err), "analysis failed", err)
			return
		}
		svc.Registry.Add(sub)

		view := sub.Snapshot()
		logger.WithFields(logrus.Fields{
			"submission_id":      sub.ID,
			"state":              view.State,
			"has_location":       view.Coordinates != nil,
			"processing_time_ms": time.Since(startTime).Milliseconds(),
		}).Info("Submission analyzed")

		c.JSON(http.StatusCreated, view)
	}
}

func getSubmission(c *gin.Context, sub *submission.Submission) {
	c.JSON(http.StatusOK, sub.Snapshot())
}

func getArtifact(c *gin.Context, sub *submission.Submission) {
	artifact := sub.Artifact()
	if artifact == nil {
		respondError(c, http.StatusNotFound, "no annotated image", apperrors.NewNotFoundError("submission has no annotated image", nil))
		return
	}
	data, err := artifact.Bytes()
	if err != nil {
		respondError(c, http.StatusNotFound, "no annotated image", apperrors.NewNotFoundError("annotated image was released", err))
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, artifact.ContentType, data)
}

func saveReport(svc Services, cfg *config.Config) func(*gin.Context, *submission.Submission) {
	return func(c *gin.Context, sub *submission.Submission) {
		startTime := time.Now()
		// A client that goes away abandons the save; the pipeline cleans up.
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		report, err := svc.Submissions.Save(ctx, sub)
		if err != nil {
			respondError(c, statusFor(err), "report not saved", err)
			return
		}

		logger.WithFields(logrus.Fields{
			"submission_id":      sub.ID,
			"report_id":          report.ID,
			"hazard_type":        report.HazardType,
			"processing_time_ms": time.Since(startTime).Milliseconds(),
		}).Info("Report saved")

		c.JSON(http.StatusCreated, report)
	}
}

func deleteSubmission(registry *Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !registry.Discard(c.Param("id")) {
			respondError(c, http.StatusNotFound, "unknown submission", apperrors.NewNotFoundError("submission not found", nil))
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func streamEvents(hub *Hub) func(*gin.Context, *submission.Submission) {
	return func(c *gin.Context, sub *submission.Submission) {
		hub.Serve(c.Writer, c.Request, sub)
	}
}

func listReports(reports ReportLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultReportLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > maxReportLimit {
				respondError(c, http.StatusBadRequest, "invalid limit",
					apperrors.NewValidationError(fmt.Sprintf("limit must be within 1..%d", maxReportLimit), err))
				return
			}
			limit = n
		}

		list, err := reports.List(c.Request.Context(), limit)
		if err != nil {
			respondError(c, statusFor(err), "failed to list reports", err)
			return
		}
		c.JSON(http.StatusOK, models.ReportListResponse{Reports: list, Count: len(list)})
	}
}

func metrics(svc Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		out := map[string]interface{}{
			"active_submissions": svc.Registry.Len(),
		}
		if svc.Hub != nil {
			out["websocket_clients"] = svc.Hub.ClientCount()
		}
		if svc.Metrics != nil {
			for k, v := range svc.Metrics.GetMetrics() {
				out[k] = v
			}
		}
		c.JSON(http.StatusOK, out)
	}
}

func healthCheck(backend HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{
			"status":  "available",
			"version": "1.0.0",
			"time":    time.Now().UTC().Format(time.RFC3339),
		}
		if backend != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
			defer cancel()
			if err := backend.Health(ctx); err != nil {
				body["status"] = "degraded"
				body["inference"] = apperrors.UserMessage(err)
			} else {
				body["inference"] = "available"
			}
		}
		c.JSON(http.StatusOK, body)
	}
}

func withSubmission(registry *Registry, next func(*gin.Context, *submission.Submission)) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub, ok := registry.Get(c.Param("id"))
		if !ok {
			respondError(c, http.StatusNotFound, "unknown submission", apperrors.NewNotFoundError("submission not found", nil))
			return
		}
		next(c, sub)
	}
}

// readFormImage returns the bytes of a multipart file field. A missing optional
// field yields nil.
func readFormImage(c *gin.Context, field string, required bool) ([]byte, error) {
	header, err := c.FormFile(field)
	if err != nil {
		if !required && errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, apperrors.NewValidationError("request body too large", err)
		}
		return nil, apperrors.NewValidationError(fmt.Sprintf("multipart field %q is required", field), err)
	}
	return readFileHeader(header)
}

func readFileHeader(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, apperrors.NewValidationError("failed to open uploaded file", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, apperrors.NewValidationError("failed to read uploaded file", err)
	}
	return data, nil
}

// Middleware and helper functions
func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"ip":         c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
		}).Debug("Request handled")
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last().Err
			respondError(c, statusFor(err), "request processing failed", err)
		}
	}
}

// statusFor maps an error to a response code, falling back on context errors
func statusFor(err error) int {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
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

	resp := models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: apperrors.UserMessage(err),
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		resp.Type = string(appErr.Type)
	}
	c.AbortWithStatusJSON(code, resp)
}
