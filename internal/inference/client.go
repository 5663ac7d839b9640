// Package inference talks to the hazard detection backend. The same backend
// also fronts the image CDN, so the client doubles as an artifact store.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path"
	"strings"
	"time"

	apperrors "hazard-reporter/internal/errors"
	"hazard-reporter/internal/logger"
	"hazard-reporter/pkg/models"
	"hazard-reporter/pkg/validation"

	"github.com/sirupsen/logrus"
)

const (
	predictPath = "/predict"
	uploadPath  = "/upload-cloudinary"
	deletePath  = "/delete-image"
	healthPath  = "/"

	imageField = "image"

	// errorBodyLimit caps how much of an error response is read
	errorBodyLimit = 64 * 1024
)

// Detector runs hazard detection on raw image bytes
type Detector interface {
	Detect(ctx context.Context, image []byte) (*models.DetectionResult, error)
}

// Client implements Detector and the artifact store contract over HTTP.
// Nothing is retried: a failed call is reported to the caller as is.
type Client struct {
	baseURL string
	client  *http.Client
	urls    *validation.URLValidator
}

// NewClient creates a backend client
func NewClient(baseURL string, timeout time.Duration) *Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		urls: validation.NewURLValidator(),
	}
}

// Detect posts the image to /predict
func (c *Client) Detect(ctx context.Context, image []byte) (*models.DetectionResult, error) {
	start := time.Now()
	var result models.DetectionResult
	if err := c.postImage(ctx, predictPath, image, "", &result); err != nil {
		return nil, apperrors.NewInferenceError(messageFor(err, "hazard detection failed"), err)
	}
	if result.Detections == nil {
		result.Detections = []models.Detection{}
	}

	logger.WithFields(logrus.Fields{
		"detections":         len(result.Detections),
		"image_width":        result.ImageWidth,
		"image_height":       result.ImageHeight,
		"processing_time_ms": time.Since(start).Milliseconds(),
	}).Info("Hazard detection completed")
	return &result, nil
}

type uploadResponse struct {
	ImageURL string `json:"image_url"`
	PublicID string `json:"public_id"`
}

// Upload stores the annotated image and returns its URL and delete handle
func (c *Client) Upload(ctx context.Context, data []byte, contentType string) (models.UploadResult, error) {
	var resp uploadResponse
	if err := c.postImage(ctx, uploadPath, data, contentType, &resp); err != nil {
		return models.UploadResult{}, apperrors.NewUploadError(messageFor(err, "image upload failed"), err)
	}
	if resp.ImageURL == "" {
		return models.UploadResult{}, apperrors.NewUploadError("upload succeeded but no URL returned", nil)
	}

	publicID := resp.PublicID
	if publicID == "" {
		publicID = PublicIDFromURL(resp.ImageURL)
	}
	if err := c.urls.Validate(resp.ImageURL); err != nil {
		// the image is stored but unreachable through the returned URL
		if publicID != "" {
			if delErr := c.Delete(context.WithoutCancel(ctx), publicID); delErr != nil {
				logger.WithError(delErr).WithField("public_id", publicID).Warn("Failed to delete upload with invalid URL")
			}
		}
		return models.UploadResult{}, apperrors.NewUploadError("upload returned an invalid image URL", err)
	}
	return models.UploadResult{URL: resp.ImageURL, PublicID: publicID}, nil
}

// Delete removes a previously uploaded image by its public id
func (c *Client) Delete(ctx context.Context, publicID string) error {
	if publicID == "" {
		return apperrors.NewValidationError("public id is required", nil)
	}
	body, err := json.Marshal(map[string]string{"public_id": publicID})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+deletePath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := c.do(req, nil); err != nil {
		return apperrors.NewNetworkError(messageFor(err, "image delete failed"), err)
	}
	return nil
}

// Health checks that the backend answers on its root route
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return err
	}
	if err := c.do(req, nil); err != nil {
		return apperrors.NewNetworkError("inference backend unavailable", err)
	}
	return nil
}

func (c *Client) postImage(ctx context.Context, route string, data []byte, contentType string, out interface{}) error {
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, imageField, "image"+extensionFor(contentType)))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+route, &body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// StatusError is a non-2xx answer from the backend
type StatusError struct {
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("backend returned %d", e.StatusCode)
}

// newStatusError extracts FastAPI's {"detail": ...} message when present
func newStatusError(resp *http.Response) *StatusError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))

	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	detail := ""
	if json.Unmarshal(raw, &body) == nil && len(body.Detail) > 0 {
		var s string
		if json.Unmarshal(body.Detail, &s) == nil {
			detail = s
		} else {
			detail = string(body.Detail)
		}
	}
	return &StatusError{StatusCode: resp.StatusCode, Detail: detail}
}

// messageFor prefers the service-provided message so the user sees it verbatim
func messageFor(err error, fallback string) string {
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Detail != "" {
		return statusErr.Detail
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fallback + ": timed out"
	}
	return fallback
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

// PublicIDFromURL recovers a CDN public id such as "road_hazard_reports/abc"
// from a delivery URL like https://res.cloudinary.com/x/image/upload/v17/road_hazard_reports/abc.jpg
func PublicIDFromURL(imageURL string) string {
	_, rest, ok := strings.Cut(imageURL, "/upload/")
	if !ok {
		return ""
	}
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		rest = rest[:i]
	}
	if first, after, found := strings.Cut(rest, "/"); found && isVersionSegment(first) {
		rest = after
	}
	return strings.TrimSuffix(rest, path.Ext(rest))
}

func isVersionSegment(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
