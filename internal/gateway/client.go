// Package gateway is the typed client for the download backend HTTP API. Every
// call either returns a decoded payload or fails with a *ValidationError,
// *TransportError or *ServerError.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/ytdl-client/internal/id/uuid"
	"github.com/JakeFAU/ytdl-client/internal/job"
	"github.com/JakeFAU/ytdl-client/internal/metrics"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "ytdl-client/1.0"
	maxErrorBody     = 64 << 10
	apiPrefix        = "/api"
	tracerName       = "github.com/JakeFAU/ytdl-client/internal/gateway"
)

// Operation names used for errors, logs, and metrics.
const (
	OpMetadata  = "metadata"
	OpCreateJob = "create_job"
	OpStatus    = "status"
	OpArtifact  = "artifact"
	OpHeartbeat = "heartbeat"
	OpHealth    = "health"
)

var fallbackMessages = map[string]string{
	OpMetadata:  "Failed to get metadata",
	OpCreateJob: "Failed to start download",
	OpStatus:    "Failed to get status",
	OpArtifact:  "Failed to download file",
	OpHeartbeat: "Failed to update activity",
	OpHealth:    "Health check failed",
}

// invalidURLMessage is shown inline when a URL fails the recognized-format check.
const invalidURLMessage = "Please enter a valid YouTube URL"

// Config controls the backend client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	// HTTPClient overrides the default client; its Timeout is left untouched.
	HTTPClient *http.Client
}

// Client issues backend API calls. It keeps no state between calls.
type Client struct {
	baseURL   string
	http      *http.Client
	userAgent string
	logger    *zap.Logger
}

// Artifact is a fetched job output.
type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
}

// New validates cfg and builds a Client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must use http or https", cfg.BaseURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	return &Client{
		baseURL:   strings.TrimRight(base.String(), "/"),
		http:      httpClient,
		userAgent: ua,
		logger:    logger,
	}, nil
}

// FetchMetadata returns video information for rawURL. Invalid URLs fail with a
// *ValidationError before any request is made.
func (c *Client) FetchMetadata(ctx context.Context, rawURL string) (job.Metadata, error) {
	rawURL = strings.TrimSpace(rawURL)
	if !job.ValidateURL(rawURL) {
		metrics.ObserveGatewayRequest(OpMetadata, metrics.OutcomeInvalid, 0)
		return job.Metadata{}, &ValidationError{Field: "url", Message: invalidURLMessage}
	}
	var out job.Metadata
	if err := c.doJSON(ctx, OpMetadata, http.MethodPost, map[string]string{"url": rawURL}, &out, "metadata"); err != nil {
		return job.Metadata{}, err
	}
	if out.AvailableSubtitles == nil {
		out.AvailableSubtitles = []string{}
	}
	return out, nil
}

// CreateJob submits req and returns the backend-assigned job id. Blank advanced
// options are dropped; an empty option set omits the field entirely.
func (c *Client) CreateJob(ctx context.Context, req job.Request) (string, error) {
	req = req.Normalized()
	if err := validateRequest(req); err != nil {
		metrics.ObserveGatewayRequest(OpCreateJob, metrics.OutcomeInvalid, 0)
		return "", err
	}
	var out struct {
		JobID string `json:"job_id"`
	}
	if err := c.doJSON(ctx, OpCreateJob, http.MethodPost, req, &out, "download"); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.JobID) == "" {
		return "", &ServerError{Op: OpCreateJob, StatusCode: http.StatusOK, Message: "backend returned no job id"}
	}
	return out.JobID, nil
}

func validateRequest(req job.Request) error {
	if !job.ValidateURL(req.URL) {
		return &ValidationError{Field: "url", Message: invalidURLMessage}
	}
	if _, err := job.ParseFormat(string(req.Format)); err != nil {
		return &ValidationError{Field: "format", Message: err.Error()}
	}
	if bad := req.AdvancedOptions.UnknownKeys(); len(bad) > 0 {
		return &ValidationError{
			Field:   "advanced_options",
			Message: fmt.Sprintf("Invalid advanced option: %s", strings.Join(bad, ", ")),
		}
	}
	return nil
}

type statusBody struct {
	JobID        string  `json:"job_id"`
	Status       string  `json:"status"`
	Progress     float64 `json:"progress"`
	ErrorMessage *string `json:"error_message"`
	FileSize     *int64  `json:"file_size"`
	ExpiresAt    *string `json:"expires_at"`
}

// FetchStatus returns the current {status, progress} snapshot of jobID.
func (c *Client) FetchStatus(ctx context.Context, jobID string) (job.StatusSnapshot, error) {
	if strings.TrimSpace(jobID) == "" {
		return job.StatusSnapshot{}, &ValidationError{Field: "job_id", Message: "job id is required"}
	}
	var body statusBody
	if err := c.doJSON(ctx, OpStatus, http.MethodGet, nil, &body, "status", jobID); err != nil {
		return job.StatusSnapshot{}, err
	}
	status, err := job.ParseStatus(body.Status)
	if err != nil {
		return job.StatusSnapshot{}, &ServerError{Op: OpStatus, StatusCode: http.StatusOK, Message: err.Error()}
	}
	snap := job.StatusSnapshot{
		JobID:    jobID,
		Status:   status,
		Progress: job.ClampProgress(int(math.Round(body.Progress))),
	}
	if body.ErrorMessage != nil {
		snap.ErrorMessage = *body.ErrorMessage
	}
	if body.FileSize != nil {
		snap.FileSize = *body.FileSize
	}
	if body.ExpiresAt != nil {
		if ts, ok := parseTimestamp(*body.ExpiresAt); ok {
			snap.ExpiresAt = &ts
		}
	}
	return snap, nil
}

// FetchArtifact downloads the output of jobID. The filename comes from the
// Content-Disposition header, else download_<jobID>.
func (c *Client) FetchArtifact(ctx context.Context, jobID string) (Artifact, error) {
	if strings.TrimSpace(jobID) == "" {
		return Artifact{}, &ValidationError{Field: "job_id", Message: "job id is required"}
	}
	start := time.Now()
	resp, err := c.do(ctx, OpArtifact, http.MethodGet, nil, "download", jobID)
	if err != nil {
		return Artifact{}, err
	}
	defer closeBody(resp.Body)
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveGatewayRequest(OpArtifact, metrics.OutcomeTransport, time.Since(start))
		return Artifact{}, &TransportError{Op: OpArtifact, Message: fallbackMessages[OpArtifact], Err: err}
	}
	metrics.ObserveGatewayRequest(OpArtifact, metrics.OutcomeOK, time.Since(start))
	return Artifact{
		Filename:    FilenameFromDisposition(resp.Header.Get("Content-Disposition"), jobID),
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// SendHeartbeat posts an activity ping. Failures are logged at debug level and
// never returned.
func (c *Client) SendHeartbeat(ctx context.Context) {
	start := time.Now()
	resp, err := c.do(ctx, OpHeartbeat, http.MethodPost, nil, "activity")
	if err != nil {
		c.logger.Debug("activity heartbeat failed", zap.Error(err))
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	closeBody(resp.Body)
	metrics.ObserveGatewayRequest(OpHeartbeat, metrics.OutcomeOK, time.Since(start))
}

// Health returns the backend's reported status string.
func (c *Client) Health(ctx context.Context) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, OpHealth, http.MethodGet, nil, &out, "health"); err != nil {
		return "", err
	}
	return out.Status, nil
}

// ProgressURL returns the push-stream endpoint for jobID.
func (c *Client) ProgressURL(jobID string) string {
	return c.endpoint("progress", jobID)
}

func (c *Client) endpoint(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, seg := range segments {
		escaped[i] = url.PathEscape(seg)
	}
	return c.baseURL + apiPrefix + "/" + strings.Join(escaped, "/")
}

func (c *Client) doJSON(ctx context.Context, op, method string, in, out any, segments ...string) error {
	start := time.Now()
	resp, err := c.do(ctx, op, method, in, segments...)
	if err != nil {
		return err
	}
	defer closeBody(resp.Body)
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			metrics.ObserveGatewayRequest(op, metrics.OutcomeTransport, time.Since(start))
			return &TransportError{Op: op, Message: fallbackMessages[op], Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	metrics.ObserveGatewayRequest(op, metrics.OutcomeOK, time.Since(start))
	return nil
}

// do issues the request and converts transport failures and non-2xx responses
// into typed errors. On success the caller owns resp.Body.
func (c *Client) do(ctx context.Context, op, method string, in any, segments ...string) (*http.Response, error) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "gateway."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", op, err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(segments...), body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	reqID := uuid.RequestID()
	req.Header.Set("X-Request-ID", reqID)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	span.SetAttributes(attribute.String("http.method", method), attribute.String("request.id", reqID))

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveGatewayRequest(op, metrics.OutcomeTransport, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport error")
		return nil, &TransportError{Op: op, Message: fallbackMessages[op], Err: err}
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	c.logger.Debug("backend response",
		zap.String("operation", op),
		zap.String("method", method),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer closeBody(resp.Body)
		metrics.ObserveGatewayRequest(op, metrics.OutcomeServer, time.Since(start))
		sErr := &ServerError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(op, resp.Body)}
		span.SetStatus(codes.Error, sErr.Message)
		return nil, sErr
	}
	return resp, nil
}

func errorMessage(op string, r io.Reader) string {
	var payload struct {
		Error  string `json:"error"`
		Detail any    `json:"detail"`
	}
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err == nil && json.Unmarshal(data, &payload) == nil {
		if msg := strings.TrimSpace(payload.Error); msg != "" {
			return msg
		}
		if detail, ok := payload.Detail.(string); ok && strings.TrimSpace(detail) != "" {
			return detail
		}
	}
	return fallbackMessages[op]
}

var quotedFilename = regexp.MustCompile(`filename="(.+)"`)

// FilenameFromDisposition extracts a safe filename from a Content-Disposition
// header value, falling back to download_<jobID>.
func FilenameFromDisposition(header, jobID string) string {
	name := ""
	if header != "" {
		if _, params, err := mime.ParseMediaType(header); err == nil {
			name = params["filename"]
		} else if m := quotedFilename.FindStringSubmatch(header); m != nil {
			name = m[1]
		}
	}
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	if name == "" || name == "." || name == "/" || name == ".." {
		return "download_" + jobID
	}
	return name
}

func parseTimestamp(raw string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05.999999999"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

func closeBody(body io.ReadCloser) {
	if body != nil {
		_ = body.Close()
	}
}
