// Package client talks to the denoising service over its REST API.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/psantana5/denoise-studio/pkg/logging"
	"github.com/psantana5/denoise-studio/pkg/models"
	"github.com/psantana5/denoise-studio/pkg/retry"
	"github.com/psantana5/denoise-studio/pkg/tracing"
)

const (
	// DefaultBaseURL is used when no base URL is configured
	DefaultBaseURL = "http://localhost:8000"
	// EnvBaseURL names the environment variable selecting the service
	EnvBaseURL = "DENOISE_API_URL"
)

// ErrJobNotFound is returned when the service no longer knows the job
var ErrJobNotFound = errors.New("job not found")

// APIError is a non-2xx response from the service. Detail is only set
// when the service answered with a {"detail": ...} body; anything else
// (proxy pages, empty bodies) lands in Body.
type APIError struct {
	StatusCode int
	Detail     string
	Body       string
}

func (e *APIError) Error() string {
	msg := e.Detail
	if msg == "" {
		msg = e.Body
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, msg)
}

// Is makes a 404 match ErrJobNotFound
func (e *APIError) Is(target error) bool {
	return target == ErrJobNotFound && e.StatusCode == http.StatusNotFound
}

// Client is the denoising service API client
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      retry.Config
	logger     *logging.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTLS sets the TLS configuration used to reach the service
func WithTLS(tlsConfig *tls.Config) Option {
	return func(c *Client) {
		c.httpClient.Transport = &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: tlsConfig,
		}
	}
}

// WithTracing wraps the transport so every call is traced
func WithTracing(provider *tracing.Provider) Option {
	return func(c *Client) {
		c.httpClient.Transport = &tracing.Transport{
			Base:     c.httpClient.Transport,
			Provider: provider,
		}
	}
}

// WithRetry sets the retry policy for artifact downloads
func WithRetry(cfg retry.Config) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithLogger sets the client logger
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) { c.logger = logger.WithField("component", "client") }
}

// New creates a client for baseURL (DefaultBaseURL when empty)
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retry:  retry.DefaultConfig(),
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the service base URL without a trailing slash
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ResolveURL returns absolute http(s) locations unchanged and prefixes anything else with the base URL
func (c *Client) ResolveURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// DownloadURL builds the artifact location for a job
func (c *Client) DownloadURL(jobID string) string {
	return c.ResolveURL("/api/download/" + url.PathEscape(jobID))
}

// SpectrogramURL builds the location of a job's input or output spectrogram
func (c *Client) SpectrogramURL(jobID, kind string) string {
	return c.ResolveURL(fmt.Sprintf("/api/jobs/%s/spec/%s", url.PathEscape(jobID), url.PathEscape(kind)))
}

// Submit uploads audio under filename. start and end, when set, are sent as trim bounds in seconds.
func (c *Client) Submit(ctx context.Context, filename string, audio io.Reader, start, end *float64) (*models.SubmitResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if start != nil {
		mw.WriteField("start_time", strconv.FormatFloat(*start, 'f', -1, 64))
	}
	if end != nil {
		mw.WriteField("end_time", strconv.FormatFloat(*end, 'f', -1, 64))
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/denoise", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp models.SubmitResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	c.logger.Debug("Job submitted", map[string]interface{}{"job_id": resp.JobID, "file": filename})
	return &resp, nil
}

// GetStatus fetches the current status of a job.
// A 404 yields an error matching ErrJobNotFound.
func (c *Client) GetStatus(ctx context.Context, jobID string) (*models.StatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/status/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var resp models.StatusResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Delete removes a job and its files on the service
func (c *Client) Delete(ctx context.Context, jobID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/jobs/"+url.PathEscape(jobID), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, nil)
}

// Health reports service readiness
func (c *Client) Health(ctx context.Context) (*models.HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var resp models.HealthResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Metrics returns aggregate processing statistics
func (c *Client) Metrics(ctx context.Context) (*models.ServiceMetrics, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/metrics", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var resp models.ServiceMetrics
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Download streams a job's artifact into w, retrying transient failures
func (c *Client) Download(ctx context.Context, jobID string, w io.Writer) (int64, error) {
	return c.Fetch(ctx, c.DownloadURL(jobID), w)
}

// Fetch streams any service location into w, retrying transient failures.
// Nothing is written to w until a 2xx response arrives.
func (c *Client) Fetch(ctx context.Context, location string, w io.Writer) (int64, error) {
	var written int64
	err := retry.Do(ctx, c.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ResolveURL(location), nil)
		if err != nil {
			return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Debug(fmt.Sprintf("Fetch attempt failed: %v", err))
			return fmt.Errorf("failed to fetch %s: %w", location, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			apiErr := decodeError(resp)
			if resp.StatusCode >= 500 {
				return apiErr
			}
			return retry.Permanent(apiErr)
		}

		// a partial body cannot be retried once it reached w
		written, err = io.Copy(w, resp.Body)
		if err != nil {
			return retry.Permanent(fmt.Errorf("failed to read %s: %w", location, err))
		}
		return nil
	})
	return written, err
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeError reads {"detail": ...}, keeping any other body as Body
func decodeError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
		var detail string
		if err := json.Unmarshal(payload.Detail, &detail); err == nil {
			apiErr.Detail = detail
		} else {
			apiErr.Detail = string(payload.Detail)
		}
		return apiErr
	}

	apiErr.Body = strings.TrimSpace(string(body))
	return apiErr
}
