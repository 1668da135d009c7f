// Package gradingapi talks to the remote OCR grading service.
package gradingapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/examdesk/gradebook/internal/model"
)

// DefaultMaxBodySize caps response bodies and submission files.
const DefaultMaxBodySize = 32 << 20

// ErrTooLarge is returned when a body or file exceeds the configured size limit.
var ErrTooLarge = errors.New("body exceeds size limit")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.URL, e.StatusCode, e.Body)
}

// Config configures a Client.
type Config struct {
	BaseURL string
	// Timeout bounds the whole grading request. Grading a batch of scans is slow.
	Timeout time.Duration
	// FetchAttempts is how many times a submission file download is tried.
	FetchAttempts int
	// RetryDelay is the wait before the second attempt; it grows linearly.
	RetryDelay time.Duration
	// MaxBodySize caps each submission file and the grading response.
	MaxBodySize int64
}

type Client struct {
	baseURL       string
	client        *http.Client
	fetchAttempts int
	retryDelay    time.Duration
	maxBodySize   int64
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.FetchAttempts <= 0 {
		cfg.FetchAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	return &Client{
		baseURL:       strings.TrimSuffix(cfg.BaseURL, "/"),
		client:        &http.Client{Timeout: cfg.Timeout},
		fetchAttempts: cfg.FetchAttempts,
		retryDelay:    cfg.RetryDelay,
		maxBodySize:   cfg.MaxBodySize,
	}
}

// Grade uploads every submission as a "files" part of POST /api/full and
// returns the raw grading response.
func (c *Client) Grade(ctx context.Context, exam model.Exam, subs []model.Submission) ([]byte, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, sub := range subs {
		data, err := c.fetch(ctx, sub.StorageLocation)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", sub.DisplayName, err)
		}
		part, err := w.CreateFormFile("files", fileName(sub))
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(data); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	slog.Debug("uploading submissions", "exam_id", exam.ID, "copies", len(subs), "bytes", body.Len())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/full", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.do(req)
}

// Results returns the raw response of the latest grading run, GET /api/results.
func (c *Client) Results(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/results", nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("grading service: %w", err)
	}
	defer resp.Body.Close()

	data, err := c.readLimited(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.URL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: req.URL.String(), StatusCode: resp.StatusCode, Body: snippet(data)}
	}
	return data, nil
}

// fetch downloads a submission file, retrying transport errors and 5xx
// responses. Locations without an http(s) scheme are read from disk.
func (c *Client) fetch(ctx context.Context, location string) ([]byte, error) {
	u, err := url.Parse(location)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		f, err := os.Open(location)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		data, err := c.readLimited(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", location, err)
		}
		return data, nil
	}

	var lastErr error
	for attempt := 1; attempt <= c.fetchAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt-1) * c.retryDelay):
			}
			slog.Debug("retrying download", "url", location, "attempt", attempt, "error", lastErr)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return nil, err
		}
		data, err := c.do(req)
		if err == nil {
			return data, nil
		}
		lastErr = err

		var se *StatusError
		if (errors.As(err, &se) && se.StatusCode < 500) || errors.Is(err, ErrTooLarge) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", c.fetchAttempts, lastErr)
}

func fileName(sub model.Submission) string {
	if sub.DisplayName != "" {
		return sub.DisplayName
	}
	if base := path.Base(sub.StorageLocation); base != "." && base != "/" {
		return base
	}
	return "file"
}

// readLimited reads r to the end, failing with ErrTooLarge instead of
// truncating when it holds more than maxBodySize bytes.
func (c *Client) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, c.maxBodySize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > c.maxBodySize {
		return nil, fmt.Errorf("%w of %d bytes", ErrTooLarge, c.maxBodySize)
	}
	return data, nil
}

func snippet(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) <= 200 {
		return s
	}
	cut := 200
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
