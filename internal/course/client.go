package course

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/csheth/lecturepad/internal/logger"
	"github.com/csheth/lecturepad/internal/retry"
)

const (
	defaultFetchTimeout = 30 * time.Second
	defaultRetryDelay   = 2 * time.Second
	defaultMaxRetries   = 2
)

// ErrNotEnrolled is returned when a 403 is confirmed by the enrollment check.
var ErrNotEnrolled = errors.New("course: user is not enrolled")

// StatusError carries a non-2xx response from the course API.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("course API error: %d %s (%s)", e.Status, http.StatusText(e.Status), e.Body)
}

// ProgressUpdate is the payload submitted to the progress endpoint.
type ProgressUpdate struct {
	UserID           string  `json:"userId"`
	LectureID        string  `json:"lectureId"`
	WatchTimeSeconds float64 `json:"watchTimeSeconds"`
	Completed        bool    `json:"completed"`
}

// Config builds a Client.
type Config struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Timeout    time.Duration
	RetryDelay time.Duration
	MaxRetries int
	Log        *logger.Logger
}

// Client talks to the course-content provider.
type Client struct {
	base       string
	token      string
	http       *http.Client
	timeout    time.Duration
	retryDelay time.Duration
	maxRetries int
	log        *logger.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewClient returns a Client with defaults filled in.
func NewClient(cfg Config) *Client {
	c := &Client{
		base:       strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		http:       cfg.HTTPClient,
		timeout:    cfg.Timeout,
		retryDelay: cfg.RetryDelay,
		maxRetries: cfg.MaxRetries,
		log:        cfg.Log,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = defaultFetchTimeout
	}
	if c.retryDelay <= 0 {
		c.retryDelay = defaultRetryDelay
	}
	if c.maxRetries <= 0 {
		c.maxRetries = defaultMaxRetries
	}
	if c.log == nil {
		c.log = logger.Nop()
	}
	return c
}

// FetchContent loads the course tree and the user's progress. A 403 triggers
// one enrollment check: enrolled users get a retry after the fixed delay,
// others get ErrNotEnrolled. Any failure is retried at most MaxRetries times.
func (c *Client) FetchContent(ctx context.Context, courseID, userID string) (*Content, error) {
	checkedEnrollment := false
	policy := retry.Fixed(c.maxRetries, c.retryDelay)
	policy.Sleep = c.sleep
	policy.Classify = func(ctx context.Context, attempt int, err error) (bool, error) {
		if errors.Is(err, context.Canceled) {
			return false, err
		}
		var status *StatusError
		if errors.As(err, &status) && status.Status == http.StatusForbidden && !checkedEnrollment {
			checkedEnrollment = true
			enrolled, checkErr := c.CheckEnrollment(ctx, courseID, userID)
			if checkErr != nil {
				c.log.Warn("enrollment check failed", "course_id", courseID, "error", checkErr)
				return true, err
			}
			if !enrolled {
				return false, fmt.Errorf("%w: %v", ErrNotEnrolled, err)
			}
		}
		c.log.Warn("course content fetch retrying", "course_id", courseID, "attempt", attempt+1, "error", err)
		return true, err
	}

	return retry.Do(ctx, policy, func(ctx context.Context, attempt int) (*Content, error) {
		var content Content
		endpoint := fmt.Sprintf("%s/courses/%s/content?userId=%s", c.base, url.PathEscape(courseID), url.QueryEscape(userID))
		if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &content); err != nil {
			return nil, err
		}
		return &content, nil
	})
}

// CheckEnrollment asks the provider whether userID is enrolled in courseID.
func (c *Client) CheckEnrollment(ctx context.Context, courseID, userID string) (bool, error) {
	var out struct {
		Enrolled bool `json:"enrolled"`
	}
	endpoint := fmt.Sprintf("%s/courses/%s/enrollment?userId=%s", c.base, url.PathEscape(courseID), url.QueryEscape(userID))
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return false, err
	}
	return out.Enrolled, nil
}

// SaveProgress submits one progress tuple. The endpoint is idempotent.
func (c *Client) SaveProgress(ctx context.Context, update ProgressUpdate) error {
	return c.doJSON(ctx, http.MethodPost, c.base+"/progress", update, nil)
}

func (c *Client) doJSON(parent context.Context, method, endpoint string, body, out any) error {
	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode course API response: %w", err)
	}
	return nil
}
