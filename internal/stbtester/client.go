// Package stbtester provides a client for the stb-tester device-farm REST
// API and a syncer that mirrors node configs and run results locally.
package stbtester

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds stb-tester connection settings.
type Config struct {
	BaseURL string // e.g. https://innowave.stb-tester.com
	Token   string // REST API access token
}

// Client is an stb-tester REST API client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client

	// minDelay is the minimum gap between two requests.
	minDelay   time.Duration
	maxRetries int

	mu   sync.Mutex
	last time.Time
}

// New creates a new stb-tester client.
func New(cfg Config) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		minDelay:   250 * time.Millisecond,
		maxRetries: 3,
	}
}

// StatusError is returned for unexpected HTTP status codes.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("stb-tester API returned %d: %s", e.Code, e.Body)
}

// WorkgroupNode is a node as listed by the workgroup endpoint.
type WorkgroupNode struct {
	ID           string `json:"id"`
	FriendlyName string `json:"friendly_name"`
}

// NodeStatus reports whether a node can accept jobs.
type NodeStatus struct {
	NodeID    string `json:"node_id"`
	Available bool   `json:"available"`
}

// Result is one run result as returned by the results endpoint.
type Result struct {
	ResultID      string    `json:"result_id"`
	ResultURL     string    `json:"result_url"`
	TriageURL     string    `json:"triage_url"`
	JobUID        string    `json:"job_uid"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Result        string    `json:"result"`
	FailureReason string    `json:"failure_reason"`
}

// RunRequest starts the named test cases on a node.
type RunRequest struct {
	NodeID           string   `json:"node_id"`
	TestCases        []string `json:"test_cases"`
	RemoteControl    string   `json:"remote_control"`
	TestPackRevision string   `json:"test_pack_revision"`
}

// ErrIncompleteRun is returned by RunTests when a request field is empty.
var ErrIncompleteRun = errors.New("run tests: node_id, test_cases, remote_control and test_pack_revision are required")

// Job is the acknowledgement of a run request.
type Job struct {
	JobUID string `json:"job_uid"`
	JobURL string `json:"job_url"`
	Status string `json:"status"`
}

// sinceLayout is the date format accepted by the results filter.
const sinceLayout = "2006-01-02 15:04:05"

// Workgroup lists the nodes of the workgroup with their friendly names.
func (c *Client) Workgroup(ctx context.Context) ([]WorkgroupNode, error) {
	body, err := c.do(ctx, http.MethodGet, c.baseURL+"/api/_private/workgroup?ref=HEAD", nil)
	if err != nil {
		return nil, fmt.Errorf("get workgroup: %w", err)
	}
	var nodes []WorkgroupNode
	if err := json.Unmarshal(body, &nodes); err != nil {
		return nil, fmt.Errorf("decode workgroup: %w", err)
	}
	return nodes, nil
}

// NodeStatus lists node availability. A 404 yields an empty list.
func (c *Client) NodeStatus(ctx context.Context) ([]NodeStatus, error) {
	body, err := c.do(ctx, http.MethodGet, c.baseURL+"/api/v2/nodes", nil)
	if isStatus(err, http.StatusNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get nodes: %w", err)
	}
	var nodes []NodeStatus
	if err := json.Unmarshal(body, &nodes); err != nil {
		return nil, fmt.Errorf("decode nodes: %w", err)
	}
	return nodes, nil
}

// Results fetches the results of a test script in ascending date order,
// restricted to runs after since when it is non-zero. A 403 yields an
// empty list.
func (c *Client) Results(ctx context.Context, script string, since time.Time) ([]Result, error) {
	filter := "testcase:" + script
	if !since.IsZero() {
		filter += fmt.Sprintf(` date:>"%s"`, since.UTC().Format(sinceLayout))
	}
	params := url.Values{
		"filter": {filter},
		"sort":   {"date:asc"},
	}
	body, err := c.do(ctx, http.MethodGet, c.baseURL+"/api/v2/results?"+params.Encode(), nil)
	if isStatus(err, http.StatusForbidden) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get results for %s: %w", script, err)
	}
	var results []Result
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	return results, nil
}

// TestCaseNames lists the test cases of a test-pack branch. The endpoint
// returns either a bare list or an object with a test_cases field.
func (c *Client) TestCaseNames(ctx context.Context, branch string) ([]string, error) {
	reqURL := fmt.Sprintf("%s/api/v2/test_pack/%s/test_case_names", c.baseURL, url.PathEscape(branch))
	body, err := c.do(ctx, http.MethodGet, reqURL, nil)
	if isStatus(err, http.StatusNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get test case names for %s: %w", branch, err)
	}
	var names []string
	if err := json.Unmarshal(body, &names); err == nil {
		return names, nil
	}
	var wrapped struct {
		TestCases []string `json:"test_cases"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("decode test case names: %w", err)
	}
	return wrapped.TestCases, nil
}

// RunTests starts a job. Every field of req is required.
func (c *Client) RunTests(ctx context.Context, req RunRequest) (*Job, error) {
	if req.NodeID == "" || len(req.TestCases) == 0 || req.RemoteControl == "" || req.TestPackRevision == "" {
		return nil, ErrIncompleteRun
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	body, err := c.do(ctx, http.MethodPost, c.baseURL+"/api/v2/run_tests", payload)
	if err != nil {
		return nil, fmt.Errorf("run tests on %s: %w", req.NodeID, err)
	}
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}

func isStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// wait blocks until minDelay has passed since the previous request.
func (c *Client) wait(ctx context.Context) error {
	c.mu.Lock()
	d := c.minDelay - time.Since(c.last)
	c.mu.Unlock()
	if d > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
	}
	c.mu.Lock()
	c.last = time.Now()
	c.mu.Unlock()
	return nil
}

func retryAfter(h string) time.Duration {
	if secs, err := strconv.Atoi(h); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		return time.Until(t)
	}
	return time.Second
}

func (c *Client) do(ctx context.Context, method, reqURL string, payload []byte) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "token "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < c.maxRetries {
			d := retryAfter(resp.Header.Get("Retry-After"))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d):
			}
			continue
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return nil, &StatusError{Code: resp.StatusCode, Body: string(body[:min(len(body), 200)])}
		}
		return body, nil
	}
}
