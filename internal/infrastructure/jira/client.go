package jira

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxElapsed = 30 * time.Second
	defaultPageSize   = 100
	userAgent         = "defectctl"
)

// Issue represents a Jira issue from the REST API.
type Issue struct {
	ID        string                     `json:"id"`
	Key       string                     `json:"key"`
	Self      string                     `json:"self"`
	Fields    IssueFields                `json:"-"`
	RawFields map[string]json.RawMessage `json:"fields"`
	Changelog *Changelog                 `json:"changelog,omitempty"`
}

// UnmarshalJSON decodes the typed fields while keeping the raw field map
// for instance-specific custom fields.
func (i *Issue) UnmarshalJSON(data []byte) error {
	type plain Issue
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*i = Issue(p)
	if len(i.RawFields) == 0 {
		return nil
	}
	raw, err := json.Marshal(i.RawFields)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, &i.Fields)
}

// IssueFields contains the fields of a Jira issue.
type IssueFields struct {
	Summary     string        `json:"summary"`
	Status      *NamedField   `json:"status"`
	Priority    *NamedField   `json:"priority"`
	IssueType   *NamedField   `json:"issuetype"`
	Project     *ProjectField `json:"project"`
	Assignee    *UserField    `json:"assignee"`
	Creator     *UserField    `json:"creator"`
	Reporter    *UserField    `json:"reporter"`
	Components  []NamedField  `json:"components"`
	FixVersions []NamedField  `json:"fixVersions"`
	Labels      []string      `json:"labels"`
	Environment string        `json:"environment"`
	Created     string        `json:"created"`
	Updated     string        `json:"updated"`
}

// NamedField is any Jira object identified by name (status, priority, component...).
type NamedField struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ProjectField represents a Jira project.
type ProjectField struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// UserField represents a Jira user. Server instances identify users by
// name, cloud instances by account id.
type UserField struct {
	Name         string `json:"name"`
	AccountID    string `json:"accountId"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
}

// Label returns the best available identifier for the user.
func (u *UserField) Label() string {
	if u == nil {
		return ""
	}
	for _, v := range []string{u.DisplayName, u.Name, u.EmailAddress, u.AccountID} {
		if v != "" {
			return v
		}
	}
	return ""
}

// Changelog is the history embedded by expand=changelog.
type Changelog struct {
	StartAt    int       `json:"startAt"`
	MaxResults int       `json:"maxResults"`
	Total      int       `json:"total"`
	Histories  []History `json:"histories"`
}

// Complete reports whether every history entry was embedded.
func (c *Changelog) Complete() bool {
	return c != nil && len(c.Histories) >= c.Total
}

// History is one changelog entry, possibly touching several fields.
type History struct {
	ID      string       `json:"id"`
	Created string       `json:"created"`
	Items   []ChangeItem `json:"items"`
}

// ChangeItem is a single field change.
type ChangeItem struct {
	Field      string `json:"field"`
	FieldType  string `json:"fieldtype"`
	FromString string `json:"fromString"`
	ToString   string `json:"toString"`
}

// SearchResult represents a Jira JQL search response.
type SearchResult struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []Issue `json:"issues"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jira API returned %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed if retried.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client provides HTTP access to a Jira instance.
type Client struct {
	URL        string
	Username   string
	Password   string
	HTTPClient *http.Client
	Logger     *slog.Logger
	MaxElapsed time.Duration
	PageSize   int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.Logger = l }
}

// WithMaxElapsed bounds the total time spent retrying one request.
func WithMaxElapsed(d time.Duration) Option {
	return func(c *Client) { c.MaxElapsed = d }
}

// WithPageSize sets the search page size.
func WithPageSize(n int) Option {
	return func(c *Client) { c.PageSize = n }
}

// NewClient creates a new Jira client using basic authentication.
func NewClient(baseURL, username, password string, opts ...Option) *Client {
	c := &Client{
		URL:        strings.TrimSuffix(baseURL, "/"),
		Username:   username,
		Password:   password,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		MaxElapsed: defaultMaxElapsed,
		PageSize:   defaultPageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SearchIssues runs jql and returns every matching issue with its
// changelog embedded, following pagination.
func (c *Client) SearchIssues(ctx context.Context, jql string, fields []string) ([]Issue, error) {
	var all []Issue
	startAt := 0

	for {
		params := url.Values{
			"jql":        {jql},
			"fields":     {strings.Join(fields, ",")},
			"expand":     {"changelog"},
			"startAt":    {strconv.Itoa(startAt)},
			"maxResults": {strconv.Itoa(c.PageSize)},
		}
		apiURL := fmt.Sprintf("%s/rest/api/2/search?%s", c.URL, params.Encode())

		body, err := c.get(ctx, apiURL)
		if err != nil {
			return nil, fmt.Errorf("search issues: %w", err)
		}

		var result SearchResult
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, fmt.Errorf("parse search response: %w", err)
		}

		all = append(all, result.Issues...)
		if len(result.Issues) == 0 || startAt+len(result.Issues) >= result.Total {
			break
		}
		startAt += len(result.Issues)
	}

	return all, nil
}

// GetChangelog fetches the full changelog of a single issue.
func (c *Client) GetChangelog(ctx context.Context, key string) ([]History, error) {
	apiURL := fmt.Sprintf("%s/rest/api/2/issue/%s?expand=changelog&fields=created", c.URL, url.PathEscape(key))

	body, err := c.get(ctx, apiURL)
	if err != nil {
		return nil, fmt.Errorf("get changelog %s: %w", key, err)
	}

	var issue Issue
	if err := json.Unmarshal(body, &issue); err != nil {
		return nil, fmt.Errorf("parse issue response: %w", err)
	}
	if issue.Changelog == nil {
		return nil, nil
	}
	return issue.Changelog.Histories, nil
}

// get performs a GET, retrying transient failures with exponential backoff.
func (c *Client) get(ctx context.Context, apiURL string) ([]byte, error) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.MaxElapsed

	var body []byte
	err := backoff.Retry(func() error {
		var err error
		body, err = c.doRequest(ctx, http.MethodGet, apiURL)
		if err == nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		c.Logger.DebugContext(ctx, "retrying jira request", "url", apiURL, "error", err)
		return err
	}, backoff.WithContext(bo, ctx))
	return body, err
}

func (c *Client) doRequest(ctx context.Context, method, apiURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setAuth(req)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	c.Logger.InfoContext(ctx, "jira request", "method", method, "url", apiURL)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.Logger.DebugContext(ctx, "jira response", "status", resp.StatusCode, "bytes", len(respBody))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}

// setAuth sets basic authentication when a username is configured and a
// bearer token otherwise.
func (c *Client) setAuth(req *http.Request) {
	if c.Username != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(c.Username + ":" + c.Password))
		req.Header.Set("Authorization", "Basic "+auth)
		return
	}
	if c.Password != "" {
		req.Header.Set("Authorization", "Bearer "+c.Password)
	}
}

// ParseTimestamp parses the timestamp formats Jira emits.
func ParseTimestamp(ts string) (time.Time, error) {
	formats := []string{
		"2006-01-02T15:04:05.000-0700",
		"2006-01-02T15:04:05.000Z",
		"2006-01-02T15:04:05-0700",
		"2006-01-02T15:04:05Z",
		time.RFC3339,
		time.RFC3339Nano,
	}
	for _, f := range formats {
		if t, err := time.Parse(f, ts); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized Jira timestamp: %q", ts)
}
