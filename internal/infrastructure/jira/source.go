package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/defectctl/internal/application"
	"github.com/felixgeelhaar/defectctl/internal/domain"
)

// DefaultSeverityField is the custom field holding defect severity.
const DefaultSeverityField = "customfield_13654"

const jqlDate = "2006/01/02"

var baseFields = []string{
	"summary", "status", "priority", "project", "assignee", "creator", "reporter",
	"components", "fixVersions", "labels", "environment", "created",
}

// Source fetches defects from Jira. One Client is kept per instance URL.
type Source struct {
	Username      string
	Password      string
	SeverityField string
	HTTPClient    *http.Client
	Logger        *slog.Logger

	mu      sync.Mutex
	clients map[string]*Client
}

var _ application.IssueSource = (*Source)(nil)

// NewSource returns a Source authenticating as username.
func NewSource(username, password string, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Source{
		Username:      username,
		Password:      password,
		SeverityField: DefaultSeverityField,
		Logger:        logger,
	}
}

// Defects returns every defect of q.Project updated within q.Range, with
// status transitions taken from the full changelog. An issue whose changelog
// cannot be fetched or whose timestamps do not parse is logged and skipped.
func (s *Source) Defects(ctx context.Context, q application.DefectQuery) ([]domain.Defect, error) {
	if q.Pillar == nil {
		return nil, fmt.Errorf("query for %s: %w", q.Project, domain.ErrInvalidConfig)
	}
	client := s.client(q.Pillar.URL())
	jql := BuildJQL(q.Project, q.Pillar.IssueType(), q.Pillar.Labels(), q.Range)

	s.Logger.DebugContext(ctx, "searching defects", "pillar", q.Pillar.Name(), "project", q.Project, "jql", jql)
	issues, err := client.SearchIssues(ctx, jql, s.fields())
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", q.Project, err)
	}

	defects := make([]domain.Defect, 0, len(issues))
	for _, issue := range issues {
		d, err := s.defect(ctx, client, issue, q)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.Logger.WarnContext(ctx, "skipping defect", "pillar", q.Pillar.Name(), "defect", issue.Key, "error", err)
			continue
		}
		defects = append(defects, d)
	}
	s.Logger.InfoContext(ctx, "fetched defects", "pillar", q.Pillar.Name(), "project", q.Project, "count", len(defects))
	return defects, nil
}

func (s *Source) defect(ctx context.Context, client *Client, issue Issue, q application.DefectQuery) (domain.Defect, error) {
	if !issue.Changelog.Complete() {
		histories, err := client.GetChangelog(ctx, issue.Key)
		if err != nil {
			return domain.Defect{}, err
		}
		issue.Changelog = &Changelog{Total: len(histories), Histories: histories}
	}
	return s.toDefect(issue, q.Project, q.Pillar.URL())
}

func (s *Source) client(baseURL string) *Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clients == nil {
		s.clients = make(map[string]*Client)
	}
	if c, ok := s.clients[baseURL]; ok {
		return c
	}
	opts := []Option{WithLogger(s.Logger)}
	if s.HTTPClient != nil {
		opts = append(opts, WithHTTPClient(s.HTTPClient))
	}
	c := NewClient(baseURL, s.Username, s.Password, opts...)
	s.clients[baseURL] = c
	return c
}

func (s *Source) fields() []string {
	fields := append([]string(nil), baseFields...)
	if s.SeverityField != "" {
		fields = append(fields, s.SeverityField)
	}
	return fields
}

// BuildJQL selects the defects of one project updated within r.
func BuildJQL(project, issueType string, labels []string, r domain.DateRange) string {
	var b strings.Builder
	fmt.Fprintf(&b, "project = %s AND issuetype = %s", quote(project), quote(issueType))
	if len(labels) > 0 {
		quoted := make([]string, len(labels))
		for i, l := range labels {
			quoted[i] = quote(l)
		}
		fmt.Fprintf(&b, " AND labels in (%s)", strings.Join(quoted, ", "))
	}
	if !r.IsZero() {
		fmt.Fprintf(&b, " AND updated >= %s AND updated <= %s",
			quote(r.Start().Format(jqlDate)), quote(r.End().Format(jqlDate)))
	}
	b.WriteString(" ORDER BY key ASC")
	return b.String()
}

func quote(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

// BrowseURL is the human-facing page of an issue.
func BrowseURL(baseURL, key string) string {
	return strings.TrimRight(baseURL, "/") + "/browse/" + key
}

func (s *Source) toDefect(issue Issue, project, baseURL string) (domain.Defect, error) {
	f := issue.Fields
	d := domain.Defect{
		ID:          issue.Key,
		Project:     project,
		Title:       f.Summary,
		Link:        BrowseURL(baseURL, issue.Key),
		Environment: strings.TrimSpace(f.Environment),
		Assignee:    f.Assignee.Label(),
		Reporter:    f.Creator.Label(),
		Labels:      f.Labels,
		Components:  names(f.Components),
		FixVersions: names(f.FixVersions),
		Severity:    s.severity(issue),
	}
	if d.Reporter == "" {
		d.Reporter = f.Reporter.Label()
	}
	if f.Project != nil && f.Project.Key != "" {
		d.Project = f.Project.Key
	}
	if f.Status != nil {
		d.Status = f.Status.Name
	}
	if f.Priority != nil {
		d.Priority = f.Priority.Name
	}
	if f.Created != "" {
		created, err := ParseTimestamp(f.Created)
		if err != nil {
			return d, fmt.Errorf("%s: created: %w", issue.Key, err)
		}
		d.Created = created
	}

	if issue.Changelog == nil {
		return d, nil
	}
	for _, h := range issue.Changelog.Histories {
		var at time.Time
		for _, item := range h.Items {
			if item.Field != "status" {
				continue
			}
			if at.IsZero() {
				t, err := ParseTimestamp(h.Created)
				if err != nil {
					return d, fmt.Errorf("%s: history %s: %w", issue.Key, h.ID, err)
				}
				at = t
			}
			d.History = append(d.History, domain.StatusChange{At: at, From: item.FromString, To: item.ToString})
		}
	}
	return d, nil
}

// severity reads the select-list custom field, tolerating plain strings.
func (s *Source) severity(issue Issue) string {
	raw, ok := issue.RawFields[s.SeverityField]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var option struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &option); err == nil && option.Value != "" {
		return option.Value
	}
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain
	}
	return ""
}

func names(fields []NamedField) []string {
	if len(fields) == 0 {
		return nil
	}
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Name
	}
	return out
}
