package domain

import (
	"sort"
	"strings"
	"time"
)

// StatusChange is one status transition taken from a defect's changelog.
type StatusChange struct {
	At   time.Time `json:"at"`
	From string    `json:"from"`
	To   string    `json:"to"`
}

// Defect is a tracker issue with its status history.
type Defect struct {
	ID          string         `json:"id"`
	Project     string         `json:"project"`
	Title       string         `json:"title,omitempty"`
	Link        string         `json:"link,omitempty"`
	Status      string         `json:"status"`
	Created     time.Time      `json:"created"`
	Priority    string         `json:"priority,omitempty"`
	Severity    string         `json:"severity,omitempty"`
	Environment string         `json:"environment,omitempty"`
	Assignee    string         `json:"assignee,omitempty"`
	Reporter    string         `json:"reporter,omitempty"`
	Components  []string       `json:"components,omitempty"`
	Labels      []string       `json:"labels,omitempty"`
	FixVersions []string       `json:"fix_versions,omitempty"`
	History     []StatusChange `json:"history"`
}

// Timeline returns the history ordered by timestamp.
// Changes sharing a timestamp keep their recorded order.
func (d Defect) Timeline() []StatusChange {
	out := append([]StatusChange(nil), d.History...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].At.Before(out[j].At)
	})
	return out
}

// severityRank orders the tracker's severity names; unknown names sort last.
var severityRank = map[string]int{
	"critical": 1,
	"major":    2,
	"minor":    3,
	"cosmetic": 4,
}

// SeverityRank returns the numeric rank of the defect severity, 0 when unknown.
func (d Defect) SeverityRank() int {
	return severityRank[strings.ToLower(strings.TrimSpace(d.Severity))]
}

// Attribute is one labelled field shown for a defect in reports.
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Attributes returns the reportable attributes of d in display order.
func Attributes(d Defect) []Attribute {
	created := ""
	if !d.Created.IsZero() {
		created = d.Created.Format("2006-01-02 15:04")
	}
	return []Attribute{
		{Name: "ID", Value: d.ID},
		{Name: "Title", Value: d.Title},
		{Name: "Link", Value: d.Link},
		{Name: "Status", Value: d.Status},
		{Name: "Priority", Value: d.Priority},
		{Name: "Severity", Value: d.Severity},
		{Name: "Environment", Value: d.Environment},
		{Name: "Assignee", Value: d.Assignee},
		{Name: "Reporter", Value: d.Reporter},
		{Name: "Components", Value: strings.Join(d.Components, ", ")},
		{Name: "Fix Versions", Value: strings.Join(d.FixVersions, ", ")},
		{Name: "Created", Value: created},
	}
}
