// Package mcp provides the Model Context Protocol server for defectctl.
package mcp

import (
	"context"

	"github.com/felixgeelhaar/defectctl/internal/application"
	"github.com/felixgeelhaar/defectctl/internal/domain"
)

// Service defines the application operations needed by MCP.
type Service interface {
	Bounce(ctx context.Context, opts application.BounceOptions) ([]application.BounceResult, error)
	ListPillars(ctx context.Context, opts application.ListOptions) ([]application.PillarSummary, error)
	Trend(ctx context.Context, opts application.TrendOptions) ([]application.TrendResult, error)
}

// Config holds MCP server configuration.
type Config struct {
	ConfigPath string // Path to the pillar config (default: "defects.yaml")
	Workers    int
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() Config {
	return Config{
		ConfigPath: "defects.yaml",
		Workers:    application.DefaultWorkers,
	}
}

// BounceInput defines the input parameters for the bounce tool.
type BounceInput struct {
	ConfigPath  string   `json:"configPath,omitempty" jsonschema:"Path to the defects.yaml pillar config"`
	Pillars     []string `json:"pillars,omitempty" jsonschema:"Pillars to run; empty or ALL runs every pillar"`
	Start       string   `json:"start" jsonschema:"First day of the range, YYYY-MM-DD"`
	End         string   `json:"end" jsonschema:"Last day of the range, YYYY-MM-DD"`
	IncludeOpen bool     `json:"includeOpen,omitempty" jsonschema:"Also count defects not yet in the terminal bucket"`
	Record      bool     `json:"record,omitempty" jsonschema:"Append the results to bounce-rate history"`
}

// ListInput defines the input parameters for the list_pillars tool.
type ListInput struct {
	ConfigPath string `json:"configPath,omitempty" jsonschema:"Path to the defects.yaml pillar config"`
}

// PillarMetrics is the per-pillar part of the bounce tool output.
type PillarMetrics struct {
	Pillar       string                 `json:"pillar"`
	Range        string                 `json:"range"`
	Defects      int                    `json:"defects"`
	Bounced      int                    `json:"bounced"`
	Bounces      int                    `json:"bounces"`
	BounceRate   float64                `json:"bounceRate"`
	ByTransition map[string]int         `json:"byTransition,omitempty"`
	Violations   []string               `json:"violations,omitempty"`
	Excluded     map[string]int         `json:"excluded,omitempty"`
	Unmapped     []domain.UnmappedLabel `json:"unmapped,omitempty"`
}

// BounceOutput is the bounce tool result.
type BounceOutput struct {
	Summary string          `json:"summary"`
	Pillars []PillarMetrics `json:"pillars,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ListOutput is the list_pillars tool result.
type ListOutput struct {
	Pillars []application.PillarSummary `json:"pillars"`
	Error   string                      `json:"error,omitempty"`
}

// coalesce returns value if non-empty, otherwise fallback.
func coalesce(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
