package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/felixgeelhaar/defectctl/internal/application"
	"github.com/felixgeelhaar/defectctl/internal/domain"
)

// handleBounce implements the bounce tool.
func (s *Server) handleBounce(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input BounceInput,
) (*mcp.CallToolResult, BounceOutput, error) {
	r, err := domain.ParseDateRange(input.Start, input.End)
	if err != nil {
		return nil, BounceOutput{Summary: "Invalid date range", Error: err.Error()}, nil
	}

	results, err := s.svc.Bounce(ctx, application.BounceOptions{
		ConfigPath:  coalesce(input.ConfigPath, s.config.ConfigPath),
		Pillars:     input.Pillars,
		Range:       r,
		Output:      application.OutputJSON,
		IncludeOpen: input.IncludeOpen,
		Record:      input.Record,
		Workers:     s.config.Workers,
	})

	output := BounceOutput{Pillars: make([]PillarMetrics, 0, len(results))}
	for _, res := range results {
		output.Pillars = append(output.Pillars, toPillarMetrics(res))
	}
	output.Summary = generateSummary(output.Pillars)
	if err != nil {
		output.Error = err.Error()
	}
	return nil, output, nil
}

// handleListPillars implements the list_pillars tool.
func (s *Server) handleListPillars(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ListInput,
) (*mcp.CallToolResult, ListOutput, error) {
	pillars, err := s.svc.ListPillars(ctx, application.ListOptions{
		ConfigPath: coalesce(input.ConfigPath, s.config.ConfigPath),
	})
	output := ListOutput{Pillars: pillars}
	if output.Pillars == nil {
		output.Pillars = []application.PillarSummary{}
	}
	if err != nil {
		output.Error = err.Error()
	}
	return nil, output, nil
}

func toPillarMetrics(res application.BounceResult) PillarMetrics {
	m := res.Metrics
	out := PillarMetrics{
		Pillar:     res.Pillar,
		Range:      res.Range.String(),
		Defects:    m.TotalDefects,
		Bounced:    m.BouncedDefects,
		Bounces:    m.TotalBounces,
		BounceRate: m.BounceRate().Value(),
		Violations: m.Violations,
		Excluded:   res.Excluded,
		Unmapped:   res.Unmapped,
	}
	if len(m.ByTransition) > 0 {
		out.ByTransition = make(map[string]int, len(m.ByTransition))
		for t, n := range m.ByTransition {
			out.ByTransition[t.String()] = n
		}
	}
	return out
}

// generateSummary creates a human-readable summary of the pillar metrics.
func generateSummary(pillars []PillarMetrics) string {
	if len(pillars) == 0 {
		return "No pillars evaluated"
	}
	parts := make([]string, len(pillars))
	for i, p := range pillars {
		parts[i] = fmt.Sprintf("%s: %d defects, %d bounced (%.1f%%), %d SLA violations",
			p.Pillar, p.Defects, p.Bounced, p.BounceRate, len(p.Violations))
	}
	return strings.Join(parts, "; ")
}
