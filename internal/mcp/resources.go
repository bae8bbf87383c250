package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/felixgeelhaar/defectctl/internal/application"
	"github.com/felixgeelhaar/defectctl/internal/domain"
	"github.com/felixgeelhaar/defectctl/internal/infrastructure/config"
)

type configPayload struct {
	Path     string                    `json:"path"`
	Pillars  []domain.PillarDefinition `json:"pillars"`
	Rejected map[string]string         `json:"rejected,omitempty"`
}

// handleConfigResource returns the validated pillar configuration.
func (s *Server) handleConfigResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	cfg, err := s.loader.Load(s.config.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	payload := configPayload{
		Path:    s.config.ConfigPath,
		Pillars: config.Definitions(cfg),
	}
	if len(cfg.Rejected) > 0 {
		payload.Rejected = make(map[string]string, len(cfg.Rejected))
		for name, rejected := range cfg.Rejected {
			payload.Rejected[name] = rejected.Error()
		}
	}
	return jsonResource(req.Params.URI, payload)
}

// handleTrendResource returns the bounce-rate trend of every recorded pillar.
func (s *Server) handleTrendResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	results, err := s.svc.Trend(ctx, application.TrendOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to calculate trend: %w", err)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Pillar < results[j].Pillar })
	if results == nil {
		results = []application.TrendResult{}
	}
	return jsonResource(req.Params.URI, results)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
