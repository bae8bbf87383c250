package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/felixgeelhaar/defectctl/internal/application"
	"github.com/felixgeelhaar/defectctl/internal/domain"
)

// mockService implements the Service interface for testing.
type mockService struct {
	bounceResults []application.BounceResult
	bounceErr     error
	bounceOpts    application.BounceOptions
	pillars       []application.PillarSummary
	listErr       error
	listOpts      application.ListOptions
	trendResults  []application.TrendResult
	trendErr      error
}

func (m *mockService) Bounce(ctx context.Context, opts application.BounceOptions) ([]application.BounceResult, error) {
	m.bounceOpts = opts
	return m.bounceResults, m.bounceErr
}

func (m *mockService) ListPillars(ctx context.Context, opts application.ListOptions) ([]application.PillarSummary, error) {
	m.listOpts = opts
	return m.pillars, m.listErr
}

func (m *mockService) Trend(ctx context.Context, opts application.TrendOptions) ([]application.TrendResult, error) {
	return m.trendResults, m.trendErr
}

type mockLoader struct {
	cfg  application.Config
	err  error
	path string
}

func (m *mockLoader) Exists(path string) (bool, error) { return m.err == nil, nil }

func (m *mockLoader) Load(path string) (application.Config, error) {
	m.path = path
	return m.cfg, m.err
}

func testConfig(t *testing.T) application.Config {
	t.Helper()
	p, err := domain.NewPillar(domain.PillarDefinition{
		Name:     "qe",
		URL:      "https://jira.example.com",
		Projects: []string{"ABC"},
		States:   map[string][]string{"open": {"Open"}, "closed": {"Closed"}},
		Order:    []string{"open", "closed"},
	})
	if err != nil {
		t.Fatalf("pillar: %v", err)
	}
	return application.Config{
		Pillars:  domain.PillarSet{"qe": p},
		Rejected: map[string]error{"broken": errors.New("order must list every bucket")},
	}
}

func sampleBounce() application.BounceResult {
	r := domain.MustDateRange("2024-01-01", "2024-01-31")
	m := domain.NewMetricsResult("qe", r)
	m.Add(domain.BounceReport{
		DefectID:     "ABC-1",
		Bounces:      []domain.BounceEvent{{From: "closed", To: "open"}},
		SLAViolation: true,
	}, "ABC")
	m.Add(domain.BounceReport{DefectID: "ABC-2"}, "ABC")
	return application.BounceResult{
		Pillar:   "qe",
		Range:    r,
		Metrics:  m,
		Excluded: map[string]int{"ABC": 1},
	}
}

func TestNew(t *testing.T) {
	server := New(&mockService{}, &mockLoader{}, Config{ConfigPath: "custom.yaml", Workers: 2}, "test")
	if server.config.ConfigPath != "custom.yaml" || server.config.Workers != 2 {
		t.Errorf("unexpected config %+v", server.config)
	}
	if server.server == nil {
		t.Error("expected internal MCP server to be initialized")
	}
}

func TestNew_DefaultConfig(t *testing.T) {
	server := New(&mockService{}, &mockLoader{}, Config{}, "test")
	if server.config != DefaultConfig() {
		t.Errorf("expected defaults, got %+v", server.config)
	}
}

func TestHandleBounce(t *testing.T) {
	svc := &mockService{bounceResults: []application.BounceResult{sampleBounce()}}
	server := New(svc, &mockLoader{}, Config{}, "test")

	_, out, err := server.handleBounce(context.Background(), nil, BounceInput{
		Pillars:     []string{"qe"},
		Start:       "24-01-01",
		End:         "2024-01-31",
		IncludeOpen: true,
	})
	if err != nil {
		t.Fatalf("handleBounce: %v", err)
	}
	if out.Error != "" {
		t.Fatalf("unexpected error output: %s", out.Error)
	}
	if svc.bounceOpts.ConfigPath != "defects.yaml" || !svc.bounceOpts.IncludeOpen {
		t.Errorf("unexpected options %+v", svc.bounceOpts)
	}
	if svc.bounceOpts.Range.Compact() != "20240101.20240131" {
		t.Errorf("unexpected range %s", svc.bounceOpts.Range)
	}
	if len(out.Pillars) != 1 {
		t.Fatalf("expected one pillar, got %d", len(out.Pillars))
	}
	p := out.Pillars[0]
	if p.Defects != 2 || p.Bounced != 1 || p.BounceRate != 50 {
		t.Errorf("unexpected metrics %+v", p)
	}
	if p.ByTransition["closed->open"] != 1 {
		t.Errorf("unexpected transitions %v", p.ByTransition)
	}
	if out.Summary != "qe: 2 defects, 1 bounced (50.0%), 1 SLA violations" {
		t.Errorf("unexpected summary %q", out.Summary)
	}
}

func TestHandleBounce_InvalidRange(t *testing.T) {
	svc := &mockService{}
	server := New(svc, &mockLoader{}, Config{}, "test")

	_, out, err := server.handleBounce(context.Background(), nil, BounceInput{Start: "2024-02-01", End: "2024-01-01"})
	if err != nil {
		t.Fatalf("handleBounce: %v", err)
	}
	if !strings.Contains(out.Error, "range start") {
		t.Errorf("expected range error, got %q", out.Error)
	}
	if svc.bounceOpts.ConfigPath != "" {
		t.Error("service must not run with an invalid range")
	}
}

func TestHandleBounce_PartialFailure(t *testing.T) {
	svc := &mockService{
		bounceResults: []application.BounceResult{sampleBounce()},
		bounceErr:     errors.New("pillar ops: jira API returned 401"),
	}
	server := New(svc, &mockLoader{}, Config{}, "test")

	_, out, _ := server.handleBounce(context.Background(), nil, BounceInput{Start: "2024-01-01", End: "2024-01-31"})
	if len(out.Pillars) != 1 || !strings.Contains(out.Error, "401") {
		t.Errorf("expected partial results with error, got %+v", out)
	}
}

func TestHandleListPillars(t *testing.T) {
	svc := &mockService{pillars: []application.PillarSummary{{Name: "qe", Projects: []string{"ABC"}}}}
	server := New(svc, &mockLoader{}, Config{}, "test")

	_, out, err := server.handleListPillars(context.Background(), nil, ListInput{ConfigPath: "other.yaml"})
	if err != nil {
		t.Fatalf("handleListPillars: %v", err)
	}
	if svc.listOpts.ConfigPath != "other.yaml" {
		t.Errorf("expected config path override, got %q", svc.listOpts.ConfigPath)
	}
	if len(out.Pillars) != 1 || out.Pillars[0].Name != "qe" {
		t.Errorf("unexpected output %+v", out)
	}

	svc.pillars, svc.listErr = nil, application.ErrConfigNotFound
	_, out, _ = server.handleListPillars(context.Background(), nil, ListInput{})
	if out.Error == "" || out.Pillars == nil {
		t.Errorf("expected error and empty list, got %+v", out)
	}
}

func connectInMemory(t *testing.T, ctx context.Context, srv *Server) *sdkmcp.ClientSession {
	t.Helper()
	t1, t2 := sdkmcp.NewInMemoryTransports()
	if _, err := srv.server.Connect(ctx, t1, nil); err != nil {
		t.Fatalf("server.Connect: %v", err)
	}
	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, t2, nil)
	if err != nil {
		t.Fatalf("client.Connect: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func TestServer_ToolDiscovery(t *testing.T) {
	ctx := context.Background()
	session := connectInMemory(t, ctx, New(&mockService{}, &mockLoader{}, Config{}, "test"))

	tools, err := session.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	expected := map[string]bool{"bounce": false, "list_pillars": false}
	for _, tool := range tools.Tools {
		if _, ok := expected[tool.Name]; ok {
			expected[tool.Name] = true
		}
	}
	for name, found := range expected {
		if !found {
			t.Errorf("expected tool %q not found", name)
		}
	}
}

func TestServer_CallBounce(t *testing.T) {
	ctx := context.Background()
	svc := &mockService{bounceResults: []application.BounceResult{sampleBounce()}}
	session := connectInMemory(t, ctx, New(svc, &mockLoader{}, Config{}, "test"))

	res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      "bounce",
		Arguments: map[string]any{"start": "2024-01-01", "end": "2024-01-31", "pillars": []string{"qe"}},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool returned error: %+v", res.Content)
	}

	var out BounceOutput
	for _, c := range res.Content {
		if tc, ok := c.(*sdkmcp.TextContent); ok {
			if err := json.Unmarshal([]byte(tc.Text), &out); err != nil {
				t.Fatalf("unmarshal tool result: %v (text: %s)", err, tc.Text)
			}
		}
	}
	if len(out.Pillars) != 1 || out.Pillars[0].Violations[0] != "ABC-1" {
		t.Errorf("unexpected output %+v", out)
	}
}

func TestServer_ConfigResource(t *testing.T) {
	ctx := context.Background()
	loader := &mockLoader{cfg: testConfig(t)}
	session := connectInMemory(t, ctx, New(&mockService{}, loader, Config{ConfigPath: "pillars.yaml"}, "test"))

	res, err := session.ReadResource(ctx, &sdkmcp.ReadResourceParams{URI: "defectctl://config"})
	if err != nil {
		t.Fatalf("ReadResource: %v", err)
	}
	if loader.path != "pillars.yaml" {
		t.Errorf("expected configured path, got %q", loader.path)
	}

	var payload configPayload
	if err := json.Unmarshal([]byte(res.Contents[0].Text), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(payload.Pillars) != 1 || payload.Pillars[0].Name != "qe" {
		t.Errorf("unexpected pillars %+v", payload.Pillars)
	}
	if !strings.Contains(payload.Rejected["broken"], "order") {
		t.Errorf("expected rejected pillar, got %v", payload.Rejected)
	}
}

func TestServer_ConfigResourceLoadError(t *testing.T) {
	server := New(&mockService{}, &mockLoader{err: errors.New("boom")}, Config{}, "test")
	req := &sdkmcp.ReadResourceRequest{Params: &sdkmcp.ReadResourceParams{URI: "defectctl://config"}}
	if _, err := server.handleConfigResource(context.Background(), req); err == nil {
		t.Fatal("expected load error")
	}
}

func TestServer_TrendResource(t *testing.T) {
	svc := &mockService{trendResults: []application.TrendResult{
		{Pillar: "qe", Runs: 2, Overall: domain.Trend{Direction: domain.TrendDown, Delta: -5}},
		{Pillar: "api", Runs: 1, Overall: domain.Trend{Direction: domain.TrendStable}},
	}}
	server := New(svc, &mockLoader{}, Config{}, "test")
	req := &sdkmcp.ReadResourceRequest{Params: &sdkmcp.ReadResourceParams{URI: "defectctl://trend"}}

	res, err := server.handleTrendResource(context.Background(), req)
	if err != nil {
		t.Fatalf("handleTrendResource: %v", err)
	}
	text := res.Contents[0].Text
	if strings.Index(text, `"api"`) > strings.Index(text, `"qe"`) {
		t.Errorf("expected pillars sorted by name:\n%s", text)
	}
	if !strings.Contains(text, `"direction": "down"`) {
		t.Errorf("expected trend direction in resource:\n%s", text)
	}

	svc.trendErr = errors.New("no history")
	if _, err := server.handleTrendResource(context.Background(), req); err == nil {
		t.Fatal("expected trend error")
	}
}
