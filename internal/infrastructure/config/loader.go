package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/defectctl/internal/application"
	"github.com/felixgeelhaar/defectctl/internal/domain"
)

// DefaultPath is the config file used when none is given.
const DefaultPath = "defects.yaml"

// ErrInvalidFormat is returned when the document is not a mapping of pillars.
var ErrInvalidFormat = errors.New("config must be a mapping of pillar names to settings")

// ErrParse wraps every error raised while decoding a config file.
var ErrParse = errors.New("invalid config file")

type Loader struct{}

type filePillar struct {
	URL       string              `yaml:"url"`
	Projects  []string            `yaml:"projects,flow"`
	Labels    []string            `yaml:"labels,omitempty,flow"`
	IssueType string              `yaml:"issue_type,omitempty"`
	States    map[string][]string `yaml:"states"`
	Order     []string            `yaml:"order,flow"`
	SLA       *fileSLA            `yaml:"sla,omitempty"`
}

type fileSLA struct {
	Bucket string `yaml:"bucket"`
	Limit  int    `yaml:"limit"`
}

func (l Loader) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Load parses the file at path and validates each pillar on its own.
// Pillars failing validation are returned in Config.Rejected.
func (l Loader) Load(path string) (application.Config, error) {
	// #nosec G304 -- path is provided by the operator
	raw, err := os.ReadFile(path)
	if err != nil {
		return application.Config{}, err
	}
	defs, err := YAMLSource{Data: raw}.Parse()
	if err != nil {
		return application.Config{}, fmt.Errorf("%w %s: %w", ErrParse, path, err)
	}
	return Build(defs), nil
}

// Build validates definitions into a Config.
func Build(defs []domain.PillarDefinition) application.Config {
	pillars, rejected := domain.NewPillarSet(defs)
	return application.Config{Pillars: pillars, Rejected: rejected}
}

// YAMLSource parses pillar definitions from a YAML document.
type YAMLSource struct {
	Data []byte
}

// Parse decodes the document, rejecting keys outside the Key enumeration.
func (s YAMLSource) Parse() ([]domain.PillarDefinition, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(bytes.NewReader(s.Data)).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, ErrInvalidFormat
	}

	defs := make([]domain.PillarDefinition, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		name := root.Content[i].Value
		def, err := parsePillar(name, root.Content[i+1])
		if err != nil {
			return nil, fmt.Errorf("pillar %q: %w", name, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func parsePillar(name string, node *yaml.Node) (domain.PillarDefinition, error) {
	def := domain.PillarDefinition{Name: name}
	if node.Kind != yaml.MappingNode {
		return def, fmt.Errorf("line %d: expected a mapping", node.Line)
	}

	seen := make(map[Key]bool)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, value := node.Content[i], node.Content[i+1]
		key, err := ParseKey(keyNode.Value)
		if err != nil {
			return def, fmt.Errorf("line %d: %w", keyNode.Line, err)
		}
		if seen[key] {
			return def, fmt.Errorf("line %d: duplicate key %q", keyNode.Line, key)
		}
		seen[key] = true

		switch key {
		case KeyURL:
			err = value.Decode(&def.URL)
		case KeyProjects:
			err = value.Decode(&def.Projects)
		case KeyStates:
			err = value.Decode(&def.States)
		case KeyOrder:
			err = value.Decode(&def.Order)
		case KeyLabels:
			err = value.Decode(&def.Labels)
		case KeyIssueType:
			err = value.Decode(&def.IssueType)
		case KeySLA:
			def.SLA, err = parseSLA(value)
		}
		if err != nil {
			return def, fmt.Errorf("%s: %w", key, err)
		}
	}

	for _, key := range Keys() {
		if key.Required() && !seen[key] {
			return def, fmt.Errorf("missing required key %q", key)
		}
	}
	return def, nil
}

func parseSLA(node *yaml.Node) (*domain.SLA, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	sla := &domain.SLA{Bucket: domain.DefaultSLABucket, Limit: domain.DefaultSLALimit}
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, value := node.Content[i], node.Content[i+1]
		key, err := parseSLAKey(keyNode.Value)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", keyNode.Line, err)
		}
		switch key {
		case SLAKeyBucket:
			var b string
			err = value.Decode(&b)
			sla.Bucket = domain.Bucket(b)
		case SLAKeyLimit:
			err = value.Decode(&sla.Limit)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
	}
	return sla, nil
}

// Write encodes definitions as YAML, pillars sorted by name.
func Write(w io.Writer, defs []domain.PillarDefinition) error {
	out := make(map[string]filePillar, len(defs))
	for _, def := range defs {
		fp := filePillar{
			URL:       def.URL,
			Projects:  def.Projects,
			Labels:    def.Labels,
			IssueType: def.IssueType,
			States:    def.States,
			Order:     def.Order,
		}
		if def.SLA != nil {
			fp.SLA = &fileSLA{Bucket: string(def.SLA.Bucket), Limit: def.SLA.Limit}
		}
		out[def.Name] = fp
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return err
	}
	return enc.Close()
}

// Default returns a starter pillar for new configurations.
func Default() domain.PillarDefinition {
	return domain.PillarDefinition{
		Name:     "example",
		URL:      "https://jira.example.com",
		Projects: []string{"PROJ"},
		States: map[string][]string{
			"new":    {"New", "Triage"},
			"open":   {"Open", "In Progress", "Reopened"},
			"review": {"Code Review", "Resolved"},
			"test":   {"Ready for QA", "In Test", "Verified"},
			"closed": {"Closed", "Done", "Won't Fix"},
		},
		Order: []string{"new", "open", "review", "test", "closed"},
	}
}

// Definitions converts a Config back to definitions, valid pillars only,
// sorted by name.
func Definitions(cfg application.Config) []domain.PillarDefinition {
	names := cfg.Pillars.Names()
	sort.Strings(names)
	defs := make([]domain.PillarDefinition, 0, len(names))
	for _, name := range names {
		p := cfg.Pillars[name]
		states := make(map[string][]string)
		order := make([]string, 0, len(p.Order()))
		for _, b := range p.Order() {
			order = append(order, string(b))
			states[string(b)] = p.Statuses(b)
		}
		sla := p.SLA()
		def := domain.PillarDefinition{
			Name:     name,
			URL:      p.URL(),
			Projects: p.Projects(),
			Labels:   p.Labels(),
			States:   states,
			Order:    order,
		}
		if p.IssueType() != "defect" {
			def.IssueType = p.IssueType()
		}
		if sla.Enabled() {
			def.SLA = &sla
		}
		defs = append(defs, def)
	}
	return defs
}
