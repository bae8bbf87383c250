package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// AllPillars selects every configured pillar.
const AllPillars = "ALL"

// Default SLA settings applied when a pillar does not configure its own.
const (
	DefaultSLABucket = "open"
	DefaultSLALimit  = 2
)

// Sentinel errors for pillar configuration.
var (
	ErrConfigValidation = errors.New("invalid pillar configuration")
	ErrConfigNotFound   = errors.New("pillar not found")
	ErrInvalidConfig    = errors.New("pillar configuration was not validated")
)

// Bucket is a canonical lifecycle stage such as "new", "open" or "closed".
type Bucket string

// Unmapped is returned for raw labels that belong to no bucket.
const Unmapped Bucket = ""

// IsMapped reports whether b names a real bucket.
func (b Bucket) IsMapped() bool {
	return b != Unmapped
}

func (b Bucket) String() string {
	if b == Unmapped {
		return "<unmapped>"
	}
	return string(b)
}

// ConfigValidationError describes why a pillar definition was rejected.
type ConfigValidationError struct {
	Pillar string
	Bucket string
	Status string
	Reason string
}

func (e *ConfigValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "pillar %q", e.Pillar)
	if e.Bucket != "" {
		fmt.Fprintf(&b, " bucket %q", e.Bucket)
	}
	if e.Status != "" {
		fmt.Fprintf(&b, " status %q", e.Status)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}

// Is makes errors.Is(err, ErrConfigValidation) match.
func (e *ConfigValidationError) Is(target error) bool {
	return target == ErrConfigValidation
}

// ConfigNotFoundError is returned when a requested pillar is not configured.
type ConfigNotFoundError struct {
	Pillar string
}

func (e *ConfigNotFoundError) Error() string {
	return fmt.Sprintf("pillar %q not found in configuration", e.Pillar)
}

// Is makes errors.Is(err, ErrConfigNotFound) match.
func (e *ConfigNotFoundError) Is(target error) bool {
	return target == ErrConfigNotFound
}

// SLA flags defects that re-enter Bucket more than Limit times.
type SLA struct {
	Bucket Bucket `json:"bucket"`
	Limit  int    `json:"limit"`
}

// Enabled reports whether the SLA check applies.
func (s SLA) Enabled() bool {
	return s.Bucket.IsMapped() && s.Limit > 0
}

// PillarDefinition is the unvalidated shape of a pillar as read from configuration.
type PillarDefinition struct {
	Name      string              `json:"name"`
	URL       string              `json:"url"`
	Projects  []string            `json:"projects"`
	States    map[string][]string `json:"states"`
	Order     []string            `json:"order"`
	Labels    []string            `json:"labels,omitempty"`
	IssueType string              `json:"issue_type,omitempty"`
	SLA       *SLA                `json:"sla,omitempty"`
}

// Pillar is a validated, immutable pillar configuration.
// It is safe for concurrent use once built by NewPillar.
type Pillar struct {
	name      string
	url       string
	projects  []string
	labels    []string
	issueType string
	order     []Bucket
	index     map[Bucket]int
	lookup    map[string]Bucket
	statuses  map[Bucket][]string
	sla       SLA
	validated bool
}

// NewPillar validates def and builds a Pillar.
// The bucket order must be a permutation of the state buckets and no raw
// label may belong to two buckets.
func NewPillar(def PillarDefinition) (*Pillar, error) {
	name := strings.TrimSpace(def.Name)
	if name == "" {
		return nil, &ConfigValidationError{Reason: "name is required"}
	}
	if len(def.Order) == 0 {
		return nil, &ConfigValidationError{Pillar: name, Reason: "order must list at least one bucket"}
	}

	p := &Pillar{
		name:      name,
		url:       strings.TrimSuffix(strings.TrimSpace(def.URL), "/"),
		issueType: strings.TrimSpace(def.IssueType),
		index:     make(map[Bucket]int, len(def.Order)),
		lookup:    make(map[string]Bucket),
		statuses:  make(map[Bucket][]string, len(def.States)),
	}
	if p.issueType == "" {
		p.issueType = "defect"
	}

	for i, raw := range def.Order {
		b := Bucket(normalizeLabel(raw))
		if !b.IsMapped() {
			return nil, &ConfigValidationError{Pillar: name, Reason: fmt.Sprintf("order entry %d is empty", i)}
		}
		if _, dup := p.index[b]; dup {
			return nil, &ConfigValidationError{Pillar: name, Bucket: string(b), Reason: "bucket listed more than once in order"}
		}
		if _, ok := lookupState(def.States, b); !ok {
			return nil, &ConfigValidationError{Pillar: name, Bucket: string(b), Reason: "bucket in order has no states"}
		}
		p.index[b] = i
		p.order = append(p.order, b)
	}

	buckets := make([]string, 0, len(def.States))
	for key := range def.States {
		buckets = append(buckets, key)
	}
	sort.Strings(buckets)

	defined := make(map[Bucket]string, len(buckets))
	for _, key := range buckets {
		b := Bucket(normalizeLabel(key))
		if _, ok := p.index[b]; !ok {
			return nil, &ConfigValidationError{Pillar: name, Bucket: key, Reason: "bucket missing from order"}
		}
		if first, dup := defined[b]; dup {
			return nil, &ConfigValidationError{
				Pillar: name,
				Bucket: key,
				Reason: fmt.Sprintf("bucket already defined in states as %q", first),
			}
		}
		defined[b] = key
		for _, raw := range def.States[key] {
			label := normalizeLabel(raw)
			if label == "" {
				continue
			}
			if owner, taken := p.lookup[label]; taken {
				if owner == b {
					continue
				}
				return nil, &ConfigValidationError{
					Pillar: name,
					Bucket: string(b),
					Status: label,
					Reason: fmt.Sprintf("status already mapped to bucket %q", owner),
				}
			}
			p.lookup[label] = b
			p.statuses[b] = append(p.statuses[b], label)
		}
	}

	p.projects = uniqueTrimmed(def.Projects)
	if len(p.projects) == 0 {
		return nil, &ConfigValidationError{Pillar: name, Reason: "at least one project is required"}
	}
	p.labels = uniqueTrimmed(def.Labels)

	switch {
	case def.SLA == nil:
		if _, ok := p.index[DefaultSLABucket]; ok {
			p.sla = SLA{Bucket: DefaultSLABucket, Limit: DefaultSLALimit}
		}
	case def.SLA.Limit < 0:
		return nil, &ConfigValidationError{Pillar: name, Reason: "sla limit cannot be negative"}
	default:
		b := Bucket(normalizeLabel(string(def.SLA.Bucket)))
		if _, ok := p.index[b]; !ok {
			return nil, &ConfigValidationError{Pillar: name, Bucket: string(def.SLA.Bucket), Reason: "sla bucket not in order"}
		}
		p.sla = SLA{Bucket: b, Limit: def.SLA.Limit}
	}

	p.validated = true
	return p, nil
}

func lookupState(states map[string][]string, b Bucket) ([]string, bool) {
	for key, labels := range states {
		if Bucket(normalizeLabel(key)) == b {
			return labels, true
		}
	}
	return nil, false
}

func uniqueTrimmed(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func normalizeLabel(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Name returns the pillar name.
func (p *Pillar) Name() string { return p.name }

// URL returns the tracker base URL without a trailing slash.
func (p *Pillar) URL() string { return p.url }

// IssueType returns the tracker issue type queried for this pillar.
func (p *Pillar) IssueType() string { return p.issueType }

// SLA returns the re-entry limit configured for the pillar.
func (p *Pillar) SLA() SLA { return p.sla }

// Projects returns a copy of the project keys.
func (p *Pillar) Projects() []string { return append([]string(nil), p.projects...) }

// Labels returns a copy of the label filter.
func (p *Pillar) Labels() []string { return append([]string(nil), p.labels...) }

// Order returns a copy of the canonical bucket order.
func (p *Pillar) Order() []Bucket { return append([]Bucket(nil), p.order...) }

// Statuses returns the raw labels mapped to b.
func (p *Pillar) Statuses(b Bucket) []string { return append([]string(nil), p.statuses[b]...) }

// Index returns the position of b in the bucket order.
func (p *Pillar) Index(b Bucket) (int, bool) {
	i, ok := p.index[b]
	return i, ok
}

// Initial returns the earliest bucket.
func (p *Pillar) Initial() Bucket { return p.order[0] }

// Terminal returns the last bucket in the order.
func (p *Pillar) Terminal() Bucket { return p.order[len(p.order)-1] }

// Validate reports ErrInvalidConfig for a pillar that was not built by NewPillar.
func (p *Pillar) Validate() error {
	if p == nil || !p.validated || len(p.order) == 0 {
		return ErrInvalidConfig
	}
	return nil
}

// PillarSet is the collection of configured pillars keyed by name.
type PillarSet map[string]*Pillar

// NewPillarSet validates every definition. Valid pillars go into the set;
// the rest are returned keyed by name. A name defined more than once is
// rejected outright.
func NewPillarSet(defs []PillarDefinition) (PillarSet, map[string]error) {
	set := make(PillarSet, len(defs))
	rejected := make(map[string]error)
	count := make(map[string]int, len(defs))
	for _, def := range defs {
		count[strings.TrimSpace(def.Name)]++
	}
	for _, def := range defs {
		name := strings.TrimSpace(def.Name)
		if count[name] > 1 {
			rejected[name] = &ConfigValidationError{Pillar: name, Reason: "pillar defined more than once"}
			continue
		}
		p, err := NewPillar(def)
		if err != nil {
			rejected[name] = err
			continue
		}
		set[p.Name()] = p
	}
	return set, rejected
}

// Names returns the pillar names sorted alphabetically.
func (s PillarSet) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the pillar called name.
func (s PillarSet) Resolve(name string) (*Pillar, error) {
	p, ok := s[strings.TrimSpace(name)]
	if !ok {
		return nil, &ConfigNotFoundError{Pillar: name}
	}
	return p, nil
}

// Select resolves names in order, expanding AllPillars to every pillar.
// Duplicates are dropped.
func (s PillarSet) Select(names []string) ([]*Pillar, error) {
	var out []*Pillar
	seen := make(map[string]struct{})
	add := func(p *Pillar) {
		if _, ok := seen[p.Name()]; ok {
			return
		}
		seen[p.Name()] = struct{}{}
		out = append(out, p)
	}
	for _, name := range names {
		if strings.EqualFold(strings.TrimSpace(name), AllPillars) {
			if len(s) == 0 {
				return nil, &ConfigNotFoundError{Pillar: name}
			}
			for _, n := range s.Names() {
				add(s[n])
			}
			continue
		}
		p, err := s.Resolve(name)
		if err != nil {
			return nil, err
		}
		add(p)
	}
	if len(out) == 0 {
		return nil, &ConfigNotFoundError{Pillar: strings.Join(names, ",")}
	}
	return out, nil
}
