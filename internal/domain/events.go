package domain

import (
	"sort"
	"sync"
	"time"
)

// DomainEvent represents a significant occurrence in the domain.
type DomainEvent interface {
	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time
	// EventType returns the type of event.
	EventType() string
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	occurredAt time.Time
}

// OccurredAt returns when the event occurred.
func (e BaseEvent) OccurredAt() time.Time {
	return e.occurredAt
}

// NewBaseEvent creates a new base event with current timestamp.
func NewBaseEvent() BaseEvent {
	return BaseEvent{occurredAt: time.Now()}
}

// UnmappedStatusEvent is raised when a raw status label matches no bucket.
type UnmappedStatusEvent struct {
	BaseEvent
	Pillar   string
	DefectID string
	Label    string
}

// EventType returns the event type identifier.
func (e UnmappedStatusEvent) EventType() string {
	return "UnmappedStatus"
}

// NewUnmappedStatusEvent creates a new UnmappedStatusEvent.
func NewUnmappedStatusEvent(pillar, defectID, label string) UnmappedStatusEvent {
	return UnmappedStatusEvent{
		BaseEvent: NewBaseEvent(),
		Pillar:    pillar,
		DefectID:  defectID,
		Label:     label,
	}
}

// ConfigRejectedEvent is raised when a pillar fails validation.
type ConfigRejectedEvent struct {
	BaseEvent
	Pillar string
	Reason string
}

// EventType returns the event type identifier.
func (e ConfigRejectedEvent) EventType() string {
	return "ConfigRejected"
}

// NewConfigRejectedEvent creates a new ConfigRejectedEvent.
func NewConfigRejectedEvent(pillar string, err error) ConfigRejectedEvent {
	return ConfigRejectedEvent{
		BaseEvent: NewBaseEvent(),
		Pillar:    pillar,
		Reason:    err.Error(),
	}
}

// DiagnosticSink receives non-fatal diagnostics raised while processing.
type DiagnosticSink interface {
	Record(event DomainEvent)
}

// UnmappedLabel summarizes every occurrence of one unmapped raw label.
type UnmappedLabel struct {
	Label       string `json:"label"`
	FirstDefect string `json:"first_defect"`
	Occurrences int    `json:"occurrences"`
}

// Diagnostics collects events for later reporting.
// Unmapped statuses are deduplicated by label. Safe for concurrent use.
type Diagnostics struct {
	mu       sync.Mutex
	events   []DomainEvent
	unmapped map[string]*UnmappedLabel
}

// NewDiagnostics creates an empty collector.
func NewDiagnostics() *Diagnostics {
	return &Diagnostics{unmapped: make(map[string]*UnmappedLabel)}
}

// Record adds an event. Repeated unmapped labels only bump the occurrence count.
func (c *Diagnostics) Record(event DomainEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if u, ok := event.(UnmappedStatusEvent); ok {
		key := normalizeLabel(u.Label)
		if seen, dup := c.unmapped[key]; dup {
			seen.Occurrences++
			return
		}
		c.unmapped[key] = &UnmappedLabel{Label: key, FirstDefect: u.DefectID, Occurrences: 1}
	}
	c.events = append(c.events, event)
}

// Events returns the collected events.
func (c *Diagnostics) Events() []DomainEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]DomainEvent(nil), c.events...)
}

// Unmapped returns the distinct unmapped labels sorted by label.
func (c *Diagnostics) Unmapped() []UnmappedLabel {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]UnmappedLabel, 0, len(c.unmapped))
	for _, u := range c.unmapped {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// RejectedPillar names a pillar that failed validation and why.
type RejectedPillar struct {
	Pillar string `json:"pillar"`
	Reason string `json:"reason"`
}

// Rejected returns the recorded pillar rejections sorted by pillar.
func (c *Diagnostics) Rejected() []RejectedPillar {
	var out []RejectedPillar
	for _, event := range c.Events() {
		if r, ok := event.(ConfigRejectedEvent); ok {
			out = append(out, RejectedPillar{Pillar: r.Pillar, Reason: r.Reason})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pillar < out[j].Pillar })
	return out
}
