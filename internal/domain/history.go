package domain

import (
	"sort"
	"time"
)

// HistoryEntry records the bounce rates of one pillar run.
type HistoryEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Pillar    string                 `json:"pillar"`
	Range     DateRange              `json:"range"`
	Defects   int                    `json:"defects"`
	Overall   float64                `json:"overall"`
	Projects  map[string]ProjectRate `json:"projects"`
}

// ProjectRate is a project's bounce rate at a point in time.
type ProjectRate struct {
	Defects int     `json:"defects"`
	Bounced int     `json:"bounced"`
	Percent float64 `json:"percent"`
}

// NewHistoryEntry snapshots the rates in m.
func NewHistoryEntry(m MetricsResult, at time.Time) HistoryEntry {
	entry := HistoryEntry{
		Timestamp: at,
		Pillar:    m.Pillar,
		Range:     m.Range,
		Defects:   m.TotalDefects,
		Overall:   m.BounceRate().Value(),
		Projects:  make(map[string]ProjectRate, len(m.Projects)),
	}
	for name, p := range m.Projects {
		entry.Projects[name] = ProjectRate{Defects: p.Defects, Bounced: p.Bounced, Percent: p.BounceRate().Value()}
	}
	return entry
}

// Trend represents the direction and magnitude of a bounce-rate change.
type Trend struct {
	Direction TrendDirection `json:"direction"`
	Delta     float64        `json:"delta"`
}

// TrendDirection indicates whether the bounce rate is rising, falling, or stable.
type TrendDirection string

const (
	TrendUp     TrendDirection = "up"
	TrendDown   TrendDirection = "down"
	TrendStable TrendDirection = "stable"
)

// Improving reports whether the bounce rate went down.
func (t Trend) Improving() bool {
	return t.Direction == TrendDown
}

// History contains all recorded runs.
type History struct {
	Entries []HistoryEntry `json:"entries"`
}

// LatestEntry returns the most recent entry for pillar, or nil if none exists.
func (h *History) LatestEntry(pillar string) *HistoryEntry {
	entries := h.ForPillar(pillar)
	if len(entries) == 0 {
		return nil
	}
	return &entries[len(entries)-1]
}

// ForPillar returns the entries of pillar ordered by timestamp.
func (h *History) ForPillar(pillar string) []HistoryEntry {
	var out []HistoryEntry
	for _, e := range h.Entries {
		if e.Pillar == pillar {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Pillars returns the distinct pillar names in the history, sorted.
func (h *History) Pillars() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, e := range h.Entries {
		if _, ok := seen[e.Pillar]; ok {
			continue
		}
		seen[e.Pillar] = struct{}{}
		out = append(out, e.Pillar)
	}
	sort.Strings(out)
	return out
}

// CalculateTrend computes the trend between two bounce rates.
// Changes within half a percentage point are stable.
func CalculateTrend(previous, current float64) Trend {
	delta := current - previous
	var direction TrendDirection

	switch {
	case delta > 0.5:
		direction = TrendUp
	case delta < -0.5:
		direction = TrendDown
	default:
		direction = TrendStable
	}

	return Trend{
		Direction: direction,
		Delta:     Round1(delta),
	}
}
