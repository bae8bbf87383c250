package domain

import (
	"fmt"
	"time"
)

// BounceEvent is a transition that landed below the furthest bucket reached.
type BounceEvent struct {
	DefectID string    `json:"defect_id"`
	At       time.Time `json:"at"`
	From     Bucket    `json:"from"`
	To       Bucket    `json:"to"`
	Peak     Bucket    `json:"peak"`
	Distance int       `json:"distance"`
}

// Transition returns the (from, to) key of the bounce.
func (e BounceEvent) Transition() Transition {
	return Transition{From: e.From, To: e.To}
}

// BounceReport is the outcome of replaying one defect's history.
// SettledAt is when the defect last moved into a mapped bucket, or its
// creation time when it never did.
type BounceReport struct {
	DefectID     string         `json:"defect_id"`
	Project      string         `json:"project"`
	Bounces      []BounceEvent  `json:"bounces"`
	Final        Bucket         `json:"final"`
	MaxReached   Bucket         `json:"max_reached"`
	Trail        []Bucket       `json:"trail"`
	Visits       map[Bucket]int `json:"visits"`
	Unmapped     []string       `json:"unmapped,omitempty"`
	SLAViolation bool           `json:"sla_violation"`
	SettledAt    time.Time      `json:"settled_at"`
}

// Bounced reports whether at least one bounce was detected.
func (r BounceReport) Bounced() bool {
	return len(r.Bounces) > 0
}

// labelRecorder keeps the unmapped labels seen during a single replay.
type labelRecorder struct {
	labels []string
}

func (r *labelRecorder) Record(event DomainEvent) {
	if u, ok := event.(UnmappedStatusEvent); ok {
		r.labels = append(r.labels, u.Label)
	}
}

// Detect replays d's status history against p's bucket order.
//
// A high-water mark tracks the furthest bucket reached. Any mapped transition
// landing below it is a bounce whose distance is measured from the mark, and
// the mark never moves backwards. Unmapped transitions are skipped.
func Detect(d Defect, p *Pillar) (BounceReport, error) {
	if err := p.Validate(); err != nil {
		return BounceReport{}, fmt.Errorf("detect %s: %w", d.ID, err)
	}

	rec := &labelRecorder{}
	norm := NewNormalizer(p, rec)
	timeline := d.Timeline()

	initial := p.Initial()
	seed := d.Status
	if len(timeline) > 0 {
		seed = timeline[0].From
	}
	if b := norm.Normalize(d.ID, seed); b.IsMapped() {
		initial = b
	}

	hwm, _ := p.Index(initial)
	current := initial
	report := BounceReport{
		DefectID:  d.ID,
		Project:   d.Project,
		Trail:     []Bucket{initial},
		Visits:    map[Bucket]int{initial: 1},
		SettledAt: d.Created,
	}

	for _, change := range timeline {
		to := norm.Normalize(d.ID, change.To)
		if !to.IsMapped() {
			continue
		}
		idx, _ := p.Index(to)
		switch {
		case idx < hwm:
			report.Bounces = append(report.Bounces, BounceEvent{
				DefectID: d.ID,
				At:       change.At,
				From:     current,
				To:       to,
				Peak:     p.order[hwm],
				Distance: hwm - idx,
			})
		case idx > hwm:
			hwm = idx
		}
		if to != current {
			report.Trail = append(report.Trail, to)
			report.Visits[to]++
		}
		current = to
		report.SettledAt = change.At
	}

	report.Final = current
	report.MaxReached = p.order[hwm]
	report.Unmapped = rec.labels

	if sla := p.SLA(); sla.Enabled() {
		report.SLAViolation = report.Visits[sla.Bucket] > sla.Limit
	}
	return report, nil
}
