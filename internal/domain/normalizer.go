package domain

// Normalize maps a raw status label onto its bucket in p.
// Matching ignores case and surrounding whitespace; unknown labels yield Unmapped.
func Normalize(raw string, p *Pillar) Bucket {
	if p == nil {
		return Unmapped
	}
	return p.lookup[normalizeLabel(raw)]
}

// Normalizer normalizes labels for one pillar and reports unmapped ones to a sink.
type Normalizer struct {
	pillar *Pillar
	sink   DiagnosticSink
}

// NewNormalizer creates a Normalizer. sink may be nil.
func NewNormalizer(p *Pillar, sink DiagnosticSink) Normalizer {
	return Normalizer{pillar: p, sink: sink}
}

// Normalize returns the bucket for raw, recording an UnmappedStatusEvent
// against defectID when the label is unknown. Empty labels are not recorded.
func (n Normalizer) Normalize(defectID, raw string) Bucket {
	b := Normalize(raw, n.pillar)
	if b.IsMapped() || n.sink == nil || normalizeLabel(raw) == "" {
		return b
	}
	name := ""
	if n.pillar != nil {
		name = n.pillar.name
	}
	n.sink.Record(NewUnmappedStatusEvent(name, defectID, raw))
	return b
}
