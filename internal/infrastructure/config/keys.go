package config

import (
	"fmt"
	"sort"
)

// Key is a recognised per-pillar configuration key.
type Key string

const (
	KeyURL       Key = "url"
	KeyProjects  Key = "projects"
	KeyStates    Key = "states"
	KeyOrder     Key = "order"
	KeyLabels    Key = "labels"
	KeyIssueType Key = "issue_type"
	KeySLA       Key = "sla"
)

// SLAKey is a recognised key inside the sla block.
type SLAKey string

const (
	SLAKeyBucket SLAKey = "bucket"
	SLAKeyLimit  SLAKey = "limit"
)

var pillarKeys = map[Key]bool{
	KeyURL:       true,
	KeyProjects:  true,
	KeyStates:    true,
	KeyOrder:     true,
	KeyLabels:    false,
	KeyIssueType: false,
	KeySLA:       false,
}

// ParseKey returns the Key for s or an error if s is not a known key.
func ParseKey(s string) (Key, error) {
	k := Key(s)
	if _, ok := pillarKeys[k]; !ok {
		return "", fmt.Errorf("unknown key %q (allowed: %v)", s, Keys())
	}
	return k, nil
}

// Required reports whether every pillar must set k.
func (k Key) Required() bool {
	return pillarKeys[k]
}

// Keys returns every known pillar key, sorted.
func Keys() []Key {
	out := make([]Key, 0, len(pillarKeys))
	for k := range pillarKeys {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func parseSLAKey(s string) (SLAKey, error) {
	switch k := SLAKey(s); k {
	case SLAKeyBucket, SLAKeyLimit:
		return k, nil
	}
	return "", fmt.Errorf("unknown sla key %q (allowed: bucket, limit)", s)
}
