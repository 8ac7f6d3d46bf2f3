package domain

import (
	"fmt"
	"strings"
)

// Tier is an ordered reliability/latency class. Lower values carry the
// stricter SLA.
type Tier int

const (
	TierCritical Tier = iota
	TierStable
	TierAdvanced
	TierExperimental
	TierResearch
)

// Tiers lists every tier from strictest to least strict.
var Tiers = []Tier{TierCritical, TierStable, TierAdvanced, TierExperimental, TierResearch}

var tierNames = map[Tier]string{
	TierCritical:     "critical",
	TierStable:       "stable",
	TierAdvanced:     "advanced",
	TierExperimental: "experimental",
	TierResearch:     "research",
}

var tierByName = map[string]Tier{
	"critical":     TierCritical,
	"stable":       TierStable,
	"advanced":     TierAdvanced,
	"experimental": TierExperimental,
	"research":     TierResearch,
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	_, ok := tierNames[t]
	return ok
}

// Next returns the next less-strict tier used for tier degradation.
// Research has no successor.
func (t Tier) Next() (Tier, bool) {
	if !t.Valid() || t == TierResearch {
		return t, false
	}
	return t + 1, true
}

// ParseTier maps a config name to a Tier.
func ParseTier(s string) (Tier, error) {
	t, ok := tierByName[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown tier %q", s)
	}
	return t, nil
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(b []byte) error {
	parsed, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
