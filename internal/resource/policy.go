package resource

import (
	"fmt"
	"sort"
	"time"

	"github.com/vietddude/stability/internal/core/domain"
)

// DefaultPolicies returns the stock throttle ladder.
func DefaultPolicies() []domain.ThrottlePolicy {
	return []domain.ThrottlePolicy{
		{Level: domain.ThrottleNone, CPUThreshold: 0, MemoryThreshold: 0, ReductionFactor: 1.0, Cooldown: 0},
		{Level: domain.ThrottleLight, CPUThreshold: 60, MemoryThreshold: 70, ReductionFactor: 0.9, Cooldown: 10 * time.Second},
		{Level: domain.ThrottleModerate, CPUThreshold: 75, MemoryThreshold: 80, ReductionFactor: 0.7, Cooldown: 30 * time.Second},
		{Level: domain.ThrottleAggressive, CPUThreshold: 85, MemoryThreshold: 90, ReductionFactor: 0.5, Cooldown: 60 * time.Second},
		{Level: domain.ThrottleEmergency, CPUThreshold: 95, MemoryThreshold: 95, ReductionFactor: 0.2, Cooldown: 120 * time.Second},
	}
}

// policySet indexes the ladder by level.
type policySet map[domain.ThrottleLevel]domain.ThrottlePolicy

func newPolicySet(overrides []domain.ThrottlePolicy) (policySet, error) {
	set := make(policySet)
	for _, p := range DefaultPolicies() {
		set[p.Level] = p
	}
	for _, p := range overrides {
		if p.Level < domain.ThrottleNone || p.Level > domain.ThrottleEmergency {
			return nil, fmt.Errorf("unknown throttle level %d", p.Level)
		}
		if p.ReductionFactor <= 0 || p.ReductionFactor > 1 {
			return nil, fmt.Errorf("%s: reduction factor must be in (0,1], got %v", p.Level, p.ReductionFactor)
		}
		set[p.Level] = p
	}
	return set, nil
}

// target returns the highest policy reached by the given usage.
func (s policySet) target(cpu, mem float64) domain.ThrottlePolicy {
	levels := make([]domain.ThrottleLevel, 0, len(s))
	for l := range s {
		levels = append(levels, l)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] > levels[j] })

	for _, l := range levels {
		if l == domain.ThrottleNone {
			continue
		}
		if p := s[l]; p.Matches(cpu, mem) {
			return p
		}
	}
	return s[domain.ThrottleNone]
}

// Policies returns the ladder ordered from None to Emergency.
func (s policySet) list() []domain.ThrottlePolicy {
	out := make([]domain.ThrottlePolicy, 0, len(s))
	for l := domain.ThrottleNone; l <= domain.ThrottleEmergency; l++ {
		if p, ok := s[l]; ok {
			out = append(out, p)
		}
	}
	return out
}
