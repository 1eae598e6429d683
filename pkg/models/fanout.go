package models

import (
	"sort"
	"strings"
)

// Combination is one coordinate of a fan-out, one value per axis
type Combination map[string]string

// Key returns a canonical representation of the combination, axes sorted by name
func (c Combination) Key() string {
	axes := make([]string, 0, len(c))
	for axis := range c {
		axes = append(axes, axis)
	}
	sort.Strings(axes)

	parts := make([]string, 0, len(axes))
	for _, axis := range axes {
		parts = append(parts, axis+"="+c[axis])
	}
	return strings.Join(parts, ",")
}

func (c Combination) String() string {
	return c.Key()
}

// MemberResult is the finished result of one fan-out member
type MemberResult struct {
	Combination Combination `json:"combination" yaml:"combination"`
	Result      BuildResult `json:"result" yaml:"result"`
}

// FanoutRun is a finished fan-out: the parent record plus every member result
type FanoutRun struct {
	ParentID string
	Members  []MemberResult
}

// RerunPlan is the outcome of partial rerun selection for a fan-out
type RerunPlan struct {
	// ResubmitParent is set when the parent is rescheduled and Skipped members are not run again
	ResubmitParent bool
	Members        []Combination
	Skipped        []Combination
	// FellBack is set when a filter selected nothing and all failing members were taken instead
	FellBack bool
}

// Empty reports whether the plan selects no member
func (p RerunPlan) Empty() bool {
	return len(p.Members) == 0
}

// Keys returns the canonical keys of the selected members
func (p RerunPlan) Keys() []string {
	keys := make([]string, 0, len(p.Members))
	for _, c := range p.Members {
		keys = append(keys, c.Key())
	}
	return keys
}
