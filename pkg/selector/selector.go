package selector

import (
	"github.com/speedrun-hq/rerunner/pkg/models"
)

// CombinationPolicy is the part of a retry policy the selector needs
type CombinationPolicy interface {
	ShouldScheduleCombination(result models.BuildResult) bool
	RerunWholeFanout() bool
}

// CombinationFilter narrows which failing members are rerun
type CombinationFilter interface {
	Matches(c models.Combination) bool
}

// FilterFunc adapts a function to CombinationFilter
type FilterFunc func(c models.Combination) bool

func (f FilterFunc) Matches(c models.Combination) bool { return f(c) }

// Select decides which members of a finished fan-out are rerun.
//
// Without a filter every member failing ShouldScheduleCombination is selected. With a filter
// a member must also match it; if that leaves nothing, all failing members are selected.
func Select(p CombinationPolicy, run models.FanoutRun, filter CombinationFilter) models.RerunPlan {
	failing := make([]models.MemberResult, 0, len(run.Members))
	for _, m := range run.Members {
		if p.ShouldScheduleCombination(m.Result) {
			failing = append(failing, m)
		}
	}

	selected := failing
	fellBack := false
	if filter != nil {
		narrowed := make([]models.MemberResult, 0, len(failing))
		for _, m := range failing {
			if filter.Matches(m.Combination) {
				narrowed = append(narrowed, m)
			}
		}
		// TODO: confirm with product that an empty selection should widen instead of rerunning nothing
		if len(narrowed) == 0 && len(failing) > 0 {
			fellBack = true
		} else {
			selected = narrowed
		}
	}

	plan := models.RerunPlan{
		ResubmitParent: p.RerunWholeFanout(),
		FellBack:       fellBack,
	}

	chosen := make(map[string]struct{}, len(selected))
	for _, m := range selected {
		plan.Members = append(plan.Members, m.Combination)
		chosen[m.Combination.Key()] = struct{}{}
	}
	if plan.ResubmitParent {
		for _, m := range run.Members {
			if _, ok := chosen[m.Combination.Key()]; !ok {
				plan.Skipped = append(plan.Skipped, m.Combination)
			}
		}
	}
	return plan
}
