// Package matcher decides which strategies an event activates.
package matcher

import (
	"strings"

	"github.com/dwsmith1983/tripwire/pkg/types"
)

// Match is a strategy selected by an event and the trigger that selected it.
type Match struct {
	Strategy     types.Strategy
	Trigger      types.Trigger
	TriggerIndex int
}

// Matches returns the strategies ev activates, in the order given. Each
// strategy appears at most once, paired with its first matching trigger.
// Callers pass only active strategies.
func Matches(ev types.Event, strategies []types.Strategy) []Match {
	var out []Match
	for _, s := range strategies {
		for i, t := range s.Triggers {
			if TriggerMatches(t, ev) {
				out = append(out, Match{Strategy: s, Trigger: t, TriggerIndex: i})
				break
			}
		}
	}
	return out
}

// TriggerMatches reports whether t fires for ev. The source account must match
// exactly (case-sensitive); keywords match as case-insensitive substrings of
// the content, and an empty keyword list matches any content.
func TriggerMatches(t types.Trigger, ev types.Event) bool {
	if t.Kind != ev.Kind {
		return false
	}
	if t.SourceAccount != "" && t.SourceAccount != ev.SourceAccount {
		return false
	}
	if len(t.Keywords) == 0 {
		return true
	}
	content := strings.ToLower(ev.Content)
	for _, kw := range t.Keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(content, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
