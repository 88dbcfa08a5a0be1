// Package analysis recovers structured coaching results from model output
// that may still be streaming, truncated or wrapped in markdown.
package analysis

import "slices"

// RoleSuggestion is one suggested role. It counts as resolved only when both
// Role and Match are known.
type RoleSuggestion struct {
	Role              string   `json:"role" mapstructure:"role"`
	Match             int      `json:"match" mapstructure:"match"`
	Description       string   `json:"description" mapstructure:"description"`
	WhyItFits         string   `json:"whyItFits,omitempty" mapstructure:"whyItFits"`
	SkillsToHighlight []string `json:"skillsToHighlight,omitempty" mapstructure:"skillsToHighlight"`
	SkillsToDevelop   []string `json:"skillsToDevelop,omitempty" mapstructure:"skillsToDevelop"`
}

// Result is the structured answer of a coaching request. Every field is
// optional. A nil slice means the key has not been seen; an empty non-nil
// slice means the key was seen without any resolved element yet.
type Result struct {
	Analysis               string           `json:"analysis,omitempty" mapstructure:"analysis"`
	Suggestions            []RoleSuggestion `json:"suggestions,omitempty" mapstructure:"suggestions"`
	OverallStrengths       []string         `json:"overallStrengths,omitempty" mapstructure:"overallStrengths"`
	ImprovementsToConsider []string         `json:"improvementsToConsider,omitempty" mapstructure:"improvementsToConsider"`
}

// IsEmpty reports whether no field carries data.
func (r Result) IsEmpty() bool {
	return r.Analysis == "" &&
		len(r.Suggestions) == 0 &&
		len(r.OverallStrengths) == 0 &&
		len(r.ImprovementsToConsider) == 0
}

// Clone returns a deep copy, so snapshots handed to observers never alias.
func (r Result) Clone() Result {
	out := Result{
		Analysis:               r.Analysis,
		OverallStrengths:       slices.Clone(r.OverallStrengths),
		ImprovementsToConsider: slices.Clone(r.ImprovementsToConsider),
	}

	if r.Suggestions != nil {
		out.Suggestions = make([]RoleSuggestion, len(r.Suggestions))
		for i, s := range r.Suggestions {
			s.SkillsToHighlight = slices.Clone(s.SkillsToHighlight)
			s.SkillsToDevelop = slices.Clone(s.SkillsToDevelop)
			out.Suggestions[i] = s
		}
	}

	return out
}
