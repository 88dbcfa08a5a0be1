package analysis

import (
	"encoding/json"

	"github.com/mitchellh/mapstructure"
)

// ExtractPartial recovers whatever structure is already present in a possibly
// incomplete response. It never fails: text without recognizable structure
// yields an empty Result. The same input always yields the same output.
func ExtractPartial(text string) Result {
	cleaned := stripFences(text)

	if object, ok := balancedObject(cleaned); ok {
		if res, ok := parseStrict(object); ok {
			return res
		}
	}

	var res Result
	if value, _, ok := stringField(cleaned, "analysis"); ok {
		res.Analysis = value
	}
	res.Suggestions = suggestionsPrefix(cleaned)
	res.OverallStrengths = stringArrayField(cleaned, "overallStrengths")
	res.ImprovementsToConsider = stringArrayField(cleaned, "improvementsToConsider")

	return res
}

// parseStrict decodes text as a complete JSON object.
func parseStrict(text string) (Result, bool) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(text), &raw); err != nil || raw == nil {
		return Result{}, false
	}

	var res Result
	if err := decode(raw, &res); err != nil {
		return Result{}, false
	}
	for i := range res.Suggestions {
		res.Suggestions[i].Match = clampMatch(res.Suggestions[i].Match)
	}

	return res, true
}

func decode(raw map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

func suggestionsPrefix(s string) []RoleSuggestion {
	start, ok := arrayField(s, "suggestions")
	if !ok {
		return nil
	}

	objects := objectPrefixes(s, start)
	suggestions := make([]RoleSuggestion, 0, len(objects))
	for _, object := range objects {
		if suggestion, ok := parseSuggestion(object); ok {
			suggestions = append(suggestions, suggestion)
		}
	}

	return suggestions
}

// parseSuggestion decodes one complete suggestion object, strictly first and
// field by field when the object is not valid JSON. Objects lacking a role or
// a match are rejected.
func parseSuggestion(object string) (RoleSuggestion, bool) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(object), &raw); err == nil {
		role, _ := raw["role"].(string)
		if _, hasMatch := raw["match"]; role == "" || !hasMatch {
			return RoleSuggestion{}, false
		}

		var suggestion RoleSuggestion
		if err := decode(raw, &suggestion); err != nil {
			return RoleSuggestion{}, false
		}
		suggestion.Match = clampMatch(suggestion.Match)
		return suggestion, true
	}

	role, closed, ok := stringField(object, "role")
	if !ok || !closed || role == "" {
		return RoleSuggestion{}, false
	}

	match, ok := integerField(object, "match")
	if !ok {
		return RoleSuggestion{}, false
	}

	suggestion := RoleSuggestion{
		Role:              role,
		Match:             clampMatch(match),
		SkillsToHighlight: stringArrayField(object, "skillsToHighlight"),
		SkillsToDevelop:   stringArrayField(object, "skillsToDevelop"),
	}
	if description, closed, ok := stringField(object, "description"); ok && closed {
		suggestion.Description = description
	}
	if why, closed, ok := stringField(object, "whyItFits"); ok && closed {
		suggestion.WhyItFits = why
	}

	return suggestion, true
}

// clampMatch keeps a match percentage within 0..100.
func clampMatch(n int) int {
	return min(max(n, 0), 100)
}
