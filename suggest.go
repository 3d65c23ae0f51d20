package mcplug

import "github.com/agnivade/levenshtein"

// SuggestTool returns the known tool name closest to input when exactly one
// candidate is within Levenshtein distance 2. Ambiguous or distant matches
// return the empty string so callers don't offer misleading suggestions.
func SuggestTool(input string, known []string) string {
	match := ""
	count := 0

	for _, name := range known {
		if levenshtein.ComputeDistance(input, name) <= 2 {
			match = name
			count++
		}
	}

	if count == 1 {
		return match
	}
	return ""
}
