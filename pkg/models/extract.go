package models

import "regexp"

// issueKeyPattern matches issue-tracker keys like "PRD-16975". The project
// prefix must be at least two uppercase letters so short acronyms in prose
// ("A-1 sauce") don't match.
var issueKeyPattern = regexp.MustCompile(`\b[A-Z]{2,}-\d+\b`)

// MentionPattern matches user mentions in message text, e.g. <@U02JRGK9TCG>.
// The capture group is the user ID.
var MentionPattern = regexp.MustCompile(`<@(U[A-Z0-9]+)>`)

// ExtractIssueKeys returns the issue keys mentioned in text, deduplicated
// with first-occurrence order preserved. Returns an empty (non-nil) slice
// when there are no matches so callers can persist it as an empty list.
func ExtractIssueKeys(text string) []string {
	matches := issueKeyPattern.FindAllString(text, -1)
	keys := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		keys = append(keys, m)
	}
	return keys
}

// ExtractMentionedUserIDs returns the user IDs mentioned in text,
// deduplicated with first-occurrence order preserved.
func ExtractMentionedUserIDs(text string) []string {
	matches := MentionPattern.FindAllStringSubmatch(text, -1)
	ids := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		ids = append(ids, m[1])
	}
	return ids
}
