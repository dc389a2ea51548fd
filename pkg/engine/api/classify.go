package api

import (
	"regexp"
	"strings"
)

// mutationVerbs is the fixed verb set §4.1 pins for recognizing a mutation
// request. Kept as a set literal rather than derived so the classifier
// stays a pure, test-seedable function.
var mutationVerbs = map[string]bool{
	"create": true, "write": true, "add": true, "make": true,
	"build": true, "generate": true, "fix": true, "update": true,
	"modify": true, "refactor": true, "rename": true, "delete": true,
	"remove": true, "implement": true,
}

// pathLikeToken matches a whitespace-delimited word containing a path
// separator, or a dot followed by a plausible 1-4 character extension.
var pathLikeToken = regexp.MustCompile(`[^\s]*[/\\][^\s]*|[^\s]*\.[A-Za-z0-9]{1,4}\b`)

var quotedFilename = regexp.MustCompile(`["'][^"']+\.[A-Za-z0-9]{1,4}["']`)

// classifyMutationRequest reports whether msg reads as a request to change
// files on disk: one of the pinned verbs plus a path-like token or an
// explicit quoted filename.
func classifyMutationRequest(msg string) bool {
	hasVerb := false
	for _, word := range strings.Fields(strings.ToLower(msg)) {
		word = strings.Trim(word, ".,!?:;\"'")
		if mutationVerbs[word] {
			hasVerb = true
			break
		}
	}
	if !hasVerb {
		return false
	}
	return pathLikeToken.MatchString(msg) || quotedFilename.MatchString(msg)
}

// skillCreationVerbs: the verb set that, combined with the word "skill",
// signals the user wants a new SKILL.md authored rather than a one-off
// change to existing files.
var skillCreationVerbs = map[string]bool{
	"create": true, "make": true, "build": true, "write": true,
	"add": true, "generate": true,
}

// classifySkillCreationRequest reports whether msg asks for a new skill to
// be authored (as opposed to merely invoking an existing one).
func classifySkillCreationRequest(msg string) bool {
	lower := strings.ToLower(msg)
	if !strings.Contains(lower, "skill") {
		return false
	}
	for _, word := range strings.Fields(lower) {
		word = strings.Trim(word, ".,!?:;\"'")
		if skillCreationVerbs[word] {
			return true
		}
	}
	return false
}

// IsMutationRequest is the exported entry point used by the Model
// Execution Loop to decide whether a mutating tool must run before
// respond_text is accepted (§4.1).
func IsMutationRequest(userMessage string) bool {
	return classifyMutationRequest(userMessage)
}

// IsSkillCreationRequest is the exported entry point used by the Model
// Execution Loop's skill-file placement check (§4.1, §9).
func IsSkillCreationRequest(userMessage string) bool {
	return classifySkillCreationRequest(userMessage)
}
