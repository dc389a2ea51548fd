package session

import (
	"strings"

	"zagent/pkg/engine/api"
)

// completionRetryBudget bounds how many corrective reprompts the Completion
// Guard injects before surfacing a reliability failure instead of a success
// response (§4.4).
const completionRetryBudget = 2

// correctiveReprompt is the message the Guard injects as the user's next
// turn when a turn classifies as insufficient progress on an
// implementation-intent request.
const correctiveReprompt = "The previous response made no tool calls and produced no usable output. Continue the task and make concrete progress, or explain what is blocking it."

// blockerPhrases are heuristic signals that the assistant described an
// obstacle rather than silently stalling.
var blockerPhrases = []string{
	"i cannot", "i can't", "i'm unable", "i am unable",
	"permission denied", "not possible", "requires manual",
	"unable to proceed", "out of scope", "needs clarification",
}

// implementationVerbs are heuristic signals that a user message is asking
// for a change to be made, as opposed to a question or status check.
var implementationVerbs = []string{
	"implement", "fix", "add", "write", "create", "refactor", "update",
	"build", "remove", "delete", "rename", "migrate", "change", "make",
}

// classifyCompletion evaluates one finished turn's evidence against the
// Completion Guard's three outcomes: CompletedWithWork, CompletedWithBlocker,
// and InsufficientProgress (§4.4). Evidence inputs are the mutating tool-call
// count, the files the turn touched, and the final response text.
func classifyCompletion(toolCalls int, filesTouched []string, response string) api.CompletionOutcome {
	lower := strings.ToLower(response)
	for _, phrase := range blockerPhrases {
		if strings.Contains(lower, phrase) {
			return api.CompletedWithBlocker
		}
	}
	if toolCalls > 0 || len(filesTouched) > 0 {
		return api.CompletedWithWork
	}
	if strings.TrimSpace(response) != "" {
		return api.CompletedWithWork
	}
	return api.InsufficientProgress
}

// looksLikeImplementationIntent is a cheap heuristic over the user's request
// text: does it read like an instruction to change something.
func looksLikeImplementationIntent(text string) bool {
	lower := strings.ToLower(text)
	for _, verb := range implementationVerbs {
		if strings.Contains(lower, verb) {
			return true
		}
	}
	return false
}
