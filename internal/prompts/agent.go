package prompts

import "strings"

// EmptyResponseNudge is appended as a user message when the model
// returns neither text nor tool calls.
const EmptyResponseNudge = "Please provide a response."

// ExhaustedMessage is returned when the round limit is reached before
// the model produced a final answer.
const ExhaustedMessage = "I've reached the maximum processing steps for this request. Please check the latest records and try again with a more specific request."

// FailureMessage is shown to users when the model cannot be reached.
const FailureMessage = "Sorry, I couldn't process that request right now. Please try again in a moment."

// ResultsMarker opens every synthetic tool results message.
const ResultsMarker = "[TOOL EXECUTION RESULTS]"

// resultsInstruction closes the results message.
const resultsInstruction = `Reply to the user with a brief confirmation based ONLY on the results above.
Do not mention earlier topics. If an operation failed, say so plainly and
never describe it as done.`

// ToolResultsMessage folds one round's formatted results into a single
// message.
func ToolResultsMessage(results []string) string {
	var sb strings.Builder
	sb.WriteString(ResultsMarker)
	sb.WriteString("\n\n")
	for _, r := range results {
		sb.WriteString(strings.TrimRight(r, "\n"))
		sb.WriteString("\n\n")
	}
	sb.WriteString(resultsInstruction)
	return sb.String()
}

// IsToolResults reports whether content is a synthetic results message.
func IsToolResults(content string) bool {
	return strings.HasPrefix(strings.TrimSpace(content), ResultsMarker)
}
