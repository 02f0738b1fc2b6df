package ai

import (
	"fmt"
	"strings"
)

// FallbackDisclaimer closes every templated draft.
const FallbackDisclaimer = "This answer is an AI-generated draft and will be published as the official answer after an administrator reviews and edits it."

var fallbackSteps = []string{
	"We are reviewing your question and will follow up as soon as a support agent confirms the answer.",
	"If you can, share more details or steps to reproduce; they help us answer more precisely.",
	"Progress on this question keeps being updated on this page.",
}

// FallbackDraft builds a draft from the question alone, without any external call.
func FallbackDraft(in DraftInput) string {
	requester := strings.TrimSpace(in.AuthorName)
	if requester == "" {
		requester = "there"
	}

	lines := strings.Split(in.Body, "\n")
	if len(lines) > 2 {
		lines = lines[:2]
	}
	summary := strings.TrimSpace(strings.Join(lines, "\n"))

	parts := []string{
		fmt.Sprintf("Hi %s, thank you for reaching out.", requester),
		"This is an automatically generated draft prepared before an administrator review.",
	}
	if summary != "" {
		parts = append(parts, "Summary of your question:\n"+summary)
	}
	parts = append(parts, "Please note the following:")
	for i, s := range fallbackSteps {
		parts = append(parts, fmt.Sprintf("%d. %s", i+1, s))
	}
	parts = append(parts, FallbackDisclaimer)

	return strings.Join(parts, "\n\n")
}
