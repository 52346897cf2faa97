package leadscoring

import (
	"strings"

	"github.com/kalambet/optilead/internal/ollama"
)

const systemPrompt = `You are an AI assistant that scores leads based on provided data and scoring rules.`

// BuildPrompt constructs the chat messages for scoring one lead.
func BuildPrompt(in Input) []ollama.Message {
	var sb strings.Builder
	sb.WriteString("Here's the lead data:\n")
	sb.WriteString(in.LeadData)
	sb.WriteString("\n\nHere are the scoring rules defined by the user:\n")
	sb.WriteString(in.ScoringRules)
	sb.WriteString("\n\nHere are the results from data validation checks (if available):\n")
	if in.DataValidationResults != "" {
		sb.WriteString(in.DataValidationResults)
	} else {
		sb.WriteString("No data validation results provided.")
	}
	sb.WriteString("\n\nBased on this information, calculate a lead score, determine the lead's priority, and provide a rationale for the score.\n")
	sb.WriteString("Follow this format:\n\nleadScore: <calculated_score>\npriority: <priority_level>\nrationale: <score_rationale>")

	return []ollama.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: sb.String()},
	}
}
