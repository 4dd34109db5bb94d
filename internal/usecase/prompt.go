package usecase

import (
	"fmt"
	"strings"

	"helpdesk-bot/internal/domain"
)

// buildPromptMessages frames one user question with the fixed first-line
// support persona. No conversation history is carried; each call stands alone.
func buildPromptMessages(botName, orgName, question string) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: "system", Content: buildSystemPrompt(botName, orgName)},
		{Role: "user", Content: question},
	}
}

func buildSystemPrompt(botName, orgName string) string {
	return strings.Join([]string{
		fmt.Sprintf("You are %s, a concise, helpful first-line support agent for %s.", botName, orgName),
		"Rules:",
		"- Greet briefly, ask one clarifying question if needed.",
		"- Offer concrete next steps. Use numbered lists for procedures.",
		"- If you don't know, say so and propose how to find out.",
		"- Keep answers under 8 sentences unless asked for details.",
		"- If the user is frustrated, acknowledge and solve.",
		"- Always reply in English.",
	}, "\n")
}
