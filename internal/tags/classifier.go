package tags

import (
	"strings"

	"helpdesk-bot/internal/domain"
)

// Classifier assigns topic tags to message text by ordered keyword rules.
// A rule fires when any of its keywords appears in the text
// (case-insensitive substring); every firing rule contributes its tag once.
// Pure and read-only after construction, safe for concurrent use.
type Classifier struct {
	rules []domain.TagRule
}

// New builds a Classifier from the given rules, preserving their order.
func New(rules []domain.TagRule) *Classifier {
	copied := make([]domain.TagRule, len(rules))
	copy(copied, rules)
	return &Classifier{rules: copied}
}

// Classify returns the tags whose rules match text, in rule order.
// An empty result means an untagged message.
func (c *Classifier) Classify(text string) []string {
	t := strings.ToLower(text)
	var matched []string
	for _, rule := range c.rules {
		for _, kw := range rule.Keywords {
			if kw != "" && strings.Contains(t, strings.ToLower(kw)) {
				matched = append(matched, rule.Tag)
				break
			}
		}
	}
	return matched
}

// Defaults returns the seed tag rules shipped with the bot.
func Defaults() []domain.TagRule {
	return []domain.TagRule{
		{Tag: "billing", Keywords: []string{"price", "pricing", "refund", "invoice", "payment"}},
		{Tag: "tech", Keywords: []string{"error", "bug", "install", "setup", "integration", "timeout"}},
		{Tag: "sales", Keywords: []string{"buy", "purchase", "demo", "trial"}},
	}
}
