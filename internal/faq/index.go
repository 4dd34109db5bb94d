package faq

import (
	"strings"

	"helpdesk-bot/internal/domain"
)

// Index is a static question->answer lookup table. Entries keep their
// declared order; lookups resolve to the first entry whose key or synonym
// matches. Read-only after construction, safe for concurrent use.
type Index struct {
	entries []domain.FaqEntry
}

// New builds an Index from the given entries, preserving their order.
func New(entries []domain.FaqEntry) *Index {
	copied := make([]domain.FaqEntry, len(entries))
	copy(copied, entries)
	return &Index{entries: copied}
}

// Lookup matches text against every entry's key and synonyms after
// normalization. A miss is a normal negative result, not an error.
func (i *Index) Lookup(text string) (string, bool) {
	q := normalize(text)
	if q == "" {
		return "", false
	}
	for _, e := range i.entries {
		if normalize(e.Key) == q {
			return e.Answer, true
		}
		for _, syn := range e.Synonyms {
			if normalize(syn) == q {
				return e.Answer, true
			}
		}
	}
	return "", false
}

// All returns every entry in declared order, for the "list FAQs" command.
func (i *Index) All() []domain.FaqEntry {
	out := make([]domain.FaqEntry, len(i.entries))
	copy(out, i.entries)
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Defaults returns the seed FAQ entries shipped with the bot.
func Defaults() []domain.FaqEntry {
	return []domain.FaqEntry{
		{
			Key:    "working hours",
			Answer: "We're open daily 9 AM – 7 PM PT.",
			Synonyms: []string{
				"hours",
				"what time",
				"what time are your working hours?",
			},
		},
		{
			Key:    "pricing",
			Answer: "Basic support plan is $49/mo. Tell us what you need — we'll suggest an option.",
			Synonyms: []string{
				"price",
				"how much does it cost?",
			},
		},
		{
			Key:    "refund",
			Answer: "For a refund, reply with your order number and a short description. We resolve most cases within 48 hours.",
			Synonyms: []string{
				"how do i get a refund?",
			},
		},
	}
}
