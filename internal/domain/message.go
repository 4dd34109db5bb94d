package domain

import "time"

// ChatMessage is the provider-agnostic chat message shape used by prompt
// assembly and the LLM integration.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Message is one inbound chat turn. Immutable input to the pipeline.
type Message struct {
	UserID    string
	Text      string
	Timestamp time.Time
}

// FaqEntry is a static question with its canned answer. Identity is Key;
// synonyms are alternative phrasings that resolve to the same answer.
type FaqEntry struct {
	Key      string
	Answer   string
	Synonyms []string
}

// TagRule associates a topic tag with the keywords that trigger it.
type TagRule struct {
	Tag      string
	Keywords []string
}

// UserStats holds the per-user usage counters maintained by the ledger.
type UserStats struct {
	UserID       string
	MessageCount int
	TagCounts    map[string]int
	TokensSpent  int
}

// ExportRecord is one completed turn, handed to the optional export sink.
type ExportRecord struct {
	ID        string
	Timestamp time.Time
	UserID    string
	Input     string
	Reply     string
	Tokens    int
}
