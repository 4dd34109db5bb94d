package gateway

import (
	"context"

	"helpdesk-bot/internal/domain"
)

// CannedCompleter is a deterministic stand-in for the remote provider, used
// by self-test mode. It never touches the network and needs no credentials.
type CannedCompleter struct {
	Reply string
}

// NewCannedCompleter returns a completer that answers every prompt with a
// fixed stubbed response.
func NewCannedCompleter() *CannedCompleter {
	return &CannedCompleter{Reply: "[canned] This is a stubbed reply; the completion provider is disabled."}
}

func (c *CannedCompleter) Complete(_ context.Context, _ []domain.ChatMessage, _ int) (string, int, error) {
	return c.Reply, 0, nil
}
