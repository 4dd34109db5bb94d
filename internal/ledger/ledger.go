package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"helpdesk-bot/internal/domain"
)

// Store mirrors ledger state to durable storage. SaveStats is called
// synchronously on every Record; LoadAllStats rehydrates at startup.
type Store interface {
	SaveStats(ctx context.Context, stats domain.UserStats) error
	LoadAllStats(ctx context.Context) ([]domain.UserStats, error)
}

// Ledger keeps per-user usage counters for the life of the process.
// Records are created lazily on first observation of a user id and are
// never evicted. All methods are safe for concurrent use; updates for the
// same user cannot be lost.
type Ledger struct {
	mu    sync.Mutex
	stats map[string]*domain.UserStats
	store Store // optional durable mirror
	log   *slog.Logger
}

// New creates an in-memory Ledger. store may be nil to disable the durable
// mirror.
func New(store Store, log *slog.Logger) *Ledger {
	if log == nil {
		log = slog.Default()
	}
	return &Ledger{
		stats: make(map[string]*domain.UserStats),
		store: store,
		log:   log,
	}
}

// Rehydrate replaces in-memory state with the durable store's content.
// Called once at startup, before the ledger starts taking records.
func (l *Ledger) Rehydrate(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	loaded, err := l.store.LoadAllStats(ctx)
	if err != nil {
		return fmt.Errorf("ledger: rehydrate: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range loaded {
		copied := s
		if copied.TagCounts == nil {
			copied.TagCounts = make(map[string]int)
		}
		l.stats[s.UserID] = &copied
	}
	l.log.Info("ledger rehydrated", "users", len(loaded))
	return nil
}

// Record counts one processed message for userID: increments the message
// count, each matched tag's counter, and the running token total. It returns
// the updated snapshot. When a durable store is configured the snapshot is
// mirrored before returning; a mirror failure is returned alongside the
// successfully updated in-memory snapshot and must not fail the turn.
func (l *Ledger) Record(ctx context.Context, userID string, tags []string, tokensUsed int) (domain.UserStats, error) {
	if userID == "" {
		return domain.UserStats{}, errors.New("ledger: user id must not be empty")
	}

	l.mu.Lock()
	entry, ok := l.stats[userID]
	if !ok {
		entry = &domain.UserStats{UserID: userID, TagCounts: make(map[string]int)}
		l.stats[userID] = entry
	}
	entry.MessageCount++
	for _, tag := range tags {
		entry.TagCounts[tag]++
	}
	entry.TokensSpent += tokensUsed
	snapshot := copyStats(entry)
	l.mu.Unlock()

	if l.store != nil {
		if err := l.store.SaveStats(ctx, snapshot); err != nil {
			return snapshot, fmt.Errorf("ledger: mirror stats for %s: %w", userID, err)
		}
	}
	return snapshot, nil
}

// Get returns the current snapshot for userID. A missing entry is a normal
// negative result.
func (l *Ledger) Get(userID string) (domain.UserStats, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.stats[userID]
	if !ok {
		return domain.UserStats{}, false
	}
	return copyStats(entry), true
}

// Reset drops the in-memory entry for userID. The durable mirror keeps its
// last snapshot; the next Record starts a fresh one.
func (l *Ledger) Reset(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.stats, userID)
}

func copyStats(s *domain.UserStats) domain.UserStats {
	out := *s
	out.TagCounts = make(map[string]int, len(s.TagCounts))
	for k, v := range s.TagCounts {
		out.TagCounts[k] = v
	}
	return out
}
