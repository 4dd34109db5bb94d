package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"helpdesk-bot/internal/domain"
	"helpdesk-bot/internal/faq"
	"helpdesk-bot/internal/gateway"
	"helpdesk-bot/internal/tags"
)

// FallbackText is served whenever the completion gateway cannot produce an
// answer. The user always gets a reply, never a visible fault.
const FallbackText = "Sorry, my AI engine is busy right now. Please try again in a minute."

const faqHeader = "FAQ — quick answers:"

// Gateway is the guarded completion call consumed by the pipeline.
type Gateway interface {
	Complete(ctx context.Context, messages []domain.ChatMessage) gateway.Result
}

// Ledger is the per-user usage counter store consumed by the pipeline.
type Ledger interface {
	Record(ctx context.Context, userID string, tags []string, tokensUsed int) (domain.UserStats, error)
	Get(userID string) (domain.UserStats, bool)
	Reset(userID string)
}

// Reply is the outcome of one handled message. Export is nil for control
// commands; for pipeline messages it is the record handed to the export sink
// by the transport.
type Reply struct {
	Text   string
	Export *domain.ExportRecord
	Stats  domain.UserStats
}

// Service runs the message-handling pipeline: control-command routing,
// FAQ-first answer selection, the guarded completion call, unconditional
// tagging, and exactly one ledger record per processed message. Stateless
// between messages; all per-user state lives in the ledger.
type Service struct {
	faqIndex   *faq.Index
	classifier *tags.Classifier
	gw         Gateway
	ledger     Ledger
	botName    string
	orgName    string
	log        *slog.Logger
}

// NewService wires the pipeline. All collaborators are required.
func NewService(faqIndex *faq.Index, classifier *tags.Classifier, gw Gateway, ledger Ledger, botName, orgName string, log *slog.Logger) (*Service, error) {
	if faqIndex == nil {
		return nil, errors.New("usecase: faq index must not be nil")
	}
	if classifier == nil {
		return nil, errors.New("usecase: tag classifier must not be nil")
	}
	if gw == nil {
		return nil, errors.New("usecase: gateway must not be nil")
	}
	if ledger == nil {
		return nil, errors.New("usecase: ledger must not be nil")
	}
	if strings.TrimSpace(botName) == "" {
		botName = "Helpdesk Assistant"
	}
	if strings.TrimSpace(orgName) == "" {
		orgName = "Your Company"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		faqIndex:   faqIndex,
		classifier: classifier,
		gw:         gw,
		ledger:     ledger,
		botName:    botName,
		orgName:    orgName,
		log:        log,
	}, nil
}

// Respond handles one inbound message end to end and always returns a reply.
func (s *Service) Respond(ctx context.Context, msg domain.Message) Reply {
	text := strings.TrimSpace(msg.Text)

	if replyText, ok := s.control(text, msg.UserID); ok {
		return Reply{Text: replyText}
	}

	var (
		replyText  string
		tokensUsed int
	)
	if answer, ok := s.faqIndex.Lookup(text); ok {
		replyText = answer
	} else {
		res := s.gw.Complete(ctx, buildPromptMessages(s.botName, s.orgName, text))
		if res.Err != nil {
			s.log.Warn("completion failed, serving fallback",
				"user", msg.UserID, "kind", string(res.Err.Kind), "err", res.Err.Detail)
			replyText = FallbackText
		} else {
			replyText = res.Text
			tokensUsed = res.TokensUsed
		}
	}

	// Tagging and the ledger record run exactly once per message, whichever
	// branch produced the reply.
	matched := s.classifier.Classify(text)
	stats, err := s.ledger.Record(ctx, msg.UserID, matched, tokensUsed)
	if err != nil {
		s.log.Warn("ledger mirror failed", "user", msg.UserID, "err", err)
	}

	replyText = annotate(replyText, matched)

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	export := &domain.ExportRecord{
		ID:        newUUID(),
		Timestamp: ts,
		UserID:    msg.UserID,
		Input:     msg.Text,
		Reply:     replyText,
		Tokens:    tokensUsed,
	}
	return Reply{Text: replyText, Export: export, Stats: stats}
}

// control recognizes command-style inputs and answers them without touching
// the classifier or the ledger counters.
func (s *Service) control(text, userID string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	cmd := strings.ToLower(strings.Fields(text)[0])
	// Telegram appends @botname in group chats.
	if i := strings.Index(cmd, "@"); i > 0 {
		cmd = cmd[:i]
	}
	switch cmd {
	case "/start":
		return s.startText(), true
	case "/help":
		return s.helpText(), true
	case "/faq":
		return s.faqText(), true
	case "/stats":
		return s.statsText(userID), true
	case "/reset":
		s.ledger.Reset(userID)
		return "Counters cleared.", true
	default:
		return "Unknown command. Try /help.", true
	}
}

func (s *Service) startText() string {
	return fmt.Sprintf("Hi! I'm %s. Ask a question — I'll help or guide you to the next step.\nUseful commands: /help, /faq, /stats, /reset", s.botName)
}

func (s *Service) helpText() string {
	return "Tell me what you need. Commands: /faq — show quick answers; /stats — your usage; /reset — clear your counters."
}

func (s *Service) faqText() string {
	lines := []string{faqHeader}
	for _, e := range s.faqIndex.All() {
		lines = append(lines, fmt.Sprintf("• %s — %s", e.Key, e.Answer))
	}
	return strings.Join(lines, "\n")
}

func (s *Service) statsText(userID string) string {
	stats, ok := s.ledger.Get(userID)
	if !ok {
		return "No stats yet — send me a message first."
	}
	out := fmt.Sprintf("Your stats: %d messages, %d tokens spent.", stats.MessageCount, stats.TokensSpent)
	if len(stats.TagCounts) == 0 {
		return out
	}
	names := make([]string, 0, len(stats.TagCounts))
	for tag := range stats.TagCounts {
		names = append(names, tag)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, tag := range names {
		parts = append(parts, fmt.Sprintf("%s ×%d", tag, stats.TagCounts[tag]))
	}
	return out + "\nTags: " + strings.Join(parts, ", ")
}

// annotate appends the bracketed tag list to a reply, once per tag.
func annotate(replyText string, matched []string) string {
	if len(matched) == 0 {
		return replyText
	}
	return replyText + " [tags: " + strings.Join(matched, ", ") + "]"
}

var newUUID = func() string {
	return uuid.NewString()
}
