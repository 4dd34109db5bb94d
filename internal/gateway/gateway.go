package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"helpdesk-bot/internal/domain"
	"helpdesk-bot/internal/integrations/openai"
)

// Completer is the remote completion provider. The gateway is its sole caller.
type Completer interface {
	Complete(ctx context.Context, messages []domain.ChatMessage, maxTokens int) (text string, tokensUsed int, err error)
}

// Budget bounds one guarded completion call. Fixed at startup, applied to
// every call without per-call overrides.
type Budget struct {
	MaxTokens  int
	Timeout    time.Duration
	MaxRetries int // additional attempts after the first
}

// FailureKind discriminates gateway failures for the orchestrator.
type FailureKind string

const (
	// FailureExhausted means every attempt hit a retryable error.
	FailureExhausted FailureKind = "exhausted"
	// FailureFatal means a non-retryable error ended the call immediately.
	FailureFatal FailureKind = "fatal"
)

// Failure describes why a guarded call produced no completion.
type Failure struct {
	Kind   FailureKind
	Detail error
}

// Result is the typed outcome of one guarded call. Callers branch on Err
// instead of handling provider errors; Err nil means success.
type Result struct {
	Text       string
	TokensUsed int
	Err        *Failure
}

const backoffBase = 1500 * time.Millisecond

// Gateway wraps the completion provider with a token budget, per-attempt
// timeout, and bounded retry with increasing backoff. It holds no mutable
// state; calls may run concurrently without coordination.
type Gateway struct {
	provider Completer
	budget   Budget
	log      *slog.Logger

	// sleep is swapped in tests to avoid real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Gateway over the given provider.
func New(provider Completer, budget Budget, log *slog.Logger) (*Gateway, error) {
	if provider == nil {
		return nil, errors.New("gateway: provider must not be nil")
	}
	if budget.MaxTokens <= 0 {
		return nil, errors.New("gateway: max tokens must be positive")
	}
	if budget.Timeout <= 0 {
		return nil, errors.New("gateway: timeout must be positive")
	}
	if budget.MaxRetries < 0 {
		return nil, errors.New("gateway: max retries must not be negative")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		provider: provider,
		budget:   budget,
		log:      log,
		sleep:    sleepCtx,
	}, nil
}

// Complete runs one guarded completion. Transient provider errors (network,
// timeout, rate limit, 5xx) are retried up to MaxRetries additional times
// with a backoff delay that grows linearly between attempts. Non-retryable
// errors fail immediately. Failure is always a typed result, never a raised
// error.
func (g *Gateway) Complete(ctx context.Context, messages []domain.ChatMessage) Result {
	var lastErr error
	attempts := g.budget.MaxRetries + 1

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := g.sleep(ctx, backoffBase*time.Duration(attempt)); err != nil {
				return Result{Err: &Failure{Kind: FailureExhausted, Detail: err}}
			}
		}

		text, tokens, err := g.callOnce(ctx, messages)
		if err == nil {
			if tokens == 0 {
				tokens = estimateTokens(messages, text)
			}
			return Result{Text: text, TokensUsed: tokens}
		}

		if !retryable(err) {
			g.log.Warn("completion failed", "attempt", attempt+1, "retryable", false, "err", err)
			return Result{Err: &Failure{Kind: FailureFatal, Detail: err}}
		}
		g.log.Warn("completion failed", "attempt", attempt+1, "retryable", true, "err", err)
		lastErr = err
	}

	return Result{Err: &Failure{Kind: FailureExhausted, Detail: lastErr}}
}

func (g *Gateway) callOnce(ctx context.Context, messages []domain.ChatMessage) (string, int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.budget.Timeout)
	defer cancel()
	return g.provider.Complete(attemptCtx, messages, g.budget.MaxTokens)
}

// retryable classifies provider errors: timeouts, connection failures, rate
// limits, and server-side errors are worth another attempt; anything else
// (auth, malformed request or response) is not.
func retryable(err error) bool {
	var statusErr *openai.HTTPStatusError
	if errors.As(err, &statusErr) {
		code := statusErr.HTTPStatusCode()
		return code == http.StatusTooManyRequests || code >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	// Transport-level errors carry no status code.
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// estimateTokens approximates usage from prompt and output length when the
// provider reports none. Four characters per token is the usual rule of thumb.
func estimateTokens(messages []domain.ChatMessage, output string) int {
	chars := len(output)
	for _, m := range messages {
		chars += len(m.Content)
	}
	n := chars / 4
	if n == 0 {
		n = 1
	}
	return n
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
