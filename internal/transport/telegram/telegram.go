package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"helpdesk-bot/internal/domain"
	"helpdesk-bot/internal/usecase"
)

const exportTimeout = 5 * time.Second

// Responder is the message pipeline consumed by the adapter.
type Responder interface {
	Respond(ctx context.Context, msg domain.Message) usecase.Reply
}

// Exporter receives one record per completed turn, best effort.
type Exporter interface {
	AppendTurn(ctx context.Context, rec domain.ExportRecord) error
}

// botAPI is the minimal Telegram API surface required by Adapter.
// *tgbotapi.BotAPI satisfies this interface.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Adapter binds the pipeline to Telegram long polling. Each update is handled
// in its own goroutine; the pipeline and ledger are safe for that.
type Adapter struct {
	bot      botAPI
	pipeline Responder
	exporter Exporter // optional
	log      *slog.Logger
}

// New dials the Telegram Bot API with the given token.
func New(token string, pipeline Responder, exporter Exporter, log *slog.Logger) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return newAdapter(bot, pipeline, exporter, log)
}

func newAdapter(bot botAPI, pipeline Responder, exporter Exporter, log *slog.Logger) (*Adapter, error) {
	if bot == nil {
		return nil, errors.New("telegram: bot api must not be nil")
	}
	if pipeline == nil {
		return nil, errors.New("telegram: pipeline must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{bot: bot, pipeline: pipeline, exporter: exporter, log: log}, nil
}

// Run polls for updates until ctx is cancelled.
func (a *Adapter) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := a.bot.GetUpdatesChan(u)
	a.log.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go a.handleUpdate(ctx, update)
		}
	}
}

func (a *Adapter) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	m := update.Message
	if m == nil {
		return
	}
	if m.Text == "" {
		a.send(m.Chat.ID, "Text messages only for now.")
		return
	}

	msg := domain.Message{
		UserID:    strconv.FormatInt(m.Chat.ID, 10),
		Text:      m.Text,
		Timestamp: time.Unix(int64(m.Date), 0).UTC(),
	}
	reply := a.pipeline.Respond(ctx, msg)
	a.send(m.Chat.ID, reply.Text)

	// Export is best effort and must never delay or alter the reply.
	if a.exporter != nil && reply.Export != nil {
		rec := *reply.Export
		go func() {
			exportCtx, cancel := context.WithTimeout(context.Background(), exportTimeout)
			defer cancel()
			if err := a.exporter.AppendTurn(exportCtx, rec); err != nil {
				a.log.Warn("export append failed", "user", rec.UserID, "err", err)
			}
		}()
	}
}

func (a *Adapter) send(chatID int64, text string) {
	if _, err := a.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		a.log.Warn("telegram send failed", "chat", chatID, "err", err)
	}
}
