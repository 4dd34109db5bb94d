package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"helpdesk-bot/internal/domain"
	"helpdesk-bot/internal/usecase"
)

// Responder is the message pipeline consumed by the webhook handler.
type Responder interface {
	Respond(ctx context.Context, msg domain.Message) usecase.Reply
}

// Exporter receives one record per completed turn, best effort.
type Exporter interface {
	AppendTurn(ctx context.Context, rec domain.ExportRecord) error
}

// webhookReply answers the webhook call with an inline Telegram method
// invocation, saving the extra outbound API round trip.
type webhookReply struct {
	Method string `json:"method"`
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

// Handler serves Telegram webhook updates from a Lambda function behind API
// Gateway.
type Handler struct {
	pipeline Responder
	exporter Exporter // optional
	log      *slog.Logger
}

// NewHandler creates a Handler over the pipeline. exporter may be nil.
func NewHandler(pipeline Responder, exporter Exporter, log *slog.Logger) (*Handler, error) {
	if pipeline == nil {
		return nil, errors.New("handler: pipeline must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{pipeline: pipeline, exporter: exporter, log: log}, nil
}

// Handle processes one webhook delivery. Telegram retries on non-2xx, so
// anything that is not a decodable text message is acknowledged and dropped.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := resolveCorrelationID(event.Headers)

	var update tgbotapi.Update
	if err := json.Unmarshal([]byte(event.Body), &update); err != nil {
		h.log.Warn("webhook body is not a telegram update", "correlation_id", correlationID, "err", err)
		return ack(correlationID, nil), nil
	}
	m := update.Message
	if m == nil || m.Chat == nil || m.Text == "" {
		return ack(correlationID, nil), nil
	}

	msg := domain.Message{
		UserID:    strconv.FormatInt(m.Chat.ID, 10),
		Text:      m.Text,
		Timestamp: time.Unix(int64(m.Date), 0).UTC(),
	}
	reply := h.pipeline.Respond(ctx, msg)

	// The function freezes after returning; push the export record before
	// answering. Still best effort, a failure never changes the reply.
	if h.exporter != nil && reply.Export != nil {
		if err := h.exporter.AppendTurn(ctx, *reply.Export); err != nil {
			h.log.Warn("export append failed", "correlation_id", correlationID, "user", msg.UserID, "err", err)
		}
	}

	return ack(correlationID, &webhookReply{
		Method: "sendMessage",
		ChatID: m.Chat.ID,
		Text:   reply.Text,
	}), nil
}

func ack(correlationID string, reply *webhookReply) events.APIGatewayProxyResponse {
	headers := map[string]string{
		"Content-Type":     "application/json",
		"X-Correlation-Id": correlationID,
	}
	body := ""
	if reply != nil {
		raw, err := json.Marshal(reply)
		if err == nil {
			body = string(raw)
		}
	}
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Headers:    headers,
		Body:       body,
	}
}

func resolveCorrelationID(headers map[string]string) string {
	for k, v := range headers {
		if http.CanonicalHeaderKey(k) == "X-Correlation-Id" && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
