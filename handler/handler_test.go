package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"helpdesk-bot/internal/domain"
	"helpdesk-bot/internal/usecase"
)

type stubPipeline struct {
	reply usecase.Reply
	got   domain.Message
	calls int
}

func (s *stubPipeline) Respond(_ context.Context, msg domain.Message) usecase.Reply {
	s.calls++
	s.got = msg
	return s.reply
}

type stubExporter struct {
	recs []domain.ExportRecord
	err  error
}

func (s *stubExporter) AppendTurn(_ context.Context, rec domain.ExportRecord) error {
	s.recs = append(s.recs, rec)
	return s.err
}

func makeEvent(body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/webhook",
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func updateBody(chatID int64, text string) string {
	raw, _ := json.Marshal(text)
	return fmt.Sprintf(`{"update_id":1,"message":{"message_id":10,"date":1750000000,"chat":{"id":%d},"text":%s}}`, chatID, raw)
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil, nil, nil)
	require.Error(t, err)
}

func TestHandle_HappyPath(t *testing.T) {
	pipeline := &stubPipeline{reply: usecase.Reply{Text: "We're open daily 9 AM – 7 PM PT."}}
	h, err := NewHandler(pipeline, nil, nil)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(updateBody(42, "working hours")))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "42", pipeline.got.UserID)
	require.Equal(t, "working hours", pipeline.got.Text)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])

	out := parseBody[webhookReply](t, resp.Body)
	require.Equal(t, "sendMessage", out.Method)
	require.Equal(t, int64(42), out.ChatID)
	require.Equal(t, "We're open daily 9 AM – 7 PM PT.", out.Text)
}

func TestHandle_InvalidBodyIsAcknowledged(t *testing.T) {
	pipeline := &stubPipeline{}
	h, err := NewHandler(pipeline, nil, nil)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(`not-json`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, resp.Body)
	require.Zero(t, pipeline.calls)
}

func TestHandle_NonTextUpdateIsAcknowledged(t *testing.T) {
	pipeline := &stubPipeline{}
	h, err := NewHandler(pipeline, nil, nil)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(`{"update_id":1}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, resp.Body)
	require.Zero(t, pipeline.calls)
}

func TestHandle_PushesExportRecordBeforeReturning(t *testing.T) {
	rec := domain.ExportRecord{ID: "rec-1", UserID: "42", Input: "hi", Reply: "hello", Tokens: 3}
	pipeline := &stubPipeline{reply: usecase.Reply{Text: "hello", Export: &rec}}
	exporter := &stubExporter{}
	h, err := NewHandler(pipeline, exporter, nil)
	require.NoError(t, err)

	_, err = h.Handle(context.Background(), makeEvent(updateBody(42, "hi")))
	require.NoError(t, err)
	require.Equal(t, []domain.ExportRecord{rec}, exporter.recs)
}

func TestHandle_ExportFailureDoesNotChangeReply(t *testing.T) {
	rec := domain.ExportRecord{ID: "rec-1", UserID: "42"}
	pipeline := &stubPipeline{reply: usecase.Reply{Text: "hello", Export: &rec}}
	exporter := &stubExporter{err: errors.New("dynamodb down")}
	h, err := NewHandler(pipeline, exporter, nil)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(updateBody(42, "hi")))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := parseBody[webhookReply](t, resp.Body)
	require.Equal(t, "hello", out.Text)
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	pipeline := &stubPipeline{reply: usecase.Reply{Text: "ok"}}
	h, err := NewHandler(pipeline, nil, nil)
	require.NoError(t, err)

	event := makeEvent(updateBody(42, "hi"))
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}
