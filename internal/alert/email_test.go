package alert

import (
	"bytes"
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GoomerJaspartap/diagnostic-controller/internal/config"
	"github.com/GoomerJaspartap/diagnostic-controller/internal/diagnostic"
)

func TestEmailBuildMessage(t *testing.T) {
	sender := NewEmailSender(config.SMTPConfig{
		Host: "mail.internal",
		Port: 587,
		From: "alerts@plant.internal",
	}, zap.NewNop())

	now := time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC)
	task := NewTask(uuid.New(), Condition{
		Code:          "TEMP-001",
		Description:   "Server room temperature",
		Type:          "Temperature",
		State:         diagnostic.StateFail,
		LastFailureAt: &now,
		HistoryCount:  3,
	}, "Diagnostics Alert", "The following diagnostic codes changed state:",
		[]string{"ops@example.com", "backup@example.com"}, nil, now)

	raw, err := sender.buildMessage(task)
	require.NoError(t, err)

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, "alerts@plant.internal", msg.Header.Get("From"))
	assert.Equal(t, "ops@example.com, backup@example.com", msg.Header.Get("To"))
	assert.Equal(t, "Diagnostics Alert", msg.Header.Get("Subject"))
	assert.Equal(t, "1.0", msg.Header.Get("MIME-Version"))

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/alternative", mediaType)
	require.NotEmpty(t, params["boundary"])

	reader := multipart.NewReader(msg.Body, params["boundary"])

	textPart, err := reader.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "text/plain; charset=utf-8", textPart.Header.Get("Content-Type"))
	textBody, err := io.ReadAll(textPart)
	require.NoError(t, err)
	assert.Contains(t, string(textBody), "TEMP-001")
	assert.Contains(t, string(textBody), "(History: 3)")

	htmlPart, err := reader.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "text/html; charset=utf-8", htmlPart.Header.Get("Content-Type"))
	htmlBody, err := io.ReadAll(htmlPart)
	require.NoError(t, err)
	assert.Contains(t, string(htmlBody), "<html>")
	assert.Contains(t, string(htmlBody), "TEMP-001")

	_, err = reader.NextPart()
	assert.Equal(t, io.EOF, err)
}

func TestEmailSendRequiresRecipients(t *testing.T) {
	sender := NewEmailSender(config.SMTPConfig{Host: "mail.internal", Port: 587}, zap.NewNop())

	task := NewTask(uuid.New(), Condition{Code: "TEMP-001", State: diagnostic.StateFail},
		"Diagnostics Alert", "msg", nil, []string{"+15550001111"}, time.Now())

	err := sender.Send(context.Background(), task)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no email recipients")
}
