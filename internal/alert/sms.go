package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/GoomerJaspartap/diagnostic-controller/internal/config"
)

type smsResponse struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

type smsError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SMSSender posts one message per recipient to the Twilio-compatible
// gateway's Messages endpoint. Each task gets exactly one attempt per
// recipient.
type SMSSender struct {
	client *resty.Client
	config config.SMSConfig
	logger *zap.Logger
}

func NewSMSSender(cfg config.SMSConfig, logger *zap.Logger) *SMSSender {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetBasicAuth(cfg.AccountSID, cfg.AuthToken)

	return &SMSSender{
		client: client,
		config: cfg,
		logger: logger,
	}
}

func (s *SMSSender) Channel() Channel {
	return ChannelSMS
}

func (s *SMSSender) Send(ctx context.Context, task *Task) error {
	if len(task.SMSTo) == 0 {
		return fmt.Errorf("no SMS recipients for task %s", task.ID)
	}

	var firstErr error
	for _, to := range task.SMSTo {
		if err := s.sendOne(ctx, to, task.Text); err != nil {
			s.logger.Error("SMS send failed",
				zap.String("to", to),
				zap.String("code", task.Code),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
	}

	return firstErr
}

func (s *SMSSender) sendOne(ctx context.Context, to, body string) error {
	var result smsResponse
	var apiErr smsError

	resp, err := s.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"MessagingServiceSid": s.config.MessagingServiceSID,
			"To":                  to,
			"Body":                body,
		}).
		SetResult(&result).
		SetError(&apiErr).
		Post(fmt.Sprintf("/2010-04-01/Accounts/%s/Messages.json", s.config.AccountSID))
	if err != nil {
		return fmt.Errorf("failed to call SMS gateway: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("SMS gateway returned %d: %s", resp.StatusCode(), apiErr.Message)
	}

	s.logger.Debug("SMS accepted by gateway",
		zap.String("to", to),
		zap.String("sid", result.SID),
		zap.String("status", result.Status))

	return nil
}
