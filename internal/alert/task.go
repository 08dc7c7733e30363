package alert

import (
	"time"

	"github.com/google/uuid"

	"github.com/GoomerJaspartap/diagnostic-controller/internal/diagnostic"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Condition is the snapshot of one diagnostic code at alert time. Snapshots
// keep the message stable even when the code is edited before delivery.
type Condition struct {
	Code          string
	Description   string
	Type          string
	State         diagnostic.State
	Value         *float64
	LastFailure   string
	LastFailureAt *time.Time
	HistoryCount  int
	Prediction    string
}

// Task is one queued notification request. It is fully rendered at creation
// so the dispatcher worker only delivers; the task is discarded after one
// attempt per channel.
type Task struct {
	ID        uuid.UUID
	CodeID    uuid.UUID
	Code      string
	Subject   string
	Text      string
	HTML      string
	Channels  []Channel
	EmailTo   []string
	SMSTo     []string
	CreatedAt time.Time
}

// NewTask renders the message for one alert-worthy condition and binds the
// recipient sets. Channels without recipients are left out.
func NewTask(codeID uuid.UUID, cond Condition, subject, message string, emailTo, smsTo []string, now time.Time) *Task {
	text, html := RenderMessage(subject, message, now, []Condition{cond})

	task := &Task{
		ID:        uuid.New(),
		CodeID:    codeID,
		Code:      cond.Code,
		Subject:   subject,
		Text:      text,
		HTML:      html,
		CreatedAt: now,
	}
	if len(emailTo) > 0 {
		task.Channels = append(task.Channels, ChannelEmail)
		task.EmailTo = emailTo
	}
	if len(smsTo) > 0 {
		task.Channels = append(task.Channels, ChannelSMS)
		task.SMSTo = smsTo
	}
	return task
}

// DeliveryOutcome is the per-channel result written back through the
// persistence gateway. Failed attempts are recorded, never retried.
type DeliveryOutcome struct {
	TaskID      uuid.UUID
	CodeID      uuid.UUID
	Channel     Channel
	Recipients  int
	Delivered   bool
	Detail      string
	AttemptedAt time.Time
}
