package connector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GoomerJaspartap/diagnostic-controller/internal/alert"
	"github.com/GoomerJaspartap/diagnostic-controller/internal/diagnostic"
	"github.com/GoomerJaspartap/diagnostic-controller/internal/slope"
	"github.com/GoomerJaspartap/diagnostic-controller/internal/types"
)

// Gateway is the persistence surface the connectors drive.
type Gateway interface {
	LoadEnabledCodes(ctx context.Context, source types.SourceKind) ([]types.DiagnosticCode, error)
	GetAppSettings(ctx context.Context) (types.AppSettings, error)
	LoadContacts(ctx context.Context) ([]types.Contact, error)
	LoadSlopeConfigurations(ctx context.Context) ([]slope.Configuration, error)
	ApplyEvaluation(ctx context.Context, codeID uuid.UUID, value *float64, readAt *time.Time, tr diagnostic.Transition, alerted bool) error
	AppendStateRecord(ctx context.Context, rec types.StateRecord) error
	TouchLastErrorEvent(ctx context.Context, at time.Time) error
}

// Alerter accepts fully rendered alert tasks for asynchronous delivery.
type Alerter interface {
	Submit(task *alert.Task) error
}

// Evaluator runs readings through the state machine, persists the outcome
// and raises alert tasks on alert-worthy transitions. One evaluator is
// shared by both connectors.
type Evaluator struct {
	gateway Gateway
	alerter Alerter
	logger  *zap.Logger
	subject string
	message string
}

func NewEvaluator(gateway Gateway, alerter Alerter, subject, message string, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		gateway: gateway,
		alerter: alerter,
		logger:  logger,
		subject: subject,
		message: message,
	}
}

// Process evaluates one reading. The code's runtime fields are updated in
// place so callers can keep evaluating against the same roster entry until
// the next reload.
func (e *Evaluator) Process(ctx context.Context, code *types.DiagnosticCode, reading diagnostic.Reading, settings types.AppSettings) {
	machine := diagnostic.NewMachine(time.Duration(settings.RepeatAlertInterval) * time.Second)
	tr := machine.Evaluate(code.Snapshot(), reading, code.Limits())
	e.finish(ctx, code, &reading, tr)
}

// ProcessStale marks a silent code NoStatus. History is preserved and no
// alert is raised.
func (e *Evaluator) ProcessStale(ctx context.Context, code *types.DiagnosticCode, at time.Time, reason string) {
	machine := diagnostic.NewMachine(0)
	tr := machine.Stale(code.Snapshot(), at, reason)
	e.finish(ctx, code, nil, tr)
}

func (e *Evaluator) finish(ctx context.Context, code *types.DiagnosticCode, reading *diagnostic.Reading, tr diagnostic.Transition) {
	alerted := false
	if tr.AlertWorthy {
		alerted = e.raiseAlert(ctx, code, reading, tr)
	}

	var value *float64
	var readAt *time.Time
	if reading != nil && !reading.Failed() {
		value = &reading.Value
		readAt = &reading.At
	}

	if err := e.gateway.ApplyEvaluation(ctx, code.ID, value, readAt, tr, alerted); err != nil {
		e.logger.Error("Failed to persist evaluation",
			zap.String("code", code.Code),
			zap.Error(err))
	}

	rec := types.StateRecord{
		CodeID:       code.ID,
		Code:         code.Code,
		Description:  code.Description,
		Type:         code.Type,
		Value:        value,
		State:        tr.State,
		HistoryCount: tr.HistoryCount,
		RecordedAt:   tr.At,
	}
	if err := e.gateway.AppendStateRecord(ctx, rec); err != nil {
		e.logger.Error("Failed to append state record",
			zap.String("code", code.Code),
			zap.Error(err))
	}

	if tr.State == diagnostic.StateFail {
		if err := e.gateway.TouchLastErrorEvent(ctx, tr.At); err != nil {
			e.logger.Error("Failed to update last error event", zap.Error(err))
		}
	}

	if tr.State != code.State {
		e.logger.Info("Diagnostic state changed",
			zap.String("code", code.Code),
			zap.String("from", string(code.State)),
			zap.String("to", string(tr.State)),
			zap.Int("history_count", tr.HistoryCount),
			zap.Bool("alerted", alerted))
	}

	code.State = tr.State
	code.HistoryCount = tr.HistoryCount
	if value != nil {
		code.CurrentValue = value
		code.LastReadTime = readAt
	}
	if tr.State == diagnostic.StateFail {
		at := tr.At
		code.LastFailure = tr.Failure
		code.LastFailureAt = &at
	}
	if alerted {
		at := tr.At
		code.LastAlertAt = &at
	}
}

// raiseAlert resolves recipients, renders the task and hands it to the
// dispatcher. All of this happens before Submit so delivery needs no
// further lookups. Returns whether a task was actually queued.
func (e *Evaluator) raiseAlert(ctx context.Context, code *types.DiagnosticCode, reading *diagnostic.Reading, tr diagnostic.Transition) bool {
	contacts, err := e.gateway.LoadContacts(ctx)
	if err != nil {
		e.logger.Error("Failed to load contacts for alert",
			zap.String("code", code.Code),
			zap.Error(err))
		return false
	}

	var emailTo, smsTo []string
	for _, c := range contacts {
		if c.EnableEmail && c.Email != "" {
			emailTo = append(emailTo, c.Email)
		}
		if c.EnableSMS && c.Phone != "" {
			smsTo = append(smsTo, c.Phone)
		}
	}
	if len(emailTo) == 0 && len(smsTo) == 0 {
		e.logger.Warn("Alert-worthy transition with no reachable contacts",
			zap.String("code", code.Code))
		return false
	}

	failedAt := tr.At
	cond := alert.Condition{
		Code:          code.Code,
		Description:   code.Description,
		Type:          code.Type,
		State:         tr.State,
		LastFailure:   tr.Failure,
		LastFailureAt: &failedAt,
		HistoryCount:  tr.HistoryCount,
		Prediction:    e.prediction(ctx, code, reading, tr),
	}
	if reading != nil && !reading.Failed() {
		v := reading.Value
		cond.Value = &v
	}

	task := alert.NewTask(code.ID, cond, e.subject, e.message, emailTo, smsTo, tr.At)
	if err := e.alerter.Submit(task); err != nil {
		e.logger.Error("Failed to submit alert task",
			zap.String("code", code.Code),
			zap.Error(err))
		return false
	}

	e.logger.Info("Alert task queued",
		zap.String("code", code.Code),
		zap.Int("email_recipients", len(emailTo)),
		zap.Int("sms_recipients", len(smsTo)))

	return true
}

// prediction estimates how long the value needs to come back inside the
// violated limit. An estimate is strictly optional: any resolution failure
// leaves the alert without one.
func (e *Evaluator) prediction(ctx context.Context, code *types.DiagnosticCode, reading *diagnostic.Reading, tr diagnostic.Transition) string {
	if reading == nil || reading.Failed() {
		return ""
	}
	kind, ok := slopeKindFor(code.Type)
	if !ok {
		return ""
	}

	var target float64
	switch {
	case code.UpperLimit != nil && reading.Value > *code.UpperLimit:
		target = *code.UpperLimit
	case code.LowerLimit != nil && reading.Value < *code.LowerLimit:
		target = *code.LowerLimit
	default:
		return ""
	}

	configs, err := e.gateway.LoadSlopeConfigurations(ctx)
	if err != nil {
		e.logger.Warn("Failed to load slope configurations",
			zap.String("code", code.Code),
			zap.Error(err))
		return ""
	}

	resolver := slope.NewResolver(configs)
	pred, err := resolver.PredictTimeToTarget(code.RoomID, kind, reading.Value, target, tr.At)
	if err != nil {
		e.logger.Debug("No slope prediction available",
			zap.String("code", code.Code),
			zap.Error(err))
		return ""
	}

	return fmt.Sprintf("Estimated %.1f hours to return within limits (%s conditions)",
		pred.TimeToTarget, pred.Season)
}

func slopeKindFor(codeType string) (slope.Kind, bool) {
	switch {
	case strings.EqualFold(codeType, "temperature"):
		return slope.KindTemperature, true
	case strings.EqualFold(codeType, "humidity"):
		return slope.KindHumidity, true
	}
	return "", false
}
