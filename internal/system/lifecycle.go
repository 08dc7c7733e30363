package system

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GoomerJaspartap/diagnostic-controller/internal/alert"
	"github.com/GoomerJaspartap/diagnostic-controller/internal/config"
	"github.com/GoomerJaspartap/diagnostic-controller/internal/connector"
	"github.com/GoomerJaspartap/diagnostic-controller/internal/storage"
)

// LifecycleManager wires the controller's components and owns their start
// order: the alert dispatcher comes up before the connectors so every
// alert-worthy transition has somewhere to go, and the connectors stop
// first on shutdown so nothing new is queued while the dispatcher drains
// its bookkeeping.
type LifecycleManager struct {
	dispatcher *alert.Dispatcher
	modbus     *connector.ModbusPoller
	mqtt       *connector.MQTTConsumer
	logger     *zap.Logger

	stateMu      sync.RWMutex
	currentState SystemState
	lastError    string

	shutdownOnce sync.Once
}

func NewLifecycleManager(store *storage.PostgresClient, cfg *config.Config, logger *zap.Logger) *LifecycleManager {
	var senders []alert.Sender
	if cfg.Alerts.SMTP.Host != "" {
		senders = append(senders, alert.NewEmailSender(cfg.Alerts.SMTP, logger.Named("email")))
	}
	if cfg.Alerts.SMS.AccountSID != "" {
		senders = append(senders, alert.NewSMSSender(cfg.Alerts.SMS, logger.Named("sms")))
	}
	if len(senders) == 0 {
		logger.Warn("No alert channels configured, alerts will not be delivered")
	}

	dispatcher := alert.NewDispatcher(logger.Named("alert"), cfg.Alerts.AttemptTimeout, store, senders...)
	evaluator := connector.NewEvaluator(store, dispatcher, cfg.Alerts.Subject, cfg.Alerts.Message, logger.Named("evaluator"))

	return &LifecycleManager{
		dispatcher:   dispatcher,
		modbus:       connector.NewModbusPoller(store, evaluator, cfg.Poller, logger.Named("modbus")),
		mqtt:         connector.NewMQTTConsumer(store, evaluator, cfg.Poller, logger.Named("mqtt")),
		logger:       logger,
		currentState: StateStopped,
	}
}

// Start brings the system up: dispatcher first, then both connectors.
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting diagnostic controller")

	lm.setState(StateInitializing)

	if err := lm.dispatcher.Start(); err != nil {
		lm.setError(err)
		return fmt.Errorf("alert dispatcher start failed: %w", err)
	}

	if err := lm.modbus.Start(); err != nil {
		lm.setError(err)
		return fmt.Errorf("modbus poller start failed: %w", err)
	}

	if err := lm.mqtt.Start(); err != nil {
		lm.setError(err)
		return fmt.Errorf("mqtt consumer start failed: %w", err)
	}

	lm.setState(StateRunning)

	lm.logger.Info("System started successfully")

	return nil
}

// Shutdown stops the system once; later calls return immediately.
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")

		lm.setState(StateStopping)

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)
	})

	return shutdownErr
}

// gracefulShutdown stops both connectors in parallel, then the dispatcher.
// Pending alert tasks are discarded, not drained.
func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	done := make(chan struct{})

	go func() {
		defer close(done)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			lm.modbus.Stop()
		}()
		go func() {
			defer wg.Done()
			lm.mqtt.Stop()
		}()
		wg.Wait()

		lm.dispatcher.Stop()
	}()

	select {
	case <-done:
		lm.logger.Info("Graceful shutdown completed")
		return nil
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		return fmt.Errorf("shutdown timeout exceeded")
	}
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()

	if state == lm.currentState {
		return
	}
	if err := ValidateTransition(lm.currentState, state); err != nil {
		lm.logger.Warn("Unexpected state transition", zap.Error(err))
	}
	lm.currentState = state
}

func (lm *LifecycleManager) setError(err error) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()

	lm.currentState = StateError
	lm.lastError = err.Error()
}

// Status reports the current state with component health.
func (lm *LifecycleManager) Status() SystemStatus {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()

	return SystemStatus{
		State:         lm.currentState.String(),
		ModbusRunning: lm.modbus.IsRunning(),
		MQTTRunning:   lm.mqtt.IsRunning(),
		Alerts:        lm.dispatcher.Status(),
		Timestamp:     time.Now().Unix(),
		Error:         lm.lastError,
	}
}
