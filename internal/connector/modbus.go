package connector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GoomerJaspartap/diagnostic-controller/internal/config"
	"github.com/GoomerJaspartap/diagnostic-controller/internal/diagnostic"
	"github.com/GoomerJaspartap/diagnostic-controller/internal/modbus"
	"github.com/GoomerJaspartap/diagnostic-controller/internal/types"
)

const cycleTimeout = 30 * time.Second

// ModbusPoller drives all modbus-sourced codes. Codes sharing an ip:port
// target are polled over one TCP session per cycle; a failed dial fails
// every code in the group with the same description.
type ModbusPoller struct {
	gateway   Gateway
	evaluator *Evaluator
	logger    *zap.Logger
	timeout   time.Duration

	settings    types.AppSettings
	codes       []types.DiagnosticCode
	nextDue     map[uuid.UUID]time.Time
	lastReload  time.Time
	reloadEvery time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

func NewModbusPoller(gateway Gateway, evaluator *Evaluator, cfg config.PollerConfig, logger *zap.Logger) *ModbusPoller {
	return &ModbusPoller{
		gateway:   gateway,
		evaluator: evaluator,
		logger:    logger,
		timeout:   cfg.ModbusTimeout,
		settings:  types.AppSettings{RefreshInterval: 5},
		nextDue:   make(map[uuid.UUID]time.Time),
		stopChan:  make(chan struct{}),
	}
}

func (p *ModbusPoller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}

	p.running = true
	p.wg.Add(1)

	go p.pollLoop()

	p.logger.Info("Modbus poller started")

	return nil
}

func (p *ModbusPoller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	close(p.stopChan)
	p.wg.Wait()

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.logger.Info("Modbus poller stopped")
}

func (p *ModbusPoller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ModbusPoller) pollLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case now := <-ticker.C:
			p.cycle(now)
		}
	}
}

// cycle reloads the roster when it is due, then polls every due code,
// grouped by target so each TCP session is dialed once.
func (p *ModbusPoller) cycle(now time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
	defer cancel()

	if now.Sub(p.lastReload) >= p.reloadEvery {
		p.reload(ctx, now)
	}

	due := p.dueCodes(now)
	if len(due) == 0 {
		return
	}

	groups := make(map[string][]*types.DiagnosticCode)
	for _, code := range due {
		target := code.Modbus.Target()
		groups[target] = append(groups[target], code)
	}

	for target, codes := range groups {
		p.pollGroup(ctx, target, codes, now)
	}

	for _, code := range due {
		p.nextDue[code.ID] = now.Add(code.EffectiveInterval(p.settings.RefreshInterval))
	}
}

func (p *ModbusPoller) reload(ctx context.Context, now time.Time) {
	settings, err := p.gateway.GetAppSettings(ctx)
	if err != nil {
		p.logger.Error("Failed to load app settings", zap.Error(err))
	} else {
		p.settings = settings
	}

	codes, err := p.gateway.LoadEnabledCodes(ctx, types.SourceKindModbus)
	if err != nil {
		p.logger.Error("Failed to load modbus codes", zap.Error(err))
		return
	}

	known := make(map[uuid.UUID]struct{}, len(codes))
	for i := range codes {
		known[codes[i].ID] = struct{}{}
		if _, ok := p.nextDue[codes[i].ID]; !ok {
			// New codes are polled on the next tick.
			p.nextDue[codes[i].ID] = now
		}
	}
	for id := range p.nextDue {
		if _, ok := known[id]; !ok {
			delete(p.nextDue, id)
		}
	}

	p.codes = codes
	p.lastReload = now
	p.reloadEvery = time.Duration(p.settings.RefreshInterval) * time.Second
	if p.reloadEvery < time.Second {
		p.reloadEvery = time.Second
	}
}

func (p *ModbusPoller) dueCodes(now time.Time) []*types.DiagnosticCode {
	var due []*types.DiagnosticCode
	for i := range p.codes {
		code := &p.codes[i]
		if code.Modbus == nil {
			continue
		}
		if at, ok := p.nextDue[code.ID]; ok && now.Before(at) {
			continue
		}
		due = append(due, code)
	}
	return due
}

func (p *ModbusPoller) pollGroup(ctx context.Context, target string, codes []*types.DiagnosticCode, now time.Time) {
	client := modbus.NewClient(target, p.timeout)

	if err := client.Connect(); err != nil {
		failure := fmt.Sprintf("connection to %s failed: %v", target, err)
		p.logger.Warn("Modbus target unreachable",
			zap.String("target", target),
			zap.Int("codes", len(codes)),
			zap.Error(err))
		for _, code := range codes {
			p.evaluator.Process(ctx, code, diagnostic.Reading{At: now, Failure: failure}, p.settings)
		}
		return
	}
	defer client.Close()

	for _, code := range codes {
		value, err := p.readCode(ctx, client, code)

		var reading diagnostic.Reading
		if err != nil {
			reading = diagnostic.Reading{At: now, Failure: err.Error()}
		} else {
			reading = diagnostic.Reading{Value: value, At: now}
		}

		p.evaluator.Process(ctx, code, reading, p.settings)
	}
}

func (p *ModbusPoller) readCode(ctx context.Context, client *modbus.Client, code *types.DiagnosticCode) (float64, error) {
	params := *code.Modbus

	functionCode, err := modbus.FunctionCodeFor(params)
	if err != nil {
		return 0, err
	}

	registers, err := client.ReadRegisters(ctx, functionCode, params.UnitID,
		params.RegisterAddress, params.DataType.Registers())
	if err != nil {
		return 0, fmt.Errorf("read of %s register %d failed: %w",
			params.Target(), params.RegisterAddress, err)
	}

	return modbus.DecodeRegisters(registers, params)
}
