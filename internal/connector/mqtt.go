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
	"github.com/GoomerJaspartap/diagnostic-controller/internal/mqttclient"
	"github.com/GoomerJaspartap/diagnostic-controller/internal/types"
)

// A code goes NoStatus after this many effective intervals without a
// message.
const staleMultiplier = 3

type topicKey struct {
	brokerKey string
	topic     string
}

type topicSub struct {
	qos byte
}

type mqttEntry struct {
	mu          sync.Mutex
	code        *types.DiagnosticCode
	brokerKey   string
	topic       string
	lastMessage time.Time
}

// MQTTConsumer keeps broker sessions and subscriptions reconciled against
// the enabled mqtt-sourced codes and evaluates messages as they arrive.
// Several codes may share one topic; each message feeds all of them. Codes
// that stop receiving messages are marked NoStatus by the stale check.
type MQTTConsumer struct {
	gateway   Gateway
	evaluator *Evaluator
	logger    *zap.Logger

	connectTimeout time.Duration
	clientPrefix   string
	reconcileEvery time.Duration

	rosterMu      sync.Mutex
	clients       map[string]*mqttclient.Client
	subs          map[topicKey]topicSub
	entries       map[uuid.UUID]*mqttEntry
	settings      types.AppSettings
	lastReconcile time.Time

	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

func NewMQTTConsumer(gateway Gateway, evaluator *Evaluator, cfg config.PollerConfig, logger *zap.Logger) *MQTTConsumer {
	reconcile := cfg.ReconcileInterval
	if reconcile <= 0 {
		reconcile = 30 * time.Second
	}

	return &MQTTConsumer{
		gateway:        gateway,
		evaluator:      evaluator,
		logger:         logger,
		connectTimeout: cfg.MQTTConnectTimeout,
		clientPrefix:   cfg.MQTTClientPrefix,
		reconcileEvery: reconcile,
		clients:        make(map[string]*mqttclient.Client),
		subs:           make(map[topicKey]topicSub),
		entries:        make(map[uuid.UUID]*mqttEntry),
		settings:       types.AppSettings{RefreshInterval: 5},
		stopChan:       make(chan struct{}),
	}
}

func (c *MQTTConsumer) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	c.running = true
	c.wg.Add(1)

	go c.consumeLoop()

	c.logger.Info("MQTT consumer started")

	return nil
}

func (c *MQTTConsumer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	close(c.stopChan)
	c.wg.Wait()

	c.rosterMu.Lock()
	for key, client := range c.clients {
		client.Disconnect()
		delete(c.clients, key)
	}
	c.subs = make(map[topicKey]topicSub)
	c.entries = make(map[uuid.UUID]*mqttEntry)
	c.rosterMu.Unlock()

	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	c.logger.Info("MQTT consumer stopped")
}

func (c *MQTTConsumer) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *MQTTConsumer) consumeLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case now := <-ticker.C:
			c.tick(now)
		}
	}
}

func (c *MQTTConsumer) tick(now time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
	defer cancel()

	c.rosterMu.Lock()
	reconcileDue := now.Sub(c.lastReconcile) >= c.reconcileEvery
	c.rosterMu.Unlock()

	if reconcileDue {
		c.reconcile(ctx, now)
	}

	c.checkStale(ctx, now)
}

// reconcile aligns clients, subscriptions and the code roster with the
// database. Broker and subscription failures surface as failed readings on
// the affected codes; the next pass retries.
func (c *MQTTConsumer) reconcile(ctx context.Context, now time.Time) {
	settings, settingsErr := c.gateway.GetAppSettings(ctx)
	if settingsErr != nil {
		c.logger.Error("Failed to load app settings", zap.Error(settingsErr))
	}

	codes, err := c.gateway.LoadEnabledCodes(ctx, types.SourceKindMQTT)
	if err != nil {
		c.logger.Error("Failed to load mqtt codes", zap.Error(err))
		return
	}

	type subFailure struct {
		entry   *mqttEntry
		failure string
	}
	var failures []subFailure

	desiredSubs := make(map[topicKey]byte)
	brokerParams := make(map[string]types.MQTTParams)
	for i := range codes {
		params := codes[i].MQTT
		if params == nil {
			continue
		}
		key := topicKey{params.BrokerKey(), params.Topic}
		if qos, ok := desiredSubs[key]; !ok || params.QoS > qos {
			desiredSubs[key] = params.QoS
		}
		if _, ok := brokerParams[key.brokerKey]; !ok {
			brokerParams[key.brokerKey] = *params
		}
	}

	c.rosterMu.Lock()

	if settingsErr == nil {
		c.settings = settings
	}
	c.lastReconcile = now

	// Rebuild the roster, carrying message freshness across reloads.
	entries := make(map[uuid.UUID]*mqttEntry, len(codes))
	for i := range codes {
		code := &codes[i]
		if code.MQTT == nil {
			continue
		}
		entry := &mqttEntry{
			code:        code,
			brokerKey:   code.MQTT.BrokerKey(),
			topic:       code.MQTT.Topic,
			lastMessage: now,
		}
		if old, ok := c.entries[code.ID]; ok && old.brokerKey == entry.brokerKey && old.topic == entry.topic {
			old.mu.Lock()
			entry.lastMessage = old.lastMessage
			old.mu.Unlock()
		}
		entries[code.ID] = entry
	}
	c.entries = entries

	// Drop subscriptions that disappeared or changed QoS.
	for key, sub := range c.subs {
		if qos, ok := desiredSubs[key]; ok && qos == sub.qos {
			continue
		}
		if client, ok := c.clients[key.brokerKey]; ok {
			if err := client.Unsubscribe(key.topic); err != nil {
				c.logger.Warn("Failed to unsubscribe",
					zap.String("topic", key.topic),
					zap.Error(err))
			}
		}
		delete(c.subs, key)
	}

	// Establish missing subscriptions, connecting brokers on demand.
	for key, qos := range desiredSubs {
		if _, ok := c.subs[key]; ok {
			continue
		}

		client, err := c.clientFor(brokerParams[key.brokerKey])
		if err == nil {
			err = client.Subscribe(key.topic, qos, c.topicHandler(key.brokerKey, key.topic))
		}
		if err != nil {
			c.logger.Error("Failed to subscribe mqtt topic",
				zap.String("topic", key.topic),
				zap.Error(err))
			for _, entry := range c.entries {
				if entry.brokerKey == key.brokerKey && entry.topic == key.topic {
					failures = append(failures, subFailure{entry, err.Error()})
				}
			}
			continue
		}

		c.subs[key] = topicSub{qos: qos}
		c.logger.Info("Subscribed mqtt topic",
			zap.String("topic", key.topic),
			zap.Uint8("qos", qos))
	}

	// Disconnect brokers nothing subscribes to anymore.
	inUse := make(map[string]bool)
	for key := range c.subs {
		inUse[key.brokerKey] = true
	}
	for brokerKey, client := range c.clients {
		if !inUse[brokerKey] {
			client.Disconnect()
			delete(c.clients, brokerKey)
			c.logger.Info("Disconnected idle mqtt broker", zap.String("broker", client.BrokerURL()))
		}
	}

	settingsSnapshot := c.settings
	c.rosterMu.Unlock()

	for _, f := range failures {
		f.entry.mu.Lock()
		c.evaluator.Process(ctx, f.entry.code,
			diagnostic.Reading{At: now, Failure: f.failure}, settingsSnapshot)
		f.entry.mu.Unlock()
	}
}

// clientFor returns the session for the broker, dialing it on first use.
// Callers hold rosterMu.
func (c *MQTTConsumer) clientFor(params types.MQTTParams) (*mqttclient.Client, error) {
	key := params.BrokerKey()
	if client, ok := c.clients[key]; ok {
		return client, nil
	}

	client, err := mqttclient.Connect(mqttclient.Options{
		BrokerURL:      params.BrokerURL(),
		ClientID:       fmt.Sprintf("%s-%s", c.clientPrefix, uuid.NewString()[:8]),
		Username:       params.Username,
		Password:       params.Password,
		ConnectTimeout: c.connectTimeout,
	}, c.logger)
	if err != nil {
		return nil, err
	}

	c.clients[key] = client
	return client, nil
}

// topicHandler dispatches one subscription's messages to every code bound
// to it. The filter is the subscription topic, which may contain wildcards.
func (c *MQTTConsumer) topicHandler(brokerKey, filter string) mqttclient.MessageHandler {
	return func(_ string, payload []byte) error {
		c.handleMessage(brokerKey, filter, payload, time.Now())
		return nil
	}
}

func (c *MQTTConsumer) handleMessage(brokerKey, filter string, payload []byte, now time.Time) {
	value, parseErr := ParseValue(payload)

	c.rosterMu.Lock()
	settings := c.settings
	var matched []*mqttEntry
	for _, entry := range c.entries {
		if entry.brokerKey == brokerKey && entry.topic == filter {
			matched = append(matched, entry)
		}
	}
	c.rosterMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
	defer cancel()

	for _, entry := range matched {
		entry.mu.Lock()
		entry.lastMessage = now

		var reading diagnostic.Reading
		if parseErr != nil {
			reading = diagnostic.Reading{
				At:      now,
				Failure: fmt.Sprintf("malformed payload on %s: %v", filter, parseErr),
			}
		} else {
			reading = diagnostic.Reading{Value: value, At: now}
		}

		c.evaluator.Process(ctx, entry.code, reading, settings)
		entry.mu.Unlock()
	}
}

// checkStale walks the roster and degrades codes whose messages stopped.
func (c *MQTTConsumer) checkStale(ctx context.Context, now time.Time) {
	c.rosterMu.Lock()
	settings := c.settings
	entries := make([]*mqttEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		entries = append(entries, entry)
	}
	c.rosterMu.Unlock()

	for _, entry := range entries {
		entry.mu.Lock()
		threshold := staleMultiplier * entry.code.EffectiveInterval(settings.RefreshInterval)
		silentFor := now.Sub(entry.lastMessage)
		if entry.code.State != diagnostic.StateNoStatus && silentFor > threshold {
			reason := fmt.Sprintf("no data on %s for %s", entry.topic, silentFor.Round(time.Second))
			c.evaluator.ProcessStale(ctx, entry.code, now, reason)
			c.logger.Warn("Diagnostic code went stale",
				zap.String("code", entry.code.Code),
				zap.String("topic", entry.topic),
				zap.Duration("silent_for", silentFor))
		}
		entry.mu.Unlock()
	}
}
