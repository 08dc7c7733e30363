package connector

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GoomerJaspartap/diagnostic-controller/internal/config"
	"github.com/GoomerJaspartap/diagnostic-controller/internal/diagnostic"
	"github.com/GoomerJaspartap/diagnostic-controller/internal/types"
)

func mqttCode(code, topic string) types.DiagnosticCode {
	lower, upper := 30.0, 60.0
	return types.DiagnosticCode{
		ID:          uuid.New(),
		Code:        code,
		Description: "Greenhouse humidity",
		Type:        "Humidity",
		Source:      types.SourceKindMQTT,
		MQTT: &types.MQTTParams{
			Broker: "broker.local",
			Port:   1883,
			Topic:  topic,
			QoS:    1,
		},
		LowerLimit: &lower,
		UpperLimit: &upper,
		Enabled:    true,
	}
}

func seedEntry(c *MQTTConsumer, code *types.DiagnosticCode, lastMessage time.Time) *mqttEntry {
	entry := &mqttEntry{
		code:        code,
		brokerKey:   code.MQTT.BrokerKey(),
		topic:       code.MQTT.Topic,
		lastMessage: lastMessage,
	}
	c.entries[code.ID] = entry
	return entry
}

func TestMQTTConsumerFeedsAllCodesOnTopic(t *testing.T) {
	gw := &fakeEvalGateway{settings: types.AppSettings{RefreshInterval: 5}}
	ev := NewEvaluator(gw, &fakeAlerter{}, "Diagnostics Alert", "Codes changed state:", zap.NewNop())
	consumer := NewMQTTConsumer(gw, ev, config.PollerConfig{}, zap.NewNop())

	codeA := mqttCode("HUM-001", "sensors/humidity")
	codeB := mqttCode("HUM-002", "sensors/humidity")
	other := mqttCode("HUM-003", "sensors/other")

	now := time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC)
	earlier := now.Add(-time.Minute)
	entryA := seedEntry(consumer, &codeA, earlier)
	entryB := seedEntry(consumer, &codeB, earlier)
	entryOther := seedEntry(consumer, &other, earlier)

	consumer.handleMessage(codeA.MQTT.BrokerKey(), "sensors/humidity", []byte(`{"value": 45}`), now)

	require.Len(t, gw.applied, 2)
	evaluated := map[uuid.UUID]bool{}
	for _, applied := range gw.applied {
		evaluated[applied.codeID] = true
		assert.Equal(t, diagnostic.StatePass, applied.tr.State)
		require.NotNil(t, applied.value)
		assert.Equal(t, 45.0, *applied.value)
	}
	assert.True(t, evaluated[codeA.ID])
	assert.True(t, evaluated[codeB.ID])

	assert.True(t, entryA.lastMessage.Equal(now))
	assert.True(t, entryB.lastMessage.Equal(now))
	assert.True(t, entryOther.lastMessage.Equal(earlier))
}

func TestMQTTConsumerMalformedPayloadFails(t *testing.T) {
	gw := &fakeEvalGateway{
		settings: types.AppSettings{RefreshInterval: 5},
		contacts: reachableContacts(),
	}
	ev := NewEvaluator(gw, &fakeAlerter{}, "Diagnostics Alert", "Codes changed state:", zap.NewNop())
	consumer := NewMQTTConsumer(gw, ev, config.PollerConfig{}, zap.NewNop())

	code := mqttCode("HUM-001", "sensors/humidity")
	now := time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC)
	seedEntry(consumer, &code, now.Add(-time.Minute))

	consumer.handleMessage(code.MQTT.BrokerKey(), "sensors/humidity", []byte("hot"), now)

	require.Len(t, gw.applied, 1)
	applied := gw.applied[0]
	assert.Equal(t, diagnostic.StateFail, applied.tr.State)
	assert.Contains(t, applied.tr.Failure, "malformed payload on sensors/humidity")
	assert.Nil(t, applied.value)
}

func TestMQTTConsumerStaleCheckDegradesSilentCodes(t *testing.T) {
	gw := &fakeEvalGateway{settings: types.AppSettings{RefreshInterval: 5}}
	ev := NewEvaluator(gw, &fakeAlerter{}, "Diagnostics Alert", "Codes changed state:", zap.NewNop())
	consumer := NewMQTTConsumer(gw, ev, config.PollerConfig{}, zap.NewNop())
	consumer.settings = types.AppSettings{RefreshInterval: 5}

	now := time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC)

	silent := mqttCode("HUM-001", "sensors/humidity")
	silent.State = diagnostic.StatePass
	silent.HistoryCount = 0
	seedEntry(consumer, &silent, now.Add(-20*time.Second))

	fresh := mqttCode("HUM-002", "sensors/humidity")
	fresh.State = diagnostic.StatePass
	seedEntry(consumer, &fresh, now.Add(-5*time.Second))

	degraded := mqttCode("HUM-003", "sensors/other")
	degraded.State = diagnostic.StateNoStatus
	seedEntry(consumer, &degraded, now.Add(-time.Hour))

	consumer.checkStale(context.Background(), now)

	require.Len(t, gw.applied, 1)
	applied := gw.applied[0]
	assert.Equal(t, silent.ID, applied.codeID)
	assert.Equal(t, diagnostic.StateNoStatus, applied.tr.State)
	assert.False(t, applied.alerted)

	assert.Equal(t, diagnostic.StateNoStatus, silent.State)
}
