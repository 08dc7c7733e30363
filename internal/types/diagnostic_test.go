package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoomerJaspartap/diagnostic-controller/internal/diagnostic"
)

func validModbusCode() DiagnosticCode {
	lower, upper := 18.0, 25.0
	return DiagnosticCode{
		Code:        "TEMP-001",
		Description: "Server room temperature",
		Type:        "Temperature",
		Source:      SourceKindModbus,
		Modbus: &ModbusParams{
			IP:           "10.0.0.5",
			Port:         502,
			RegisterKind: RegisterKindHolding,
			DataType:     DataTypeInt16,
			ByteOrder:    ByteOrderBigEndian,
			Scaling:      1,
		},
		LowerLimit: &lower,
		UpperLimit: &upper,
		Enabled:    true,
	}
}

func TestValidateModbusCode(t *testing.T) {
	code := validModbusCode()
	require.NoError(t, code.Validate())

	code = validModbusCode()
	code.Code = ""
	assert.ErrorContains(t, code.Validate(), "code")

	code = validModbusCode()
	code.Modbus = nil
	assert.ErrorContains(t, code.Validate(), "parameters required for modbus source")

	code = validModbusCode()
	code.Modbus.RegisterKind = "Coil"
	assert.ErrorContains(t, code.Validate(), "unknown register type")

	code = validModbusCode()
	code.Modbus.DataType = "uint8"
	assert.ErrorContains(t, code.Validate(), "unknown data type")

	code = validModbusCode()
	code.Modbus.ByteOrder = "middle-endian"
	assert.ErrorContains(t, code.Validate(), "unknown byte order")
}

func TestValidateLimitsAndInterval(t *testing.T) {
	code := validModbusCode()
	lower, upper := 25.0, 18.0
	code.LowerLimit = &lower
	code.UpperLimit = &upper
	assert.ErrorContains(t, code.Validate(), "must be >= lower_limit")

	code = validModbusCode()
	interval := 0
	code.PollInterval = &interval
	assert.ErrorContains(t, code.Validate(), "poll_interval")
}

func TestValidateMQTTCode(t *testing.T) {
	code := DiagnosticCode{
		Code:   "HUM-001",
		Source: SourceKindMQTT,
		MQTT: &MQTTParams{
			Broker: "broker.local",
			Port:   1883,
			Topic:  "sensors/humidity",
			QoS:    1,
		},
	}
	require.NoError(t, code.Validate())

	code.MQTT.Topic = ""
	assert.ErrorContains(t, code.Validate(), "mqtt.topic")

	code.MQTT.Topic = "sensors/humidity"
	code.MQTT.QoS = 3
	assert.ErrorContains(t, code.Validate(), "mqtt.qos")

	code.MQTT = nil
	assert.ErrorContains(t, code.Validate(), "parameters required for mqtt source")
}

func TestValidateUnknownSource(t *testing.T) {
	code := validModbusCode()
	code.Source = "opcua"
	assert.ErrorContains(t, code.Validate(), "unknown source kind")
}

func TestEffectiveInterval(t *testing.T) {
	code := validModbusCode()
	assert.Equal(t, 5*time.Second, code.EffectiveInterval(5))

	override := 30
	code.PollInterval = &override
	assert.Equal(t, 30*time.Second, code.EffectiveInterval(5))

	code.PollInterval = nil
	assert.Equal(t, time.Second, code.EffectiveInterval(0))
}

func TestSnapshotDefaultsToNoStatus(t *testing.T) {
	code := validModbusCode()
	snap := code.Snapshot()
	assert.Equal(t, diagnostic.StateNoStatus, snap.State)
	assert.True(t, snap.LastAlertAt.IsZero())

	at := time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC)
	code.State = diagnostic.StateFail
	code.HistoryCount = 3
	code.LastAlertAt = &at

	snap = code.Snapshot()
	assert.Equal(t, diagnostic.StateFail, snap.State)
	assert.Equal(t, 3, snap.HistoryCount)
	assert.True(t, snap.LastAlertAt.Equal(at))
}

func TestModbusTargetAndBrokerKey(t *testing.T) {
	modbus := ModbusParams{IP: "10.0.0.5", Port: 502}
	assert.Equal(t, "10.0.0.5:502", modbus.Target())

	mqtt := MQTTParams{Broker: "broker.local", Port: 1883, Username: "plant"}
	assert.Equal(t, "tcp://broker.local:1883", mqtt.BrokerURL())
	assert.Equal(t, "broker.local:1883|plant", mqtt.BrokerKey())

	anon := MQTTParams{Broker: "broker.local", Port: 1883}
	assert.NotEqual(t, mqtt.BrokerKey(), anon.BrokerKey())
}
