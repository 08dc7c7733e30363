package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/GoomerJaspartap/diagnostic-controller/internal/diagnostic"
)

type SourceKind string

const (
	SourceKindModbus SourceKind = "modbus"
	SourceKindMQTT   SourceKind = "mqtt"
)

type RegisterKind string

const (
	RegisterKindHolding RegisterKind = "Holding Register"
	RegisterKindInput   RegisterKind = "Input Register"
)

type DataType string

const (
	DataTypeInt16   DataType = "int16"
	DataTypeInt32   DataType = "int32"
	DataTypeInt64   DataType = "int64"
	DataTypeFloat32 DataType = "float32"
	DataTypeFloat64 DataType = "float64"
)

// Registers returns the number of 16-bit registers one value occupies.
func (d DataType) Registers() uint16 {
	switch d {
	case DataTypeInt16:
		return 1
	case DataTypeInt32, DataTypeFloat32:
		return 2
	case DataTypeInt64, DataTypeFloat64:
		return 4
	}
	return 0
}

type ByteOrder string

const (
	ByteOrderBigEndian    ByteOrder = "big-endian"
	ByteOrderLittleEndian ByteOrder = "little-endian"
	ByteOrderWordSwapped  ByteOrder = "word-swapped"
)

type ModbusParams struct {
	IP              string       `json:"ip"`
	Port            int          `json:"port"`
	UnitID          uint8        `json:"unit_id"`
	RegisterKind    RegisterKind `json:"register_type"`
	RegisterAddress uint16       `json:"register_address"`
	FunctionCode    uint8        `json:"function_code"`
	DataType        DataType     `json:"data_type"`
	ByteOrder       ByteOrder    `json:"byte_order"`
	Scaling         float64      `json:"scaling"`
	Offset          float64      `json:"offset"`
	Units           string       `json:"units,omitempty"`
}

// Target identifies the TCP session this code is read through. Codes sharing
// a target are polled over one connection.
func (p ModbusParams) Target() string {
	return fmt.Sprintf("%s:%d", p.IP, p.Port)
}

type MQTTParams struct {
	Broker   string `json:"broker"`
	Port     int    `json:"port"`
	Topic    string `json:"topic"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	QoS      byte   `json:"qos"`
}

// BrokerURL is the paho connection address for this code's broker.
func (p MQTTParams) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", p.Broker, p.Port)
}

// BrokerKey distinguishes broker sessions: same host/port with different
// credentials must not share a client.
func (p MQTTParams) BrokerKey() string {
	return fmt.Sprintf("%s:%d|%s", p.Broker, p.Port, p.Username)
}

type DiagnosticCode struct {
	ID            uuid.UUID        `json:"id"`
	Code          string           `json:"code"`
	Description   string           `json:"description"`
	Type          string           `json:"type"`
	Source        SourceKind       `json:"data_source_type"`
	Modbus        *ModbusParams    `json:"modbus,omitempty"`
	MQTT          *MQTTParams      `json:"mqtt,omitempty"`
	LowerLimit    *float64         `json:"lower_limit,omitempty"`
	UpperLimit    *float64         `json:"upper_limit,omitempty"`
	Enabled       bool             `json:"enabled"`
	RoomID        *uuid.UUID       `json:"room_id,omitempty"`
	PollInterval  *int             `json:"poll_interval,omitempty"`
	CurrentValue  *float64         `json:"current_value,omitempty"`
	LastReadTime  *time.Time       `json:"last_read_time,omitempty"`
	State         diagnostic.State `json:"state"`
	LastFailure   string           `json:"last_failure,omitempty"`
	LastFailureAt *time.Time       `json:"last_failure_at,omitempty"`
	LastAlertAt   *time.Time       `json:"last_alert_at,omitempty"`
	HistoryCount  int              `json:"history_count"`
}

// Validate checks the invariants that must hold before a code is polled.
func (d *DiagnosticCode) Validate() error {
	if d.Code == "" {
		return newValidationError("code", "must not be empty")
	}
	if d.LowerLimit != nil && d.UpperLimit != nil && *d.UpperLimit < *d.LowerLimit {
		return newValidationError("upper_limit", "must be >= lower_limit (%g < %g)", *d.UpperLimit, *d.LowerLimit)
	}
	if d.PollInterval != nil && *d.PollInterval < 1 {
		return newValidationError("poll_interval", "must be at least 1 second")
	}

	switch d.Source {
	case SourceKindModbus:
		if d.Modbus == nil {
			return newValidationError("modbus", "parameters required for modbus source")
		}
		return d.Modbus.validate()
	case SourceKindMQTT:
		if d.MQTT == nil {
			return newValidationError("mqtt", "parameters required for mqtt source")
		}
		return d.MQTT.validate()
	}
	return newValidationError("data_source_type", "unknown source kind %q", d.Source)
}

func (p *ModbusParams) validate() error {
	if p.IP == "" {
		return newValidationError("modbus.ip", "must not be empty")
	}
	if p.Port < 1 || p.Port > 65535 {
		return newValidationError("modbus.port", "out of range: %d", p.Port)
	}
	if p.RegisterKind != RegisterKindHolding && p.RegisterKind != RegisterKindInput {
		return newValidationError("modbus.register_type", "unknown register type %q", p.RegisterKind)
	}
	if p.DataType.Registers() == 0 {
		return newValidationError("modbus.data_type", "unknown data type %q", p.DataType)
	}
	switch p.ByteOrder {
	case ByteOrderBigEndian, ByteOrderLittleEndian, ByteOrderWordSwapped:
	default:
		return newValidationError("modbus.byte_order", "unknown byte order %q", p.ByteOrder)
	}
	return nil
}

func (p *MQTTParams) validate() error {
	if p.Broker == "" {
		return newValidationError("mqtt.broker", "must not be empty")
	}
	if p.Port < 1 || p.Port > 65535 {
		return newValidationError("mqtt.port", "out of range: %d", p.Port)
	}
	if p.Topic == "" {
		return newValidationError("mqtt.topic", "must not be empty")
	}
	if p.QoS > 2 {
		return newValidationError("mqtt.qos", "must be 0, 1 or 2")
	}
	return nil
}

// EffectiveInterval is the code's poll interval, falling back to the
// app-wide default when no override is set.
func (d *DiagnosticCode) EffectiveInterval(defaultSeconds int) time.Duration {
	if d.PollInterval != nil && *d.PollInterval >= 1 {
		return time.Duration(*d.PollInterval) * time.Second
	}
	if defaultSeconds < 1 {
		defaultSeconds = 1
	}
	return time.Duration(defaultSeconds) * time.Second
}

func (d *DiagnosticCode) Limits() diagnostic.Limits {
	return diagnostic.Limits{Lower: d.LowerLimit, Upper: d.UpperLimit}
}

// Snapshot feeds the last persisted evaluation back into the state machine.
func (d *DiagnosticCode) Snapshot() diagnostic.Snapshot {
	s := diagnostic.Snapshot{
		State:        d.State,
		HistoryCount: d.HistoryCount,
	}
	if d.State == "" {
		s.State = diagnostic.StateNoStatus
	}
	if d.LastAlertAt != nil {
		s.LastAlertAt = *d.LastAlertAt
	}
	return s
}

type Room struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type Contact struct {
	ID          uuid.UUID `json:"id"`
	FullName    string    `json:"fullname"`
	Phone       string    `json:"phone"`
	Email       string    `json:"email"`
	EnableSMS   bool      `json:"enable_sms"`
	EnableEmail bool      `json:"enable_email"`
}

// AppSettings is the singleton settings row. RefreshInterval is the default
// poll interval in seconds; RepeatAlertInterval of zero disables
// re-notification for sustained failures.
type AppSettings struct {
	RefreshInterval     int        `json:"refresh_time"`
	RepeatAlertInterval int        `json:"repeat_alert_interval"`
	LastUpdated         *time.Time `json:"last_updated,omitempty"`
	LastErrorEvent      *time.Time `json:"last_error_event,omitempty"`
}

// StateRecord is one append-only log row. Code, description and type are
// snapshots taken at evaluation time so history survives later edits.
type StateRecord struct {
	ID           uuid.UUID        `json:"id"`
	CodeID       uuid.UUID        `json:"code_id"`
	Code         string           `json:"code"`
	Description  string           `json:"description"`
	Type         string           `json:"type"`
	Value        *float64         `json:"value,omitempty"`
	State        diagnostic.State `json:"state"`
	HistoryCount int              `json:"history_count"`
	RecordedAt   time.Time        `json:"recorded_at"`
}
