package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/GoomerJaspartap/diagnostic-controller/internal/diagnostic"
	"github.com/GoomerJaspartap/diagnostic-controller/internal/types"
)

// LoadEnabledCodes returns every enabled code for one source kind, including
// the persisted runtime state the pollers seed their evaluations from.
func (p *PostgresClient) LoadEnabledCodes(ctx context.Context, source types.SourceKind) ([]types.DiagnosticCode, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT
			id, code, description, type, data_source_type,
			COALESCE(modbus_ip, ''), COALESCE(modbus_port, 0), COALESCE(modbus_unit_id, 0),
			COALESCE(modbus_register_type, ''), COALESCE(modbus_register_address, 0),
			COALESCE(modbus_function_code, 0), COALESCE(modbus_data_type, ''),
			COALESCE(modbus_byte_order, ''), COALESCE(modbus_scaling, 1),
			COALESCE(modbus_offset, 0), COALESCE(modbus_units, ''),
			COALESCE(mqtt_broker, ''), COALESCE(mqtt_port, 0), COALESCE(mqtt_topic, ''),
			COALESCE(mqtt_username, ''), COALESCE(mqtt_password, ''), mqtt_qos,
			lower_limit, upper_limit, enabled, room_id, poll_interval,
			current_value, last_read_time, state, last_failure,
			last_failure_at, last_alert_at, history_count
		FROM diagnostic_codes
		WHERE enabled = TRUE AND data_source_type = $1
		ORDER BY code
	`, string(source))
	if err != nil {
		return nil, fmt.Errorf("failed to query diagnostic codes: %w", err)
	}
	defer rows.Close()

	codes := make([]types.DiagnosticCode, 0)

	for rows.Next() {
		var c types.DiagnosticCode
		var state, lastFailure string
		var (
			modbusIP, registerType, dataType, byteOrder, units string
			modbusPort, unitID, registerAddress, functionCode  int
			scaling, offset                                    float64
		)
		var (
			mqttBroker, topic, username, password string
			mqttPort, qos                         int
		)

		err := rows.Scan(
			&c.ID, &c.Code, &c.Description, &c.Type, &c.Source,
			&modbusIP, &modbusPort, &unitID,
			&registerType, &registerAddress,
			&functionCode, &dataType,
			&byteOrder, &scaling,
			&offset, &units,
			&mqttBroker, &mqttPort, &topic,
			&username, &password, &qos,
			&c.LowerLimit, &c.UpperLimit, &c.Enabled, &c.RoomID, &c.PollInterval,
			&c.CurrentValue, &c.LastReadTime, &state, &lastFailure,
			&c.LastFailureAt, &c.LastAlertAt, &c.HistoryCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan diagnostic code: %w", err)
		}

		c.State = diagnostic.State(state)
		c.LastFailure = lastFailure

		switch c.Source {
		case types.SourceKindModbus:
			c.Modbus = &types.ModbusParams{
				IP:              modbusIP,
				Port:            modbusPort,
				UnitID:          uint8(unitID),
				RegisterKind:    types.RegisterKind(registerType),
				RegisterAddress: uint16(registerAddress),
				FunctionCode:    uint8(functionCode),
				DataType:        types.DataType(dataType),
				ByteOrder:       types.ByteOrder(byteOrder),
				Scaling:         scaling,
				Offset:          offset,
				Units:           units,
			}
		case types.SourceKindMQTT:
			c.MQTT = &types.MQTTParams{
				Broker:   mqttBroker,
				Port:     mqttPort,
				Topic:    topic,
				Username: username,
				Password: password,
				QoS:      byte(qos),
			}
		}

		codes = append(codes, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read diagnostic codes: %w", err)
	}

	return codes, nil
}

// ApplyEvaluation writes one state transition back to the code row. A nil
// value or read time keeps the previous one; the failure columns only move
// on Fail so the last failure stays visible while the code passes.
func (p *PostgresClient) ApplyEvaluation(ctx context.Context, codeID uuid.UUID, value *float64, readAt *time.Time, tr diagnostic.Transition, alerted bool) error {
	var failure *string
	var failureAt, alertAt *time.Time

	if tr.State == diagnostic.StateFail {
		failure = &tr.Failure
		failureAt = &tr.At
	}
	if alerted {
		alertAt = &tr.At
	}

	_, err := p.pool.Exec(ctx, `
		UPDATE diagnostic_codes SET
			current_value = COALESCE($2, current_value),
			last_read_time = COALESCE($3, last_read_time),
			state = $4,
			history_count = $5,
			last_failure = COALESCE($6, last_failure),
			last_failure_at = COALESCE($7, last_failure_at),
			last_alert_at = COALESCE($8, last_alert_at),
			updated_at = NOW()
		WHERE id = $1
	`, codeID, value, readAt, string(tr.State), tr.HistoryCount, failure, failureAt, alertAt)
	if err != nil {
		return fmt.Errorf("failed to apply evaluation: %w", err)
	}

	return nil
}

// AppendStateRecord adds one row to the append-only history log.
func (p *PostgresClient) AppendStateRecord(ctx context.Context, rec types.StateRecord) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO logs (code_id, code, description, type, value, state, history_count, event_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.CodeID, rec.Code, rec.Description, rec.Type, rec.Value, string(rec.State), rec.HistoryCount, rec.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to append state record: %w", err)
	}

	return nil
}

// UpsertCode inserts or updates one code definition by its unique code
// string. Runtime columns (state, history, timestamps) are left untouched
// so re-importing definitions never resets diagnostics.
func (p *PostgresClient) UpsertCode(ctx context.Context, code *types.DiagnosticCode) (uuid.UUID, error) {
	var (
		modbusIP, registerType, dataType, byteOrder, units *string
		modbusPort, unitID, registerAddress, functionCode  *int
		scaling, offset                                    *float64
	)
	var (
		mqttBroker, topic, username, password *string
		mqttPort                              *int
		qos                                   int
	)

	if m := code.Modbus; m != nil {
		port, unit := m.Port, int(m.UnitID)
		addr, fc := int(m.RegisterAddress), int(m.FunctionCode)
		kind, dt, bo := string(m.RegisterKind), string(m.DataType), string(m.ByteOrder)
		modbusIP, modbusPort, unitID = &m.IP, &port, &unit
		registerType, registerAddress, functionCode = &kind, &addr, &fc
		dataType, byteOrder = &dt, &bo
		scaling, offset, units = &m.Scaling, &m.Offset, &m.Units
	}
	if m := code.MQTT; m != nil {
		port, q := m.Port, int(m.QoS)
		mqttBroker, mqttPort, topic = &m.Broker, &port, &m.Topic
		username, password = &m.Username, &m.Password
		qos = q
	}

	var id uuid.UUID
	err := p.pool.QueryRow(ctx, `
		INSERT INTO diagnostic_codes (
			code, description, type, data_source_type,
			modbus_ip, modbus_port, modbus_unit_id, modbus_register_type,
			modbus_register_address, modbus_function_code, modbus_data_type,
			modbus_byte_order, modbus_scaling, modbus_offset, modbus_units,
			mqtt_broker, mqtt_port, mqtt_topic, mqtt_username, mqtt_password, mqtt_qos,
			lower_limit, upper_limit, enabled, room_id, poll_interval
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)
		ON CONFLICT (code)
		DO UPDATE SET
			description = EXCLUDED.description,
			type = EXCLUDED.type,
			data_source_type = EXCLUDED.data_source_type,
			modbus_ip = EXCLUDED.modbus_ip,
			modbus_port = EXCLUDED.modbus_port,
			modbus_unit_id = EXCLUDED.modbus_unit_id,
			modbus_register_type = EXCLUDED.modbus_register_type,
			modbus_register_address = EXCLUDED.modbus_register_address,
			modbus_function_code = EXCLUDED.modbus_function_code,
			modbus_data_type = EXCLUDED.modbus_data_type,
			modbus_byte_order = EXCLUDED.modbus_byte_order,
			modbus_scaling = EXCLUDED.modbus_scaling,
			modbus_offset = EXCLUDED.modbus_offset,
			modbus_units = EXCLUDED.modbus_units,
			mqtt_broker = EXCLUDED.mqtt_broker,
			mqtt_port = EXCLUDED.mqtt_port,
			mqtt_topic = EXCLUDED.mqtt_topic,
			mqtt_username = EXCLUDED.mqtt_username,
			mqtt_password = EXCLUDED.mqtt_password,
			mqtt_qos = EXCLUDED.mqtt_qos,
			lower_limit = EXCLUDED.lower_limit,
			upper_limit = EXCLUDED.upper_limit,
			enabled = EXCLUDED.enabled,
			room_id = EXCLUDED.room_id,
			poll_interval = EXCLUDED.poll_interval,
			updated_at = NOW()
		RETURNING id
	`, code.Code, code.Description, code.Type, string(code.Source),
		modbusIP, modbusPort, unitID, registerType,
		registerAddress, functionCode, dataType,
		byteOrder, scaling, offset, units,
		mqttBroker, mqttPort, topic, username, password, qos,
		code.LowerLimit, code.UpperLimit, code.Enabled, code.RoomID, code.PollInterval,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to upsert diagnostic code %s: %w", code.Code, err)
	}

	return id, nil
}
