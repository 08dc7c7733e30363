package storage

import (
	"context"
	"fmt"
)

// Tables are created on startup so a fresh database is usable without a
// separate migration step. Every statement is idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS rooms (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		name VARCHAR(255) UNIQUE NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS contacts (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		fullname VARCHAR(255) NOT NULL,
		phone VARCHAR(255) UNIQUE,
		email VARCHAR(255) UNIQUE,
		enable_sms BOOLEAN NOT NULL DEFAULT TRUE,
		enable_email BOOLEAN NOT NULL DEFAULT TRUE
	)`,

	`CREATE TABLE IF NOT EXISTS app_settings (
		id INTEGER PRIMARY KEY,
		refresh_time INTEGER NOT NULL DEFAULT 5,
		repeat_alert_interval INTEGER NOT NULL DEFAULT 0,
		last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_error_event TIMESTAMPTZ
	)`,

	`CREATE TABLE IF NOT EXISTS diagnostic_codes (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		code VARCHAR(255) UNIQUE NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		type VARCHAR(255) NOT NULL DEFAULT '',
		data_source_type VARCHAR(50) NOT NULL DEFAULT 'modbus',
		modbus_ip VARCHAR(255),
		modbus_port INTEGER,
		modbus_unit_id INTEGER,
		modbus_register_type VARCHAR(255),
		modbus_register_address INTEGER,
		modbus_function_code INTEGER,
		modbus_data_type VARCHAR(255),
		modbus_byte_order VARCHAR(255),
		modbus_scaling DOUBLE PRECISION,
		modbus_offset DOUBLE PRECISION,
		modbus_units VARCHAR(255),
		mqtt_broker VARCHAR(255),
		mqtt_port INTEGER,
		mqtt_topic VARCHAR(255),
		mqtt_username VARCHAR(255),
		mqtt_password VARCHAR(255),
		mqtt_qos INTEGER NOT NULL DEFAULT 0,
		lower_limit DOUBLE PRECISION,
		upper_limit DOUBLE PRECISION,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		room_id UUID REFERENCES rooms(id),
		poll_interval INTEGER,
		current_value DOUBLE PRECISION,
		last_read_time TIMESTAMPTZ,
		state VARCHAR(255) NOT NULL DEFAULT 'No Status',
		last_failure TEXT NOT NULL DEFAULT '',
		last_failure_at TIMESTAMPTZ,
		last_alert_at TIMESTAMPTZ,
		history_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS logs (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		code_id UUID,
		code VARCHAR(255),
		description TEXT,
		type VARCHAR(255),
		value DOUBLE PRECISION,
		state VARCHAR(255),
		history_count INTEGER,
		event_time TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS slope_configurations (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		room_id UUID REFERENCES rooms(id),
		min_value DOUBLE PRECISION NOT NULL,
		max_value DOUBLE PRECISION NOT NULL,
		summer_positive DOUBLE PRECISION NOT NULL DEFAULT 0,
		summer_negative DOUBLE PRECISION NOT NULL DEFAULT 0,
		fall_positive DOUBLE PRECISION NOT NULL DEFAULT 0,
		fall_negative DOUBLE PRECISION NOT NULL DEFAULT 0,
		winter_positive DOUBLE PRECISION NOT NULL DEFAULT 0,
		winter_negative DOUBLE PRECISION NOT NULL DEFAULT 0,
		spring_positive DOUBLE PRECISION NOT NULL DEFAULT 0,
		spring_negative DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS humidity_slope_configurations (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		room_id UUID REFERENCES rooms(id),
		min_value DOUBLE PRECISION NOT NULL,
		max_value DOUBLE PRECISION NOT NULL,
		summer_positive DOUBLE PRECISION NOT NULL DEFAULT 0,
		summer_negative DOUBLE PRECISION NOT NULL DEFAULT 0,
		fall_positive DOUBLE PRECISION NOT NULL DEFAULT 0,
		fall_negative DOUBLE PRECISION NOT NULL DEFAULT 0,
		winter_positive DOUBLE PRECISION NOT NULL DEFAULT 0,
		winter_negative DOUBLE PRECISION NOT NULL DEFAULT 0,
		spring_positive DOUBLE PRECISION NOT NULL DEFAULT 0,
		spring_negative DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS alert_deliveries (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		task_id UUID NOT NULL,
		code_id UUID,
		channel VARCHAR(20) NOT NULL,
		recipients INTEGER NOT NULL DEFAULT 0,
		delivered BOOLEAN NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		attempted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS logs_code_id_idx ON logs (code_id, event_time)`,
	`CREATE INDEX IF NOT EXISTS diagnostic_codes_enabled_idx ON diagnostic_codes (data_source_type, enabled)`,
}

// EnsureSchema creates missing tables and seeds the settings singleton.
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO app_settings (id, refresh_time, repeat_alert_interval)
		VALUES (1, 5, 0)
		ON CONFLICT (id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to seed app settings: %w", err)
	}

	return nil
}
