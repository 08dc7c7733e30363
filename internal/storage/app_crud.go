package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/GoomerJaspartap/diagnostic-controller/internal/alert"
	"github.com/GoomerJaspartap/diagnostic-controller/internal/types"
)

// GetAppSettings loads the settings singleton. A missing row falls back to
// the defaults the schema seeds.
func (p *PostgresClient) GetAppSettings(ctx context.Context) (types.AppSettings, error) {
	var settings types.AppSettings

	err := p.pool.QueryRow(ctx, `
		SELECT refresh_time, repeat_alert_interval, last_updated, last_error_event
		FROM app_settings
		WHERE id = 1
	`).Scan(&settings.RefreshInterval, &settings.RepeatAlertInterval,
		&settings.LastUpdated, &settings.LastErrorEvent)

	if errors.Is(err, pgx.ErrNoRows) {
		return types.AppSettings{RefreshInterval: 5}, nil
	}
	if err != nil {
		return types.AppSettings{}, fmt.Errorf("failed to load app settings: %w", err)
	}

	return settings, nil
}

// TouchLastErrorEvent stamps the most recent failure so the dashboard can
// surface it.
func (p *PostgresClient) TouchLastErrorEvent(ctx context.Context, at time.Time) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE app_settings SET last_error_event = $1 WHERE id = 1
	`, at)
	if err != nil {
		return fmt.Errorf("failed to update last error event: %w", err)
	}

	return nil
}

func (p *PostgresClient) LoadRooms(ctx context.Context) ([]types.Room, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, name FROM rooms ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rooms: %w", err)
	}
	defer rows.Close()

	rooms := make([]types.Room, 0)
	for rows.Next() {
		var r types.Room
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		rooms = append(rooms, r)
	}

	return rooms, rows.Err()
}

func (p *PostgresClient) LoadContacts(ctx context.Context) ([]types.Contact, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, fullname, COALESCE(phone, ''), COALESCE(email, ''), enable_sms, enable_email
		FROM contacts
		ORDER BY fullname
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}
	defer rows.Close()

	contacts := make([]types.Contact, 0)
	for rows.Next() {
		var c types.Contact
		if err := rows.Scan(&c.ID, &c.FullName, &c.Phone, &c.Email, &c.EnableSMS, &c.EnableEmail); err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		contacts = append(contacts, c)
	}

	return contacts, rows.Err()
}

// RecordDeliveryOutcome persists one delivery attempt so alert history is
// auditable. Implements alert.OutcomeRecorder.
func (p *PostgresClient) RecordDeliveryOutcome(ctx context.Context, outcome alert.DeliveryOutcome) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO alert_deliveries (task_id, code_id, channel, recipients, delivered, detail, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, outcome.TaskID, outcome.CodeID, string(outcome.Channel), outcome.Recipients,
		outcome.Delivered, outcome.Detail, outcome.AttemptedAt)
	if err != nil {
		return fmt.Errorf("failed to record delivery outcome: %w", err)
	}

	return nil
}
