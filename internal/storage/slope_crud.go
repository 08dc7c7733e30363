package storage

import (
	"context"
	"fmt"

	"github.com/GoomerJaspartap/diagnostic-controller/internal/slope"
)

// LoadSlopeConfigurations reads both slope tables into one resolver input.
// Temperature and humidity live in separate tables mirroring how the
// configuration UI manages them.
func (p *PostgresClient) LoadSlopeConfigurations(ctx context.Context) ([]slope.Configuration, error) {
	temperature, err := p.loadSlopeTable(ctx, "slope_configurations", slope.KindTemperature)
	if err != nil {
		return nil, err
	}

	humidity, err := p.loadSlopeTable(ctx, "humidity_slope_configurations", slope.KindHumidity)
	if err != nil {
		return nil, err
	}

	return append(temperature, humidity...), nil
}

func (p *PostgresClient) loadSlopeTable(ctx context.Context, table string, kind slope.Kind) ([]slope.Configuration, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, room_id, min_value, max_value,
			summer_positive, summer_negative,
			fall_positive, fall_negative,
			winter_positive, winter_negative,
			spring_positive, spring_negative
		FROM `+table)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	configs := make([]slope.Configuration, 0)
	for rows.Next() {
		c := slope.Configuration{Kind: kind}
		err := rows.Scan(&c.ID, &c.RoomID, &c.Min, &c.Max,
			&c.Summer.Positive, &c.Summer.Negative,
			&c.Fall.Positive, &c.Fall.Negative,
			&c.Winter.Positive, &c.Winter.Negative,
			&c.Spring.Positive, &c.Spring.Negative)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		configs = append(configs, c)
	}

	return configs, rows.Err()
}
