// internal/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const devicesSchema = `
	CREATE TABLE IF NOT EXISTS devices (
		position           INTEGER     PRIMARY KEY,
		id                 TEXT        NOT NULL,
		name               TEXT        NOT NULL,
		ip                 TEXT        NOT NULL,
		status             TEXT        NOT NULL DEFAULT 'unknown',
		last_check         TIMESTAMPTZ NULL,
		last_status_change TIMESTAMPTZ NULL
	)
`

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects with dsn and ensures the devices table exists.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn cannot be empty")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	if _, err := db.ExecContext(ctx, devicesSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create devices table: %w", err)
	}

	logrus.Info("Connected to PostgreSQL device store")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Load(ctx context.Context) ([]Device, error) {
	query := `
		SELECT id, name, ip, status, last_check, last_status_change
		FROM devices
		ORDER BY position
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		var (
			device                  Device
			lastCheck, lastStatusCh sql.NullTime
		)
		if err := rows.Scan(
			&device.ID,
			&device.Name,
			&device.Address,
			&device.Status,
			&lastCheck,
			&lastStatusCh,
		); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		if device.ID == "" {
			device.ID = uuid.New().String()
		}
		device.LastCheck = nullTimePtr(lastCheck)
		device.LastStatusChange = nullTimePtr(lastStatusCh)
		device.normalize()
		devices = append(devices, device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read devices: %w", err)
	}
	return devices, nil
}

// Save replaces every row in one transaction.
func (s *PostgresStore) Save(ctx context.Context, devices []Device) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM devices`); err != nil {
		return fmt.Errorf("failed to clear devices: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO devices (position, id, name, ip, status, last_check, last_status_change)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, d := range devices {
		if _, err := stmt.ExecContext(ctx, i, d.ID, d.Name, d.Address, string(d.Status), d.LastCheck, d.LastStatusChange); err != nil {
			return fmt.Errorf("failed to insert device %s: %w", d.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit devices: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
