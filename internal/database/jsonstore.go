// internal/database/jsonstore.go - devices.json compatible storage
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// jsonDevice is the on-disk record. Absent timestamps are written as null.
type jsonDevice struct {
	ID               string       `json:"id,omitempty"`
	Name             string       `json:"name"`
	IP               string       `json:"ip"`
	Status           DeviceStatus `json:"status"`
	LastCheck        *string      `json:"last_check"`
	LastStatusChange *string      `json:"last_status_change"`
}

// Layouts accepted on load. Files written by the desktop tool carry naive
// local timestamps with microseconds.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

type JSONStore struct {
	path string
	mu   sync.Mutex
}

func NewJSONStore(path string) (*JSONStore, error) {
	if path == "" {
		return nil, errors.New("json store path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &JSONStore{path: path}, nil
}

// Load returns an empty list when the file does not exist yet.
func (s *JSONStore) Load(ctx context.Context) ([]Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read device file: %w", err)
	}

	var records []jsonDevice
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse device file: %w", err)
	}

	devices := make([]Device, 0, len(records))
	for i, rec := range records {
		device := Device{
			ID:      rec.ID,
			Name:    rec.Name,
			Address: rec.IP,
			Status:  rec.Status,
		}
		if device.ID == "" {
			device.ID = uuid.New().String()
		}
		if device.Name == "" {
			device.Name = rec.IP
		}
		if device.LastCheck, err = parseTimestamp(rec.LastCheck); err != nil {
			return nil, fmt.Errorf("device %d: last_check: %w", i, err)
		}
		if device.LastStatusChange, err = parseTimestamp(rec.LastStatusChange); err != nil {
			return nil, fmt.Errorf("device %d: last_status_change: %w", i, err)
		}
		device.normalize()
		devices = append(devices, device)
	}

	return devices, nil
}

// Save writes to a temp file and renames it over the target.
func (s *JSONStore) Save(ctx context.Context, devices []Device) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	records := make([]jsonDevice, 0, len(devices))
	for _, d := range devices {
		records = append(records, jsonDevice{
			ID:               d.ID,
			Name:             d.Name,
			IP:               d.Address,
			Status:           d.Status,
			LastCheck:        formatTimestamp(d.LastCheck),
			LastStatusChange: formatTimestamp(d.LastStatusChange),
		})
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal devices: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write device file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write device file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace device file: %w", err)
	}
	return nil
}

func (s *JSONStore) Close() error {
	return nil
}

func parseTimestamp(v *string) (*time.Time, error) {
	if v == nil || *v == "" {
		return nil, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, *v, time.Local); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized timestamp %q", *v)
}

func formatTimestamp(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339Nano)
	return &s
}
