// internal/database/models.go
package database

import (
	"time"
)

// DeviceStatus is the last known reachability of a device.
type DeviceStatus string

const (
	StatusUnknown DeviceStatus = "unknown"
	StatusOnline  DeviceStatus = "online"
	StatusOffline DeviceStatus = "offline"
)

// Valid reports whether s is one of the known statuses.
func (s DeviceStatus) Valid() bool {
	switch s {
	case StatusUnknown, StatusOnline, StatusOffline:
		return true
	}
	return false
}

type Device struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Address          string       `json:"address"`
	Status           DeviceStatus `json:"status"`
	LastCheck        *time.Time   `json:"last_check,omitempty"`
	LastStatusChange *time.Time   `json:"last_status_change,omitempty"`
}

// normalize fills defaults for records written by older versions or by hand.
func (d *Device) normalize() {
	if !d.Status.Valid() {
		d.Status = StatusUnknown
	}
}
