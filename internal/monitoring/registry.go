// internal/monitoring/registry.go
package monitoring

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"pingmon/internal/database"
)

// Registry is the ordered, lock-guarded device list. Storage I/O never happens
// while mu is held; saves are serialized separately by saveMu.
type Registry struct {
	mu      sync.RWMutex
	devices []database.Device

	store  database.Store
	saveMu sync.Mutex
	onSave func(error)
}

func NewRegistry(store database.Store) *Registry {
	return &Registry{store: store}
}

// Load replaces the registry contents with what the store holds. On error the
// registry is left empty and the error is returned for the caller to report.
func (r *Registry) Load(ctx context.Context) error {
	var devices []database.Device
	var err error
	if r.store != nil {
		devices, err = r.store.Load(ctx)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		r.devices = nil
		return fmt.Errorf("failed to load devices: %w", err)
	}
	r.devices = devices
	return nil
}

// Add validates and appends a new device with unknown status.
func (r *Registry) Add(ctx context.Context, name, address string) (database.Device, error) {
	name = strings.TrimSpace(name)
	address = strings.TrimSpace(address)
	if name == "" {
		return database.Device{}, ErrInvalidName
	}
	if !ValidAddress(address) {
		return database.Device{}, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	device := database.Device{
		ID:      uuid.New().String(),
		Name:    name,
		Address: address,
		Status:  database.StatusUnknown,
	}

	r.mu.Lock()
	r.devices = append(r.devices, device)
	r.mu.Unlock()

	r.persist(ctx)
	return device, nil
}

// Remove deletes the device at index and returns it.
func (r *Registry) Remove(ctx context.Context, index int) (database.Device, error) {
	r.mu.Lock()
	if index < 0 || index >= len(r.devices) {
		n := len(r.devices)
		r.mu.Unlock()
		return database.Device{}, fmt.Errorf("%w: %d (have %d)", ErrIndexOutOfRange, index, n)
	}
	removed := r.devices[index]
	r.devices = append(r.devices[:index:index], r.devices[index+1:]...)
	r.mu.Unlock()

	r.persist(ctx)
	return removed, nil
}

// List returns a point-in-time copy of the devices.
func (r *Registry) List() []database.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]database.Device, len(r.devices))
	copy(devices, r.devices)
	return devices
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// Update records a probe result for the device taken from a snapshot at
// index. LastCheck always advances; LastStatusChange only moves when the
// status actually differs. If the list shifted since the snapshot the device
// is found by id instead.
func (r *Registry) Update(index int, id string, status database.DeviceStatus, now time.Time) (database.Device, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.locate(index, id)
	if i < 0 {
		return database.Device{}, false, ErrDeviceGone
	}

	d := &r.devices[i]
	checked := now
	d.LastCheck = &checked

	transition := d.Status != status
	if transition {
		changed := now
		d.LastStatusChange = &changed
		d.Status = status
	}

	return *d, transition, nil
}

func (r *Registry) locate(index int, id string) int {
	if index >= 0 && index < len(r.devices) && r.devices[index].ID == id {
		return index
	}
	for i := range r.devices {
		if r.devices[i].ID == id {
			return i
		}
	}
	return -1
}

// Save writes the current list to the store. The snapshot is taken under
// saveMu so concurrent saves land in mutation order.
func (r *Registry) Save(ctx context.Context) error {
	if r.store == nil {
		return nil
	}

	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	if err := r.store.Save(ctx, r.List()); err != nil {
		return fmt.Errorf("failed to save devices: %w", err)
	}
	return nil
}

// OnSave installs the hook told the outcome of every save triggered by
// Add or Remove. Those saves never fail the mutation itself.
func (r *Registry) OnSave(fn func(error)) {
	r.saveMu.Lock()
	r.onSave = fn
	r.saveMu.Unlock()
}

func (r *Registry) persist(ctx context.Context) {
	err := r.Save(ctx)

	r.saveMu.Lock()
	hook := r.onSave
	r.saveMu.Unlock()

	if hook != nil {
		hook(err)
		return
	}
	if err != nil {
		logrus.WithError(err).Warn("Device list not persisted")
	}
}

// ValidAddress accepts four dot-separated decimal integers, each 0-255.
func ValidAddress(address string) bool {
	parts := strings.Split(address, ".")
	if len(parts) != 4 {
		return false
	}
	for _, part := range parts {
		if part == "" || len(part) > 3 {
			return false
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 255 || part[0] == '+' || part[0] == '-' {
			return false
		}
	}
	return true
}
