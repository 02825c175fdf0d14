// Package devices keeps the registry of worker devices, grouped by capability
// class in registration order.
package devices

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ShayCichocki/hydra/pkg/models"
)

// ErrUnknownDevice is returned for an id that is not registered.
var ErrUnknownDevice = errors.New("unknown device")

// Pool is a thread-safe registry of devices partitioned by class.
type Pool struct {
	mu      sync.RWMutex
	byClass map[models.CapabilityClass][]*models.Device
	byID    map[string]*models.Device
	order   []*models.Device
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{
		byClass: make(map[models.CapabilityClass][]*models.Device),
		byID:    make(map[string]*models.Device),
	}
}

// Register adds a device to the end of its class list. New devices start
// open unless a valid status is set.
func (p *Pool) Register(d models.Device) error {
	if d.ID == "" {
		return fmt.Errorf("device has no id")
	}
	if !d.Class.Valid() {
		return fmt.Errorf("device %s: invalid class %q", d.ID, d.Class)
	}
	if !d.Status.Valid() {
		d.Status = models.DeviceOpen
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byID[d.ID]; exists {
		return fmt.Errorf("device %s already registered", d.ID)
	}
	dev := &d
	p.byID[d.ID] = dev
	p.byClass[d.Class] = append(p.byClass[d.Class], dev)
	p.order = append(p.order, dev)
	return nil
}

// NextOpen returns the first open device of class in registration order.
// The boolean is false when no device of the class is open.
func (p *Pool) NextOpen(class models.CapabilityClass) (*models.Device, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, d := range p.byClass[class] {
		if d.Status == models.DeviceOpen {
			cp := *d
			return &cp, true
		}
	}
	return nil, false
}

// MarkClosed moves a device to closed. Closing a closed device is a no-op.
func (p *Pool) MarkClosed(id string) error {
	return p.transition(id, models.DeviceClosed)
}

// MarkOpen moves a device to open. Opening an open device is a no-op.
func (p *Pool) MarkOpen(id string) error {
	return p.transition(id, models.DeviceOpen)
}

func (p *Pool) transition(id string, to models.DeviceStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	d, ok := p.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	if d.Status == to {
		return nil
	}
	if !models.CanTransition(d.Status, to) {
		return fmt.Errorf("device %s: cannot move from %s to %s", id, d.Status, to)
	}
	d.Status = to
	return nil
}

// ReopenAll marks every device open. It runs at the start of a dispatch cycle.
func (p *Pool) ReopenAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, d := range p.order {
		d.Status = models.DeviceOpen
	}
}

// Get returns a copy of the device with the given id.
func (p *Pool) Get(id string) (models.Device, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	d, ok := p.byID[id]
	if !ok {
		return models.Device{}, false
	}
	return *d, true
}

// ForClass returns copies of the devices of class in registration order.
func (p *Pool) ForClass(class models.CapabilityClass) []models.Device {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return copyDevices(p.byClass[class])
}

// All returns copies of every device in registration order.
func (p *Pool) All() []models.Device {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return copyDevices(p.order)
}

// Len returns the number of devices registered for class.
func (p *Pool) Len(class models.CapabilityClass) int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.byClass[class])
}

// Assign returns the device for the i-th task of class: devices[i mod M].
// Status is not consulted. The boolean is false when the class has no devices.
func (p *Pool) Assign(class models.CapabilityClass, i int) (models.Device, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	list := p.byClass[class]
	if len(list) == 0 || i < 0 {
		return models.Device{}, false
	}
	return *list[i%len(list)], true
}

func copyDevices(list []*models.Device) []models.Device {
	out := make([]models.Device, len(list))
	for i, d := range list {
		out[i] = *d
	}
	return out
}
