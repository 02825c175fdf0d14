package models

import (
	"fmt"
	"net"
	"strconv"
)

// DeviceStatus is the availability of a worker device.
type DeviceStatus string

const (
	// DeviceOpen means the device can accept a task.
	DeviceOpen DeviceStatus = "open"
	// DeviceClosed means the device is busy or unreachable.
	DeviceClosed DeviceStatus = "closed"
)

// Valid returns true if the status is a known value.
func (s DeviceStatus) Valid() bool {
	return s == DeviceOpen || s == DeviceClosed
}

// CanTransition reports whether a device may move from one status to another.
func CanTransition(from, to DeviceStatus) bool {
	switch from {
	case DeviceOpen:
		return to == DeviceClosed
	case DeviceClosed:
		return to == DeviceOpen
	default:
		return false
	}
}

// Device is a worker endpoint registered in the pool.
type Device struct {
	// ID is the role name from the device configuration.
	ID string `json:"id"`
	// Address is the host or IP of the device. It doubles as the pub/sub topic.
	Address string `json:"ip"`
	// Port is the device's data port.
	Port int `json:"port"`
	// HandshakePort is where the device answers liveness checks. Zero disables the handshake.
	HandshakePort int `json:"handshake_port,omitempty"`
	// Class is the capability class the device serves.
	Class CapabilityClass `json:"class"`
	// Status is owned by the device pool.
	Status DeviceStatus `json:"status"`
}

// Topic returns the routing key subscribers filter on.
func (d Device) Topic() string {
	return d.Address
}

// Endpoint returns the device's data endpoint.
func (d Device) Endpoint() string {
	return "tcp://" + net.JoinHostPort(d.Address, strconv.Itoa(d.Port))
}

// HandshakeEndpoint returns the device's handshake endpoint, or "" when the
// device has no handshake port.
func (d Device) HandshakeEndpoint() string {
	if d.HandshakePort == 0 {
		return ""
	}
	return "tcp://" + net.JoinHostPort(d.Address, strconv.Itoa(d.HandshakePort))
}

// String implements fmt.Stringer.
func (d Device) String() string {
	return fmt.Sprintf("%s(%s:%d)", d.ID, d.Address, d.Port)
}

// Assignment pairs a task with the device chosen for it.
type Assignment struct {
	Task   Task   `json:"task"`
	Device Device `json:"device"`
	// Index is the task's position in its class queue.
	Index int `json:"index"`
}
