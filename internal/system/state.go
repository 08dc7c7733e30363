package system

import (
	"fmt"

	"github.com/GoomerJaspartap/diagnostic-controller/internal/alert"
)

type SystemState int

const (
	StateStopped SystemState = iota
	StateInitializing
	StateRunning
	StateStopping
	StateError
)

func (s SystemState) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateInitializing:
		return "INITIALIZING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// SystemStatus is a point-in-time snapshot of the controller and its
// components.
type SystemStatus struct {
	State         string       `json:"state"`
	ModbusRunning bool         `json:"modbus_running"`
	MQTTRunning   bool         `json:"mqtt_running"`
	Alerts        alert.Status `json:"alerts"`
	Timestamp     int64        `json:"timestamp"`
	Error         string       `json:"error,omitempty"`
}

var validTransitions = map[SystemState][]SystemState{
	StateStopped:      {StateInitializing},
	StateInitializing: {StateRunning, StateError},
	StateRunning:      {StateStopping, StateError},
	StateStopping:     {StateStopped, StateError},
	StateError:        {StateInitializing, StateStopping, StateStopped},
}

func ValidateTransition(from, to SystemState) error {
	allowed, ok := validTransitions[from]
	if !ok {
		return fmt.Errorf("invalid current state: %s", from)
	}

	for _, next := range allowed {
		if next == to {
			return nil
		}
	}

	return fmt.Errorf("invalid state transition: %s -> %s", from, to)
}
