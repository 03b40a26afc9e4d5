package tensor

import (
	"fmt"
	"strings"
)

// Device identifies where tensors live and where the model executes.
type Device int

const (
	// CPU is the general-purpose processor.
	CPU Device = iota
	// Accelerated is a parallel compute unit exposed through the runtime (CUDA).
	Accelerated
)

func (d Device) String() string {
	switch d {
	case CPU:
		return "cpu"
	case Accelerated:
		return "cuda"
	default:
		return fmt.Sprintf("device(%d)", int(d))
	}
}

// DevicePreference is the configured device choice before probing.
type DevicePreference int

const (
	// PreferAuto uses the accelerator when the backend reports one, CPU otherwise.
	PreferAuto DevicePreference = iota
	// PreferCPU always selects CPU.
	PreferCPU
	// PreferAccelerated requires the accelerator.
	PreferAccelerated
)

// ParseDevicePreference maps config values to a preference.
func ParseDevicePreference(s string) (DevicePreference, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return PreferAuto, nil
	case "cpu":
		return PreferCPU, nil
	case "cuda", "gpu", "accelerated":
		return PreferAccelerated, nil
	default:
		return PreferAuto, fmt.Errorf("unknown device %q: want auto, cpu or cuda", s)
	}
}

// Resolve picks the device for this preference. available reports whether the
// accelerator can be used and is only called when the preference allows it.
func (p DevicePreference) Resolve(available func() bool) (Device, error) {
	switch p {
	case PreferCPU:
		return CPU, nil
	case PreferAccelerated:
		if available != nil && available() {
			return Accelerated, nil
		}
		return CPU, ErrAcceleratorUnavailable
	default:
		if available != nil && available() {
			return Accelerated, nil
		}
		return CPU, nil
	}
}
