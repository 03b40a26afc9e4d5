package tensor

import "errors"

var (
	ErrShapeMismatch          = errors.New("tensor shape mismatch")
	ErrDeviceMismatch         = errors.New("tensors reside on different devices")
	ErrEmptyMask              = errors.New("attention mask selects no tokens")
	ErrAcceleratorUnavailable = errors.New("accelerated device requested but not available")
)
