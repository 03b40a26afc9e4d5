package embedding

import "strconv"

// RuntimeOptions configures the ONNX Runtime environment and sessions.
type RuntimeOptions struct {
	// LibraryPath points at the onnxruntime shared library; empty uses the loader default.
	LibraryPath string
	// DeviceID selects the CUDA device.
	DeviceID int
	// IntraOpThreads caps per-operator parallelism; 0 lets the runtime decide.
	IntraOpThreads int
}

// cudaProviderOptions returns the CUDA execution provider settings for rt.
func (rt RuntimeOptions) cudaProviderOptions() map[string]string {
	return map[string]string{
		"device_id": strconv.Itoa(rt.DeviceID),
	}
}
