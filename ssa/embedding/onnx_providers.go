//go:build onnx
// +build onnx

package embedding

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// ensureONNXEnvironment initializes the process-wide ONNX Runtime once.
func ensureONNXEnvironment(rt RuntimeOptions) error {
	if ort.IsInitialized() {
		return nil
	}
	if rt.LibraryPath != "" {
		ort.SetSharedLibraryPath(rt.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnx runtime: %w", err)
	}
	return nil
}

// newONNXSessionOptions builds session options for device. Appending the CUDA
// provider fails when the runtime was built without it.
func newONNXSessionOptions(rt RuntimeOptions, accelerated bool) (*ort.SessionOptions, error) {
	o, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	_ = o.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll)
	if rt.IntraOpThreads > 0 {
		_ = o.SetIntraOpNumThreads(rt.IntraOpThreads)
	}
	if !accelerated {
		return o, nil
	}

	cu, err := ort.NewCUDAProviderOptions()
	if err != nil {
		o.Destroy()
		return nil, fmt.Errorf("cuda provider options: %w", err)
	}
	defer cu.Destroy()
	if err := cu.Update(rt.cudaProviderOptions()); err != nil {
		o.Destroy()
		return nil, fmt.Errorf("cuda provider options: %w", err)
	}
	if err := o.AppendExecutionProviderCUDA(cu); err != nil {
		o.Destroy()
		return nil, fmt.Errorf("append cuda provider: %w", err)
	}
	return o, nil
}

// onnxAcceleratorAvailable probes whether the CUDA execution provider can be used.
func onnxAcceleratorAvailable(rt RuntimeOptions) bool {
	if err := ensureONNXEnvironment(rt); err != nil {
		return false
	}
	o, err := newONNXSessionOptions(rt, true)
	if err != nil {
		return false
	}
	o.Destroy()
	return true
}
