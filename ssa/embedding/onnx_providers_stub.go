//go:build !onnx
// +build !onnx

package embedding

// onnxAcceleratorAvailable is always false without ONNX support.
func onnxAcceleratorAvailable(rt RuntimeOptions) bool { return false }
