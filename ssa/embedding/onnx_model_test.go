//go:build onnx
// +build onnx

package embedding

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ZanzyTHEbar/sentence-sim-analysis/ssa/hub"
	"github.com/ZanzyTHEbar/sentence-sim-analysis/ssa/tensor"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SSA_TEST_ONNX_MODEL names a local directory holding model.onnx (or onnx/model.onnx)
// and its tokenizer. SSA_TEST_ONNX_LIB optionally points at libonnxruntime.
func onnxTestModelDir(t *testing.T) string {
	t.Helper()
	dir := os.Getenv("SSA_TEST_ONNX_MODEL")
	if dir == "" {
		t.Skip("SSA_TEST_ONNX_MODEL not set")
	}
	if _, err := os.Stat(dir); err != nil {
		t.Skipf("onnx model dir unavailable: %v", err)
	}
	return dir
}

func TestONNXTextEncoder(t *testing.T) {
	dir := onnxTestModelDir(t)

	enc, err := New(context.Background(), dir,
		WithLogger(zerolog.Nop()),
		WithBackend("onnx"),
		WithDevicePreference(tensor.PreferCPU),
		WithRuntime(RuntimeOptions{LibraryPath: os.Getenv("SSA_TEST_ONNX_LIB")}),
		WithHubConfig(hub.Config{CacheDir: filepath.Join(t.TempDir(), "cache"), Offline: true}),
	)
	require.NoError(t, err)
	defer enc.Close()
	assert.Equal(t, tensor.CPU, enc.Device())

	a, err := enc.Encode(context.Background(), "The quick brown fox jumps over the lazy dog.")
	require.NoError(t, err)
	rows, cols := a.Dims()
	assert.Equal(t, 1, rows)
	assert.Greater(t, cols, 0)
	if hs := enc.HiddenSize(); hs > 0 {
		assert.Equal(t, hs, cols)
	}
	assert.True(t, a.IsFinite(0))
	assert.Equal(t, tensor.CPU, a.Device())

	b, err := enc.Encode(context.Background(), "The quick brown fox jumps over the lazy dog.")
	require.NoError(t, err)
	assert.InDeltaSlice(t, a.Row(0), b.Row(0), 1e-6)
}

func TestONNXForwardRequiresNoGrad(t *testing.T) {
	dir := onnxTestModelDir(t)

	rt := RuntimeOptions{LibraryPath: os.Getenv("SSA_TEST_ONNX_LIB")}
	path := filepath.Join(dir, "model.onnx")
	if _, err := os.Stat(path); err != nil {
		path = filepath.Join(dir, "onnx", "model.onnx")
	}
	model, err := loadONNXModel(path, rt, zerolog.Nop())
	require.NoError(t, err)
	defer model.Close()

	batch, err := tensor.NewBatch([][]int64{{101, 102}}, [][]int64{{1, 1}}, nil)
	require.NoError(t, err)

	_, err = model.Forward(tensor.NoGrad(context.Background()), batch)
	assert.Error(t, err, "no session before To")

	require.NoError(t, model.To(tensor.CPU))
	_, err = model.Forward(tensor.NoGrad(context.Background()), batch)
	assert.ErrorIs(t, err, ErrTrainingMode)

	model.Eval()
	_, err = model.Forward(context.Background(), batch)
	assert.ErrorIs(t, err, ErrGradTracking)

	h, err := model.Forward(tensor.NoGrad(context.Background()), batch)
	require.NoError(t, err)
	n, seq, _ := h.Shape()
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, seq)
}
