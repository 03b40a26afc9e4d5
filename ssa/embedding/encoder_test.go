package embedding

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ZanzyTHEbar/sentence-sim-analysis/ssa/common"
	"github.com/ZanzyTHEbar/sentence-sim-analysis/ssa/config"
	"github.com/ZanzyTHEbar/sentence-sim-analysis/ssa/embedding/tokenizer"
	"github.com/ZanzyTHEbar/sentence-sim-analysis/ssa/hub"
	"github.com/ZanzyTHEbar/sentence-sim-analysis/ssa/tensor"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var vocab = []string{"[PAD]", "[UNK]", "[CLS]", "[SEP]", "hello", "world", "the", "quick", "fox", "."}

func writeModelDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, tokenizer.VocabFile), []byte(strings.Join(vocab, "\n")+"\n"), 0o644))
	return dir
}

func newHashEncoder(t *testing.T, dims int, opts ...Option) *TextEncoder {
	t.Helper()
	base := []Option{
		WithLogger(zerolog.Nop()),
		WithBackend("hash"),
		WithHashHiddenSize(dims),
		WithHubConfig(hub.Config{CacheDir: t.TempDir(), Offline: true}),
	}
	enc, err := New(context.Background(), writeModelDir(t), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { enc.Close() })
	return enc
}

// fakeModel emits id+j for unit j of every token and accepts any device.
type fakeModel struct {
	dims     int
	device   tensor.Device
	training bool
	toErr    error
	accelErr error
	closeErr error
	closed   bool
}

func (f *fakeModel) To(d tensor.Device) error {
	if f.toErr != nil {
		return f.toErr
	}
	if d == tensor.Accelerated && f.accelErr != nil {
		return f.accelErr
	}
	f.device = d
	return nil
}
func (f *fakeModel) Eval()           { f.training = false }
func (f *fakeModel) Training() bool  { return f.training }
func (f *fakeModel) HiddenSize() int { return f.dims }

func (f *fakeModel) Close() error {
	f.closed = true
	return f.closeErr
}

func (f *fakeModel) Forward(ctx context.Context, batch *tensor.Batch) (*tensor.Hidden, error) {
	if err := checkInference(ctx, f, f.device, batch); err != nil {
		return nil, err
	}
	n, seq := batch.Shape()
	out := make([]float32, 0, n*seq*f.dims)
	for _, id := range batch.FlatInputIDs() {
		for j := 0; j < f.dims; j++ {
			out = append(out, float32(id)+float32(j))
		}
	}
	return tensor.NewHidden(n, seq, f.dims, out, f.device)
}

// fakeBackend hands out one prebuilt model and reports a fixed accelerator state.
type fakeBackend struct {
	accel bool
	model *fakeModel
}

func (b *fakeBackend) Name() string               { return "fake" }
func (b *fakeBackend) AcceleratorAvailable() bool { return b.accel }
func (b *fakeBackend) ModelFiles() []string       { return nil }
func (b *fakeBackend) Load(string) (Model, error) { return b.model, nil }

// fixedTokenizer returns the same encoding for every input.
type fixedTokenizer struct {
	enc *tokenizer.Encoding
	err error
}

func (f fixedTokenizer) Encode(string) (*tokenizer.Encoding, error) { return f.enc, f.err }

func TestTextEncoder(t *testing.T) {
	tests := []struct {
		name string
		test func(t *testing.T)
	}{
		{"FiniteVectorOfHiddenSize", testEncodeFinite},
		{"EqualsMeanOfTokenStates", testEncodeIsMeanOfTokens},
		{"Deterministic", testEncodeDeterministic},
		{"DistinctInputsDiffer", testEncodeDistinct},
		{"OutputOnEncoderDevice", testEncodeDevice},
		{"PaddingIgnored", testEncodePaddingIgnored},
		{"EmptyMaskIsNonFinite", testEncodeEmptyMaskNaN},
		{"EmptyMaskPolicies", testEncodeEmptyMaskPolicies},
		{"TokenizerErrorPropagates", testEncodeTokenizerError},
		{"CancelledContext", testEncodeCancelled},
		{"MeanPoolingDeviceCheck", testMeanPoolingDevice},
		{"ConcurrentUse", testEncodeConcurrent},
		{"Metrics", testEncodeMetrics},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.test)
	}
}

func testEncodeFinite(t *testing.T) {
	enc := newHashEncoder(t, 48)

	out, err := enc.Encode(context.Background(), "hello world")
	require.NoError(t, err)

	rows, cols := out.Dims()
	assert.Equal(t, 1, rows)
	assert.Equal(t, enc.HiddenSize(), cols)
	assert.Equal(t, 48, cols)
	assert.True(t, out.IsFinite(0))
	assert.Len(t, out.Float32(0), 48)
}

func testEncodeIsMeanOfTokens(t *testing.T) {
	enc := newHashEncoder(t, 8)

	out, err := enc.Encode(context.Background(), "hello world")
	require.NoError(t, err)

	// [CLS] hello world [SEP]
	batch, err := tensor.NewBatch([][]int64{{2, 4, 5, 3}}, [][]int64{{1, 1, 1, 1}}, nil)
	require.NoError(t, err)
	hidden, err := enc.model.Forward(tensor.NoGrad(context.Background()), batch)
	require.NoError(t, err)

	want := make([]float64, 8)
	for s := 0; s < 4; s++ {
		for j := range want {
			want[j] += float64(hidden.At(0, s, j)) / 4
		}
	}
	assert.InDeltaSlice(t, want, out.Row(0), 1e-6)
}

func testEncodeDeterministic(t *testing.T) {
	enc := newHashEncoder(t, 32)

	a, err := enc.Encode(context.Background(), "the quick fox.")
	require.NoError(t, err)
	b, err := enc.Encode(context.Background(), "the quick fox.")
	require.NoError(t, err)

	assert.Equal(t, a.Row(0), b.Row(0))
}

func testEncodeDistinct(t *testing.T) {
	enc := newHashEncoder(t, 32)

	a, err := enc.Encode(context.Background(), "hello")
	require.NoError(t, err)
	b, err := enc.Encode(context.Background(), "the quick fox")
	require.NoError(t, err)

	assert.NotEqual(t, a.Row(0), b.Row(0))
}

func testEncodeDevice(t *testing.T) {
	for _, device := range []tensor.Device{tensor.CPU, tensor.Accelerated} {
		t.Run(device.String(), func(t *testing.T) {
			tok := fixedTokenizer{enc: &tokenizer.Encoding{
				IDs:           []int64{1, 2},
				AttentionMask: []int64{1, 1},
				TypeIDs:       []int64{0, 0},
			}}
			model := &fakeModel{dims: 3, training: true}

			enc, err := NewTextEncoder(tok, model, device, WithLogger(zerolog.Nop()))
			require.NoError(t, err)
			assert.Equal(t, device, enc.Device())
			assert.Equal(t, device, model.device)
			assert.False(t, model.Training())

			out, err := enc.Encode(context.Background(), "anything")
			require.NoError(t, err)
			assert.Equal(t, device, out.Device())
			assert.Equal(t, []float64{1.5, 2.5, 3.5}, out.Row(0))
		})
	}
}

func testEncodePaddingIgnored(t *testing.T) {
	tok := fixedTokenizer{enc: &tokenizer.Encoding{
		IDs:           []int64{1, 3, 5},
		AttentionMask: []int64{1, 1, 0},
		TypeIDs:       []int64{0, 0, 0},
	}}
	enc, err := NewTextEncoder(tok, &fakeModel{dims: 2, training: true}, tensor.CPU, WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	out, err := enc.Encode(context.Background(), "x")
	require.NoError(t, err)
	// rows [1,2] and [3,4]; the padded [5,6] is ignored
	assert.Equal(t, []float64{2, 3}, out.Row(0))
}

func testEncodeEmptyMaskNaN(t *testing.T) {
	tok := fixedTokenizer{enc: &tokenizer.Encoding{
		IDs:           []int64{0, 0},
		AttentionMask: []int64{0, 0},
		TypeIDs:       []int64{0, 0},
	}}
	enc, err := NewTextEncoder(tok, &fakeModel{dims: 2, training: true}, tensor.CPU, WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	out, err := enc.Encode(context.Background(), "")
	require.NoError(t, err, "an empty mask is not an error by default")
	assert.False(t, out.IsFinite(0))
	assert.True(t, math.IsNaN(out.At(0, 0)))
}

func testEncodeEmptyMaskPolicies(t *testing.T) {
	tok := fixedTokenizer{enc: &tokenizer.Encoding{
		IDs:           []int64{0},
		AttentionMask: []int64{0},
		TypeIDs:       []int64{0},
	}}

	zero, err := NewTextEncoder(tok, &fakeModel{dims: 2, training: true}, tensor.CPU,
		WithLogger(zerolog.Nop()), WithEmptyMaskPolicy(tensor.EmptyMaskZero))
	require.NoError(t, err)
	out, err := zero.Encode(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, out.Row(0))

	strict, err := NewTextEncoder(tok, &fakeModel{dims: 2, training: true}, tensor.CPU,
		WithLogger(zerolog.Nop()), WithEmptyMaskPolicy(tensor.EmptyMaskError))
	require.NoError(t, err)
	_, err = strict.Encode(context.Background(), "")
	assert.ErrorIs(t, err, tensor.ErrEmptyMask)
}

func testEncodeTokenizerError(t *testing.T) {
	boom := errors.New("unsupported character")
	enc, err := NewTextEncoder(fixedTokenizer{err: boom}, &fakeModel{dims: 2, training: true}, tensor.CPU, WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	_, err = enc.Encode(context.Background(), "\x00")
	assert.ErrorIs(t, err, boom)
}

func testEncodeCancelled(t *testing.T) {
	enc := newHashEncoder(t, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := enc.Encode(ctx, "hello")
	assert.ErrorIs(t, err, context.Canceled)
}

func testMeanPoolingDevice(t *testing.T) {
	enc := newHashEncoder(t, 2)

	h, err := tensor.NewHidden(1, 3, 2, []float32{1, 1, 3, 3, 5, 5}, tensor.CPU)
	require.NoError(t, err)
	out, err := enc.MeanPooling(h, [][]int64{{1, 1, 0}})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 2}, out.Row(0))

	h, err = tensor.NewHidden(1, 1, 2, []float32{1, 1}, tensor.Accelerated)
	require.NoError(t, err)
	_, err = enc.MeanPooling(h, [][]int64{{1}})
	assert.ErrorIs(t, err, tensor.ErrDeviceMismatch)
}

func testEncodeConcurrent(t *testing.T) {
	enc := newHashEncoder(t, 16)
	want, err := enc.Encode(context.Background(), "hello world")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := enc.Encode(context.Background(), "hello world")
			if assert.NoError(t, err) {
				assert.Equal(t, want.Row(0), got.Row(0))
			}
		}()
	}
	wg.Wait()
}

func testEncodeMetrics(t *testing.T) {
	enc := newHashEncoder(t, 4)

	_, err := enc.Encode(context.Background(), "hello world")
	require.NoError(t, err)

	m := enc.Metrics()
	assert.Equal(t, int64(1), m["total_operations"])
	assert.Equal(t, int64(1), m["successful_ops"])
	assert.Equal(t, int64(4), m["total_tokens"])
}

func TestModelInferenceGuards(t *testing.T) {
	model := NewHashModel(4)
	require.NoError(t, model.To(tensor.CPU))

	batch, err := tensor.NewBatch([][]int64{{2, 3}}, [][]int64{{1, 1}}, nil)
	require.NoError(t, err)

	_, err = model.Forward(tensor.NoGrad(context.Background()), batch)
	assert.ErrorIs(t, err, ErrTrainingMode)

	model.Eval()
	_, err = model.Forward(context.Background(), batch)
	assert.ErrorIs(t, err, ErrGradTracking, "forward outside a no-grad scope")

	_, err = model.Forward(tensor.NoGrad(context.Background()), batch.To(tensor.Accelerated))
	assert.ErrorIs(t, err, tensor.ErrDeviceMismatch)

	h, err := model.Forward(tensor.NoGrad(context.Background()), batch)
	require.NoError(t, err)
	n, seq, dims := h.Shape()
	assert.Equal(t, [3]int{1, 2, 4}, [3]int{n, seq, dims})

	assert.ErrorIs(t, model.To(tensor.Accelerated), tensor.ErrAcceleratorUnavailable)

	require.NoError(t, model.Close())
	_, err = model.Forward(tensor.NoGrad(context.Background()), batch)
	assert.ErrorIs(t, err, ErrModelClosed)
}

func TestNewErrors(t *testing.T) {
	ctx := context.Background()
	nop := WithLogger(zerolog.Nop())
	offline := WithHubConfig(hub.Config{CacheDir: t.TempDir(), Offline: true})

	_, err := New(ctx, "", nop)
	assert.ErrorIs(t, err, common.ErrModelIDEmpty)

	_, err = New(ctx, writeModelDir(t), nop, WithBackend("tflite"))
	assert.Error(t, err)

	_, err = New(ctx, "org/unknown", nop, offline, WithBackend("hash"))
	assert.ErrorIs(t, err, hub.ErrArtifactNotFound)

	_, err = New(ctx, writeModelDir(t), nop, WithBackend("hash"), WithDevicePreference(tensor.PreferAccelerated))
	assert.ErrorIs(t, err, tensor.ErrAcceleratorUnavailable)

	_, err = NewTextEncoder(nil, &fakeModel{}, tensor.CPU)
	assert.Error(t, err)

	placeErr := errors.New("out of device memory")
	_, err = NewTextEncoder(fixedTokenizer{}, &fakeModel{toErr: placeErr}, tensor.CPU)
	assert.ErrorIs(t, err, placeErr)
}

func TestNewDeviceSelection(t *testing.T) {
	ctx := context.Background()
	newWith := func(t *testing.T, b Backend, pref tensor.DevicePreference) (*TextEncoder, error) {
		return New(ctx, writeModelDir(t),
			WithLogger(zerolog.Nop()),
			WithModelBackend(b),
			WithDevicePreference(pref),
			WithHubConfig(hub.Config{CacheDir: t.TempDir(), Offline: true}),
		)
	}

	t.Run("AutoWithoutAcceleratorUsesCPU", func(t *testing.T) {
		enc, err := New(ctx, writeModelDir(t),
			WithLogger(zerolog.Nop()),
			WithBackend("hash"),
			WithDevicePreference(tensor.PreferAuto),
			WithHubConfig(hub.Config{CacheDir: t.TempDir(), Offline: true}),
		)
		require.NoError(t, err)
		defer enc.Close()
		assert.Equal(t, tensor.CPU, enc.Device())

		model := &fakeModel{dims: 2, training: true}
		enc, err = newWith(t, &fakeBackend{model: model}, tensor.PreferAuto)
		require.NoError(t, err)
		assert.Equal(t, tensor.CPU, enc.Device())
		assert.Equal(t, tensor.CPU, model.device)
	})

	t.Run("AutoWithAccelerator", func(t *testing.T) {
		model := &fakeModel{dims: 2, training: true}
		enc, err := newWith(t, &fakeBackend{accel: true, model: model}, tensor.PreferAuto)
		require.NoError(t, err)
		assert.Equal(t, tensor.Accelerated, enc.Device())

		out, err := enc.Encode(ctx, "hello world")
		require.NoError(t, err)
		assert.Equal(t, tensor.Accelerated, out.Device())
	})

	t.Run("AutoFallsBackWhenPlacementFails", func(t *testing.T) {
		model := &fakeModel{dims: 2, training: true, accelErr: errors.New("no CUDA-capable device is detected")}
		enc, err := newWith(t, &fakeBackend{accel: true, model: model}, tensor.PreferAuto)
		require.NoError(t, err)
		assert.Equal(t, tensor.CPU, enc.Device())
		assert.Equal(t, tensor.CPU, model.device)
		assert.False(t, model.closed)

		out, err := enc.Encode(ctx, "hello world")
		require.NoError(t, err)
		assert.Equal(t, tensor.CPU, out.Device())
	})

	t.Run("ForcedAcceleratorStaysStrict", func(t *testing.T) {
		placeErr := errors.New("no CUDA-capable device is detected")
		model := &fakeModel{dims: 2, training: true, accelErr: placeErr}
		_, err := newWith(t, &fakeBackend{accel: true, model: model}, tensor.PreferAccelerated)
		assert.ErrorIs(t, err, placeErr)
		assert.True(t, model.closed, "model is released when placement fails")
	})

	t.Run("ClosesModelOnFailure", func(t *testing.T) {
		placeErr := errors.New("out of device memory")
		closeErr := errors.New("session already destroyed")
		model := &fakeModel{dims: 2, training: true, toErr: placeErr, closeErr: closeErr}
		_, err := newWith(t, &fakeBackend{model: model}, tensor.PreferCPU)
		assert.True(t, model.closed)
		assert.ErrorIs(t, err, placeErr)
		assert.ErrorIs(t, err, closeErr)
	})
}

func TestEncodeTruncation(t *testing.T) {
	long := strings.TrimSpace(strings.Repeat("the quick fox hello world ", 4))

	enc := newHashEncoder(t, 8, WithTokenizerConfig(tokenizer.Config{Lowercase: true, MaxSeqLen: 8}))
	var (
		out *tensor.Embeddings
		err error
	)
	require.NotPanics(t, func() { out, err = enc.Encode(context.Background(), long) })
	require.NoError(t, err)
	assert.True(t, out.IsFinite(0))
	assert.Equal(t, int64(8), enc.Metrics()["total_tokens"])

	full := newHashEncoder(t, 8)
	_, err = full.Encode(context.Background(), long)
	require.NoError(t, err)
	assert.Equal(t, int64(22), full.Metrics()["total_tokens"])

	_, err = New(context.Background(), writeModelDir(t),
		WithLogger(zerolog.Nop()),
		WithBackend("hash"),
		WithTokenizerConfig(tokenizer.Config{MaxSeqLen: 1}),
	)
	assert.ErrorIs(t, err, tokenizer.ErrInvalidMaxSeqLen)
}

func TestNewFromHub(t *testing.T) {
	var hits int
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		if req.URL.Path == "/org/tiny-bert/resolve/main/vocab.txt" {
			_, _ = w.Write([]byte(strings.Join(vocab, "\n") + "\n"))
			return
		}
		http.NotFound(w, req)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Encoder.ModelID = "org/tiny-bert"
	cfg.Encoder.Backend = "hash"
	cfg.Encoder.Device = "cpu"
	cfg.Encoder.HashHiddenSize = 12
	cfg.Hub.Endpoint = server.URL
	cfg.Hub.CacheDir = t.TempDir()

	enc, err := NewFromConfig(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer enc.Close()

	assert.Equal(t, "org/tiny-bert", enc.ModelID())
	assert.Equal(t, tensor.CPU, enc.Device())

	out, err := enc.Encode(context.Background(), "hello world")
	require.NoError(t, err)
	_, cols := out.Dims()
	assert.Equal(t, 12, cols)
	assert.True(t, out.IsFinite(0))

	// tokenizer.json probe (404) then vocab.txt
	mu.Lock()
	assert.Equal(t, 2, hits)
	mu.Unlock()
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Encoder.Device = "warp-drive"
	_, err := OptionsFromConfig(cfg, zerolog.Nop())
	assert.Error(t, err)

	cfg = config.Default()
	cfg.Encoder.EmptyMask = "ignore"
	_, err = OptionsFromConfig(cfg, zerolog.Nop())
	assert.Error(t, err)

	cfg = config.Default()
	opts, err := OptionsFromConfig(cfg, zerolog.Nop())
	require.NoError(t, err)
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	assert.Equal(t, "onnx", o.backend)
	assert.Equal(t, tensor.PreferAuto, o.device)
	assert.Equal(t, tensor.EmptyMaskPropagate, o.policy)
	assert.True(t, o.tokCfg.Lowercase)
}

func TestNewBackend(t *testing.T) {
	b, err := NewBackend("HASH", 8, RuntimeOptions{}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "hash", b.Name())
	assert.False(t, b.AcceleratorAvailable())
	assert.Empty(t, b.ModelFiles())

	b, err = NewBackend("", 0, RuntimeOptions{DeviceID: 2}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "onnx", b.Name())
	assert.Equal(t, []string{"onnx/model.onnx", "model.onnx"}, b.ModelFiles())
	assert.Equal(t, map[string]string{"device_id": "2"}, RuntimeOptions{DeviceID: 2}.cudaProviderOptions())
}
