//go:build onnx
// +build onnx

package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/sentence-sim-analysis/ssa/tensor"

	"github.com/rs/zerolog"
	ort "github.com/yalue/onnxruntime_go"
)

// onnxModel runs a transformer exported to ONNX. The session is created by To,
// so placing the model on a device is what loads its weights there.
type onnxModel struct {
	path       string
	rt         RuntimeOptions
	inputNames []string
	outputName string
	hidden     int
	device     tensor.Device
	session    *ort.DynamicAdvancedSession
	training   bool
	logger     zerolog.Logger
}

func loadONNXModel(path string, rt RuntimeOptions, logger zerolog.Logger) (Model, error) {
	if err := ensureONNXEnvironment(rt); err != nil {
		return nil, err
	}
	ins, outs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("get IO info: %w", err)
	}

	var idsName, maskName, typeName string
	for _, ii := range ins {
		n := strings.ToLower(ii.Name)
		switch {
		case strings.Contains(n, "input_ids") || n == "ids":
			idsName = ii.Name
		case strings.Contains(n, "attention_mask") || n == "mask":
			maskName = ii.Name
		case strings.Contains(n, "token_type"):
			typeName = ii.Name
		}
	}
	if idsName == "" || maskName == "" {
		return nil, fmt.Errorf("could not determine ONNX input names for %s", path)
	}
	inputNames := []string{idsName, maskName}
	if typeName != "" {
		inputNames = append(inputNames, typeName)
	}

	// Prefer last_hidden_state, else the first rank-3 float output
	var output ort.InputOutputInfo
	found := false
	for _, oi := range outs {
		if oi.DataType != ort.TensorElementDataTypeFloat || len(oi.Dimensions) != 3 {
			continue
		}
		if !found || oi.Name == "last_hidden_state" {
			output = oi
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("could not determine ONNX hidden state output for %s", path)
	}

	hidden := 0
	if d := output.Dimensions[2]; d > 0 {
		hidden = int(d)
	}

	return &onnxModel{
		path:       path,
		rt:         rt,
		inputNames: inputNames,
		outputName: output.Name,
		hidden:     hidden,
		training:   true,
		logger:     logger.With().Str("component", "onnx").Logger(),
	}, nil
}

func (m *onnxModel) To(device tensor.Device) error {
	if m.session != nil && m.device == device {
		return nil
	}
	opts, err := newONNXSessionOptions(m.rt, device == tensor.Accelerated)
	if err != nil {
		return fmt.Errorf("onnx model on %s: %w", device, err)
	}
	defer opts.Destroy()

	s, err := ort.NewDynamicAdvancedSession(m.path, m.inputNames, []string{m.outputName}, opts)
	if err != nil {
		return fmt.Errorf("create onnx session: %w", err)
	}
	if m.session != nil {
		m.session.Destroy()
	}
	m.session = s
	m.device = device
	m.logger.Debug().Str("device", device.String()).Strs("inputs", m.inputNames).Str("output", m.outputName).Msg("onnx session ready")
	return nil
}

// Eval is a mode switch only: ONNX sessions never update parameters.
func (m *onnxModel) Eval() { m.training = false }

func (m *onnxModel) Training() bool { return m.training }

func (m *onnxModel) HiddenSize() int { return m.hidden }

func (m *onnxModel) Forward(ctx context.Context, batch *tensor.Batch) (*tensor.Hidden, error) {
	if m.session == nil {
		return nil, fmt.Errorf("onnx model has no session: call To first")
	}
	if err := checkInference(ctx, m, m.device, batch); err != nil {
		return nil, err
	}

	n, seq := batch.Shape()
	shape := ort.NewShape(int64(n), int64(seq))

	values := map[string][]int64{
		m.inputNames[0]: batch.FlatInputIDs(),
		m.inputNames[1]: batch.FlatAttentionMask(),
	}
	if len(m.inputNames) > 2 {
		values[m.inputNames[2]] = batch.FlatTokenTypeIDs()
	}

	inVals := make([]ort.Value, len(m.inputNames))
	for i, name := range m.inputNames {
		t, err := ort.NewTensor(shape, values[name])
		if err != nil {
			return nil, fmt.Errorf("%s tensor: %w", name, err)
		}
		defer t.Destroy()
		inVals[i] = t
	}

	outs := []ort.Value{nil}
	if err := m.session.Run(inVals, outs); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}
	defer func() {
		for _, v := range outs {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	t, ok := outs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type %T", outs[0])
	}
	outShape := t.GetShape()
	if len(outShape) != 3 {
		return nil, fmt.Errorf("unexpected output rank %d", len(outShape))
	}
	data := append([]float32(nil), t.GetData()...)
	if m.hidden == 0 {
		m.hidden = int(outShape[2])
	}
	return tensor.NewHidden(int(outShape[0]), int(outShape[1]), int(outShape[2]), data, m.device)
}

func (m *onnxModel) Close() error {
	if m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.session = nil
	return err
}
