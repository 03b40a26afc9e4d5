package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/sentence-sim-analysis/ssa/common"
	"github.com/ZanzyTHEbar/sentence-sim-analysis/ssa/config"
	"github.com/ZanzyTHEbar/sentence-sim-analysis/ssa/embedding/tokenizer"
	"github.com/ZanzyTHEbar/sentence-sim-analysis/ssa/hub"
	"github.com/ZanzyTHEbar/sentence-sim-analysis/ssa/tensor"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
)

// TextEncoder turns a sentence into one embedding by running a transformer and
// mean pooling its final hidden states over the attention mask.
//
// The tokenizer and model are loaded once and owned by the encoder; the device is
// fixed at construction. Encode calls are serialised, so one encoder may be shared.
type TextEncoder struct {
	mu        sync.Mutex
	id        uuid.UUID
	modelID   string
	tok       tokenizer.Tokenizer
	model     Model
	device    tensor.Device
	policy    tensor.EmptyMaskPolicy
	metrics   common.InferenceMetrics
	validator *common.ValidationUtils
	logger    zerolog.Logger
}

// New resolves modelID to a tokenizer and model, places the model on the
// selected device in inference mode and returns the encoder. Resolution and
// loading errors are returned as-is. Under PreferAuto a failed accelerated
// placement is retried once on CPU; nothing else is retried.
func New(ctx context.Context, modelID string, opts ...Option) (*TextEncoder, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	validator := common.NewValidationUtils()
	if err := validator.ValidateModelID(modelID); err != nil {
		return nil, err
	}

	backend := o.custom
	if backend == nil {
		b, err := NewBackend(o.backend, o.hashDims, o.runtime, o.logger)
		if err != nil {
			return nil, err
		}
		backend = b
	}
	device, err := o.device.Resolve(backend.AcceleratorAvailable)
	if err != nil {
		return nil, fmt.Errorf("select device for %s backend: %w", backend.Name(), err)
	}

	resolver := o.resolver
	if resolver == nil {
		resolver = hub.NewResolver(o.hubCfg, o.logger)
	}

	tokPath, modelPath, err := resolveArtifacts(ctx, resolver, modelID, backend)
	if err != nil {
		return nil, err
	}

	tok, err := tokenizer.Load(tokPath, o.tokCfg)
	if err != nil {
		return nil, err
	}
	model, err := backend.Load(modelPath)
	if err != nil {
		return nil, err
	}

	enc, err := newTextEncoder(modelID, tok, model, device, o)
	if err != nil && device == tensor.Accelerated && o.device == tensor.PreferAuto {
		// AcceleratorAvailable reports a loadable provider, not a usable device
		o.logger.Warn().Err(err).
			Str("backend", backend.Name()).
			Str("model", modelID).
			Msg("accelerated placement failed, falling back to cpu")
		device = tensor.CPU
		enc, err = newTextEncoder(modelID, tok, model, device, o)
	}
	if err != nil {
		return nil, errors.Join(err, model.Close())
	}
	enc.logger.Info().
		Str("backend", backend.Name()).
		Str("tokenizer", tokPath).
		Str("model_path", modelPath).
		Msg("text encoder ready")
	return enc, nil
}

// NewFromConfig builds an encoder for cfg.Encoder.ModelID using the rest of cfg.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*TextEncoder, error) {
	opts, err := OptionsFromConfig(cfg, logger)
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg.Encoder.ModelID, opts...)
}

// NewTextEncoder wraps an already loaded tokenizer and model. The model is moved
// to device and switched to inference mode.
func NewTextEncoder(tok tokenizer.Tokenizer, model Model, device tensor.Device, opts ...Option) (*TextEncoder, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return newTextEncoder("", tok, model, device, o)
}

func newTextEncoder(modelID string, tok tokenizer.Tokenizer, model Model, device tensor.Device, o options) (*TextEncoder, error) {
	if tok == nil || model == nil {
		return nil, errors.New("text encoder requires a tokenizer and a model")
	}
	if err := model.To(device); err != nil {
		return nil, err
	}
	model.Eval()
	if model.Training() {
		return nil, ErrTrainingMode
	}

	id := uuid.New()
	return &TextEncoder{
		id:        id,
		modelID:   modelID,
		tok:       tok,
		model:     model,
		device:    device,
		policy:    o.policy,
		validator: common.NewValidationUtils(),
		logger: o.logger.With().
			Str("component", "encoder").
			Str("encoder_id", id.String()).
			Str("model", modelID).
			Str("device", device.String()).
			Logger(),
	}, nil
}

// resolveArtifacts fetches the tokenizer and model files concurrently.
func resolveArtifacts(ctx context.Context, r *hub.Resolver, modelID string, backend Backend) (string, string, error) {
	var tokPath, modelPath string
	p := pool.New().WithContext(ctx).WithCancelOnError()

	p.Go(func(ctx context.Context) error {
		var err error
		tokPath, err = r.ResolveFirst(ctx, modelID, tokenizer.TokenizerJSONFile, tokenizer.VocabFile)
		return err
	})
	if files := backend.ModelFiles(); len(files) > 0 {
		p.Go(func(ctx context.Context) error {
			var err error
			modelPath, err = r.ResolveFirst(ctx, modelID, files...)
			return err
		})
	}

	if err := p.Wait(); err != nil {
		return "", "", err
	}
	return tokPath, modelPath, nil
}

// Encode returns the 1 × hidden sentence embedding of text, resident on the
// encoder's device. The forward pass runs with gradient tracking disabled and
// cannot be interrupted once started.
func (e *TextEncoder) Encode(ctx context.Context, text string) (*tensor.Embeddings, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	out, tokens, err := e.encode(ctx, text)
	e.metrics.UpdateMetrics(start, err == nil, tokens)
	if err != nil {
		e.logger.Debug().Err(err).Msg("encode failed")
		return nil, err
	}
	e.logger.Debug().Int("tokens", tokens).Dur("elapsed", time.Since(start)).Msg("encoded")
	return out, nil
}

func (e *TextEncoder) encode(ctx context.Context, text string) (*tensor.Embeddings, int, error) {
	if err := e.validator.ValidateContextCancellation(ctx); err != nil {
		return nil, 0, err
	}

	enc, err := e.tok.Encode(text)
	if err != nil {
		return nil, 0, fmt.Errorf("tokenize: %w", err)
	}
	batch, err := tensor.NewBatch(
		[][]int64{enc.IDs},
		[][]int64{enc.AttentionMask},
		[][]int64{enc.TypeIDs},
	)
	if err != nil {
		return nil, 0, fmt.Errorf("tokenize: %w", err)
	}
	batch = batch.To(e.device)
	tokens := batch.Tokens()

	var hidden *tensor.Hidden
	err = tensor.WithNoGrad(ctx, func(ctx context.Context) error {
		var ferr error
		hidden, ferr = e.model.Forward(ctx, batch)
		return ferr
	})
	if err != nil {
		return nil, tokens, fmt.Errorf("forward pass: %w", err)
	}

	out, err := tensor.MeanPoolBatch(hidden, batch, e.policy)
	return out, tokens, err
}

// MeanPooling averages hidden over the positions set in mask. hidden must reside
// on the encoder's device.
func (e *TextEncoder) MeanPooling(hidden *tensor.Hidden, mask [][]int64) (*tensor.Embeddings, error) {
	if hidden.Device() != e.device {
		return nil, fmt.Errorf("%w: hidden states on %s, encoder on %s", tensor.ErrDeviceMismatch, hidden.Device(), e.device)
	}
	return tensor.MeanPool(hidden, mask, e.policy)
}

// Device returns the execution device chosen at construction.
func (e *TextEncoder) Device() tensor.Device { return e.device }

// ModelID returns the identifier the encoder was built from.
func (e *TextEncoder) ModelID() string { return e.modelID }

// HiddenSize returns the embedding width, or 0 if the model reports it only after a forward pass.
func (e *TextEncoder) HiddenSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model.HiddenSize()
}

// Metrics returns inference counters for this encoder.
func (e *TextEncoder) Metrics() map[string]interface{} { return e.metrics.GetMetrics() }

// Close releases the model.
func (e *TextEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model.Close()
}
