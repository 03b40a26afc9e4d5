package embedding

import (
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/sentence-sim-analysis/ssa/config"
	"github.com/ZanzyTHEbar/sentence-sim-analysis/ssa/embedding/tokenizer"
	"github.com/ZanzyTHEbar/sentence-sim-analysis/ssa/hub"
	"github.com/ZanzyTHEbar/sentence-sim-analysis/ssa/tensor"

	internal "github.com/ZanzyTHEbar/sentence-sim-analysis/ssa"

	"github.com/rs/zerolog"
)

type options struct {
	logger   zerolog.Logger
	backend  string
	custom   Backend
	device   tensor.DevicePreference
	policy   tensor.EmptyMaskPolicy
	tokCfg   tokenizer.Config
	hashDims int
	runtime  RuntimeOptions
	hubCfg   hub.Config
	resolver *hub.Resolver
}

func defaultOptions() options {
	return options{
		logger:   internal.GetLogger(),
		backend:  internal.DefaultBackend,
		device:   tensor.PreferAuto,
		policy:   tensor.EmptyMaskPropagate,
		tokCfg:   tokenizer.Config{Lowercase: internal.DefaultLowercase},
		hashDims: internal.DefaultHashHiddenSize,
		hubCfg: hub.Config{
			Endpoint: internal.DefaultHubEndpoint,
			Revision: internal.DefaultHubRevision,
			CacheDir: internal.DefaultModelCacheDir,
			Timeout:  time.Duration(internal.DefaultHubTimeoutSeconds) * time.Second,
		},
	}
}

// Option customises a TextEncoder.
type Option func(*options)

// WithLogger sets the logger used by the encoder and the components it loads.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithBackend selects the model backend by name ("onnx" or "hash").
func WithBackend(name string) Option {
	return func(o *options) { o.backend = name }
}

// WithModelBackend supplies a backend implementation, overriding WithBackend.
func WithModelBackend(b Backend) Option {
	return func(o *options) { o.custom = b }
}

// WithDevicePreference controls device selection at construction.
func WithDevicePreference(p tensor.DevicePreference) Option {
	return func(o *options) { o.device = p }
}

// WithEmptyMaskPolicy sets how pooling treats inputs without real tokens.
func WithEmptyMaskPolicy(p tensor.EmptyMaskPolicy) Option {
	return func(o *options) { o.policy = p }
}

// WithTokenizerConfig sets truncation and casing for loaded tokenizers.
func WithTokenizerConfig(cfg tokenizer.Config) Option {
	return func(o *options) { o.tokCfg = cfg }
}

// WithHashHiddenSize sets the width of the hash backend's vectors.
func WithHashHiddenSize(dims int) Option {
	return func(o *options) { o.hashDims = dims }
}

// WithRuntime configures the ONNX Runtime.
func WithRuntime(rt RuntimeOptions) Option {
	return func(o *options) { o.runtime = rt }
}

// WithHubConfig configures the resolver New creates.
func WithHubConfig(cfg hub.Config) Option {
	return func(o *options) { o.hubCfg = cfg }
}

// WithResolver supplies a ready resolver, overriding WithHubConfig.
func WithResolver(r *hub.Resolver) Option {
	return func(o *options) { o.resolver = r }
}

// OptionsFromConfig maps application configuration onto encoder options. logger
// is filtered to cfg.Log.Level.
func OptionsFromConfig(cfg *config.Config, logger zerolog.Logger) ([]Option, error) {
	device, err := tensor.ParseDevicePreference(cfg.Encoder.Device)
	if err != nil {
		return nil, fmt.Errorf("encoder.device: %w", err)
	}
	policy, err := tensor.ParseEmptyMaskPolicy(cfg.Encoder.EmptyMask)
	if err != nil {
		return nil, fmt.Errorf("encoder.emptyMask: %w", err)
	}
	return []Option{
		WithLogger(logger.Level(internal.ParseLogLevel(cfg.Log.Level))),
		WithBackend(cfg.Encoder.Backend),
		WithDevicePreference(device),
		WithEmptyMaskPolicy(policy),
		WithTokenizerConfig(tokenizer.Config{
			MaxSeqLen: cfg.Encoder.MaxSeqLen,
			Lowercase: cfg.Encoder.Lowercase,
		}),
		WithHashHiddenSize(cfg.Encoder.HashHiddenSize),
		WithRuntime(RuntimeOptions{
			LibraryPath:    cfg.Runtime.LibraryPath,
			DeviceID:       cfg.Runtime.DeviceID,
			IntraOpThreads: cfg.Runtime.IntraOpThreads,
		}),
		WithHubConfig(hub.Config{
			Endpoint: cfg.Hub.Endpoint,
			Revision: cfg.Hub.Revision,
			CacheDir: cfg.Hub.CacheDir,
			Token:    cfg.Hub.Token,
			Offline:  cfg.Hub.Offline,
			Timeout:  time.Duration(cfg.Hub.TimeoutSeconds) * time.Second,
		}),
	}, nil
}
