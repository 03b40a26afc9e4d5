package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	internal "github.com/ZanzyTHEbar/sentence-sim-analysis/ssa"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Encoder EncoderConfig `mapstructure:"encoder"`
	Hub     HubConfig     `mapstructure:"hub"`
	Runtime RuntimeConfig `mapstructure:"runtime"`
	Log     LogConfig     `mapstructure:"log"`
}

// EncoderConfig stores text encoder settings.
type EncoderConfig struct {
	ModelID        string `mapstructure:"modelId"`
	Backend        string `mapstructure:"backend"`   // "onnx" or "hash"
	Device         string `mapstructure:"device"`    // "auto", "cpu", "cuda"
	MaxSeqLen      int    `mapstructure:"maxSeqLen"` // 0 disables truncation
	Lowercase      bool   `mapstructure:"lowercase"` // vocab.txt tokenizers only
	EmptyMask      string `mapstructure:"emptyMask"` // "nan", "zero", "error"
	HashHiddenSize int    `mapstructure:"hashHiddenSize"`
}

// HubConfig stores pretrained artifact resolution settings.
type HubConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	Revision       string `mapstructure:"revision"`
	CacheDir       string `mapstructure:"cacheDir"`
	Token          string `mapstructure:"token"`
	Offline        bool   `mapstructure:"offline"`
	TimeoutSeconds int    `mapstructure:"timeoutSeconds"`
}

// RuntimeConfig stores ONNX Runtime settings.
type RuntimeConfig struct {
	LibraryPath    string `mapstructure:"libraryPath"`
	DeviceID       int    `mapstructure:"deviceId"`
	IntraOpThreads int    `mapstructure:"intraOpThreads"`
}

// LogConfig stores logger settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("..")
		v.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix(internal.DefaultEnvPrefix)
	v.AutomaticEnv()                                   // Read in environment variables that match
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // encoder.modelId becomes SSA_ENCODER_MODELID

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; defaults and env are used.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration LoadConfig produces without a file or env overrides.
func Default() *Config {
	return &Config{
		Encoder: EncoderConfig{
			ModelID:        internal.DefaultModelID,
			Backend:        internal.DefaultBackend,
			Device:         internal.DefaultDevice,
			Lowercase:      internal.DefaultLowercase,
			EmptyMask:      internal.DefaultEmptyMask,
			HashHiddenSize: internal.DefaultHashHiddenSize,
		},
		Hub: HubConfig{
			Endpoint:       internal.DefaultHubEndpoint,
			Revision:       internal.DefaultHubRevision,
			CacheDir:       internal.DefaultModelCacheDir,
			TimeoutSeconds: internal.DefaultHubTimeoutSeconds,
		},
		Log: LogConfig{Level: "info"},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("encoder.modelId", d.Encoder.ModelID)
	v.SetDefault("encoder.backend", d.Encoder.Backend)
	v.SetDefault("encoder.device", d.Encoder.Device)
	v.SetDefault("encoder.maxSeqLen", d.Encoder.MaxSeqLen)
	v.SetDefault("encoder.lowercase", d.Encoder.Lowercase)
	v.SetDefault("encoder.emptyMask", d.Encoder.EmptyMask)
	v.SetDefault("encoder.hashHiddenSize", d.Encoder.HashHiddenSize)

	v.SetDefault("hub.endpoint", d.Hub.Endpoint)
	v.SetDefault("hub.revision", d.Hub.Revision)
	v.SetDefault("hub.cacheDir", d.Hub.CacheDir)
	v.SetDefault("hub.token", "")
	v.SetDefault("hub.offline", false)
	v.SetDefault("hub.timeoutSeconds", d.Hub.TimeoutSeconds)

	v.SetDefault("runtime.libraryPath", "")
	v.SetDefault("runtime.deviceId", 0)
	v.SetDefault("runtime.intraOpThreads", 0)

	v.SetDefault("log.level", d.Log.Level)
}
