package internal

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

var (
	// DefaultAppName is used for config lookup paths and the env prefix
	DefaultAppName       = "ssa"
	DefaultEnvPrefix     = strings.ToUpper(DefaultAppName)
	DefaultConfigPath    = filepath.Join(getHomeDir(), ".config", DefaultAppName)
	DefaultCacheDir      = filepath.Join(DefaultConfigPath, ".cache")
	DefaultModelCacheDir = filepath.Join(DefaultCacheDir, "models")

	// Default encoder settings
	DefaultModelID        = "sentence-transformers/all-MiniLM-L6-v2"
	DefaultBackend        = "onnx"
	DefaultDevice         = "auto"
	DefaultEmptyMask      = "nan"
	DefaultLowercase      = true
	DefaultHashHiddenSize = 384

	// Default hub settings
	DefaultHubEndpoint       = "https://huggingface.co"
	DefaultHubRevision       = "main"
	DefaultHubTimeoutSeconds = 300
)

func getHomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current working directory if home directory is unavailable
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			log.Printf("Unable to get home or working directory, using /tmp: %v", err)
			return "/tmp"
		}
		log.Printf("Unable to get home directory, using current working directory: %v", err)
		return cwd
	}
	return homeDir
}

// GetLogger returns a properly configured zerolog logger instance
func GetLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// GetLoggerWithLevel returns GetLogger filtered to the given level name.
func GetLoggerWithLevel(level string) zerolog.Logger {
	return GetLogger().Level(ParseLogLevel(level))
}

// ParseLogLevel maps a config level name to a zerolog level. Unknown or empty
// names give the info level.
func ParseLogLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
