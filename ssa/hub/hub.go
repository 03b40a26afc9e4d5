package hub

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/sentence-sim-analysis/ssa/common"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

var (
	// ErrArtifactNotFound means no local directory, cache entry or remote file exists.
	ErrArtifactNotFound = errors.New("pretrained artifact not found")
	// ErrOffline is wrapped into ErrArtifactNotFound results when downloads are disabled.
	ErrOffline = errors.New("hub is offline")
)

// Config controls where pretrained artifacts come from.
type Config struct {
	Endpoint string
	Revision string
	CacheDir string
	Token    string
	Offline  bool
	Timeout  time.Duration
}

// Resolver maps a model identifier and a file name to a local path.
//
// Identifiers naming an existing directory are read in place. Anything else is
// treated as a hub name ("org/name") and served from the cache, downloading on miss.
type Resolver struct {
	cfg       Config
	client    *resty.Client
	validator *common.ValidationUtils
	errs      *common.ErrorUtils
	logger    zerolog.Logger
	downloads common.BaseMetrics
}

// NewResolver creates a resolver; zero config fields are left empty except the
// revision, which defaults to "main".
func NewResolver(cfg Config, logger zerolog.Logger) *Resolver {
	if cfg.Revision == "" {
		cfg.Revision = "main"
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.Endpoint, "/"))
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}
	logger = logger.With().Str("component", "hub").Logger()
	return &Resolver{
		cfg:       cfg,
		client:    client,
		validator: common.NewValidationUtils(),
		errs:      common.NewErrorUtils(logger),
		logger:    logger,
	}
}

// Resolve returns a local path for file within modelID.
func (r *Resolver) Resolve(ctx context.Context, modelID, file string) (string, error) {
	if err := r.validator.ValidateModelID(modelID); err != nil {
		return "", err
	}
	if err := r.validator.ValidateRequiredString(file, "artifact file"); err != nil {
		return "", err
	}
	if err := r.validator.ValidateContextCancellation(ctx); err != nil {
		return "", err
	}

	if r.validator.IsDirectory(modelID) {
		local := filepath.Join(modelID, filepath.FromSlash(file))
		if err := r.validator.ValidateFileExists(local); err != nil {
			if errors.Is(err, common.ErrSourceNotExist) {
				return "", fmt.Errorf("%w: %s", ErrArtifactNotFound, local)
			}
			return "", err
		}
		return local, nil
	}

	cached := r.CachePath(modelID, file)
	if err := r.validator.ValidateFileExists(cached); err == nil {
		r.logger.Debug().Str("model", modelID).Str("file", file).Str("path", cached).Msg("artifact cache hit")
		return cached, nil
	}

	if r.cfg.Offline {
		return "", fmt.Errorf("%w: %s/%s (%w)", ErrArtifactNotFound, modelID, file, ErrOffline)
	}
	err := r.download(ctx, modelID, file, cached)
	r.downloads.UpdateBaseMetrics(err == nil)
	if err != nil {
		return "", err
	}
	return cached, nil
}

// Metrics returns download counters. Cache hits and local reads are not counted.
func (r *Resolver) Metrics() map[string]interface{} {
	return r.downloads.GetBaseMetrics()
}

// ResolveFirst resolves the first of files that exists for modelID. Only
// ErrArtifactNotFound moves on to the next candidate.
func (r *Resolver) ResolveFirst(ctx context.Context, modelID string, files ...string) (string, error) {
	for _, file := range files {
		p, err := r.Resolve(ctx, modelID, file)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrArtifactNotFound) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: none of %v for %s", ErrArtifactNotFound, files, modelID)
}

// CachePath is where file of modelID is stored once downloaded.
func (r *Resolver) CachePath(modelID, file string) string {
	return filepath.Join(
		r.cfg.CacheDir,
		strings.ReplaceAll(modelID, "/", "--"),
		strings.ReplaceAll(r.cfg.Revision, "/", "--"),
		filepath.FromSlash(file),
	)
}

func (r *Resolver) download(ctx context.Context, modelID, file, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return r.errs.WrapError(err, "create cache dir for %s", modelID)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return r.errs.WrapError(err, "create temp file")
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	urlPath := "/" + path.Join(modelID, "resolve", r.cfg.Revision, file)
	start := time.Now()
	resp, err := r.client.R().
		SetContext(ctx).
		SetOutput(tmpPath).
		Get(urlPath)
	if err != nil {
		return r.errs.LogAndWrapError(err, zerolog.WarnLevel, "download %s/%s", modelID, file)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return fmt.Errorf("%w: %s/%s", ErrArtifactNotFound, modelID, file)
	case resp.StatusCode() < 200 || resp.StatusCode() >= 300:
		return fmt.Errorf("download %s/%s: unexpected status %d", modelID, file, resp.StatusCode())
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("move %s into cache: %w", file, err)
	}
	r.logger.Info().
		Str("model", modelID).
		Str("file", file).
		Dur("elapsed", time.Since(start)).
		Msg("artifact downloaded")
	return nil
}
