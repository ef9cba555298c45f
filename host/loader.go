package host

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	domainerrors "github.com/wasmpico/picohost/domain/errors"
	"github.com/wasmpico/picohost/infrastructure/artifact"
	"go.uber.org/zap"
)

// loaderConfig holds configuration for the Loader.
type loaderConfig struct {
	logger *zap.Logger
}

// LoaderOption configures the Loader.
type LoaderOption func(*loaderConfig)

// WithLoaderLogger sets the logger for the Loader.
func WithLoaderLogger(l *zap.Logger) LoaderOption {
	return func(c *loaderConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Loader turns artifact bytes into a guest module for one execution profile.
type Loader struct {
	config  loaderConfig
	profile Profile
}

// NewLoader creates a Loader that only accepts artifacts built for profile.
func NewLoader(profile Profile, opts ...LoaderOption) *Loader {
	cfg := loaderConfig{logger: Logger()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Loader{config: cfg, profile: profile}
}

// Profile returns the profile the loader checks against.
func (l *Loader) Profile() Profile {
	return l.profile
}

// Load decodes data and checks its header against the profile. Format and
// digest failures are load errors; profile problems are configure errors.
func (l *Loader) Load(data []byte) (*artifact.Artifact, error) {
	if err := l.profile.Validate(); err != nil {
		return nil, domainerrors.Fatal(domainerrors.PhaseConfigure, err)
	}
	a, err := artifact.Decode(data)
	if err != nil {
		return nil, domainerrors.Fatal(domainerrors.PhaseLoad, err)
	}
	if err := l.profile.Matches(a.Header); err != nil {
		return nil, domainerrors.Fatal(domainerrors.PhaseConfigure, err)
	}
	l.config.logger.Debug("artifact loaded",
		zap.String("target", a.Header.Target),
		zap.Strings("features", a.Header.Features),
		zap.Int("module_bytes", len(a.Module)),
		zap.Uint64("digest", a.Digest),
	)
	return a, nil
}

// Compile compiles an artifact's module in rt.
func (l *Loader) Compile(ctx context.Context, rt wazero.Runtime, a *artifact.Artifact) (wazero.CompiledModule, error) {
	compiled, err := rt.CompileModule(ctx, a.Module)
	if err != nil {
		return nil, domainerrors.Fatal(domainerrors.PhaseLoad, fmt.Errorf("compile guest: %w", err))
	}
	return compiled, nil
}

// Check compiles module under profile in a throwaway runtime and returns the
// sorted list of host functions it imports.
func Check(ctx context.Context, profile Profile, module []byte) ([]string, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	rt := wazero.NewRuntimeWithConfig(ctx, profile.RuntimeConfig())
	defer func() { _ = rt.Close(ctx) }()

	compiled, err := rt.CompileModule(ctx, module)
	if err != nil {
		return nil, fmt.Errorf("compile guest: %w", err)
	}
	return importNames(compiled), nil
}
