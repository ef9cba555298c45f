package host

import (
	"fmt"
	"slices"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/wasmpico/picohost/infrastructure/artifact"
)

// Execution targets.
const (
	TargetInterpreter = "interpreter"
	TargetCompiler    = "compiler"
)

// features maps profile feature names to wazero core features.
var features = map[string]api.CoreFeatures{
	"bulk-memory":              api.CoreFeatureBulkMemoryOperations,
	"multi-value":              api.CoreFeatureMultiValue,
	"mutable-global":           api.CoreFeatureMutableGlobal,
	"nontrapping-float-to-int": api.CoreFeatureNonTrappingFloatToIntConversion,
	"reference-types":          api.CoreFeatureReferenceTypes,
	"sign-extension":           api.CoreFeatureSignExtensionOps,
	"simd":                     api.CoreFeatureSIMD,
}

// Profile is the execution environment an artifact was built against. The
// runtime refuses to load an artifact whose header differs.
type Profile struct {
	Target           string
	Features         []string
	MaxStackDepth    uint32
	MemoryLimitPages uint32
}

// ProfileOf returns the profile recorded in an artifact header.
func ProfileOf(h artifact.Header) Profile {
	return Profile{
		Target:           h.Target,
		Features:         h.Features,
		MaxStackDepth:    h.MaxStackDepth,
		MemoryLimitPages: h.MemoryLimitPages,
	}
}

// Header returns the artifact header describing p.
func (p Profile) Header() artifact.Header {
	return artifact.Header{
		Target:           p.Target,
		Features:         p.Features,
		MaxStackDepth:    p.MaxStackDepth,
		MemoryLimitPages: p.MemoryLimitPages,
	}
}

// Validate reports an unknown target or feature name.
func (p Profile) Validate() error {
	switch p.Target {
	case TargetInterpreter, TargetCompiler:
	default:
		return fmt.Errorf("unknown target %q", p.Target)
	}
	for _, f := range p.Features {
		if _, ok := features[f]; !ok {
			return fmt.Errorf("unknown feature %q", f)
		}
	}
	if p.MaxStackDepth == 0 {
		return fmt.Errorf("max stack depth must be positive")
	}
	if p.MemoryLimitPages == 0 {
		return fmt.Errorf("memory limit must be positive")
	}
	return nil
}

// Matches reports whether h was built for p. Feature order is irrelevant.
func (p Profile) Matches(h artifact.Header) error {
	var diffs []string
	if p.Target != h.Target {
		diffs = append(diffs, fmt.Sprintf("target %q != %q", h.Target, p.Target))
	}
	if !slices.Equal(sortedCopy(p.Features), sortedCopy(h.Features)) {
		diffs = append(diffs, fmt.Sprintf("features %v != %v", h.Features, p.Features))
	}
	if p.MaxStackDepth != h.MaxStackDepth {
		diffs = append(diffs, fmt.Sprintf("max stack depth %d != %d", h.MaxStackDepth, p.MaxStackDepth))
	}
	if p.MemoryLimitPages != h.MemoryLimitPages {
		diffs = append(diffs, fmt.Sprintf("memory limit %d != %d pages", h.MemoryLimitPages, p.MemoryLimitPages))
	}
	if len(diffs) > 0 {
		return fmt.Errorf("artifact profile mismatch: %s", strings.Join(diffs, ", "))
	}
	return nil
}

// CoreFeatures returns the wazero feature set. No listed features means the
// WebAssembly 2.0 set.
func (p Profile) CoreFeatures() api.CoreFeatures {
	if len(p.Features) == 0 {
		return api.CoreFeaturesV2
	}
	set := api.CoreFeaturesV1
	for _, f := range p.Features {
		set |= features[f]
	}
	return set
}

// RuntimeConfig returns the wazero configuration for p.
func (p Profile) RuntimeConfig() wazero.RuntimeConfig {
	var cfg wazero.RuntimeConfig
	if p.Target == TargetCompiler {
		cfg = wazero.NewRuntimeConfigCompiler()
	} else {
		cfg = wazero.NewRuntimeConfigInterpreter()
	}
	return cfg.
		WithCoreFeatures(p.CoreFeatures()).
		WithMemoryLimitPages(p.MemoryLimitPages).
		WithCloseOnContextDone(true)
}

func sortedCopy(s []string) []string {
	out := slices.Clone(s)
	slices.Sort(out)
	if out == nil {
		out = []string{}
	}
	return out
}
