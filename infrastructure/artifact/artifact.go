// Package artifact encodes and decodes the precompiled guest package the host
// loads at boot.
//
// An artifact is a CBOR envelope that carries the engine settings the module
// was prepared for, the zstd-compressed module bytes and an xxh3 digest of the
// uncompressed module. Decode checks the format and the digest only. Whether
// the settings match the running engine is decided by the host.
package artifact

import (
	"errors"
	"fmt"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/wasmpico/picohost/wireformat"
	"github.com/zeebo/xxh3"
)

const (
	// Magic opens every artifact.
	Magic = "PHA1"

	// Version is the envelope version this package writes.
	Version = 1

	// MaxModuleSize bounds the decompressed module.
	MaxModuleSize = 16 << 20
)

var (
	ErrBadMagic       = errors.New("artifact: bad magic")
	ErrVersion        = errors.New("artifact: unsupported version")
	ErrDigestMismatch = errors.New("artifact: digest mismatch")
	ErrEmptyModule    = errors.New("artifact: empty module")
)

// Header is the engine configuration an artifact was prepared for.
type Header struct {
	Target           string   `cbor:"target" json:"target"`
	Features         []string `cbor:"features" json:"features"`
	MaxStackDepth    uint32   `cbor:"max_stack_depth" json:"max_stack_depth"`
	MemoryLimitPages uint32   `cbor:"memory_limit_pages" json:"memory_limit_pages"`
}

// Artifact is a decoded guest package.
type Artifact struct {
	Module []byte
	Header
	Digest uint64
}

type envelope struct {
	Magic            string   `cbor:"magic"`
	Target           string   `cbor:"target"`
	Features         []string `cbor:"features"`
	Module           []byte   `cbor:"module"`
	Digest           uint64   `cbor:"digest"`
	MaxStackDepth    uint32   `cbor:"max_stack_depth"`
	MemoryLimitPages uint32   `cbor:"memory_limit_pages"`
	Version          uint16   `cbor:"version"`
}

var (
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		panic(fmt.Sprintf("artifact: failed to create zstd encoder: %v", err))
	}
	encoder = enc

	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxModuleSize), zstd.WithDecoderConcurrency(1))
	if err != nil {
		panic(fmt.Sprintf("artifact: failed to create zstd decoder: %v", err))
	}
	decoder = dec
}

// Encode packages module for the engine described by h.
func Encode(h Header, module []byte) ([]byte, error) {
	if len(module) == 0 {
		return nil, ErrEmptyModule
	}
	if len(module) > MaxModuleSize {
		return nil, fmt.Errorf("artifact: module of %d bytes exceeds %d", len(module), MaxModuleSize)
	}
	env := envelope{
		Magic:            Magic,
		Version:          Version,
		Target:           h.Target,
		Features:         h.Features,
		MaxStackDepth:    h.MaxStackDepth,
		MemoryLimitPages: h.MemoryLimitPages,
		Digest:           xxh3.Hash(module),
		Module:           encoder.EncodeAll(module, nil),
	}
	data, err := wireformat.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("artifact: encode: %w", err)
	}
	return data, nil
}

// Decode unpacks an artifact and verifies its digest.
func Decode(data []byte) (*Artifact, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrBadMagic)
	}
	var env envelope
	if err := wireformat.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("artifact: decode: %w", err)
	}
	if env.Magic != Magic {
		return nil, fmt.Errorf("%w: %q", ErrBadMagic, env.Magic)
	}
	if env.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, env.Version)
	}
	if len(env.Module) == 0 {
		return nil, ErrEmptyModule
	}

	module, err := decoder.DecodeAll(env.Module, nil)
	if err != nil {
		return nil, fmt.Errorf("artifact: decompress module: %w", err)
	}
	if got := xxh3.Hash(module); got != env.Digest {
		return nil, fmt.Errorf("%w: header %016x, module %016x", ErrDigestMismatch, env.Digest, got)
	}

	return &Artifact{
		Header: Header{
			Target:           env.Target,
			Features:         env.Features,
			MaxStackDepth:    env.MaxStackDepth,
			MemoryLimitPages: env.MemoryLimitPages,
		},
		Module: module,
		Digest: env.Digest,
	}, nil
}

// ReadFile decodes the artifact stored at path.
func ReadFile(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("artifact: %w", err)
	}
	return Decode(data)
}

// WriteFile encodes module and stores it at path.
func WriteFile(path string, h Header, module []byte) error {
	data, err := Encode(h, module)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // G306: artifacts are not secret
		return fmt.Errorf("artifact: %w", err)
	}
	return nil
}
