package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wasmpico/picohost/domain/entities"
	"github.com/wasmpico/picohost/hostfuncs"
	"github.com/wasmpico/picohost/infrastructure/artifact"
	"github.com/wasmpico/picohost/internal/testutil"
	"go.uber.org/multierr"
)

// logGuest imports my:debug/logging#log and exports run.
func logGuest() []byte {
	m := testutil.NewModule()
	logFn := m.Import(entities.InterfaceLogging, hostfuncs.FuncLog, testutil.FuncType{Params: []testutil.ValType{testutil.I32, testutil.I32}})
	run := m.Func(testutil.FuncType{}, testutil.Code(testutil.I32Const(0), testutil.I32Const(2), testutil.Call(logFn)))
	m.Memory(1, 1)
	m.ExportMemory("memory")
	m.ExportFunc("run", run)
	m.Data(0, []byte("hi"))
	return m.Bytes()
}

func writeFiles(t *testing.T, board string) (dir, wasmPath, boardPath string) {
	t.Helper()
	dir = t.TempDir()
	wasmPath = filepath.Join(dir, "guest.wasm")
	boardPath = filepath.Join(dir, "board.toml")
	require.NoError(t, os.WriteFile(wasmPath, logGuest(), 0o600))
	require.NoError(t, os.WriteFile(boardPath, []byte(board), 0o600))
	return dir, wasmPath, boardPath
}

func TestPack(t *testing.T) {
	dir, wasmPath, boardPath := writeFiles(t, "[engine]\nmax_stack_depth = 2048\nmemory_limit_pages = 2\n")
	out := filepath.Join(dir, "guest.pha")

	var buf bytes.Buffer
	require.NoError(t, pack(context.Background(), &buf, wasmPath, boardPath, out))
	assert.Contains(t, buf.String(), "1 imports, interpreter profile")

	a, err := artifact.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, logGuest(), a.Module)
	assert.Equal(t, uint32(2048), a.MaxStackDepth)
	assert.Equal(t, uint32(2), a.MemoryLimitPages)

	buf.Reset()
	require.NoError(t, describe(&buf, out))
	assert.Contains(t, buf.String(), "stack depth:  2048")
	assert.Contains(t, buf.String(), "memory limit: 2 pages (128 KiB)")
}

func TestPack_UngrantedImport(t *testing.T) {
	dir, wasmPath, boardPath := writeFiles(t, "grants = [\"wasi:spi/spi\"]\n")
	out := filepath.Join(dir, "guest.pha")

	err := pack(context.Background(), &bytes.Buffer{}, wasmPath, boardPath, out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "my:debug/logging#log")
	assert.NoFileExists(t, out)
}

func TestCheckGrants(t *testing.T) {
	imports := []string{"wasi:spi/spi#open-device", "wasi:gpio/gpio#set-pin-state"}

	assert.NoError(t, checkGrants([]string{"*"}, imports))
	assert.NoError(t, checkGrants([]string{"wasi:spi/spi", "wasi:gpio/gpio#set-pin-state"}, imports))
	assert.ErrorContains(t, checkGrants([]string{"wasi:spi/spi"}, imports), "wasi:gpio/gpio#set-pin-state")
	assert.Error(t, checkGrants([]string{"#"}, imports))

	err := checkGrants([]string{"wasi:delay/delay"}, imports)
	var denied *hostfuncs.CapabilityDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Len(t, multierr.Errors(errors.Unwrap(err)), 2, "every ungranted import is reported")
}
