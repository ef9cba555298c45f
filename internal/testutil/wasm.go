package testutil

// ValType is a WebAssembly value type.
type ValType byte

const (
	I32 ValType = 0x7F
	I64 ValType = 0x7E
)

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

type wasmImport struct {
	module string
	name   string
	typ    uint32
}

type wasmFunc struct {
	body   []byte
	locals []ValType
	typ    uint32
}

type wasmExport struct {
	name string
	kind byte
	idx  uint32
}

type wasmData struct {
	bytes  []byte
	offset uint32
}

// Module assembles a minimal WebAssembly binary for tests. Every import must
// be added before the first function so indexes stay stable.
type Module struct {
	types   []FuncType
	imports []wasmImport
	funcs   []wasmFunc
	exports []wasmExport
	data    []wasmData
	memMin  uint32
	memMax  uint32
	memory  bool
}

// NewModule returns an empty module.
func NewModule() *Module {
	return &Module{}
}

func (m *Module) typeIndex(ft FuncType) uint32 {
	for i, t := range m.types {
		if string(valBytes(t.Params)) == string(valBytes(ft.Params)) &&
			string(valBytes(t.Results)) == string(valBytes(ft.Results)) {
			return uint32(i) //nolint:gosec // G115: test modules are tiny
		}
	}
	m.types = append(m.types, ft)
	return uint32(len(m.types) - 1) //nolint:gosec // G115: test modules are tiny
}

// Import adds a function import and returns its function index.
func (m *Module) Import(module, name string, ft FuncType) uint32 {
	if len(m.funcs) > 0 {
		panic("testutil: imports must precede functions")
	}
	m.imports = append(m.imports, wasmImport{module: module, name: name, typ: m.typeIndex(ft)})
	return uint32(len(m.imports) - 1) //nolint:gosec // G115: test modules are tiny
}

// Func adds a function whose body is code without the trailing end opcode.
// It returns the function index.
func (m *Module) Func(ft FuncType, code []byte, locals ...ValType) uint32 {
	m.funcs = append(m.funcs, wasmFunc{typ: m.typeIndex(ft), body: code, locals: locals})
	return uint32(len(m.imports) + len(m.funcs) - 1) //nolint:gosec // G115: test modules are tiny
}

// Memory declares the single linear memory in pages.
func (m *Module) Memory(minPages, maxPages uint32) {
	m.memory = true
	m.memMin = minPages
	m.memMax = maxPages
}

// ExportFunc exports function idx as name.
func (m *Module) ExportFunc(name string, idx uint32) {
	m.exports = append(m.exports, wasmExport{name: name, kind: 0x00, idx: idx})
}

// ExportMemory exports memory 0 as name.
func (m *Module) ExportMemory(name string) {
	m.exports = append(m.exports, wasmExport{name: name, kind: 0x02})
}

// Data places b at offset in memory 0.
func (m *Module) Data(offset uint32, b []byte) {
	m.data = append(m.data, wasmData{offset: offset, bytes: b})
}

// Bytes encodes the module.
func (m *Module) Bytes() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}

	if len(m.types) > 0 {
		body := uleb(uint64(len(m.types)))
		for _, t := range m.types {
			body = append(body, 0x60)
			body = append(body, vec(valBytes(t.Params))...)
			body = append(body, vec(valBytes(t.Results))...)
		}
		out = section(out, 1, body)
	}

	if len(m.imports) > 0 {
		body := uleb(uint64(len(m.imports)))
		for _, im := range m.imports {
			body = append(body, name(im.module)...)
			body = append(body, name(im.name)...)
			body = append(body, 0x00)
			body = append(body, uleb(uint64(im.typ))...)
		}
		out = section(out, 2, body)
	}

	if len(m.funcs) > 0 {
		body := uleb(uint64(len(m.funcs)))
		for _, f := range m.funcs {
			body = append(body, uleb(uint64(f.typ))...)
		}
		out = section(out, 3, body)
	}

	if m.memory {
		body := uleb(1)
		if m.memMax > 0 {
			body = append(body, 0x01)
			body = append(body, uleb(uint64(m.memMin))...)
			body = append(body, uleb(uint64(m.memMax))...)
		} else {
			body = append(body, 0x00)
			body = append(body, uleb(uint64(m.memMin))...)
		}
		out = section(out, 5, body)
	}

	if len(m.exports) > 0 {
		body := uleb(uint64(len(m.exports)))
		for _, e := range m.exports {
			body = append(body, name(e.name)...)
			body = append(body, e.kind)
			body = append(body, uleb(uint64(e.idx))...)
		}
		out = section(out, 7, body)
	}

	if len(m.funcs) > 0 {
		body := uleb(uint64(len(m.funcs)))
		for _, f := range m.funcs {
			fn := uleb(uint64(len(f.locals)))
			for _, l := range f.locals {
				fn = append(fn, 0x01, byte(l))
			}
			fn = append(fn, f.body...)
			fn = append(fn, 0x0B)
			body = append(body, uleb(uint64(len(fn)))...)
			body = append(body, fn...)
		}
		out = section(out, 10, body)
	}

	if len(m.data) > 0 {
		body := uleb(uint64(len(m.data)))
		for _, d := range m.data {
			body = append(body, 0x00)
			body = append(body, I32Const(int32(d.offset))...) //nolint:gosec // G115: test offsets are small
			body = append(body, 0x0B)
			body = append(body, vec(d.bytes)...)
		}
		out = section(out, 11, body)
	}

	return out
}

// I32Const pushes v.
func I32Const(v int32) []byte {
	return append([]byte{0x41}, sleb(int64(v))...)
}

// I64Const pushes v.
func I64Const(v int64) []byte {
	return append([]byte{0x42}, sleb(v)...)
}

// LocalGet pushes local i.
func LocalGet(i uint32) []byte {
	return append([]byte{0x20}, uleb(uint64(i))...)
}

// Call calls function idx.
func Call(idx uint32) []byte {
	return append([]byte{0x10}, uleb(uint64(idx))...)
}

// I64Store stores an i64 at the address on the stack (align 3, offset 0).
func I64Store() []byte {
	return []byte{0x37, 0x03, 0x00}
}

// Drop discards the top of the stack.
func Drop() []byte {
	return []byte{0x1A}
}

// Unreachable traps.
func Unreachable() []byte {
	return []byte{0x00}
}

// Code concatenates instructions.
func Code(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// PackPtrLen packs a guest pointer and length the way payload functions expect.
func PackPtrLen(ptr, length uint32) int64 {
	return int64(uint64(ptr)<<32 | uint64(length)) //nolint:gosec // G115: bit pattern is what the guest passes
}

func section(out []byte, id byte, body []byte) []byte {
	out = append(out, id)
	out = append(out, uleb(uint64(len(body)))...)
	return append(out, body...)
}

func vec(b []byte) []byte {
	return append(uleb(uint64(len(b))), b...)
}

func name(s string) []byte {
	return vec([]byte(s))
}

func valBytes(ts []ValType) []byte {
	out := make([]byte, len(ts))
	for i, t := range ts {
		out[i] = byte(t)
	}
	return out
}

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v == 0 {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}
