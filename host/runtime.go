package host

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"github.com/wasmpico/picohost/application/hostctx"
	domainerrors "github.com/wasmpico/picohost/domain/errors"
	"github.com/wasmpico/picohost/domain/ports"
	"github.com/wasmpico/picohost/hostfuncs"
	adapter "github.com/wasmpico/picohost/infrastructure/wazero"
	"github.com/wasmpico/picohost/internal/heap"
	"github.com/wasmpico/picohost/internal/tls"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var errAlreadyRan = errors.New("entry point already called")

// Runtime is a booted guest bound to its capabilities.
type Runtime struct {
	logger   *zap.Logger
	hardware ports.Hardware
	heap     *heap.Heap
	hostCtx  *hostctx.Context
	runtime  wazero.Runtime
	guest    api.Module
	cfg      config
	modules  []string
	imports  []string
	ran      atomic.Bool
	closed   atomic.Bool
}

// Boot brings a guest up over hw. The steps run in a fixed order: heap,
// hardware, execution profile, capability registration, artifact load,
// instantiation. The first failure is logged, everything acquired so far is
// released and the error is returned as a *errors.FatalError.
//
// Example:
//
//	rt, err := host.Boot(ctx, hw, data,
//	    host.WithGrants("wasi:spi/spi", "wasi:gpio/gpio"),
//	    host.WithProfile(profile),
//	)
//	if err != nil {
//	    return err
//	}
//	defer rt.Close(ctx)
//	return rt.Run(ctx)
func Boot(ctx context.Context, hw ports.Hardware, data []byte, opts ...Option) (*Runtime, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &Runtime{
		logger:   cfg.logger.With(zap.String("guest", cfg.guestName)),
		hardware: hw,
		cfg:      cfg,
	}

	h, err := heap.New(cfg.heapSize, heap.WithLogger(r.logger.Named("heap")))
	if err != nil {
		return nil, r.abort(ctx, domainerrors.Fatal(domainerrors.PhaseHeap, err))
	}
	r.heap = h
	h.LogUsage("heap")

	hostOpts := []hostctx.Option{
		hostctx.WithLogger(r.logger),
		hostctx.WithLimits(cfg.limits),
		hostctx.WithSleeper(cfg.sleeper),
		hostctx.WithGuestName(cfg.guestName),
		hostctx.WithDeviceName(cfg.deviceName),
		hostctx.WithSelectLevel(cfg.selectLevel),
	}
	if cfg.busConfig != nil {
		hostOpts = append(hostOpts, hostctx.WithBusConfig(*cfg.busConfig))
	}
	hc, err := hostctx.New(h, hw, hostOpts...)
	if err != nil {
		return nil, r.abort(ctx, domainerrors.Fatal(domainerrors.PhaseHardware, err))
	}
	r.hostCtx = hc
	h.LogUsage("hardware")

	loader := NewLoader(cfg.profile, WithLoaderLogger(r.logger))
	a, err := loader.Load(data)
	if err != nil {
		return nil, r.abort(ctx, err)
	}
	r.runtime = wazero.NewRuntimeWithConfig(ctx, cfg.profile.RuntimeConfig())

	if err := r.register(ctx); err != nil {
		return nil, r.abort(ctx, domainerrors.Fatal(domainerrors.PhaseRegister, err))
	}

	compiled, err := loader.Compile(ctx, r.runtime, a)
	if err != nil {
		return nil, r.abort(ctx, err)
	}
	r.imports = importNames(compiled)

	memCtx := experimental.WithMemoryAllocator(ctx, h.Allocator())
	guest, err := instantiate(memCtx, r.runtime, compiled, cfg.guestName)
	if err != nil {
		return nil, r.abort(ctx, domainerrors.Fatal(domainerrors.PhaseInstantiate, err))
	}
	r.guest = guest
	h.LogUsage("instantiate")

	r.logger.Info("guest booted",
		zap.Strings("modules", r.modules),
		zap.Strings("imports", r.imports),
		zap.Uint64("digest", a.Digest),
	)
	return r, nil
}

// register exports the capability interfaces the grants allow.
func (r *Runtime) register(ctx context.Context) error {
	checker, err := hostfuncs.NewCapabilityChecker(r.cfg.grants...)
	if err != nil {
		return err
	}

	middleware := []hostfuncs.Middleware{
		hostfuncs.PanicRecoveryMiddleware(),
		hostfuncs.LoggingMiddleware(r.logger.Named("hostfuncs")),
		hostfuncs.ErrorMappingMiddleware(),
	}
	middleware = append(middleware, r.cfg.middleware...)

	registry, err := hostfuncs.NewRegistry(
		hostfuncs.WithCapabilityChecker(checker),
		hostfuncs.WithMiddleware(middleware...),
		hostfuncs.WithBundle(hostfuncs.SPIBundle(r.hostCtx)),
	)
	if err != nil {
		return err
	}
	r.logger.Debug("capabilities registered",
		zap.Strings("grants", checker.Grants()),
		zap.Any("interfaces", registry.Interfaces()),
	)

	modules, err := adapter.RegisterWithRuntime(ctx, r.runtime, registry,
		adapter.WithLogger(r.logger.Named("binder")),
		adapter.WithCapabilityChecker(checker),
		adapter.WithMaxRequestSize(r.cfg.limits.MaxRequestSize),
		adapter.WithCustomHandler(adapter.ScalarHandlers(r.hostCtx, r.logger)...),
	)
	if err != nil {
		return err
	}
	r.modules = modules
	return nil
}

// Run calls the guest entry point once and blocks until it returns. A
// returning entry point is not an error; it ends the guest and Run returns
// nil. Cancelling ctx stops a guest that never returns, also without error.
func (r *Runtime) Run(ctx context.Context) error {
	if r.closed.Load() {
		return domainerrors.Fatal(domainerrors.PhaseRun, errors.New("runtime closed"))
	}
	if !r.ran.CompareAndSwap(false, true) {
		return domainerrors.Fatal(domainerrors.PhaseRun, errAlreadyRan)
	}

	guestCtx := adapter.WithGuestName(ctx, r.cfg.guestName)
	restore := tls.Swap(guestCtx)
	defer restore()

	r.logger.Info("guest started", zap.String("entry", r.cfg.entryPoint))
	if err := callEntry(guestCtx, r.guest, r.cfg.entryPoint); err != nil {
		if ctx.Err() != nil {
			r.logger.Info("guest stopped", zap.Error(ctx.Err()))
			return nil
		}
		err = domainerrors.Fatal(domainerrors.PhaseRun, err)
		r.logger.Error("guest failed", zap.Error(err))
		return err
	}
	r.logger.Info("guest returned")
	r.heap.LogUsage("return")
	return nil
}

// Close disposes every open handle, releases the hardware and frees the
// guest. It is safe to call more than once.
//
// Handles the guest abandons without dropping are reclaimed here and nowhere
// else. A guest whose entry point never returns holds them, and the heap
// they are charged to, until the run is cancelled and Close is called.
func (r *Runtime) Close(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	if r.hostCtx != nil {
		err = multierr.Append(err, r.hostCtx.Close())
	} else {
		err = multierr.Append(err, r.hardware.Close())
	}
	if r.runtime != nil {
		err = multierr.Append(err, r.runtime.Close(ctx))
	}
	if r.heap != nil {
		r.heap.LogUsage("close")
	}
	return err
}

// Modules returns the sorted host modules exported to the guest.
func (r *Runtime) Modules() []string {
	return r.modules
}

// Imports returns the sorted host functions the guest imports.
func (r *Runtime) Imports() []string {
	return r.imports
}

// HostContext returns the capability state behind the guest.
func (r *Runtime) HostContext() *hostctx.Context {
	return r.hostCtx
}

// Heap returns the bounded heap.
func (r *Runtime) Heap() *heap.Heap {
	return r.heap
}

// abort logs err, releases what Boot acquired and returns err.
func (r *Runtime) abort(ctx context.Context, err error) error {
	fields := []zap.Field{zap.Error(err)}
	var fatal *domainerrors.FatalError
	if errors.As(err, &fatal) {
		fields = append(fields, zap.String("phase", string(fatal.Phase)))
	}
	r.logger.Error("boot failed", fields...)
	if cerr := r.Close(ctx); cerr != nil {
		r.logger.Warn("release after failed boot", zap.Error(cerr))
	}
	return err
}
