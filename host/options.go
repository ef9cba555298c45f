package host

import (
	"github.com/wasmpico/picohost/domain/entities"
	"github.com/wasmpico/picohost/domain/ports"
	"github.com/wasmpico/picohost/hostfuncs"
	"go.uber.org/zap"
)

// Defaults applied by Boot.
const (
	DefaultHeapSize   = 470 * 1024
	DefaultGuestName  = "guest"
	DefaultEntryPoint = "run"
)

type config struct {
	logger      *zap.Logger
	sleeper     ports.Sleeper
	busConfig   *entities.BusConfig
	guestName   string
	deviceName  string
	entryPoint  string
	grants      []string
	middleware  []hostfuncs.Middleware
	limits      entities.Limits
	profile     Profile
	heapSize    uint32
	selectLevel entities.Level
}

func defaultConfig() config {
	return config{
		logger:      Logger(),
		guestName:   DefaultGuestName,
		entryPoint:  DefaultEntryPoint,
		grants:      []string{hostfuncs.GrantAll},
		limits:      entities.DefaultLimits(),
		heapSize:    DefaultHeapSize,
		selectLevel: entities.Low,
		profile: Profile{
			Target:           TargetInterpreter,
			MaxStackDepth:    16 * 1024,
			MemoryLimitPages: 4,
		},
	}
}

// Option defines a functional option for configuring Boot.
type Option func(*config)

// WithLogger sets the logger for the runtime and every component it builds.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithHeapSize sets the size of the bounded heap in bytes.
func WithHeapSize(n uint32) Option {
	return func(c *config) {
		c.heapSize = n
	}
}

// WithGuestName names the guest in logs and in the guest module.
func WithGuestName(name string) Option {
	return func(c *config) {
		if name != "" {
			c.guestName = name
		}
	}
}

// WithEntryPoint sets the guest export called by Run.
func WithEntryPoint(name string) Option {
	return func(c *config) {
		if name != "" {
			c.entryPoint = name
		}
	}
}

// WithGrants restricts the capabilities the guest may import.
func WithGrants(grants ...string) Option {
	return func(c *config) {
		c.grants = grants
	}
}

// WithLimits sets the per-call caps.
func WithLimits(l entities.Limits) Option {
	return func(c *config) {
		c.limits = l
	}
}

// WithSleeper replaces the clock used by the delay service.
func WithSleeper(s ports.Sleeper) Option {
	return func(c *config) {
		c.sleeper = s
	}
}

// WithDevice names the bus device and its boot configuration.
func WithDevice(name string, cfg entities.BusConfig) Option {
	return func(c *config) {
		c.deviceName = name
		c.busConfig = &cfg
	}
}

// WithSelectLevel sets the active chip-select level.
func WithSelectLevel(l entities.Level) Option {
	return func(c *config) {
		c.selectLevel = l
	}
}

// WithProfile sets the execution profile artifacts must match.
func WithProfile(p Profile) Option {
	return func(c *config) {
		c.profile = p
	}
}

// WithMiddleware appends handler middleware after the built-in chain.
func WithMiddleware(mw ...hostfuncs.Middleware) Option {
	return func(c *config) {
		c.middleware = append(c.middleware, mw...)
	}
}
