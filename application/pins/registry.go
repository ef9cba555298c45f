// Package pins owns the labelled output lines the guest may drive.
package pins

import (
	"fmt"
	"sort"

	"github.com/wasmpico/picohost/domain/entities"
	"github.com/wasmpico/picohost/domain/ports"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type entry struct {
	pin     ports.OutputPin
	level   entities.Level
	initial entities.Level
}

// Registry maps guest-visible labels to exclusively owned output pins.
// The label set is fixed at construction.
type Registry struct {
	logger *zap.Logger
	pins   map[string]*entry
	order  []string
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// New builds a registry from labelled pins and drives each to its initial
// level. Empty labels, duplicate labels and a physical pin registered twice
// are rejected.
func New(labeled []ports.LabeledPin, opts ...Option) (*Registry, error) {
	r := &Registry{
		logger: zap.NewNop(),
		pins:   make(map[string]*entry, len(labeled)),
	}
	for _, opt := range opts {
		opt(r)
	}

	owners := make(map[string]string, len(labeled))
	for _, lp := range labeled {
		if lp.Label == "" {
			return nil, fmt.Errorf("pin registry: empty label")
		}
		if lp.Pin == nil {
			return nil, fmt.Errorf("pin registry: label %q has no pin", lp.Label)
		}
		if _, dup := r.pins[lp.Label]; dup {
			return nil, fmt.Errorf("pin registry: duplicate label %q", lp.Label)
		}
		if owner, dup := owners[lp.Pin.Name()]; dup {
			return nil, fmt.Errorf("pin registry: pin %s already owned by %q", lp.Pin.Name(), owner)
		}
		owners[lp.Pin.Name()] = lp.Label

		if err := lp.Pin.Out(lp.Initial); err != nil {
			return nil, fmt.Errorf("pin registry: initialise %q: %w", lp.Label, err)
		}
		r.pins[lp.Label] = &entry{pin: lp.Pin, level: lp.Initial, initial: lp.Initial}
		r.order = append(r.order, lp.Label)
	}
	return r, nil
}

// SetState drives the pin registered under label. Unknown labels are ignored.
// Write failures are logged because the capability has no error channel.
func (r *Registry) SetState(label string, level entities.Level) {
	e, ok := r.pins[label]
	if !ok {
		r.logger.Debug("set-pin-state on unknown label", zap.String("label", label))
		return
	}
	if err := e.pin.Out(level); err != nil {
		r.logger.Warn("pin write failed",
			zap.String("label", label),
			zap.String("pin", e.pin.Name()),
			zap.Stringer("level", level),
			zap.Error(err),
		)
		return
	}
	e.level = level
}

// Level returns the last level written to label.
func (r *Registry) Level(label string) (entities.Level, bool) {
	e, ok := r.pins[label]
	if !ok {
		return entities.Low, false
	}
	return e.level, true
}

// Labels returns the registered labels, sorted.
func (r *Registry) Labels() []string {
	labels := make([]string, len(r.order))
	copy(labels, r.order)
	sort.Strings(labels)
	return labels
}

// Release drives every pin back to its initial level in registration order,
// so active-low lines such as a reset end deasserted.
func (r *Registry) Release() error {
	var err error
	for _, label := range r.order {
		e := r.pins[label]
		if werr := e.pin.Out(e.initial); werr != nil {
			err = multierr.Append(err, fmt.Errorf("release %q: %w", label, werr))
			continue
		}
		e.level = e.initial
	}
	return err
}
