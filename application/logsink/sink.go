// Package logsink forwards guest diagnostic strings to the host logger.
package logsink

import (
	"io"
	"sync/atomic"

	"github.com/wasmpico/picohost/domain/entities"
	"github.com/wasmpico/picohost/hostfuncs"
	"github.com/wasmpico/picohost/internal/tls"
	"go.uber.org/zap"
)

// DefaultGuestName tags lines when no guest is running.
const DefaultGuestName = "guest"

// Sink writes guest messages in arrival order. It never fails.
type Sink struct {
	logger *zap.Logger
	guest  string
	limit  int
	lines  atomic.Uint64
}

// Option configures a Sink.
type Option func(*Sink)

// WithLogger sets the destination logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Sink) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithGuestName sets the fallback guest name.
func WithGuestName(name string) Option {
	return func(s *Sink) {
		if name != "" {
			s.guest = name
		}
	}
}

// WithMaxMessage caps the byte length of a line.
func WithMaxMessage(n uint32) Option {
	return func(s *Sink) {
		if n > 0 {
			s.limit = int(n)
		}
	}
}

// New creates a sink.
func New(opts ...Option) *Sink {
	s := &Sink{
		logger: zap.NewNop(),
		guest:  DefaultGuestName,
		limit:  int(entities.DefaultLimits().MaxLogMessage),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Log emits msg at info level. Messages over the limit are cut and flagged.
func (s *Sink) Log(msg string) {
	buf := hostfuncs.NewBoundedBuffer(s.limit)
	_, _ = io.WriteString(buf, msg)

	fields := []zap.Field{zap.String("guest", s.currentGuest())}
	if buf.Truncated {
		fields = append(fields, zap.Bool("truncated", true), zap.Int("length", len(msg)))
	}
	s.lines.Add(1)
	s.logger.Info("[Guest] "+buf.String(), fields...)
}

// Lines returns the number of messages written.
func (s *Sink) Lines() uint64 {
	return s.lines.Load()
}

func (s *Sink) currentGuest() string {
	if name, ok := tls.CurrentGuest(); ok && name != "" {
		return name
	}
	return s.guest
}
