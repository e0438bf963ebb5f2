package dcrender

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/celer/dcrender/gpu"
)

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

var loggerPtr atomic.Pointer[slog.Logger]

var (
	devicesMu sync.Mutex
	devices   = make(map[gpu.GPU]struct{})
)

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger used by dcrender and by the
// backends of open render devices. By default nothing is logged.
// Passing nil restores the silent default.
//
// Log levels:
//   - [slog.LevelDebug]: placement decisions, backbuffer acquisition
//   - [slog.LevelInfo]: device agent, lifecycle
//   - [slog.LevelError]: fatal stages, right before exiting
//
// SetLogger is safe for concurrent use.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	devicesMu.Lock()
	defer devicesMu.Unlock()
	for g := range devices {
		propagateLogger(g, l)
	}
}

// Logger returns the current logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by backends that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

func propagateLogger(g gpu.GPU, l *slog.Logger) {
	if ls, ok := g.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}

func registerDevice(g gpu.GPU) {
	devicesMu.Lock()
	defer devicesMu.Unlock()
	devices[g] = struct{}{}
	propagateLogger(g, Logger())
}

func unregisterDevice(g gpu.GPU) {
	devicesMu.Lock()
	defer devicesMu.Unlock()
	delete(devices, g)
}
