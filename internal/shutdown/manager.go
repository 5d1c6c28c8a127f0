package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Manager runs registered cleanup functions in reverse registration order
// once the process is asked to stop.
type Manager struct {
	timeout time.Duration
	logger  *zap.Logger
	mu      sync.Mutex
	funcs   []shutdownFunc
}

type shutdownFunc struct {
	name string
	fn   func(context.Context) error
}

func New(timeout time.Duration, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{timeout: timeout, logger: logger}
}

func (m *Manager) Add(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funcs = append(m.funcs, shutdownFunc{name: name, fn: fn})
}

// Wait blocks until SIGINT or SIGTERM arrives or ctx is done, then runs
// every registered function.
func (m *Manager) Wait(ctx context.Context) {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	<-sigCtx.Done()
	stop()

	m.logger.Info("shutdown signal received")
	m.Run()
}

// Run executes the registered functions, last registered first, each under
// its own timeout. A failing function is logged and does not stop the rest.
func (m *Manager) Run() {
	m.mu.Lock()
	funcs := make([]shutdownFunc, len(m.funcs))
	copy(funcs, m.funcs)
	m.mu.Unlock()

	for i := len(funcs) - 1; i >= 0; i-- {
		fn := funcs[i]
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		start := time.Now()
		err := fn.fn(ctx)
		cancel()

		if err != nil {
			m.logger.Error("shutdown step failed",
				zap.String("name", fn.name),
				zap.Error(err),
				zap.Duration("duration", time.Since(start)),
			)
			continue
		}
		m.logger.Info("shutdown step completed",
			zap.String("name", fn.name),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

// Closer adapts an io.Closer style Close method to a shutdown function.
func Closer(c interface{ Close() error }) func(context.Context) error {
	return func(context.Context) error {
		return c.Close()
	}
}
