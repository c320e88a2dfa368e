package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when more than threshold goroutines run.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// Pinger is a dependency that can be probed, such as a database pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck probes p.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping")
		}
		return nil
	}
}

// Readier is a dependency that reports whether it can serve, such as an
// object store.
type Readier interface {
	Ready(ctx context.Context) error
}

// ReadyCheck probes r.
func ReadyCheck(r Readier) CheckFunc {
	return func(ctx context.Context) error {
		if err := r.Ready(ctx); err != nil {
			return errors.Wrap(err, "ready")
		}
		return nil
	}
}
