package health

import (
	"context"
	"fmt"
	"os"

	"github.com/MrWong99/conch/internal/resilience"
)

// BreakerCheck fails while cb is open, i.e. while the guarded provider is
// being skipped after repeated failures.
func BreakerCheck(name string, cb *resilience.CircuitBreaker) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			if s := cb.State(); s == resilience.StateOpen {
				return fmt.Errorf("circuit %s is %s", cb.Name(), s)
			}
			return nil
		},
	}
}

// WritableDirCheck fails when no file can be created in dir.
func WritableDirCheck(name, dir string) Checker {
	return Checker{
		Name: name,
		Check: func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, err := os.CreateTemp(dir, ".readyz-*")
			if err != nil {
				return err
			}
			f.Close()
			return os.Remove(f.Name())
		},
	}
}
