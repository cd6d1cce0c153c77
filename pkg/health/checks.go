package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// Goroutines fails when the process runs more than limit goroutines.
func Goroutines(limit int) Check {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > limit {
			return errors.Errorf("%d goroutines, limit %d", n, limit)
		}
		return nil
	}
}

// Backlog fails when depth reports more than limit pending items. It guards
// queues such as outgoing notifications.
func Backlog(depth func() int, limit int) Check {
	return func(context.Context) error {
		if n := depth(); n > limit {
			return errors.Errorf("backlog %d exceeds %d", n, limit)
		}
		return nil
	}
}
