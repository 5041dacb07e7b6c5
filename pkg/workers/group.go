package workers

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/dskvich/kalypso-relay/pkg/logger"
)

type Worker interface {
	Name() string
	Start(ctx context.Context) error
}

type Group []Worker

// Start runs every worker until ctx is done or one of them fails, then waits
// for all of them to return. A panicking worker counts as a failure.
func (g Group) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()

	slog.Info("Starting workers", "count", len(g))

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		result *multierror.Error
	)
	for _, w := range g {
		wg.Add(1)
		go func(w Worker) {
			defer wg.Done()

			started := time.Now()
			err := runWorker(runCtx, w)
			uptime := time.Since(started).Round(time.Millisecond)

			switch {
			case err != nil:
				slog.Error("Worker failed, stopping the rest", "name", w.Name(), "uptime", uptime, logger.Err(err))
				mu.Lock()
				result = multierror.Append(result, fmt.Errorf("%s: %w", w.Name(), err))
				mu.Unlock()
				cancelFn()
			case runCtx.Err() == nil:
				slog.Warn("Worker returned before shutdown", "name", w.Name(), "uptime", uptime)
			default:
				slog.Debug("Worker returned", "name", w.Name(), "uptime", uptime)
			}
		}(w)
	}

	<-runCtx.Done()
	wg.Wait()

	return result.ErrorOrNil()
}

func runWorker(ctx context.Context, w Worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return w.Start(ctx)
}
