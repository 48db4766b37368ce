package async

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/utils/errutil"
	"github.com/secmon-lab/taskpilot/pkg/utils/logging"
)

// Group runs handlers detached from the request that triggered them and
// tracks them so shutdown can wait for in-flight work
type Group struct {
	wg      sync.WaitGroup
	timeout time.Duration
}

// DefaultTimeout bounds a single dispatched handler
const DefaultTimeout = 2 * time.Minute

// NewGroup creates a Group. A non-positive timeout disables the bound.
func NewGroup(timeout time.Duration) *Group {
	return &Group{timeout: timeout}
}

var defaultGroup = NewGroup(DefaultTimeout)

// Dispatch runs handler on the default group
func Dispatch(ctx context.Context, handler func(ctx context.Context) error) {
	defaultGroup.Go(ctx, handler)
}

// Wait blocks until the default group drains or ctx is done
func Wait(ctx context.Context) error {
	return defaultGroup.Wait(ctx)
}

// Go executes handler in a new goroutine. The handler gets a background
// context carrying the caller's logger, so it outlives the request.
func (g *Group) Go(ctx context.Context, handler func(ctx context.Context) error) {
	bgCtx := context.Background()
	if logger := logging.From(ctx); logger != nil {
		bgCtx = logging.With(bgCtx, logger)
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()

		runCtx := bgCtx
		if g.timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(bgCtx, g.timeout)
			defer cancel()
		}

		defer func() {
			if r := recover(); r != nil {
				_ = errutil.Handle(runCtx, goerr.New("panic in async handler", goerr.V("panic", r)), "async handler panicked")
			}
		}()

		if err := handler(runCtx); err != nil {
			_ = errutil.Handle(runCtx, goerr.Wrap(err, "async handler failed"), "async handler failed")
		}
	}()
}

// Wait blocks until every handler started by Go returns or ctx is done
func (g *Group) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return goerr.Wrap(ctx.Err(), "async handlers still running")
	}
}
