package services

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Background runs fire-and-forget work that must outlive the request that
// started it, such as cache stores issued after the response is written.
type Background struct {
	wg sync.WaitGroup
}

// Go runs fn on its own goroutine. Panics are logged and swallowed so a
// failing store never takes the process down.
func (b *Background) Go(fn func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().Interface("panic", rec).Msg("background task panicked")
			}
		}()
		fn()
	}()
}

// Wait blocks until all tasks finish or ctx is done.
func (b *Background) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
