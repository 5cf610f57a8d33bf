package util

import (
	"context"
	"errors"
	"sync"
)

// Parallel runs fn over inputs with at most workerLimit goroutines. Unlike a
// fail-fast group every input is attempted; the failures are joined.
func Parallel[T any](ctx context.Context, inputs []T, workerLimit int, fn func(context.Context, T) error) error {
	if len(inputs) == 0 {
		return nil
	}
	if workerLimit <= 0 {
		workerLimit = 1
	}
	workerLimit = min(workerLimit, len(inputs))

	tasks := make(chan T)
	var (
		mu   sync.Mutex
		errs []error
	)

	var wg sync.WaitGroup
	for i := 0; i < workerLimit; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range tasks {
				if err := fn(ctx, item); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			}
		}()
	}

	// feed tasks, stop early if the caller gives up
feed:
	for _, item := range inputs {
		select {
		case <-ctx.Done():
			mu.Lock()
			errs = append(errs, ctx.Err())
			mu.Unlock()
			break feed
		case tasks <- item:
		}
	}
	close(tasks)
	wg.Wait()

	return errors.Join(errs...)
}
