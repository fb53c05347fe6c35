package mirror

import (
	"context"
	"sync"

	"github.com/sidkik/repocheck/pkg/errors"
	"github.com/sidkik/repocheck/pkg/manifest"
)

// ensureAll runs Ensure over every descriptor and returns the outcomes in the
// same order as the descriptors, regardless of how many workers are used.
// Once ctx is cancelled, the remaining files are marked as failed without
// being checked.
func (s *Synchronizer) ensureAll(ctx context.Context, root, source string,
	descriptors []manifest.FileDescriptor) []Outcome {

	outcomes := make([]Outcome, len(descriptors))
	ensure := func(i int) {
		d := descriptors[i]
		if err := ctx.Err(); err != nil {
			outcomes[i] = Outcome{Descriptor: d, Err: errors.WithContext(err, "skipped")}
			return
		}
		outcomes[i] = s.Ensure(ctx, root, source, d)
	}

	workers := s.workers
	if workers > len(descriptors) {
		workers = len(descriptors)
	}

	if workers < 2 {
		for i := range descriptors {
			ensure(i)
		}
		return outcomes
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				ensure(i)
			}
		}()
	}

	for i := range descriptors {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return outcomes
}
