package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"NewsRelay/internal/domain"
	"NewsRelay/internal/ports"
)

// Result pairs one source with what its fetch produced.
type Result struct {
	Source  domain.Source
	Items   []domain.CandidateItem
	Outcome domain.FetchOutcome
}

// FetchAll fetches every source on a bounded pool of workers. Results keep
// the order of sources. A failing or panicking fetch only affects its own
// Result; every source is attempted regardless of breaker state.
func FetchAll(ctx context.Context, f ports.SourceFetcher, sources []domain.Source, concurrency int) []Result {
	if concurrency <= 0 || concurrency > len(sources) {
		concurrency = len(sources)
	}
	results := make([]Result, len(sources))
	if len(sources) == 0 {
		return results
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(concurrency)
	for w := 0; w < concurrency; w++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = fetchOne(ctx, f, sources[idx])
			}
		}()
	}

	for i := range sources {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

func fetchOne(ctx context.Context, f ports.SourceFetcher, src domain.Source) (res Result) {
	start := time.Now()
	res.Source = src
	res.Outcome.Source = src.Code

	defer func() {
		if r := recover(); r != nil {
			res.Items = nil
			res.Outcome.Items = 0
			res.Outcome.Err = fmt.Sprintf("panic: %v", r)
		}
		res.Outcome.Duration = time.Since(start)
	}()

	items, err := f.Fetch(ctx, src)
	if err != nil {
		res.Outcome.Err = err.Error()
		var open *domain.BreakerOpenError
		res.Outcome.Skipped = errors.As(err, &open)
		return res
	}
	res.Items = items
	res.Outcome.Items = len(items)
	return res
}
