package spawn

import (
	"context"
	"sync"
)

// RunAll executes requests with at most limit children in flight, streaming
// each result to onResult as it completes. It returns all results in request
// order once every child has finished.
func (s *Spawner) RunAll(ctx context.Context, reqs []Request, limit int, onResult func(Result)) []Result {
	if limit <= 0 {
		limit = 1
	}

	results := make([]Result, len(reqs))
	sem := make(chan struct{}, limit)

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := range reqs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = Result{Request: reqs[i], Err: ctx.Err(),
					Progress: Progress{Status: "aborted", Error: ctx.Err().Error()}}
				return
			}
			defer func() { <-sem }()

			result := s.Run(ctx, reqs[i])
			results[i] = result

			if onResult != nil {
				mu.Lock()
				onResult(result)
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	return results
}
