package music

import (
	"context"
	"sync"
)

// chunk splits ids into consecutive groups of at most size.
func chunk(ids []string, size int) [][]string {
	if size <= 0 || len(ids) <= size {
		return [][]string{ids}
	}
	out := make([][]string, 0, (len(ids)+size-1)/size)
	for len(ids) > size {
		out = append(out, ids[:size:size])
		ids = ids[size:]
	}
	return append(out, ids)
}

// fanOut runs fetch for every chunk concurrently and concatenates the results
// in chunk order. The first failure cancels the remaining fetches and is
// returned; no partial result is produced.
func fanOut(ctx context.Context, chunks [][]string, fetch func(context.Context, []string) ([]Track, error)) ([]Track, error) {
	if len(chunks) == 1 {
		return fetch(ctx, chunks[0])
	}
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	results := make([][]Track, len(chunks))
	var wg sync.WaitGroup
	for i, ids := range chunks {
		i, ids := i, ids
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracks, err := fetch(ctx, ids)
			if err != nil {
				cancel(err)
				return
			}
			results[i] = tracks
		}()
	}
	wg.Wait()
	if err := context.Cause(ctx); err != nil {
		return nil, err
	}

	n := 0
	for _, r := range results {
		n += len(r)
	}
	merged := make([]Track, 0, n)
	for _, r := range results {
		merged = append(merged, r...)
	}
	return merged, nil
}
