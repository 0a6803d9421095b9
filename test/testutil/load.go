package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arloliu/imgpool/client"
	"github.com/arloliu/imgpool/job"
)

// LoadResult is the outcome of one request sent by SendLoad.
type LoadResult struct {
	Request job.Request
	Result  client.Result
	Err     error
	Latency time.Duration
}

// LoadSummary aggregates a SendLoad run.
type LoadSummary struct {
	Results   []LoadResult
	Succeeded int
	Failed    int
	Errors    int
	Elapsed   time.Duration
}

// String formats the summary for t.Log.
func (s *LoadSummary) String() string {
	return fmt.Sprintf("%d requests in %v: %d succeeded, %d failed, %d errors",
		len(s.Results), s.Elapsed.Round(time.Millisecond), s.Succeeded, s.Failed, s.Errors)
}

// SendLoad sends count requests through c with at most parallel outstanding at once.
//
// Request i uses seed i and a prompt naming i, so replies can be matched back to
// their requests. Results are returned in request order.
func SendLoad(ctx context.Context, c *client.Client, count, parallel int, base job.Request) *LoadSummary {
	if parallel < 1 {
		parallel = 1
	}

	summary := &LoadSummary{Results: make([]LoadResult, count)}
	start := time.Now()

	sem := make(chan struct{}, parallel)
	var wg sync.WaitGroup
	for i := range count {
		req := base
		req.Seed = int64(i)
		req.Prompt = fmt.Sprintf("%s #%d", base.Prompt, i)

		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			began := time.Now()
			res, err := c.Generate(ctx, req)
			summary.Results[i] = LoadResult{Request: req, Result: res, Err: err, Latency: time.Since(began)}
		}()
	}
	wg.Wait()

	summary.Elapsed = time.Since(start)
	for _, r := range summary.Results {
		switch {
		case r.Err != nil:
			summary.Errors++
		case r.Result.Success:
			summary.Succeeded++
		default:
			summary.Failed++
		}
	}

	return summary
}
