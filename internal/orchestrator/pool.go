package orchestrator

import (
	"context"
	"sync"

	"github.com/lasko44/geosource-sub001/internal/models"
	"github.com/sirupsen/logrus"
)

// CheckRequest asks for one check of a query on a platform
type CheckRequest struct {
	QueryID  string
	Platform models.Platform
}

// CheckOutcome reports how a CheckRequest ended. Err is nil for completed checks.
type CheckOutcome struct {
	Request CheckRequest
	Err     error
}

// RunAll executes requests on a bounded worker pool and returns one outcome
// per request in completion order.
func (s *Service) RunAll(ctx context.Context, requests []CheckRequest) []CheckOutcome {
	if len(requests) == 0 {
		return nil
	}

	workers := s.workers
	if workers > len(requests) {
		workers = len(requests)
	}

	jobs := make(chan CheckRequest)
	results := make(chan CheckOutcome, len(requests))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for req := range jobs {
				err := s.RunCheck(ctx, req.QueryID, req.Platform)
				if err != nil {
					logrus.WithFields(logrus.Fields{
						"query_id": req.QueryID,
						"platform": req.Platform,
					}).Warnf("Check did not complete: %v", err)
				}
				results <- CheckOutcome{Request: req, Err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, req := range requests {
			select {
			case jobs <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	outcomes := make([]CheckOutcome, 0, len(requests))
	for outcome := range results {
		outcomes = append(outcomes, outcome)
	}

	// Requests never handed to a worker because ctx ended
	if len(outcomes) < len(requests) {
		done := make(map[CheckRequest]int)
		for _, o := range outcomes {
			done[o.Request]++
		}
		for _, req := range requests {
			if done[req] > 0 {
				done[req]--
				continue
			}
			outcomes = append(outcomes, CheckOutcome{Request: req, Err: ctx.Err()})
		}
	}
	return outcomes
}

// RunQuery checks a query on every platform it targets
func (s *Service) RunQuery(ctx context.Context, query *models.CitationQuery) []CheckOutcome {
	var requests []CheckRequest
	for _, p := range s.PlatformsFor(query) {
		requests = append(requests, CheckRequest{QueryID: query.ID, Platform: p})
	}
	return s.RunAll(ctx, requests)
}
