package orchestrator

import (
	"context"
	"sync"

	"github.com/lasko44/geosource-sub001/internal/models"
	"golang.org/x/time/rate"
)

// platformGate caps concurrent calls and the call rate for one platform
type platformGate struct {
	slots   chan struct{}
	limiter *rate.Limiter
}

func newPlatformGate(concurrency int, perMinute float64) *platformGate {
	if concurrency < 1 {
		concurrency = 1
	}
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(perMinute / 60)
	}
	return &platformGate{
		slots:   make(chan struct{}, concurrency),
		limiter: rate.NewLimiter(limit, concurrency),
	}
}

// acquire blocks until a slot is free and the rate limiter admits the call
func (g *platformGate) acquire(ctx context.Context) error {
	select {
	case g.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := g.limiter.Wait(ctx); err != nil {
		<-g.slots
		return err
	}
	return nil
}

func (g *platformGate) release() {
	<-g.slots
}

// gates holds one platformGate per platform, created on first use
type gates struct {
	mu          sync.Mutex
	byPlatform  map[models.Platform]*platformGate
	concurrency int
	perMinute   float64
}

func newGates(concurrency int, perMinute float64) *gates {
	return &gates{
		byPlatform:  make(map[models.Platform]*platformGate),
		concurrency: concurrency,
		perMinute:   perMinute,
	}
}

func (g *gates) get(p models.Platform) *platformGate {
	g.mu.Lock()
	defer g.mu.Unlock()
	gate, ok := g.byPlatform[p]
	if !ok {
		gate = newPlatformGate(g.concurrency, g.perMinute)
		g.byPlatform[p] = gate
	}
	return gate
}

// lineageLocks serializes completion of checks that share a (query, platform) pair
type lineageLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLineageLocks() *lineageLocks {
	return &lineageLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *lineageLocks) lock(queryID string, platform models.Platform) func() {
	key := queryID + "/" + string(platform)
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
