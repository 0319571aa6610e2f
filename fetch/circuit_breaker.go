package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"
)

// CircuitBreakerFetcher wraps a fetcher with one circuit breaker per
// registry host, so a dead registry fails fast instead of retrying every
// descriptor of a large library set.
type CircuitBreakerFetcher struct {
	fetcher   FetcherInterface
	threshold int64
	breakers  map[string]*circuit.Breaker
	mu        sync.RWMutex
}

// NewCircuitBreakerFetcher creates a breaker that trips after threshold
// consecutive failures. A threshold of zero selects the default of 5.
func NewCircuitBreakerFetcher(f FetcherInterface, threshold int64) *CircuitBreakerFetcher {
	if threshold <= 0 {
		threshold = 5
	}
	return &CircuitBreakerFetcher{
		fetcher:   f,
		threshold: threshold,
		breakers:  make(map[string]*circuit.Breaker),
	}
}

func (cbf *CircuitBreakerFetcher) getBreaker(host string) *circuit.Breaker {
	cbf.mu.RLock()
	breaker, exists := cbf.breakers[host]
	cbf.mu.RUnlock()

	if exists {
		return breaker
	}

	cbf.mu.Lock()
	defer cbf.mu.Unlock()

	if breaker, exists := cbf.breakers[host]; exists {
		return breaker
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 30 * time.Second
	expBackoff.MaxInterval = 5 * time.Minute
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	breaker = circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ThresholdTripFunc(cbf.threshold),
	})
	cbf.breakers[host] = breaker
	return breaker
}

// Fetch wraps the underlying fetcher's Fetch with circuit breaker logic.
// Not-found responses are answers, not failures, and do not count towards
// tripping the breaker.
func (cbf *CircuitBreakerFetcher) Fetch(ctx context.Context, fetchURL string) (*Artifact, error) {
	host := extractHost(fetchURL)
	breaker := cbf.getBreaker(host)

	if !breaker.Ready() {
		return nil, fmt.Errorf("circuit breaker open for registry %s: %w", host, ErrUpstreamDown)
	}

	var artifact *Artifact
	var notFound error
	err := breaker.Call(func() error {
		var fetchErr error
		artifact, fetchErr = cbf.fetcher.Fetch(ctx, fetchURL)
		if errors.Is(fetchErr, ErrNotFound) {
			notFound = fetchErr
			return nil
		}
		return fetchErr
	}, 0)

	if err != nil {
		return nil, err
	}
	if notFound != nil {
		return nil, notFound
	}
	return artifact, nil
}

// Tripped reports whether the breaker for the host of rawURL is open.
func (cbf *CircuitBreakerFetcher) Tripped(rawURL string) bool {
	cbf.mu.RLock()
	defer cbf.mu.RUnlock()
	breaker, ok := cbf.breakers[extractHost(rawURL)]
	return ok && breaker.Tripped()
}

func extractHost(rawURL string) string {
	if host := Host(rawURL); host != "" {
		return host
	}
	if len(rawURL) > 50 {
		return rawURL[:50]
	}
	return rawURL
}
