// Copyright 2025 The Prometheus Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package redfish discovers and queries a Redfish management service.
package redfish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stmcginnis/gofish"
	"golang.org/x/sync/singleflight"
)

const (
	namespace    = "hardware_exporter"
	discoveryKey = "discover"
)

// ErrDiscoveryExhausted is returned once every discovery attempt has failed.
var ErrDiscoveryExhausted = errors.New("redfish discovery failed")

// DiscoverFunc establishes an authenticated session with the Redfish service.
// It is called with a context that is cancelled after the per-attempt timeout,
// but the returned client must stay usable after that.
type DiscoverFunc func(ctx context.Context) (*gofish.APIClient, error)

// entry is never modified once stored; rediscovery replaces it.
type entry struct {
	client    *gofish.APIClient
	expiresAt time.Time
}

type discoveryResult struct {
	client *gofish.APIClient
	err    error
}

// CacheOpts bounds discovery.
type CacheOpts struct {
	// Timeout bounds a single discovery attempt.
	Timeout time.Duration
	// MaxRetry is the number of attempts made after the first one failed.
	MaxRetry int
	// TTL is how long a discovered session is reused.
	TTL time.Duration
}

// DiscoveryCache holds at most one discovered session and the time it expires.
//
// The slot is empty (no entry, or now >= expiresAt), live (an entry that has
// not expired) or refreshing (a discovery is in flight in the singleflight
// group). Session returns the cached session while it is live. Otherwise it
// runs up to MaxRetry+1 discovery attempts, each bounded by Timeout.
// Concurrent callers finding the slot expired join the in-flight discovery. A
// caller whose context ends stops waiting, while the discovery itself runs to
// completion and stores its result.
type DiscoveryCache struct {
	discover DiscoverFunc
	opts     CacheOpts
	logger   *slog.Logger
	now      func() time.Time

	group singleflight.Group

	mtx   sync.Mutex
	entry *entry

	attempts prometheus.Counter
	failures prometheus.Counter
}

// NewDiscoveryCache returns an empty cache.
func NewDiscoveryCache(discover DiscoverFunc, opts CacheOpts, logger *slog.Logger) *DiscoveryCache {
	return &DiscoveryCache{
		discover: discover,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redfish",
			Name:      "discovery_attempts_total",
			Help:      "Number of Redfish discovery attempts.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redfish",
			Name:      "discovery_failures_total",
			Help:      "Number of Redfish discoveries that failed after all retries.",
		}),
	}
}

// Describe implements prometheus.Collector.
func (c *DiscoveryCache) Describe(ch chan<- *prometheus.Desc) {
	c.attempts.Describe(ch)
	c.failures.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *DiscoveryCache) Collect(ch chan<- prometheus.Metric) {
	c.attempts.Collect(ch)
	c.failures.Collect(ch)
}

// Session returns a live session, discovering a new one when needed.
func (c *DiscoveryCache) Session(ctx context.Context) (*gofish.APIClient, error) {
	if client := c.live(); client != nil {
		return client, nil
	}

	ch := c.group.DoChan(discoveryKey, func() (interface{}, error) {
		return c.refresh()
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*gofish.APIClient), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops client from the cache if it is still the cached session,
// so the next call to Session rediscovers.
func (c *DiscoveryCache) Invalidate(client *gofish.APIClient) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.entry != nil && c.entry.client == client {
		c.logger.Debug("Invalidating cached Redfish session")
		c.entry = nil
	}
}

func (c *DiscoveryCache) live() *gofish.APIClient {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.entry != nil && c.now().Before(c.entry.expiresAt) {
		return c.entry.client
	}
	return nil
}

func (c *DiscoveryCache) refresh() (*gofish.APIClient, error) {
	// A flight that finished between live() and DoChan may already have
	// stored a fresh entry.
	if client := c.live(); client != nil {
		return client, nil
	}

	var (
		client  *gofish.APIClient
		attempt int
	)
	op := func() error {
		attempt++
		c.attempts.Inc()
		cl, err := c.attempt()
		if err != nil {
			c.logger.Warn("Redfish discovery attempt failed", "attempt", attempt, "max_attempts", c.opts.MaxRetry+1, "error", err)
			return err
		}
		client = cl
		return nil
	}
	err := backoff.Retry(op, backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(c.opts.MaxRetry)))

	c.mtx.Lock()
	defer c.mtx.Unlock()
	if err != nil {
		c.failures.Inc()
		c.entry = nil
		return nil, fmt.Errorf("%w after %d attempts: %w", ErrDiscoveryExhausted, attempt, err)
	}
	c.entry = &entry{client: client, expiresAt: c.now().Add(c.opts.TTL)}
	c.logger.Debug("Discovered Redfish service", "attempts", attempt, "expires_at", c.entry.expiresAt)
	return client, nil
}

// attempt runs one discovery and gives up on it after the timeout. A session
// that shows up after that is logged out instead of being cached.
func (c *DiscoveryCache) attempt() (*gofish.APIClient, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.Timeout)
	defer cancel()

	done := make(chan discoveryResult, 1)
	go func() {
		client, err := c.discover(ctx)
		done <- discoveryResult{client: client, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		if res.client == nil {
			return nil, errors.New("discovery returned no session")
		}
		return res.client, nil
	case <-ctx.Done():
		go func() {
			if res := <-done; res.client != nil {
				res.client.Logout()
			}
		}()
		return nil, fmt.Errorf("discovery timed out after %s: %w", c.opts.Timeout, ctx.Err())
	}
}
