// Package workload is the process-wide directory from region id to its
// replicated WorkUnit: lazy creation on first reference, one shared
// blobstore.Client handle threaded into every unit it creates.
package workload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"higgsd/internal/blobstore"
	"higgsd/internal/callgroup"
	"higgsd/internal/logging"
	"higgsd/internal/replica"
)

// shardCount is the number of independent lock shards the registry
// spreads region ids across. A single RWMutex over one map would
// serialize every concurrent Get across the whole world; 16 shards keep
// contention local to the regions actually being touched at once without
// pulling in a general-purpose concurrent map for a table this small.
const shardCount = 16

type shard struct {
	mu    sync.RWMutex
	units map[uint64]*replica.WorkUnit
	group callgroup.Group[uint64, *replica.WorkUnit]
}

// Registry is the RegionID -> *replica.WorkUnit directory shared by every
// session in the process.
type Registry struct {
	shards     [shardCount]*shard
	blobClient blobstore.Client
	logger     *slog.Logger
}

// New returns an empty registry backed by blobClient. blobClient may be
// nil, in which case work units never persist or reload (used by tests).
func New(blobClient blobstore.Client, logger *slog.Logger) *Registry {
	r := &Registry{
		blobClient: blobClient,
		logger:     logging.Default(logger).With("component", "workload"),
	}
	for i := range r.shards {
		r.shards[i] = &shard{units: make(map[uint64]*replica.WorkUnit)}
	}
	return r
}

func (r *Registry) shardFor(regionID uint64) *shard {
	return r.shards[regionID%shardCount]
}

// Get returns the WorkUnit for regionID, creating and lazily loading it
// (from blob storage, falling back to a default region) on first
// reference. Concurrent Gets for the same never-before-seen regionID
// deduplicate onto a single creation via callgroup.
func (r *Registry) Get(ctx context.Context, regionID uint64) (*replica.WorkUnit, error) {
	s := r.shardFor(regionID)

	s.mu.RLock()
	if u, ok := s.units[regionID]; ok {
		s.mu.RUnlock()
		return u, nil
	}
	s.mu.RUnlock()

	result := <-s.group.DoChan(regionID, func() (*replica.WorkUnit, error) {
		s.mu.RLock()
		if u, ok := s.units[regionID]; ok {
			s.mu.RUnlock()
			return u, nil
		}
		s.mu.RUnlock()

		u, err := replica.New(ctx, regionID, r.blobClient, r.logger)
		if err != nil {
			return nil, fmt.Errorf("create work unit for region %d: %w", regionID, err)
		}

		s.mu.Lock()
		s.units[regionID] = u
		s.mu.Unlock()
		return u, nil
	})
	return result.Value, result.Err
}

// Close shuts down every WorkUnit currently held by the registry,
// performing one final persistence save for each. Errors from individual
// units are joined rather than aborting the rest of the shutdown.
func (r *Registry) Close(ctx context.Context) error {
	var errs []error
	for _, s := range r.shards {
		s.mu.RLock()
		units := make([]*replica.WorkUnit, 0, len(s.units))
		for _, u := range s.units {
			units = append(units, u)
		}
		s.mu.RUnlock()

		for _, u := range units {
			if err := u.Close(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Len returns the total number of work units currently created, for
// tests and metrics.
func (r *Registry) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		n += len(s.units)
		s.mu.RUnlock()
	}
	return n
}
