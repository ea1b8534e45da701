// Package session drives one client connection end to end: a three-task
// split modeled directly on original_source's Client::start — an ingress
// task reading requests, a fan-in task draining subscribed regions' fan-out
// channels, and an egress task writing responses — all three sharing a
// single kill switch so any one of them detecting connection loss stops
// the other two promptly.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"higgsd/internal/logging"
	"higgsd/internal/replica"
	"higgsd/internal/replica/broadcast"
	"higgsd/internal/transport"
	"higgsd/internal/voxel"
	"higgsd/internal/wire"
	"higgsd/internal/workload"
)

// fanInInterval is how often the fan-in task drains subscribed regions'
// fan-out channels, matching original_source's 5ms poll.
const fanInInterval = 5 * time.Millisecond

// responseBuffer bounds how far egress may lag ingress/fan-in before a
// slow client starts applying backpressure to them.
const responseBuffer = 256

// Stream is the minimal duplex byte stream a Session drives. A
// *quic.Stream satisfies it in production; tests use an in-memory pipe.
type Stream interface {
	io.Reader
	io.Writer
}

// Session is the per-connection state machine described in package doc.
type Session struct {
	id       replica.ClientID
	stream   Stream
	registry *workload.Registry
	logger   *slog.Logger

	responses chan wire.Response

	mu            sync.Mutex
	subscriptions map[uint64]*broadcast.Subscription[replica.Procedure]
}

// New returns a Session with a freshly generated client id. It does not
// start running until Run is called.
func New(stream Stream, registry *workload.Registry, logger *slog.Logger) *Session {
	return &Session{
		id:            uuid.New(),
		stream:        stream,
		registry:      registry,
		logger:        logging.Default(logger).With("component", "session"),
		responses:     make(chan wire.Response, responseBuffer),
		subscriptions: make(map[uint64]*broadcast.Subscription[replica.Procedure]),
	}
}

// ID returns the session's client id, used to tag every operation it
// appends and to filter its own procedures back out of its fan-in.
func (s *Session) ID() replica.ClientID { return s.id }

// Run drives the session until the stream is lost, ctx is canceled, or an
// unrecoverable error occurs in any of the three tasks. It blocks until
// all three have stopped, then releases every fan-out subscription.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); s.ingress(ctx, cancel) }()
	go func() { defer wg.Done(); s.fanIn(ctx) }()
	go func() { defer wg.Done(); s.egress(ctx, cancel) }()
	wg.Wait()

	s.closeSubscriptions()
}

// ingress reads length-delimited Request frames and acts on them until
// the kill switch trips. A decode error or oversize frame is logged and
// skipped; a connection-lost error trips the kill switch and returns.
func (s *Session) ingress(ctx context.Context, cancel context.CancelFunc) {
	for {
		if ctx.Err() != nil {
			return
		}
		payload, err := transport.ReadFrame(s.stream)
		if err != nil {
			if errors.Is(err, transport.ErrFrameTooLarge) {
				s.logger.Warn("dropped oversize request frame", "error", err)
				continue
			}
			if errors.Is(err, transport.ErrConnectionLost) {
				cancel()
				return
			}
			s.logger.Warn("ingress read failed", "error", err)
			cancel()
			return
		}

		req, err := wire.DecodeRequest(payload)
		if err != nil {
			s.logger.Warn("dropped undecodable request frame", "error", err)
			continue
		}

		switch req.Kind {
		case wire.RequestSubscribe:
			s.handleSubscribe(ctx, req.Subscribe)
		case wire.RequestPerform:
			s.handlePerform(ctx, req.Perform)
		}
	}
}

// handleSubscribe ensures a WorkUnit exists for each requested region,
// registers a fan-out subscription, and enqueues a full-snapshot refresh
// covering every region named in the request as one batched response.
func (s *Session) handleSubscribe(ctx context.Context, regionIDs []uint64) {
	refresh := make(map[uint64]*voxel.Region, len(regionIDs))
	for _, regionID := range regionIDs {
		unit, err := s.registry.Get(ctx, regionID)
		if err != nil {
			s.logger.Warn("subscribe failed", "region_id", regionID, "error", err)
			continue
		}

		s.mu.Lock()
		if _, ok := s.subscriptions[regionID]; !ok {
			s.subscriptions[regionID] = unit.Subscribe()
		}
		s.mu.Unlock()

		refresh[regionID] = unit.Snapshot()
	}
	if len(refresh) > 0 {
		s.sendResponse(ctx, wire.NewRefreshResponse(refresh))
	}
}

// handlePerform fans each region's operations out to its own goroutine via
// errgroup, exactly as original_source's FuturesUnordered does: each
// goroutine acquires one region's writer guard, applies every operation in
// that region's list in order — each tagged with this session's client id —
// publishes once, and releases the guard before returning — never holding a
// second region's guard meanwhile. A rejected operation is logged and
// skipped; the rest of the region's batch still applies.
func (s *Session) handlePerform(ctx context.Context, ops map[uint64][]voxel.Operation) {
	var g errgroup.Group
	for regionID, regionOps := range ops {
		regionID, regionOps := regionID, regionOps
		g.Go(func() error {
			unit, err := s.registry.Get(ctx, regionID)
			if err != nil {
				s.logger.Warn("perform failed", "region_id", regionID, "error", err)
				return nil
			}
			unit.Lock()
			defer unit.Unlock()
			for _, op := range regionOps {
				if err := unit.Append(s.id, op); err != nil {
					s.logger.Warn("rejected operation", "region_id", regionID, "error", err)
					continue
				}
			}
			unit.Publish()
			return nil
		})
	}
	_ = g.Wait()
}

// fanIn drains every subscribed region's fan-out channel on a fixed tick,
// filters out this session's own procedures, groups what remains by
// region, and enqueues a single batched Publish response for the tick —
// including an empty operation list for a subscribed region with no new
// procedures, so a client always has an up-to-date view of which regions
// are live.
func (s *Session) fanIn(ctx context.Context) {
	ticker := time.NewTicker(fanInInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.drainSubscriptions(ctx)
		}
	}
}

func (s *Session) drainSubscriptions(ctx context.Context) {
	s.mu.Lock()
	subs := make(map[uint64]*broadcast.Subscription[replica.Procedure], len(s.subscriptions))
	for regionID, sub := range s.subscriptions {
		subs[regionID] = sub
	}
	s.mu.Unlock()

	if len(subs) == 0 {
		return
	}

	batch := make(map[uint64][]voxel.Operation, len(subs))
	for regionID, sub := range subs {
		procedures, err := sub.Drain()
		if err != nil {
			s.logger.Info("subscriber lagged, resubscribing", "region_id", regionID)
		}
		ops := make([]voxel.Operation, 0, len(procedures))
		for _, proc := range procedures {
			if proc.ClientID == s.id {
				continue
			}
			ops = append(ops, proc.Operation)
		}
		batch[regionID] = ops
	}
	s.sendResponse(ctx, wire.NewPublishResponse(batch))
}

// egress blocks on the response channel and writes each response as a
// length-delimited frame; a write failure trips the kill switch.
func (s *Session) egress(ctx context.Context, cancel context.CancelFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case resp := <-s.responses:
			if err := transport.WriteFrame(s.stream, wire.EncodeResponse(resp)); err != nil {
				s.logger.Warn("egress write failed", "error", err)
				cancel()
				return
			}
		}
	}
}

// sendResponse enqueues resp for egress, dropping it if the session is
// shutting down rather than blocking ingress/fan-in indefinitely.
func (s *Session) sendResponse(ctx context.Context, resp wire.Response) {
	select {
	case s.responses <- resp:
	case <-ctx.Done():
	}
}

func (s *Session) closeSubscriptions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subscriptions {
		sub.Close()
	}
}
