package store

import (
	"context"
	"errors"
	"iter"
	"math"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/tanq16/offpack/internal/offline"
	"github.com/tanq16/offpack/internal/tiles"
	"golang.org/x/sync/errgroup"
)

// kept just inside the Web Mercator limit so tile rows stay in range
const maxLatitude = 85.0511

type pack struct {
	store *Store

	// pubMu orders progress snapshots with their publication
	pubMu  sync.Mutex
	mu     sync.Mutex
	rec    record
	cancel context.CancelFunc
	done   chan struct{}
}

func (p *pack) ID() string {
	return p.rec.ID
}

func (p *pack) State() offline.PackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rec.State
}

func (p *pack) Progress() offline.Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progressLocked()
}

func (p *pack) progressLocked() offline.Progress {
	pr := p.rec.Progress
	pr.State = p.rec.State
	return pr
}

func (p *pack) Region() offline.Region {
	return p.rec.Region
}

func (p *pack) Metadata() offline.Metadata {
	return p.rec.Metadata
}

func (p *pack) Resume() {
	p.store.resume(p)
}

func (p *pack) Suspend() {
	p.store.suspend(p)
}

// wait blocks until the pack's download goroutine, if any, has exited.
func (p *pack) wait(ctx context.Context) error {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) resume(p *pack) {
	p.mu.Lock()
	if p.rec.State != offline.StateInactive {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	prev := p.done
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	p.rec.State = offline.StateActive
	p.mu.Unlock()

	if err := s.persist(p); err != nil {
		s.log.Error().Err(err).Str("pack", p.rec.ID).Msg("error saving pack state")
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)
		defer cancel()
		// a suspended download may still be winding down
		if prev != nil {
			<-prev
		}
		s.download(ctx, p)
	}()
}

func (s *Store) suspend(p *pack) {
	p.mu.Lock()
	if p.rec.State != offline.StateActive {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.rec.State = offline.StateInactive
	p.mu.Unlock()
	if err := s.persist(p); err != nil {
		s.log.Error().Err(err).Str("pack", p.rec.ID).Msg("error saving pack state")
	}
}

func (s *Store) download(ctx context.Context, p *pack) {
	log := s.log.With().Str("pack", p.rec.ID).Logger()
	ranges := pyramidRanges(p.rec.Region)
	expected := countTiles(ranges)
	limit := s.maximumTiles()

	p.pubMu.Lock()
	p.mu.Lock()
	p.rec.Progress = offline.Progress{
		CountOfResourcesExpected: expected,
		MaximumResourcesExpected: expected,
	}
	overLimit := limit > 0 && expected > limit
	if overLimit && ctx.Err() == nil {
		p.rec.State = offline.StateInactive
	}
	snapshot := p.progressLocked()
	p.mu.Unlock()
	if overLimit {
		log.Warn().Uint64("expected", expected).Uint64("limit", limit).Msg("pack exceeds tile limit")
		s.broker.Publish(offline.Event{Kind: offline.EventMaximumTilesReached, Pack: p, Progress: snapshot, MaximumCount: limit})
	} else {
		s.broker.Publish(offline.Event{Kind: offline.EventProgressChanged, Pack: p, Progress: snapshot})
	}
	p.pubMu.Unlock()
	if overLimit {
		s.save(p)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	var failed uint64
	var failedMu sync.Mutex
	for t := range eachTile(ranges) {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := s.fetch(gctx, p, t); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failedMu.Lock()
				failed++
				failedMu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	// tiles that exhausted their retries leave the pack incomplete; resuming
	// fetches only what is missing
	if failed > 0 && ctx.Err() == nil {
		p.pubMu.Lock()
		p.mu.Lock()
		if p.rec.State == offline.StateActive {
			p.rec.State = offline.StateInactive
		}
		snapshot := p.progressLocked()
		p.mu.Unlock()
		s.broker.Publish(offline.Event{Kind: offline.EventProgressChanged, Pack: p, Progress: snapshot})
		p.pubMu.Unlock()
		log.Warn().Uint64("failed", failed).Msg("pack download incomplete")
	}
	s.save(p)
	log.Debug().Str("state", p.State().String()).Msg("pack download finished")
}

func (s *Store) save(p *pack) {
	if err := s.persist(p); err != nil {
		s.log.Error().Err(err).Str("pack", p.rec.ID).Msg("error saving pack state")
	}
}

// fetch stores one tile. Transient failures are retried and reported as
// error events; a permanent failure is reported once and counted as done.
func (s *Store) fetch(ctx context.Context, p *pack, t maptile.Tile) error {
	key := []byte(tileKeyPrefix(p.rec.ID) + tiles.Key(t))
	if data, err := s.db.Get(key, nil); err == nil {
		s.advance(ctx, p, len(data))
		return nil
	} else if !errors.Is(err, leveldb.ErrNotFound) {
		return err
	}

	var data []byte
	op := func() error {
		var err error
		data, err = s.loader.Load(ctx, t)
		var perm *tiles.PermanentError
		if errors.As(err, &perm) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		s.log.Debug().Err(err).Str("pack", p.rec.ID).Dur("retry", wait).Msg("tile fetch failed")
		s.broker.Publish(offline.Event{Kind: offline.EventError, Pack: p, Progress: p.Progress(), Err: err})
	}
	err := backoff.RetryNotify(op, backoff.WithContext(s.newBackOff(), ctx), notify)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.broker.Publish(offline.Event{Kind: offline.EventError, Pack: p, Progress: p.Progress(), Err: err})
		var perm *tiles.PermanentError
		if errors.As(err, &perm) {
			s.advance(ctx, p, 0)
			return nil
		}
		return err
	}
	if err := s.db.Put(key, data, nil); err != nil {
		return err
	}
	s.advance(ctx, p, len(data))
	return nil
}

func (s *Store) advance(ctx context.Context, p *pack, n int) {
	p.pubMu.Lock()
	defer p.pubMu.Unlock()
	p.mu.Lock()
	p.rec.Progress.CountOfResourcesCompleted++
	p.rec.Progress.CountOfBytesCompleted += uint64(n)
	if p.rec.Progress.Done() && p.rec.State == offline.StateActive && ctx.Err() == nil {
		p.rec.State = offline.StateComplete
	}
	snapshot := p.progressLocked()
	p.mu.Unlock()
	s.broker.Publish(offline.Event{Kind: offline.EventProgressChanged, Pack: p, Progress: snapshot})
}

// tileRange is the block of tiles a region covers at one zoom.
type tileRange struct {
	z          maptile.Zoom
	minX, maxX uint32
	minY, maxY uint32
}

func (r tileRange) count() uint64 {
	return uint64(r.maxX-r.minX+1) * uint64(r.maxY-r.minY+1)
}

// pyramidRanges lists the tile block at every integer zoom the region's
// fractional range touches.
func pyramidRanges(r offline.Region) []tileRange {
	minZ := maptile.Zoom(math.Floor(r.MinZoom))
	maxZ := maptile.Zoom(math.Ceil(r.MaxZoom))
	nw := orb.Point{max(r.Bounds.Left(), -180), min(r.Bounds.Top(), maxLatitude)}
	se := orb.Point{min(r.Bounds.Right(), 180), max(r.Bounds.Bottom(), -maxLatitude)}
	var ranges []tileRange
	for z := minZ; z <= maxZ; z++ {
		last := uint32(1)<<uint32(z) - 1
		from := maptile.At(nw, z)
		to := maptile.At(se, z)
		ranges = append(ranges, tileRange{
			z:    z,
			minX: min(from.X, last),
			maxX: min(to.X, last),
			minY: min(from.Y, last),
			maxY: min(to.Y, last),
		})
	}
	return ranges
}

func countTiles(ranges []tileRange) uint64 {
	var n uint64
	for _, r := range ranges {
		n += r.count()
	}
	return n
}

// eachTile yields tiles lazily so large pyramids are never held in memory.
func eachTile(ranges []tileRange) iter.Seq[maptile.Tile] {
	return func(yield func(maptile.Tile) bool) {
		for _, r := range ranges {
			for x := r.minX; x <= r.maxX; x++ {
				for y := r.minY; y <= r.maxY; y++ {
					if !yield(maptile.New(x, y, r.z)) {
						return
					}
				}
			}
		}
	}
}
