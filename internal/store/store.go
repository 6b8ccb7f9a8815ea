package store

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/tanq16/offpack/internal/offline"
	"github.com/tanq16/offpack/internal/tiles"
	"github.com/tanq16/offpack/internal/utils"
)

var _ offline.Storage = (*Store)(nil)

var (
	ErrPackNotFound  = errors.New("pack not found")
	ErrInvalidRegion = errors.New("invalid region")
)

const (
	packPrefix = "pack-"
	tilePrefix = "tile-"

	// DefaultMaximumTiles matches the usual provider allowance for offline tiles.
	DefaultMaximumTiles = 6000
	DefaultWorkers      = 4
)

type Option func(*Store)

func WithWorkers(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithBackOff sets the retry policy used for every tile fetch.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(s *Store) {
		s.newBackOff = newBackOff
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) {
		s.log = log
	}
}

// Store keeps pack records and tile bodies in leveldb and downloads packs on
// background goroutines.
type Store struct {
	db         *leveldb.DB
	loader     tiles.Loader
	broker     *offline.Broker
	log        zerolog.Logger
	workers    int
	newBackOff func() backoff.BackOff

	mu       sync.Mutex
	packs    map[string]*pack
	maxTiles uint64
	wg       sync.WaitGroup
}

type record struct {
	ID       string
	Region   offline.Region
	Metadata offline.Metadata
	State    offline.PackState
	Progress offline.Progress
	Created  time.Time
}

func Open(dir string, loader tiles.Loader, opts ...Option) (*Store, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("error opening offline database: %w", err)
	}
	s, err := New(db, loader, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func New(db *leveldb.DB, loader tiles.Loader, opts ...Option) (*Store, error) {
	s := &Store{
		db:       db,
		loader:   loader,
		broker:   offline.NewBroker(),
		log:      utils.GetLogger("store"),
		workers:  DefaultWorkers,
		packs:    make(map[string]*pack),
		maxTiles: DefaultMaximumTiles,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = 2 * time.Minute
			return b
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// load restores pack records. Downloads do not survive a restart, so packs
// recorded as active come back inactive.
func (s *Store) load() error {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(packPrefix)), nil)
	defer iter.Release()
	var restored []*pack
	for iter.Next() {
		rec := new(record)
		if err := gob.NewDecoder(bytes.NewReader(iter.Value())).Decode(rec); err != nil {
			return fmt.Errorf("error decoding pack record %s: %w", iter.Key(), err)
		}
		p := &pack{store: s, rec: *rec}
		if p.rec.State == offline.StateActive {
			p.rec.State = offline.StateInactive
			restored = append(restored, p)
		}
		s.packs[p.rec.ID] = p
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("error reading pack records: %w", err)
	}
	iter.Release()
	for _, p := range restored {
		if err := s.persist(p); err != nil {
			return err
		}
	}
	s.log.Debug().Int("packs", len(s.packs)).Msg("offline database loaded")
	return nil
}

func (s *Store) AddPack(_ context.Context, region offline.Region, meta offline.Metadata) (offline.Pack, error) {
	if err := validateRegion(region); err != nil {
		return nil, err
	}
	p := &pack{
		store: s,
		rec: record{
			ID:       uuid.NewString(),
			Region:   region,
			Metadata: meta,
			State:    offline.StateInactive,
			Created:  time.Now(),
		},
	}
	if err := s.persist(p); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.packs[p.rec.ID] = p
	s.mu.Unlock()
	s.log.Debug().Str("pack", p.rec.ID).Str("name", meta.Name).Msg("pack added")
	return p, nil
}

func validateRegion(r offline.Region) error {
	if r.StyleURL == "" {
		return fmt.Errorf("%w: missing style URL", ErrInvalidRegion)
	}
	if r.Bounds.IsEmpty() {
		return fmt.Errorf("%w: empty bounds", ErrInvalidRegion)
	}
	if r.MinZoom < 0 || r.MinZoom > r.MaxZoom {
		return fmt.Errorf("%w: zoom range %.2f..%.2f", ErrInvalidRegion, r.MinZoom, r.MaxZoom)
	}
	return nil
}

func (s *Store) RemovePack(ctx context.Context, pk offline.Pack) error {
	s.mu.Lock()
	p, ok := s.packs[pk.ID()]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrPackNotFound, pk.ID())
	}
	s.suspend(p)
	if err := p.wait(ctx); err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	batch.Delete([]byte(packKey(p.rec.ID)))
	iter := s.db.NewIterator(util.BytesPrefix([]byte(tileKeyPrefix(p.rec.ID))), nil)
	for iter.Next() {
		batch.Delete(bytes.Clone(iter.Key()))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return fmt.Errorf("error listing pack tiles: %w", err)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("error removing pack: %w", err)
	}

	p.mu.Lock()
	p.rec.State = offline.StateInvalid
	p.mu.Unlock()
	s.mu.Lock()
	delete(s.packs, p.rec.ID)
	s.mu.Unlock()
	s.log.Debug().Str("pack", p.rec.ID).Int("tiles", batch.Len()-1).Msg("pack removed")
	return nil
}

// Packs returns every tracked pack, oldest first.
func (s *Store) Packs() []offline.Pack {
	s.mu.Lock()
	list := make([]*pack, 0, len(s.packs))
	for _, p := range s.packs {
		list = append(list, p)
	}
	s.mu.Unlock()
	sort.Slice(list, func(i, j int) bool {
		if list[i].rec.Created.Equal(list[j].rec.Created) {
			return list[i].rec.ID < list[j].rec.ID
		}
		return list[i].rec.Created.Before(list[j].rec.Created)
	})
	packs := make([]offline.Pack, len(list))
	for i, p := range list {
		packs[i] = p
	}
	return packs
}

// SetMaximumAllowedTiles caps the tile count of a pack; zero means unlimited.
func (s *Store) SetMaximumAllowedTiles(limit uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxTiles = limit
}

func (s *Store) maximumTiles() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxTiles
}

func (s *Store) Subscribe() *offline.Subscription {
	return s.broker.Subscribe()
}

// Close suspends running downloads and closes the database.
func (s *Store) Close() error {
	for _, pk := range s.Packs() {
		s.suspend(pk.(*pack))
	}
	s.wg.Wait()
	return s.db.Close()
}

func (s *Store) persist(p *pack) error {
	p.mu.Lock()
	rec := p.rec
	p.mu.Unlock()
	var data bytes.Buffer
	if err := gob.NewEncoder(&data).Encode(&rec); err != nil {
		return fmt.Errorf("error encoding pack record: %w", err)
	}
	if err := s.db.Put([]byte(packKey(rec.ID)), data.Bytes(), nil); err != nil {
		return fmt.Errorf("error writing pack record: %w", err)
	}
	return nil
}

func packKey(id string) string {
	return packPrefix + id
}

func tileKeyPrefix(id string) string {
	return tilePrefix + id + "-"
}
