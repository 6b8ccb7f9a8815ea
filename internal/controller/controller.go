package controller

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tanq16/offpack/internal/mapview"
	"github.com/tanq16/offpack/internal/offline"
	"github.com/tanq16/offpack/internal/utils"
)

var ErrStopped = errors.New("controller stopped")

const packNamePrefix = "Offline Pack"

// View is the surface the controller drives: a progress indicator, a
// start/stop toggle and user-visible alerts.
type View interface {
	SetProgress(fraction float64)
	SetProgressHidden(hidden bool)
	SetToggleSelected(selected bool)
	SetToggleHidden(hidden bool)
	Alert(message string)
}

// Controller bridges a map view and an offline storage service. Storage
// notifications and user actions are handled on the goroutine running Run,
// which owns the pack counter and toggle state.
type Controller struct {
	storage offline.Storage
	mapView *mapview.MapView
	view    View
	log     zerolog.Logger

	counter       int
	selected      bool
	loaded        bool
	runCtx        context.Context
	loggedPercent map[string]int

	actions chan func()
	stopped chan struct{}
	pending sync.WaitGroup
}

func New(storage offline.Storage, mapView *mapview.MapView, view View) *Controller {
	return &Controller{
		storage:       storage,
		mapView:       mapView,
		view:          view,
		log:           utils.GetLogger("controller"),
		runCtx:        context.Background(),
		loggedPercent: make(map[string]int),
		actions:       make(chan func()),
		stopped:       make(chan struct{}),
	}
}

// Run subscribes to storage notifications and processes them together with
// user actions until ctx is done. The subscription ends with Run.
func (c *Controller) Run(ctx context.Context) error {
	c.runCtx = ctx
	sub := c.storage.Subscribe()
	defer func() {
		c.log.Debug().Msg("removing offline pack notification observers")
		sub.Unsubscribe()
		close(c.stopped)
	}()
	c.view.SetToggleHidden(true)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-sub.C:
			c.handleEvent(ev)
		case fn := <-c.actions:
			fn()
		}
	}
}

// Wait blocks until every add and remove request issued so far has been
// answered by the storage.
func (c *Controller) Wait() {
	c.pending.Wait()
}

// do runs fn on the loop goroutine and waits for it.
func (c *Controller) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case c.actions <- func() { fn(); close(done) }:
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-c.stopped:
		return ErrStopped
	}
}

// post hands fn to the loop goroutine without waiting; it is dropped once
// the loop has stopped.
func (c *Controller) post(fn func()) {
	select {
	case c.actions <- fn:
	case <-c.stopped:
	}
}

func (c *Controller) MapLoaded(ctx context.Context) error {
	return c.do(ctx, c.mapLoaded)
}

func (c *Controller) MapFailed(ctx context.Context, err error) error {
	return c.do(ctx, func() {
		c.log.Error().Err(err).Msg("Map failed to load")
	})
}

// Toggle presses the start/stop control: it starts a download of the
// current viewport, or cancels every active pack when already downloading.
func (c *Controller) Toggle(ctx context.Context) error {
	return c.do(ctx, c.toggle)
}

// List reports every pack the storage tracks that is not invalid.
func (c *Controller) List(ctx context.Context) ([]PackInfo, error) {
	var infos []PackInfo
	err := c.do(ctx, func() {
		infos = c.logPacks()
	})
	return infos, err
}

func (c *Controller) mapLoaded() {
	c.log.Info().Msg("Map loaded")
	c.loaded = true
	c.view.SetToggleHidden(false)
	c.counter = highestPackNumber(c.storage.Packs())
	c.logPacks()
}

// highestPackNumber finds the largest N among packs named "Offline Pack N"
// so new names never collide with stored ones.
func highestPackNumber(packs []offline.Pack) int {
	highest := 0
	for _, pack := range packs {
		rest, ok := strings.CutPrefix(pack.Metadata().Name, packNamePrefix+" ")
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(rest); err == nil && n > highest {
			highest = n
		}
	}
	return highest
}

func (c *Controller) toggle() {
	if !c.loaded {
		c.log.Warn().Msg("map not loaded yet, ignoring toggle")
		return
	}
	if c.selected {
		c.cancelActivePacks()
	} else {
		c.startDownload()
	}
	c.setSelected(!c.selected)
}

func (c *Controller) setSelected(selected bool) {
	c.selected = selected
	c.view.SetToggleSelected(selected)
	c.view.SetProgressHidden(!selected)
}

func (c *Controller) nextPackName() string {
	c.counter++
	return fmt.Sprintf("%s %d", packNamePrefix, c.counter)
}

func (c *Controller) startDownload() {
	c.view.SetProgress(0)

	// the style's tiles are not counted against a provider quota
	c.storage.SetMaximumAllowedTiles(math.MaxUint64)

	from, to := mapview.DownloadZoomRange(c.mapView.Zoom)
	region := offline.NewTilePyramidRegion(c.mapView.StyleURL, c.mapView.VisibleBounds(), from, to)
	meta := offline.NewMetadata(c.nextPackName(), region.Bounds)
	c.log.Debug().Str("pack", meta.Name).Float64("from", from).Float64("to", to).Msg("requesting offline pack")

	ctx := c.runCtx
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		pack, err := c.storage.AddPack(ctx, region, meta)
		c.post(func() { c.packAdded(meta, pack, err) })
	}()
}

func (c *Controller) packAdded(meta offline.Metadata, pack offline.Pack, err error) {
	if err != nil {
		c.log.Error().Err(err).Str("pack", meta.Name).Msg("could not create offline pack")
		c.view.Alert(fmt.Sprintf("Could not create offline pack %q: %v", meta.Name, err))
		if c.selected {
			c.setSelected(false)
		}
		return
	}
	if !c.selected {
		// cancelled before the storage answered
		c.log.Info().Str("pack", meta.Name).Msg("download cancelled before it started")
		return
	}
	pack.Resume()
}

// cancelActivePacks suspends and removes every active pack, not only the one
// this controller started last.
func (c *Controller) cancelActivePacks() {
	ctx := c.runCtx
	for _, pack := range c.storage.Packs() {
		if pack.State() != offline.StateActive {
			continue
		}
		pack.Suspend()
		name := pack.Metadata().DisplayName()
		c.pending.Add(1)
		go func() {
			defer c.pending.Done()
			err := c.storage.RemovePack(ctx, pack)
			c.post(func() { c.packRemoved(name, err) })
		}()
	}
}

func (c *Controller) packRemoved(name string, err error) {
	if err != nil {
		c.log.Error().Err(err).Str("pack", name).Msg("could not remove offline pack")
		c.view.Alert(fmt.Sprintf("Could not remove pack %q: %v", name, err))
		return
	}
	c.log.Info().Str("pack", name).Msg("offline pack removed")
}
