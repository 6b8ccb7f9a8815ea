package controller

import (
	"github.com/tanq16/offpack/internal/offline"
	"github.com/tanq16/offpack/internal/utils"
)

func (c *Controller) handleEvent(ev offline.Event) {
	switch ev.Kind {
	case offline.EventProgressChanged:
		c.handleProgress(ev)
	case offline.EventError:
		c.handleError(ev)
	case offline.EventMaximumTilesReached:
		c.handleMaximumTiles(ev)
	default:
		c.log.Debug().Stringer("kind", ev.Kind).Msg("ignoring unknown offline pack event")
	}
}

func (c *Controller) handleProgress(ev offline.Event) {
	name := ev.Pack.Metadata().DisplayName()
	progress := ev.Progress
	c.view.SetProgress(progress.Fraction())

	if progress.Done() {
		delete(c.loggedPercent, ev.Pack.ID())
		c.log.Info().
			Str("pack", name).
			Uint64("resources", progress.CountOfResourcesCompleted).
			Str("size", utils.FormatBytes(progress.CountOfBytesCompleted)).
			Msg("Offline pack completed")
		c.setSelected(false)
		return
	}

	// one line per whole percent
	percent := int(progress.Fraction() * 100)
	if last, ok := c.loggedPercent[ev.Pack.ID()]; ok && last == percent {
		return
	}
	c.loggedPercent[ev.Pack.ID()] = percent
	c.log.Info().
		Str("pack", name).
		Uint64("completed", progress.CountOfResourcesCompleted).
		Uint64("expected", progress.CountOfResourcesExpected).
		Msgf("Offline pack has %d of %d resources, %.2f%%",
			progress.CountOfResourcesCompleted, progress.CountOfResourcesExpected, progress.Fraction()*100)
}

// handleError only logs; retrying is up to the storage.
func (c *Controller) handleError(ev offline.Event) {
	c.log.Warn().
		Str("pack", ev.Pack.Metadata().DisplayName()).
		Str("reason", offline.FailureReason(ev.Err)).
		Msg("Offline pack received error")
}

func (c *Controller) handleMaximumTiles(ev offline.Event) {
	c.log.Warn().
		Str("pack", ev.Pack.Metadata().DisplayName()).
		Uint64("limit", ev.MaximumCount).
		Msg("Offline pack reached limit of tiles")
	c.setSelected(false)
}
