package controller

import (
	"github.com/paulmach/orb"
	"github.com/tanq16/offpack/internal/offline"
	"github.com/tanq16/offpack/internal/utils"
)

type PackInfo struct {
	ID        string
	Name      string
	Style     string
	State     offline.PackState
	Bytes     uint64
	Resources uint64
	Bounds    orb.Bound
}

// ListPacks describes every pack in storage except invalid ones.
func ListPacks(storage offline.Storage) []PackInfo {
	var infos []PackInfo
	for _, pack := range storage.Packs() {
		state := pack.State()
		if state == offline.StateInvalid {
			continue
		}
		progress := pack.Progress()
		meta := pack.Metadata()
		infos = append(infos, PackInfo{
			ID:        pack.ID(),
			Name:      meta.DisplayName(),
			Style:     pack.Region().StyleURL,
			State:     state,
			Bytes:     progress.CountOfBytesCompleted,
			Resources: progress.CountOfResourcesCompleted,
			Bounds:    meta.Bound(),
		})
	}
	return infos
}

func (c *Controller) logPacks() []PackInfo {
	infos := ListPacks(c.storage)
	for _, info := range infos {
		c.log.Info().
			Str("pack", info.Name).
			Str("style", info.Style).
			Str("state", info.State.String()).
			Str("size", utils.FormatBytes(info.Bytes)).
			Uint64("resources", info.Resources).
			Floats64("bounds", []float64{info.Bounds.Min.Lon(), info.Bounds.Min.Lat(), info.Bounds.Max.Lon(), info.Bounds.Max.Lat()}).
			Msg("Offline pack")
	}
	return infos
}
