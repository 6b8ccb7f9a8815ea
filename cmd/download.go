package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/paulmach/orb"
	"github.com/spf13/cobra"
	"github.com/tanq16/offpack/internal/controller"
	"github.com/tanq16/offpack/internal/mapview"
	"github.com/tanq16/offpack/internal/output"
	"github.com/tanq16/offpack/internal/utils"
)

func newDownloadCmd() *cobra.Command {
	var lat, lon, zoom float64
	var width, height int

	cmd := &cobra.Command{
		Use:   "download [--lat LAT --lon LON --zoom ZOOM]",
		Short: "Download the tiles of a map viewport for offline use",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			log := utils.GetLogger("cmd")
			if err := cfg.Validate(); err != nil {
				log.Fatal().Err(err).Msg("offpack needs a style URL and API key (OFFPACK_STYLE_URL, OFFPACK_API_KEY)")
			}
			view := output.NewPackView()
			view.SetTitle(fmt.Sprintf("Viewport %.4f,%.4f z%.1f", lat, lon, zoom))
			// component loggers pick up the writer when they are created
			utils.SetLogOutput(view.LogWriter())
			defer utils.SetLogOutput(os.Stderr)

			s := openStore(newLoader())
			defer s.Close()

			// the key stays in the loader; pack records only keep the style
			mv := mapview.New(cfg.StyleURL)
			mv.SetSize(width, height)
			ctrl := controller.New(s, mv, view)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			runErr := make(chan error, 1)
			go func() { runErr <- ctrl.Run(ctx) }()
			stop := func() {
				ctrl.Wait()
				cancel()
				<-runErr
			}

			if err := checkViewport(lat, lon, zoom); err != nil {
				ctrl.MapFailed(ctx, err)
				stop()
				output.PrintError(err.Error())
				os.Exit(1)
			}
			mv.SetCenter(orb.Point{lon, lat}, zoom)
			ctrl.MapLoaded(ctx)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			view.StartDisplay()
			err := waitForDownload(ctx, ctrl.Toggle, view.Toggled(), sigCh)
			stop()
			view.StopDisplay()
			if err != nil {
				output.PrintError(fmt.Sprintf("Download failed: %v", err))
				os.Exit(1)
			}
		},
	}

	cmd.Flags().Float64Var(&lat, "lat", mapview.DefaultCenter.Lat(), "Latitude of the viewport center")
	cmd.Flags().Float64Var(&lon, "lon", mapview.DefaultCenter.Lon(), "Longitude of the viewport center")
	cmd.Flags().Float64VarP(&zoom, "zoom", "z", mapview.DefaultZoom, "Zoom level of the viewport")
	cmd.Flags().IntVar(&width, "width", mapview.DefaultSize.X, "Viewport width in pixels")
	cmd.Flags().IntVar(&height, "height", mapview.DefaultSize.Y, "Viewport height in pixels")
	return cmd
}

func checkViewport(lat, lon, zoom float64) error {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return fmt.Errorf("invalid viewport center %.4f,%.4f", lat, lon)
	}
	if zoom < mapview.MinZoom || zoom > mapview.MaxZoom {
		return fmt.Errorf("zoom %.1f outside %.0f..%.0f", zoom, mapview.MinZoom, mapview.MaxZoom)
	}
	return nil
}

// waitForDownload presses the toggle once and waits until it reads off
// again. An interrupt presses it a second time to cancel the active packs.
func waitForDownload(ctx context.Context, toggle func(context.Context) error, toggled <-chan bool, sigCh <-chan os.Signal) error {
	log := utils.GetLogger("cmd")
	if err := toggle(ctx); err != nil {
		return fmt.Errorf("could not start download: %w", err)
	}
	for {
		select {
		case selected := <-toggled:
			if !selected {
				return nil
			}
		case <-sigCh:
			log.Info().Msg("interrupted, cancelling active packs")
			if err := toggle(ctx); err != nil {
				return fmt.Errorf("could not cancel download: %w", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
