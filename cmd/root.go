package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/offpack/internal/config"
	"github.com/tanq16/offpack/internal/output"
	"github.com/tanq16/offpack/internal/store"
	"github.com/tanq16/offpack/internal/tiles"
	"github.com/tanq16/offpack/internal/utils"
)

var (
	configFile string
	envFile    string
	storeDir   string
	debug      bool
	cfg        config.Config
)

var OffpackVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "offpack",
	Short:   "Offpack caches map tiles for offline use",
	Version: OffpackVersion,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		utils.InitLogger(debug)
		loaded, err := config.Load(configFile, envFile)
		if err != nil {
			utils.GetLogger("cmd").Fatal().Err(err).Msg("error loading configuration")
		}
		if storeDir != "" {
			loaded.StoreDir = storeDir
		}
		loaded.Debug = loaded.Debug || debug
		cfg = loaded
		utils.InitLogger(cfg.Debug)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to file with OFFPACK_* environment variables")
	rootCmd.PersistentFlags().StringVarP(&storeDir, "store", "s", "", "Offline database directory (overrides configuration)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newDownloadCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newRemoveCmd())
	rootCmd.AddCommand(newCleanCmd())
}

func newLoader() tiles.Loader {
	client := utils.NewHTTPClient(cfg.HTTPClientConfig())
	return tiles.NewHTTPLoader(client, cfg.SourceURL())
}

func openStore(loader tiles.Loader) *store.Store {
	s, err := store.Open(cfg.StoreDir, loader, store.WithWorkers(cfg.Workers))
	if err != nil {
		output.PrintError(fmt.Sprintf("Failed to open offline database: %v", err))
		os.Exit(1)
	}
	return s
}
