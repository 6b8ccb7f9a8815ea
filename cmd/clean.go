package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/offpack/internal/output"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Delete the offline database and every cached tile",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if err := os.RemoveAll(cfg.StoreDir); err != nil {
				output.PrintError(fmt.Sprintf("Error cleaning up %s: %v", cfg.StoreDir, err))
				os.Exit(1)
			}
			output.PrintSuccess(fmt.Sprintf("Removed offline database %s", cfg.StoreDir))
		},
	}
}
