package cmd

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"
	"github.com/tanq16/offpack/internal/offline"
	"github.com/tanq16/offpack/internal/output"
)

func newRemoveCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "remove [NAME|ID...] [--all]",
		Short: "Remove offline packs by name or ID",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) == 0 && !all {
				output.PrintError("No pack name provided, pass names, IDs or --all")
				os.Exit(1)
			}
			s := openStore(newLoader())
			defer s.Close()

			results := removePacks(context.Background(), s, args, all)
			if len(results) == 0 {
				output.PrintWarning("No matching offline packs")
				return
			}
			failed := 0
			for _, r := range results {
				if r.err != nil {
					output.PrintError(fmt.Sprintf("%s %s: %v", output.StyleSymbols["fail"], r.name, r.err))
					failed++
					continue
				}
				output.PrintSuccess(fmt.Sprintf("%s Removed %s", output.StyleSymbols["pass"], r.name))
			}
			if failed > 0 {
				os.Exit(1)
			}
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Remove every offline pack")
	return cmd
}

type removeResult struct {
	name string
	err  error
}

// removePacks removes every pack whose name or ID is listed, or every pack
// when all is set.
func removePacks(ctx context.Context, s offline.Storage, targets []string, all bool) []removeResult {
	var results []removeResult
	for _, pack := range s.Packs() {
		if !all && !slices.Contains(targets, pack.Metadata().Name) && !slices.Contains(targets, pack.ID()) {
			continue
		}
		err := s.RemovePack(ctx, pack)
		results = append(results, removeResult{name: pack.Metadata().DisplayName(), err: err})
	}
	return results
}
