package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tanq16/offpack/internal/controller"
	"github.com/tanq16/offpack/internal/offline"
	"github.com/tanq16/offpack/internal/output"
	"github.com/tanq16/offpack/internal/utils"
	"gopkg.in/yaml.v3"
)

type packEntry struct {
	offline.Metadata `yaml:",inline"`
	ID               string `yaml:"id"`
	Style            string `yaml:"style"`
	State            string `yaml:"state"`
	Bytes            uint64 `yaml:"bytes"`
	Resources        uint64 `yaml:"resources"`
}

func newListCmd() *cobra.Command {
	var asYAML bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List offline packs",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			s := openStore(newLoader())
			defer s.Close()
			infos := controller.ListPacks(s)
			if asYAML {
				entries := make([]packEntry, 0, len(infos))
				for _, info := range infos {
					entries = append(entries, packEntry{
						Metadata:  offline.NewMetadata(info.Name, info.Bounds),
						ID:        info.ID,
						Style:     info.Style,
						State:     info.State.String(),
						Bytes:     info.Bytes,
						Resources: info.Resources,
					})
				}
				enc := yaml.NewEncoder(os.Stdout)
				defer enc.Close()
				if err := enc.Encode(entries); err != nil {
					output.PrintError(fmt.Sprintf("Failed to encode packs: %v", err))
					os.Exit(1)
				}
				return
			}
			printPacks(infos)
		},
	}

	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Print packs as YAML")
	return cmd
}

func printPacks(infos []controller.PackInfo) {
	if len(infos) == 0 {
		output.PrintWarning("No offline packs")
		return
	}
	output.PrintHeader(fmt.Sprintf("Offline packs (%d)", len(infos)))
	for _, info := range infos {
		symbol := output.FPending(output.StyleSymbols["pending"])
		if info.State == offline.StateComplete {
			symbol = output.FSuccess(output.StyleSymbols["pass"])
		}
		fmt.Printf("%s%s %s %s\n", strings.Repeat(" ", 2), symbol, output.FInfo(info.Name), output.FDebug(info.State.String()))
		fmt.Printf("%s%s %s %s\n",
			strings.Repeat(" ", 2+4),
			output.FDetail(utils.FormatBytes(info.Bytes)),
			output.StyleSymbols["dot"],
			output.FDebug(fmt.Sprintf("%d resources", info.Resources)))
		fmt.Printf("%s%s\n", strings.Repeat(" ", 2+4), output.FStream(fmt.Sprintf("%s %s [%.5f, %.5f, %.5f, %.5f]",
			info.Style, output.StyleSymbols["arrow"],
			info.Bounds.Min.Lon(), info.Bounds.Min.Lat(), info.Bounds.Max.Lon(), info.Bounds.Max.Lat())))
	}
}
