package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/lossim/internal/scenario"
)

var presetsCmd = &cobra.Command{
	Use:   "presets [name]",
	Short: "List embedded scenario presets or show one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			sc, err := scenario.LoadPreset(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sc)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tPATHS\tSEED\tDESCRIPTION")
		for _, name := range scenario.ListPresets() {
			sc, err := scenario.LoadPreset(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", name, sc.Paths, sc.Seed, sc.Description)
		}
		return tw.Flush()
	},
}
