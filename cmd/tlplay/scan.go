package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tlplay/internal/system"
)

var scanCmd = &cobra.Command{
	Use:   "scan <dir>",
	Short: "Probe every readable file under a directory and fill the info cache",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := newSystem()
		if err != nil {
			return err
		}
		defer sys.Close()

		results, err := system.NewScanner(sys, logger).ScanPath(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, r := range results {
			if r.Err != nil {
				fmt.Fprintf(w, "%s\t%s\terror: %v\n", r.Path.Pattern(), r.ContentType, r.Err)
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Path.Pattern(), r.ContentType, humanize.IBytes(uint64(r.Size)), describe(r.Info))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
