package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the media info cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached probe results",
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := newSystem()
		if err != nil {
			return err
		}
		defer sys.Close()
		store := sys.Storage()
		if store == nil {
			return errors.New("info cache disabled in config")
		}

		limit, _ := cmd.Flags().GetInt("limit")
		records, err := store.ListInfo(limit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Path, humanize.IBytes(uint64(r.Size)), describe(r.Info), humanize.Time(r.UpdatedAt))
		}
		return w.Flush()
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget every cached probe result",
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := newSystem()
		if err != nil {
			return err
		}
		defer sys.Close()
		store := sys.Storage()
		if store == nil {
			return errors.New("info cache disabled in config")
		}

		n, err := store.ClearInfo()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cleared %d cached entries\n", n)
		return nil
	},
}

func init() {
	cacheListCmd.Flags().Int("limit", 100, "maximum entries to list")
	cacheCmd.AddCommand(cacheListCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
