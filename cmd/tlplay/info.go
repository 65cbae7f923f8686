package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"tlplay/internal/media"
	"tlplay/internal/system"
	"tlplay/internal/timeline"
)

var infoCmd = &cobra.Command{
	Use:   "info <timeline|media>",
	Short: "Print the tracks of a timeline and the media it references",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := newSystem()
		if err != nil {
			return err
		}
		defer sys.Close()

		tl, err := sys.LoadTimeline(cmd.Context(), args[0], nil)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		printTimeline(w, tl)
		printMedia(cmd, w, sys, tl)
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func printTimeline(w io.Writer, tl *timeline.Timeline) {
	global := tl.GlobalRange()
	fmt.Fprintf(w, "Timeline\t%s\n", tl.Name)
	fmt.Fprintf(w, "Rate\t%g\n", tl.Rate())
	fmt.Fprintf(w, "Range\t%s (%s frames)\n", global, humanize.Comma(global.Duration.Frame(tl.Rate())))
	for i, track := range tl.Tracks {
		fmt.Fprintf(w, "\nTrack %d\t%s\t%s\n", i, track.Kind, track.Name)
		for _, item := range track.Items {
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", item.Kind, item.Name, item.ParentRange, item.Path)
		}
		for _, tx := range track.Transitions {
			fmt.Fprintf(w, "  %s\t%s\t%s\t\n", tx.Kind, tx.TransitionType, tx.ParentRange)
		}
	}
}

func printMedia(cmd *cobra.Command, w io.Writer, sys *system.Context, tl *timeline.Timeline) {
	clips := lo.UniqBy(lo.Filter(tl.Clips(), func(c *timeline.Item, _ int) bool {
		return !c.Path.IsEmpty()
	}), func(c *timeline.Item) string { return c.Path.String() })
	if len(clips) == 0 {
		return
	}

	fmt.Fprintf(w, "\nMedia\n")
	for _, clip := range clips {
		info, err := sys.Info(cmd.Context(), clip.Path, clip.Memory)
		if err != nil {
			fmt.Fprintf(w, "  %s\terror: %v\n", clip.Path, err)
			continue
		}
		fmt.Fprintf(w, "  %s\t%s\n", clip.Path, describe(info))
	}
}

func describe(info media.Info) string {
	var parts []string
	if info.HasVideo() {
		v := info.Video[0]
		parts = append(parts, fmt.Sprintf("%dx%d %s, %s/frame, %s",
			v.Width, v.Height, v.PixelType, humanize.IBytes(uint64(v.ByteCount())), info.VideoTime))
	}
	if info.HasAudio() {
		parts = append(parts, fmt.Sprintf("%d ch @ %s Hz, %s",
			info.Audio.Channels, humanize.Comma(int64(info.Audio.SampleRate)), info.AudioTime))
	}
	if len(parts) == 0 {
		return "no streams"
	}
	return strings.Join(parts, "; ")
}
