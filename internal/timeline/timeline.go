package timeline

import (
	"fmt"
	"sort"

	"github.com/samber/lo"

	"tlplay/internal/media"
	"tlplay/internal/otime"
	"tlplay/internal/reader"
)

type TrackKind string

const (
	VideoTrack TrackKind = "Video"
	AudioTrack TrackKind = "Audio"
)

type ItemKind int

const (
	ItemClip ItemKind = iota
	ItemGap
	ItemTransition
)

func (k ItemKind) String() string {
	switch k {
	case ItemClip:
		return "clip"
	case ItemGap:
		return "gap"
	case ItemTransition:
		return "transition"
	default:
		return "unknown"
	}
}

// Reference is a clip's media reference as written in the document.
type Reference struct {
	Schema         string
	TargetURL      string
	AvailableRange otime.TimeRange

	// Image sequence fields.
	TargetURLBase    string
	NamePrefix       string
	NameSuffix       string
	StartFrame       int64
	FrameStep        int64
	Rate             float64
	FrameZeroPadding int
}

// Item is a clip, gap or transition. ParentRange is in global timeline
// coordinates at the timeline rate.
type Item struct {
	Kind        ItemKind
	Name        string
	ParentRange otime.TimeRange

	// Clip fields. SourceRange is in media coordinates.
	SourceRange otime.TimeRange
	Reference   *Reference
	Path        media.Path
	Memory      []reader.MemoryFile

	// Transition fields. In and Out index the neighbouring items in the
	// track; -1 when there is none.
	TransitionType string
	InOffset       otime.RationalTime
	OutOffset      otime.RationalTime
	In, Out        int
}

// MediaTime maps a global time inside the clip to media coordinates.
func (i *Item) MediaTime(t otime.RationalTime) otime.RationalTime {
	offset := t.Sub(i.ParentRange.Start)
	return i.SourceRange.Start.Add(offset)
}

// MediaRange maps a global range to media coordinates.
func (i *Item) MediaRange(r otime.TimeRange) otime.TimeRange {
	return otime.NewRange(i.MediaTime(r.Start), r.Duration)
}

// Track holds clips and gaps tiling the global range in order, plus the
// transitions between them.
type Track struct {
	Kind        TrackKind
	Name        string
	Items       []*Item
	Transitions []*Item
}

// Timeline is the resolved, immutable form of an edit.
type Timeline struct {
	Name        string
	Path        string
	GlobalStart otime.RationalTime
	Duration    otime.RationalTime
	Tracks      []*Track
	Metadata    map[string]any
}

// Rate is the timeline's nominal frame rate.
func (t *Timeline) Rate() float64 {
	return t.GlobalStart.Rate
}

func (t *Timeline) GlobalRange() otime.TimeRange {
	return otime.NewRange(t.GlobalStart, t.Duration)
}

// TrackIndexes returns the indexes of the tracks of a kind.
func (t *Timeline) TrackIndexes(kind TrackKind) []int {
	var out []int
	for i, track := range t.Tracks {
		if track.Kind == kind {
			out = append(out, i)
		}
	}
	return out
}

// Clips returns every clip in track order.
func (t *Timeline) Clips() []*Item {
	return lo.FlatMap(t.Tracks, func(track *Track, _ int) []*Item {
		return lo.Filter(track.Items, func(item *Item, _ int) bool { return item.Kind == ItemClip })
	})
}

// Hit is the result of a lookup.
type Hit struct {
	Item *Item
	// Time is the media time for clips and the global time for gaps.
	Time otime.RationalTime

	// Set when the lookup time lies inside a transition.
	Transition *Item
	Other      *Item
	OtherTime  otime.RationalTime
	// Value is the position through the transition in [0, 1).
	Value float64
}

// Lookup finds the item of a track at global time at.
func (t *Timeline) Lookup(track int, at otime.RationalTime) (Hit, bool) {
	if track < 0 || track >= len(t.Tracks) {
		return Hit{}, false
	}
	tr := t.Tracks[track]
	at = at.Rescale(t.Rate())

	i := sort.Search(len(tr.Items), func(i int) bool {
		return tr.Items[i].ParentRange.End().After(at)
	})
	if i == len(tr.Items) || tr.Items[i].ParentRange.Start.After(at) {
		return Hit{}, false
	}
	item := tr.Items[i]
	hit := Hit{Item: item, Time: at}
	if item.Kind == ItemClip {
		hit.Time = item.MediaTime(at)
	}

	j := sort.Search(len(tr.Transitions), func(j int) bool {
		return tr.Transitions[j].ParentRange.End().After(at)
	})
	if j < len(tr.Transitions) && tr.Transitions[j].ParentRange.Contains(at) {
		tx := tr.Transitions[j]
		hit.Transition = tx
		other := tx.Out
		if other == i {
			other = tx.In
		}
		if other >= 0 && other < len(tr.Items) {
			hit.Other = tr.Items[other]
			if hit.Other.Kind == ItemClip {
				hit.OtherTime = hit.Other.MediaTime(at)
			}
		}
		if d := tx.ParentRange.Duration.Value; d > 0 {
			hit.Value = at.Sub(tx.ParentRange.Start).Value / d
		}
	}
	return hit, true
}

// ItemsInRange returns the clips and gaps of a track overlapping r.
func (t *Timeline) ItemsInRange(track int, r otime.TimeRange) []*Item {
	if track < 0 || track >= len(t.Tracks) {
		return nil
	}
	items := t.Tracks[track].Items
	i := sort.Search(len(items), func(i int) bool {
		return items[i].ParentRange.End().After(r.Start)
	})
	var out []*Item
	for ; i < len(items) && items[i].ParentRange.Start.Before(r.End()); i++ {
		out = append(out, items[i])
	}
	return out
}

// ParseError is returned when a timeline cannot be loaded.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("timeline %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
