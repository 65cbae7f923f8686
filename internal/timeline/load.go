package timeline

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/samber/mo"
	"github.com/spf13/afero"

	"tlplay/internal/media"
	"tlplay/internal/otime"
	"tlplay/internal/reader"
)

// bundleContent is the document entry inside an .otioz bundle.
const bundleContent = "content.otio"

// LoadOptions control how documents and their media are resolved.
type LoadOptions struct {
	// Fs defaults to the OS filesystem.
	Fs afero.Fs
	// Memory provides the byte spans of memory references, keyed by URL.
	Memory map[string][]reader.MemoryFile
	// Info is consulted for clips whose document carries no range, and to
	// build a timeline from a plain media file.
	Info func(path media.Path, memory []reader.MemoryFile) (media.Info, error)
}

// Load reads an .otio document, an .otioz bundle or, when opts.Info is set,
// a single media file.
func Load(path string, opts LoadOptions) (*Timeline, error) {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}

	var (
		tl  *Timeline
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".otio":
		var data []byte
		data, err = afero.ReadFile(opts.Fs, path)
		if err == nil {
			tl, err = parse(data, &loader{opts: opts, dir: filepath.Dir(path)})
		}
	case ".otioz":
		tl, err = loadBundle(path, opts)
	default:
		tl, err = loadMedia(path, opts)
	}
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			return nil, err
		}
		return nil, &ParseError{Path: path, Err: err}
	}
	tl.Path = path
	return tl, nil
}

// Parse builds a timeline from document bytes. Relative media URLs resolve
// against dir.
func Parse(data []byte, dir string, opts LoadOptions) (*Timeline, error) {
	tl, err := parse(data, &loader{opts: opts, dir: dir})
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	return tl, nil
}

func loadBundle(path string, opts LoadOptions) (*Timeline, error) {
	f, err := opts.Fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(f, fi.Size())
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}

	l := &loader{opts: opts, dir: filepath.Dir(path), zip: zr, bundle: path}
	data, err := l.member(bundleContent)
	if err != nil {
		return nil, err
	}
	return parse(data, l)
}

func loadMedia(path string, opts LoadOptions) (*Timeline, error) {
	if opts.Info == nil {
		return nil, fmt.Errorf("unsupported timeline format %q", filepath.Ext(path))
	}
	p := media.ParsePath(path, pathOptions(path))
	info, err := opts.Info(p, nil)
	if err != nil {
		return nil, err
	}
	return FromMedia(p, info)
}

func pathOptions(url string) media.PathOptions {
	if media.IsImage(url) {
		return media.DefaultPathOptions
	}
	return media.PathOptions{}
}

type loader struct {
	opts   LoadOptions
	dir    string
	zip    *zip.Reader
	bundle string
}

func (l *loader) member(name string) ([]byte, error) {
	if l.zip == nil {
		return nil, fmt.Errorf("%s: zip reference outside a bundle", name)
	}
	f, err := l.zip.Open(strings.TrimPrefix(filepath.ToSlash(name), "/"))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func splitSchema(s string) (string, string) {
	name, version, _ := strings.Cut(s, ".")
	return name, version
}

func parse(data []byte, l *loader) (*Timeline, error) {
	var root rawObject
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if name, _ := splitSchema(root.Schema); name != schemaTimeline {
		return nil, fmt.Errorf("expected %s, found %q", schemaTimeline, root.Schema)
	}
	stack := root.Tracks
	if stack == nil {
		return nil, fmt.Errorf("timeline has no tracks")
	}
	if name, _ := splitSchema(stack.Schema); name != schemaStack {
		return nil, fmt.Errorf("expected %s, found %q", schemaStack, stack.Schema)
	}

	rate := detectRate(&root)
	globalStart := otime.FromFrame(0, rate)
	if t := root.GlobalStartTime.time(); t.IsValid() {
		globalStart = t.Rescale(rate)
	}

	tl := &Timeline{
		Name:        root.Name,
		GlobalStart: globalStart,
		Duration:    otime.FromFrame(0, rate),
		Metadata:    root.Metadata,
	}
	var pending [][]*Item
	for i, raw := range stack.Children {
		if name, _ := splitSchema(raw.Schema); name != schemaTrack {
			return nil, fmt.Errorf("stack child %d: unsupported %q", i, raw.Schema)
		}
		track, open, duration, err := l.track(raw, globalStart)
		if err != nil {
			return nil, fmt.Errorf("track %d: %w", i, err)
		}
		tl.Tracks = append(tl.Tracks, track)
		pending = append(pending, open)
		if duration.After(tl.Duration) {
			tl.Duration = duration
		}
	}

	end := globalStart.Add(tl.Duration)
	for i, track := range tl.Tracks {
		trackEnd := globalStart
		if n := len(track.Items); n > 0 {
			trackEnd = track.Items[n-1].ParentRange.End()
		}
		if !trackEnd.Before(end) {
			continue
		}
		track.Items = append(track.Items, &Item{
			Kind:        ItemGap,
			ParentRange: otime.RangeFromStartEnd(trackEnd, end),
			SourceRange: otime.InvalidRange,
			In:          -1,
			Out:         -1,
		})
		for _, tx := range pending[i] {
			tx.Out = len(track.Items) - 1
		}
	}
	return tl, nil
}

// detectRate picks the timeline rate: the global start time's rate, else the
// rate of the first ranged item in a video track, else of any track.
func detectRate(root *rawObject) float64 {
	if t := root.GlobalStartTime.time(); t.IsValid() {
		return t.Rate
	}
	var fallback float64
	for _, track := range root.Tracks.Children {
		for _, child := range track.Children {
			r := child.SourceRange.timeRange()
			if !r.IsValid() {
				if ref := activeReference(child); ref != nil {
					r = ref.AvailableRange.timeRange()
				}
			}
			if !r.IsValid() {
				continue
			}
			if track.Kind != string(AudioTrack) {
				return r.Duration.Rate
			}
			if fallback == 0 {
				fallback = r.Duration.Rate
			}
		}
	}
	if fallback > 0 && fallback <= 120 {
		return fallback
	}
	return otime.Rate24
}

func activeReference(clip *rawObject) *rawObject {
	if clip.MediaReferences != nil {
		key := clip.ActiveMediaReferenceKey
		if key == "" {
			key = defaultReferenceKey
		}
		return clip.MediaReferences[key]
	}
	return clip.MediaReference
}

const defaultReferenceKey = "DEFAULT_MEDIA"

// track builds one track. It returns the transitions still waiting for an
// outgoing item and the track's duration.
func (l *loader) track(raw *rawObject, globalStart otime.RationalTime) (*Track, []*Item, otime.RationalTime, error) {
	rate := globalStart.Rate
	kind := TrackKind(raw.Kind)
	if kind != AudioTrack {
		kind = VideoTrack
	}
	track := &Track{Kind: kind, Name: raw.Name}
	cursor := otime.FromFrame(0, rate)
	var pending []*Item

	for i, child := range raw.Children {
		name, _ := splitSchema(child.Schema)
		var item *Item
		switch name {
		case schemaClip:
			clip, err := l.clip(child)
			if err != nil {
				return nil, nil, cursor, fmt.Errorf("item %d: %w", i, err)
			}
			item = clip
		case schemaGap:
			r := child.SourceRange.timeRange()
			if !r.IsValid() {
				return nil, nil, cursor, fmt.Errorf("item %d: gap has no range", i)
			}
			item = &Item{
				Kind:        ItemGap,
				Name:        child.Name,
				SourceRange: otime.InvalidRange,
				ParentRange: otime.TimeRange{Start: otime.Invalid, Duration: r.Duration},
				In:          -1,
				Out:         -1,
			}
		case schemaTransition:
			in := child.InOffset.time()
			out := child.OutOffset.time()
			if !in.IsValid() {
				in = otime.FromFrame(0, rate)
			}
			if !out.IsValid() {
				out = otime.FromFrame(0, rate)
			}
			at := globalStart.Add(cursor)
			tx := &Item{
				Kind:           ItemTransition,
				Name:           child.Name,
				SourceRange:    otime.InvalidRange,
				ParentRange:    otime.RangeFromStartEnd(at.Sub(in), at.Add(out)),
				TransitionType: child.TransitionType,
				InOffset:       in,
				OutOffset:      out,
				In:             len(track.Items) - 1,
				Out:            -1,
			}
			track.Transitions = append(track.Transitions, tx)
			pending = append(pending, tx)
			continue
		default:
			return nil, nil, cursor, fmt.Errorf("item %d: unsupported %q", i, child.Schema)
		}

		duration := item.ParentRange.Duration.Rescale(rate)
		item.ParentRange = otime.NewRange(globalStart.Add(cursor), duration)
		cursor = cursor.Add(duration)
		track.Items = append(track.Items, item)
		for _, tx := range pending {
			tx.Out = len(track.Items) - 1
		}
		pending = nil
	}
	return track, pending, cursor, nil
}

func (l *loader) clip(raw *rawObject) (*Item, error) {
	ref, path, memory, err := l.reference(activeReference(raw))
	if err != nil {
		return nil, fmt.Errorf("clip %q: %w", raw.Name, err)
	}

	r := raw.SourceRange.timeRange()
	if !r.IsValid() {
		r = ref.AvailableRange
	}
	if !r.IsValid() && l.opts.Info != nil && !path.IsEmpty() {
		if info, err := l.opts.Info(path, memory); err == nil {
			switch {
			case info.HasVideo():
				r = info.VideoTime
			case info.HasAudio():
				r = info.AudioTime
			}
		}
	}
	if !r.IsValid() {
		return nil, fmt.Errorf("clip %q has no range", raw.Name)
	}

	return &Item{
		Kind:        ItemClip,
		Name:        raw.Name,
		SourceRange: r,
		ParentRange: otime.TimeRange{Start: otime.Invalid, Duration: r.Duration},
		Reference:   ref,
		Path:        path,
		Memory:      memory,
		In:          -1,
		Out:         -1,
	}, nil
}

func sequenceURL(raw *rawObject) string {
	return fmt.Sprintf("%s%s%0*d%s", raw.TargetURLBase, raw.NamePrefix, raw.FrameZeroPadding, raw.StartFrame, raw.NameSuffix)
}

func (l *loader) reference(raw *rawObject) (*Reference, media.Path, []reader.MemoryFile, error) {
	if raw == nil {
		return &Reference{Schema: schemaMissing + ".1", AvailableRange: otime.InvalidRange}, media.Path{}, nil, nil
	}
	ref := &Reference{
		Schema:           raw.Schema,
		TargetURL:        raw.TargetURL,
		AvailableRange:   raw.AvailableRange.timeRange(),
		TargetURLBase:    raw.TargetURLBase,
		NamePrefix:       raw.NamePrefix,
		NameSuffix:       raw.NameSuffix,
		StartFrame:       raw.StartFrame,
		FrameStep:        raw.FrameStep,
		Rate:             raw.Rate,
		FrameZeroPadding: raw.FrameZeroPadding,
	}

	name, _ := splitSchema(raw.Schema)
	switch name {
	case schemaExternal:
		path, memory, err := l.filePath(raw.TargetURL)
		return ref, path, memory, err

	case schemaImageSequence:
		path, memory, err := l.sequencePath(sequenceURL(raw), ref)
		return ref, path, memory, err

	case schemaRawMemory, schemaSharedMemory:
		memory, ok := l.opts.Memory[raw.TargetURL]
		if !ok || len(memory) == 0 {
			return nil, media.Path{}, nil, fmt.Errorf("no memory for %q", raw.TargetURL)
		}
		return ref, media.ParsePath(raw.TargetURL, media.PathOptions{}), memory[:1], nil

	case schemaRawMemorySeq, schemaSharedMemorySeq:
		url := raw.TargetURL
		if url == "" {
			url = sequenceURL(raw)
		}
		memory, ok := l.opts.Memory[url]
		if !ok || len(memory) == 0 {
			return nil, media.Path{}, nil, fmt.Errorf("no memory for %q", url)
		}
		path := media.ParsePath(sequenceURL(raw), media.DefaultPathOptions)
		path.Sequence = mo.Some(media.FrameRange{Start: raw.StartFrame, End: raw.StartFrame + int64(len(memory)) - 1})
		return ref, path, memory, nil

	case schemaZipMemory:
		data, err := l.member(raw.TargetURL)
		if err != nil {
			return nil, media.Path{}, nil, err
		}
		return ref, l.bundlePath(raw.TargetURL, media.PathOptions{}), []reader.MemoryFile{data}, nil

	case schemaZipMemorySeq:
		url := sequenceURL(raw)
		frames := sequenceFrames(ref)
		if frames.Count() <= 0 {
			return nil, media.Path{}, nil, fmt.Errorf("%s: sequence has no range", url)
		}
		path := l.bundlePath(url, media.DefaultPathOptions)
		memory, err := l.memberFrames(media.ParsePath(url, media.DefaultPathOptions), frames)
		if err != nil {
			return nil, media.Path{}, nil, err
		}
		path.Sequence = mo.Some(frames)
		return ref, path, memory, nil

	default:
		// MissingReference and reference kinds this loader does not decode.
		return ref, media.Path{}, nil, nil
	}
}

// sequenceFrames derives the frame range of a sequence reference from its
// available range.
func sequenceFrames(ref *Reference) media.FrameRange {
	if !ref.AvailableRange.IsValid() {
		return media.FrameRange{Start: ref.StartFrame, End: ref.StartFrame - 1}
	}
	rate := ref.Rate
	if rate <= 0 {
		rate = ref.AvailableRange.Rate()
	}
	count := int64(ref.AvailableRange.Duration.Rescale(rate).Round().Value)
	return media.FrameRange{Start: ref.StartFrame, End: ref.StartFrame + count - 1}
}

func isRelative(url string) bool {
	return !filepath.IsAbs(url) && !strings.Contains(url, "://") && !strings.HasPrefix(url, `\`) &&
		!(len(url) > 1 && url[1] == ':')
}

func (l *loader) bundlePath(member string, opts media.PathOptions) media.Path {
	return media.ParsePath(filepath.ToSlash(filepath.Join(l.bundle, member)), opts)
}

// filePath resolves an external URL. Inside a bundle, relative URLs name
// bundle members and are read into memory.
func (l *loader) filePath(url string) (media.Path, []reader.MemoryFile, error) {
	opts := pathOptions(url)
	url = strings.TrimPrefix(url, "file://")
	if l.zip != nil && isRelative(url) {
		data, err := l.member(url)
		if err != nil {
			return media.Path{}, nil, err
		}
		return l.bundlePath(url, opts), []reader.MemoryFile{data}, nil
	}
	return media.ParsePath(url, opts).Join(l.dir), nil, nil
}

func (l *loader) sequencePath(url string, ref *Reference) (media.Path, []reader.MemoryFile, error) {
	frames := sequenceFrames(ref)
	if l.zip != nil && isRelative(url) {
		memory, err := l.memberFrames(media.ParsePath(url, media.DefaultPathOptions), frames)
		if err != nil {
			return media.Path{}, nil, err
		}
		path := l.bundlePath(url, media.DefaultPathOptions)
		path.Sequence = mo.Some(frames)
		return path, memory, nil
	}
	path := media.ParsePath(url, media.DefaultPathOptions).Join(l.dir)
	if frames.Count() > 0 {
		path.Sequence = mo.Some(frames)
	}
	return path, nil, nil
}

func (l *loader) memberFrames(path media.Path, frames media.FrameRange) ([]reader.MemoryFile, error) {
	memory := make([]reader.MemoryFile, 0, frames.Count())
	for n := frames.Start; n <= frames.End; n++ {
		data, err := l.member(path.Frame(n))
		if err != nil {
			return nil, err
		}
		memory = append(memory, data)
	}
	return memory, nil
}
