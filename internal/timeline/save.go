package timeline

import (
	"bytes"
	"encoding/json"
	"io"
	"sort"

	"github.com/spf13/afero"

	"tlplay/internal/otime"
)

// Save writes the timeline as an OTIO document.
func (t *Timeline) Save(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(t.raw())
}

func (t *Timeline) SaveFile(fs afero.Fs, path string) error {
	var buf bytes.Buffer
	if err := t.Save(&buf); err != nil {
		return err
	}
	return afero.WriteFile(fs, path, buf.Bytes(), 0o644)
}

func (t *Timeline) raw() *rawObject {
	stack := &rawObject{Schema: schemaStack + ".1", Children: []*rawObject{}}
	for _, track := range t.Tracks {
		stack.Children = append(stack.Children, rawTrack(track))
	}
	return &rawObject{
		Schema:          schemaTimeline + ".1",
		Name:            t.Name,
		Metadata:        t.Metadata,
		GlobalStartTime: toRawTime(t.GlobalStart),
		Tracks:          stack,
	}
}

func rawTrack(track *Track) *rawObject {
	out := &rawObject{
		Schema:   schemaTrack + ".1",
		Name:     track.Name,
		Kind:     string(track.Kind),
		Children: []*rawObject{},
	}

	// Transitions sit between the item they follow and the next one.
	transitions := append([]*Item(nil), track.Transitions...)
	sort.SliceStable(transitions, func(i, j int) bool { return transitions[i].In < transitions[j].In })
	next := 0
	emit := func(after int) {
		for ; next < len(transitions) && transitions[next].In <= after; next++ {
			out.Children = append(out.Children, rawItem(transitions[next]))
		}
	}

	emit(-1)
	for i, item := range track.Items {
		out.Children = append(out.Children, rawItem(item))
		emit(i)
	}
	return out
}

func rawItem(item *Item) *rawObject {
	switch item.Kind {
	case ItemGap:
		return &rawObject{
			Schema:      schemaGap + ".1",
			Name:        item.Name,
			SourceRange: toRawRange(otime.NewRange(otime.FromFrame(0, item.ParentRange.Rate()), item.ParentRange.Duration)),
		}
	case ItemTransition:
		return &rawObject{
			Schema:         schemaTransition + ".1",
			Name:           item.Name,
			TransitionType: item.TransitionType,
			InOffset:       toRawTime(item.InOffset),
			OutOffset:      toRawTime(item.OutOffset),
		}
	default:
		raw := &rawObject{
			Schema:      schemaClip + ".2",
			Name:        item.Name,
			SourceRange: toRawRange(item.SourceRange),
		}
		if ref := rawReference(item.Reference); ref != nil {
			raw.MediaReferences = map[string]*rawObject{defaultReferenceKey: ref}
			raw.ActiveMediaReferenceKey = defaultReferenceKey
		}
		return raw
	}
}

func rawReference(ref *Reference) *rawObject {
	if ref == nil {
		return nil
	}
	return &rawObject{
		Schema:           ref.Schema,
		TargetURL:        ref.TargetURL,
		AvailableRange:   toRawRange(ref.AvailableRange),
		TargetURLBase:    ref.TargetURLBase,
		NamePrefix:       ref.NamePrefix,
		NameSuffix:       ref.NameSuffix,
		StartFrame:       ref.StartFrame,
		FrameStep:        ref.FrameStep,
		Rate:             ref.Rate,
		FrameZeroPadding: ref.FrameZeroPadding,
	}
}
