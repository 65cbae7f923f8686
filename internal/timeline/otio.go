package timeline

import (
	"tlplay/internal/otime"
)

// Schema names understood by the loader.
const (
	schemaTimeline        = "Timeline"
	schemaStack           = "Stack"
	schemaTrack           = "Track"
	schemaClip            = "Clip"
	schemaGap             = "Gap"
	schemaTransition      = "Transition"
	schemaRationalTime    = "RationalTime"
	schemaTimeRange       = "TimeRange"
	schemaExternal        = "ExternalReference"
	schemaImageSequence   = "ImageSequenceReference"
	schemaMissing         = "MissingReference"
	schemaRawMemory       = "RawMemoryReference"
	schemaSharedMemory    = "SharedMemoryReference"
	schemaRawMemorySeq    = "RawMemorySequenceReference"
	schemaSharedMemorySeq = "SharedMemorySequenceReference"
	schemaZipMemory       = "ZipMemoryReference"
	schemaZipMemorySeq    = "ZipMemorySequenceReference"
)

// rawObject is the union of every OTIO schema field the loader reads.
type rawObject struct {
	Schema   string         `json:"OTIO_SCHEMA"`
	Name     string         `json:"name,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`

	GlobalStartTime *rawTime   `json:"global_start_time,omitempty"`
	Tracks          *rawObject `json:"tracks,omitempty"`

	Children    []*rawObject `json:"children,omitempty"`
	Kind        string       `json:"kind,omitempty"`
	SourceRange *rawRange    `json:"source_range,omitempty"`

	MediaReference          *rawObject            `json:"media_reference,omitempty"`
	MediaReferences         map[string]*rawObject `json:"media_references,omitempty"`
	ActiveMediaReferenceKey string                `json:"active_media_reference_key,omitempty"`

	TransitionType string   `json:"transition_type,omitempty"`
	InOffset       *rawTime `json:"in_offset,omitempty"`
	OutOffset      *rawTime `json:"out_offset,omitempty"`

	TargetURL        string    `json:"target_url,omitempty"`
	AvailableRange   *rawRange `json:"available_range,omitempty"`
	TargetURLBase    string    `json:"target_url_base,omitempty"`
	NamePrefix       string    `json:"name_prefix,omitempty"`
	NameSuffix       string    `json:"name_suffix,omitempty"`
	StartFrame       int64     `json:"start_frame,omitempty"`
	FrameStep        int64     `json:"frame_step,omitempty"`
	Rate             float64   `json:"rate,omitempty"`
	FrameZeroPadding int       `json:"frame_zero_padding,omitempty"`
}

type rawTime struct {
	Schema string  `json:"OTIO_SCHEMA,omitempty"`
	Rate   float64 `json:"rate"`
	Value  float64 `json:"value"`
}

type rawRange struct {
	Schema    string  `json:"OTIO_SCHEMA,omitempty"`
	StartTime rawTime `json:"start_time"`
	Duration  rawTime `json:"duration"`
}

func (t *rawTime) time() otime.RationalTime {
	if t == nil || t.Rate <= 0 {
		return otime.Invalid
	}
	return otime.New(t.Value, t.Rate)
}

func (r *rawRange) timeRange() otime.TimeRange {
	if r == nil {
		return otime.InvalidRange
	}
	start := r.StartTime.time()
	duration := r.Duration.time()
	if !start.IsValid() || !duration.IsValid() {
		return otime.InvalidRange
	}
	return otime.NewRange(start, duration)
}

func toRawTime(t otime.RationalTime) *rawTime {
	return &rawTime{Schema: schemaRationalTime + ".1", Rate: t.Rate, Value: t.Value}
}

func toRawRange(r otime.TimeRange) *rawRange {
	if !r.IsValid() {
		return nil
	}
	return &rawRange{
		Schema:    schemaTimeRange + ".1",
		StartTime: *toRawTime(r.Start),
		Duration:  *toRawTime(r.Duration),
	}
}
