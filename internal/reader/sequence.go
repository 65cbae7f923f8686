package reader

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"tlplay/internal/media"
	"tlplay/internal/otime"
)

const (
	defaultSequenceSpeed   = otime.Rate24
	defaultSequenceThreads = 4
)

// Sequence reads numbered PNG and JPEG image sequences, or single stills,
// either from the filesystem or from in-memory byte spans.
type Sequence struct {
	fs afero.Fs
}

func NewSequence(fs afero.Fs) *Sequence {
	return &Sequence{fs: fs}
}

func (p *Sequence) Name() string { return "sequence" }

func (p *Sequence) Extensions() []string {
	return []string{".png", ".jpg", ".jpeg"}
}

func (p *Sequence) Read(path media.Path, memory []MemoryFile, opts Options, logger zerolog.Logger) (Reader, error) {
	var frames media.FrameRange
	if len(memory) > 0 {
		start, _ := path.FrameNumber()
		frames = media.FrameRange{Start: start, End: start + int64(len(memory)) - 1}
	} else {
		var err error
		frames, err = ScanSequence(p.fs, path)
		if err != nil {
			return nil, &Error{Kind: OpenError, Path: path.String(), Err: err}
		}
	}

	r := &sequenceReader{
		fs:     p.fs,
		path:   path,
		memory: memory,
		frames: frames,
		rate:   opts.Float(OptionSequenceDefaultSpeed, defaultSequenceSpeed),
		pool:   NewPool(opts.Int(OptionSequenceThreadCount, defaultSequenceThreads)),
		info:   NewFuture[media.Info](),
		logger: logger.With().Str("path", path.Pattern()).Logger(),
	}
	if r.rate <= 0 {
		r.rate = defaultSequenceSpeed
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.info.Resolve(r.readInfo())
	}()
	return r, nil
}

// ScanSequence finds the frame range of a sequence on disk. A path that is
// not a sequence yields the single frame 0 when the file exists.
func ScanSequence(fs afero.Fs, path media.Path) (media.FrameRange, error) {
	if r, ok := path.Sequence.Get(); ok {
		return r, nil
	}
	if !path.IsSequence() {
		if _, err := fs.Stat(path.String()); err != nil {
			return media.FrameRange{}, err
		}
		return media.FrameRange{}, nil
	}

	dir := path.Directory
	if dir == "" {
		dir = "."
	}
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return media.FrameRange{}, err
	}

	found := false
	var r media.FrameRange
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, path.BaseName) || !strings.HasSuffix(name, path.Extension) {
			continue
		}
		digits := name[len(path.BaseName) : len(name)-len(path.Extension)]
		if digits == "" || (path.Padding > 0 && len(digits) != path.Padding) {
			continue
		}
		n, err := strconv.ParseInt(digits, 10, 64)
		if err != nil || n < 0 {
			continue
		}
		if !found {
			r = media.FrameRange{Start: n, End: n}
			found = true
			continue
		}
		r.Start = min(r.Start, n)
		r.End = max(r.End, n)
	}
	if !found {
		return media.FrameRange{}, fmt.Errorf("no frames matching %s: %w", path.Pattern(), os.ErrNotExist)
	}
	return r, nil
}

type sequenceReader struct {
	fs     afero.Fs
	path   media.Path
	memory []MemoryFile
	frames media.FrameRange
	rate   float64
	pool   *Pool
	info   *Future[media.Info]
	wg     sync.WaitGroup
	logger zerolog.Logger
}

func (r *sequenceReader) Path() media.Path { return r.path }

func (r *sequenceReader) Info() *Future[media.Info] { return r.info }

func (r *sequenceReader) load(n int64) ([]byte, error) {
	if r.memory != nil {
		i := n - r.frames.Start
		if i < 0 || i >= int64(len(r.memory)) {
			return nil, fmt.Errorf("frame %d out of range", n)
		}
		return r.memory[i], nil
	}
	return afero.ReadFile(r.fs, r.path.Frame(n))
}

func (r *sequenceReader) readInfo() (media.Info, error) {
	data, err := r.load(r.frames.Start)
	if err != nil {
		return media.Info{}, &Error{Kind: OpenError, Path: r.path.String(), Err: err}
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return media.Info{}, &Error{Kind: OpenError, Path: r.path.String(), Err: err}
	}
	return media.Info{
		Video: []media.ImageInfo{{
			Width:     cfg.Width,
			Height:    cfg.Height,
			PixelType: media.PixelRGBA8,
		}},
		VideoTime: otime.RangeFromFrames(r.frames.Start, r.frames.Count(), r.rate),
		AudioTime: otime.InvalidRange,
		Tags: map[string]string{
			"Format":   format,
			"Sequence": r.path.Pattern(),
		},
	}, nil
}

func (r *sequenceReader) ReadVideo(t otime.RationalTime, _ Options) *Future[media.VideoFrame] {
	return Go(r.pool, NewFuture[media.VideoFrame](), media.VideoFrame{Time: t},
		func(ctx context.Context) (media.VideoFrame, error) {
			frame := media.VideoFrame{Time: t}
			n := min(max(t.Frame(r.rate), r.frames.Start), r.frames.End)
			data, err := r.load(n)
			if err == nil {
				var img image.Image
				img, _, err = image.Decode(bytes.NewReader(data))
				if err == nil {
					frame.Image = media.FromImage(img)
					return frame, nil
				}
			}
			r.logger.Debug().Err(err).Int64("frame", n).Msg("frame decode failed")
			return frame, &Error{Kind: DecodeError, Path: r.path.Frame(n), Err: err}
		})
}

// ReadAudio returns silence; image sequences carry no audio.
func (r *sequenceReader) ReadAudio(rng otime.TimeRange, _ Options) *Future[media.AudioFrame] {
	return Resolved(media.AudioFrame{Time: rng.Start}, nil)
}

func (r *sequenceReader) CancelRequests() {
	r.pool.Cancel()
}

func (r *sequenceReader) Close() error {
	r.pool.Close()
	r.wg.Wait()
	return nil
}

func (p *Sequence) Write(path media.Path, info media.Info, opts Options, logger zerolog.Logger) (Writer, error) {
	rate := opts.Float(OptionSequenceDefaultSpeed, defaultSequenceSpeed)
	if info.VideoTime.IsValid() {
		rate = info.VideoTime.Rate()
	}
	if dir := path.Directory; dir != "" {
		if err := p.fs.MkdirAll(dir, 0o755); err != nil {
			return nil, &Error{Kind: OpenError, Path: path.String(), Err: err}
		}
	}
	return &sequenceWriter{
		fs:     p.fs,
		path:   path,
		rate:   rate,
		logger: logger.With().Str("path", path.Pattern()).Logger(),
	}, nil
}

type sequenceWriter struct {
	fs     afero.Fs
	path   media.Path
	rate   float64
	logger zerolog.Logger
}

// WriteVideo encodes img as the frame at t.
func (w *sequenceWriter) WriteVideo(t otime.RationalTime, img *media.Image) error {
	name := w.path.Frame(t.Frame(w.rate))
	var buf bytes.Buffer
	var err error
	switch w.path.Ext() {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(&buf, img.ToImage(), &jpeg.Options{Quality: 90})
	default:
		err = png.Encode(&buf, img.ToImage())
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := afero.WriteFile(w.fs, name, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	w.logger.Debug().Str("file", name).Msg("frame written")
	return nil
}

func (w *sequenceWriter) Close() error { return nil }
