package reader

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"tlplay/internal/media"
	"tlplay/internal/otime"
)

// FFmpeg decodes movies and audio files by running ffprobe and ffmpeg.
type FFmpeg struct {
	fs          afero.Fs
	store       InfoStore
	ffmpegPath  string
	ffprobePath string
}

func NewFFmpeg(fs afero.Fs, store InfoStore) *FFmpeg {
	ffmpegPath := "ffmpeg"
	if path, err := exec.LookPath("ffmpeg"); err == nil {
		ffmpegPath = path
	}
	ffprobePath := "ffprobe"
	if path, err := exec.LookPath("ffprobe"); err == nil {
		ffprobePath = path
	}
	return &FFmpeg{
		fs:          fs,
		store:       store,
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}
}

func (p *FFmpeg) Name() string { return "ffmpeg" }

func (p *FFmpeg) Extensions() []string {
	return append(media.MovieExtensions(), media.AudioExtensions()...)
}

func (p *FFmpeg) IsAvailable() bool {
	_, err := exec.LookPath(p.ffmpegPath)
	if err != nil {
		return false
	}
	_, err = exec.LookPath(p.ffprobePath)
	return err == nil
}

func (p *FFmpeg) Read(path media.Path, memory []MemoryFile, opts Options, logger zerolog.Logger) (Reader, error) {
	r := &ffmpegReader{
		plugin: p,
		path:   path,
		input:  path.String(),
		opts:   opts,
		pool:   NewPool(2),
		info:   NewFuture[media.Info](),
		logger: logger.With().Str("path", path.String()).Logger(),
	}
	if len(memory) > 0 {
		r.memory = memory[0]
		r.input = "pipe:0"
	} else {
		fi, err := p.fs.Stat(path.String())
		if err != nil {
			r.pool.Close()
			return nil, &Error{Kind: OpenError, Path: path.String(), Err: err}
		}
		r.size = fi.Size()
		r.modTime = fi.ModTime().Unix()
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		info, err := r.probe(r.pool.Context())
		if err != nil {
			err = &Error{Kind: OpenError, Path: path.String(), Err: err}
		}
		r.info.Resolve(info, err)
	}()
	return r, nil
}

type ffmpegReader struct {
	plugin  *FFmpeg
	path    media.Path
	input   string
	memory  MemoryFile
	size    int64
	modTime int64
	opts    Options
	pool    *Pool
	info    *Future[media.Info]
	wg      sync.WaitGroup
	logger  zerolog.Logger
}

func (r *ffmpegReader) Path() media.Path { return r.path }

func (r *ffmpegReader) Info() *Future[media.Info] { return r.info }

func (r *ffmpegReader) pixelType(opts Options) media.PixelType {
	if opts.Bool(OptionFFmpegYUVToRGB, true) {
		return media.PixelRGBA8
	}
	return media.PixelYUV420P8
}

func (r *ffmpegReader) probe(ctx context.Context) (media.Info, error) {
	store := r.plugin.store
	if store != nil && r.memory == nil {
		info, ok, err := store.GetInfo(r.input, r.size, r.modTime)
		if err != nil {
			r.logger.Warn().Err(err).Msg("info store lookup failed")
		} else if ok {
			r.logger.Debug().Msg("media info from store")
			return info, nil
		}
	}

	output, err := r.run(ctx, r.plugin.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		r.input,
	)
	if err != nil {
		r.logger.Debug().Err(err).Msg("ffprobe failed")
		return media.Info{}, err
	}

	info, err := parseProbe(output, r.pixelType(r.opts))
	if err != nil {
		return media.Info{}, err
	}
	if !info.HasVideo() && !info.HasAudio() {
		return media.Info{}, fmt.Errorf("no video or audio streams")
	}

	if store != nil && r.memory == nil {
		if err := store.PutInfo(r.input, r.size, r.modTime, info); err != nil {
			r.logger.Warn().Err(err).Msg("info store write failed")
		}
	}
	return info, nil
}

func (r *ffmpegReader) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if r.memory != nil {
		cmd.Stdin = bytes.NewReader(r.memory)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("%s: %w: %s", name, err, bytes.TrimSpace(stderr.Bytes()))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return output, nil
}

func (r *ffmpegReader) threadArgs(opts Options) []string {
	if n := opts.Int(OptionFFmpegThreadCount, 0); n > 0 {
		return []string{"-threads", strconv.Itoa(n)}
	}
	return nil
}

func (r *ffmpegReader) ReadVideo(t otime.RationalTime, opts Options) *Future[media.VideoFrame] {
	opts = r.opts.Merge(opts)
	return Go(r.pool, NewFuture[media.VideoFrame](), media.VideoFrame{Time: t},
		func(ctx context.Context) (media.VideoFrame, error) {
			frame := media.VideoFrame{Time: t}
			info, err := r.info.Get(ctx)
			if err != nil {
				return frame, err
			}
			if !info.HasVideo() {
				return frame, &Error{Kind: DecodeError, Path: r.path.String(), Err: fmt.Errorf("no video stream")}
			}

			imageInfo := info.Video[0]
			imageInfo.PixelType = r.pixelType(opts)
			pixFmt := "rgba"
			if imageInfo.PixelType == media.PixelYUV420P8 {
				pixFmt = "yuv420p"
			}
			offset := math.Max(0, t.Seconds()-info.VideoTime.Start.Seconds())

			args := []string{"-v", "error"}
			args = append(args, r.threadArgs(opts)...)
			args = append(args,
				"-ss", strconv.FormatFloat(offset, 'f', 6, 64),
				"-i", r.input,
				"-frames:v", "1",
				"-f", "rawvideo",
				"-pix_fmt", pixFmt,
				"-",
			)
			output, err := r.run(ctx, r.plugin.ffmpegPath, args...)
			if err == nil && len(output) < imageInfo.ByteCount() {
				err = fmt.Errorf("short frame: %d of %d bytes", len(output), imageInfo.ByteCount())
			}
			if err != nil {
				if ctx.Err() != nil {
					return frame, ErrCanceled
				}
				r.logger.Debug().Err(err).Str("time", t.String()).Msg("video decode failed")
				return frame, &Error{Kind: DecodeError, Path: r.path.String(), Err: err}
			}

			frame.Image = &media.Image{Info: imageInfo, Data: output[:imageInfo.ByteCount()]}
			return frame, nil
		})
}

func (r *ffmpegReader) ReadAudio(rng otime.TimeRange, opts Options) *Future[media.AudioFrame] {
	opts = r.opts.Merge(opts)
	return Go(r.pool, NewFuture[media.AudioFrame](), media.AudioFrame{Time: rng.Start},
		func(ctx context.Context) (media.AudioFrame, error) {
			frame := media.AudioFrame{Time: rng.Start}
			info, err := r.info.Get(ctx)
			if err != nil {
				return frame, err
			}

			rate := int(math.Round(rng.Rate()))
			frames := int(math.Ceil(rng.Duration.Rescale(rng.Rate()).Value))
			if !info.HasAudio() {
				frame.Audio = media.NewAudio(media.AudioInfo{Channels: 1, SampleRate: rate}, frames)
				return frame, nil
			}

			channels := info.Audio.Channels
			offset := math.Max(0, rng.Start.Seconds()-info.AudioTime.Start.Seconds())
			args := []string{"-v", "error"}
			args = append(args, r.threadArgs(opts)...)
			args = append(args,
				"-ss", strconv.FormatFloat(offset, 'f', 6, 64),
				"-t", strconv.FormatFloat(rng.Duration.Seconds(), 'f', 6, 64),
				"-i", r.input,
				"-vn",
				"-f", "f32le",
				"-ac", strconv.Itoa(channels),
				"-ar", strconv.Itoa(rate),
				"-",
			)
			output, err := r.run(ctx, r.plugin.ffmpegPath, args...)
			if err != nil {
				if ctx.Err() != nil {
					return frame, ErrCanceled
				}
				r.logger.Debug().Err(err).Str("range", rng.String()).Msg("audio decode failed")
				return frame, &Error{Kind: DecodeError, Path: r.path.String(), Err: err}
			}

			audio := media.NewAudio(media.AudioInfo{Channels: channels, SampleRate: rate}, frames)
			n := min(len(output)/4, len(audio.Samples))
			for i := 0; i < n; i++ {
				audio.Samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(output[i*4:]))
			}
			frame.Audio = audio
			return frame, nil
		})
}

func (r *ffmpegReader) CancelRequests() {
	r.pool.Cancel()
}

func (r *ffmpegReader) Close() error {
	r.pool.Close()
	r.wg.Wait()
	return nil
}
