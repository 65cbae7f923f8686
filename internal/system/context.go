// Package system holds the process-wide state shared by timelines and
// players: logger, filesystem, reader plugins and the probe cache.
package system

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"tlplay/internal/media"
	"tlplay/internal/player"
	"tlplay/internal/reader"
	"tlplay/internal/storage"
	"tlplay/internal/timeline"
)

// Options configure a Context.
type Options struct {
	// Fs defaults to the OS filesystem.
	Fs afero.Fs
	// InfoDB is the probe cache database; empty disables it.
	InfoDB string
	// Plugins are registered after the built-in ones and win on shared
	// extensions.
	Plugins []reader.Plugin
	// ReaderOptions are passed to readers opened for Info.
	ReaderOptions reader.Options
	// InfoTimeout bounds Info. Zero waits as long as the reader takes.
	InfoTimeout time.Duration
}

// Context is created once per process and closed explicitly.
type Context struct {
	opts   Options
	fs     afero.Fs
	logger zerolog.Logger

	registryOnce sync.Once
	registry     *reader.Registry

	store  *storage.SQLiteStorage
	warned sync.Map

	mu     sync.Mutex
	closed bool
}

var ErrClosed = errors.New("system context closed")

func New(opts Options, logger zerolog.Logger) (*Context, error) {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	c := &Context{
		opts:   opts,
		fs:     opts.Fs,
		logger: logger,
	}
	if opts.InfoDB != "" {
		store, err := storage.NewSQLiteStorage(opts.InfoDB, logger)
		if err != nil {
			return nil, fmt.Errorf("open info store: %w", err)
		}
		c.store = store
	}
	return c, nil
}

func (c *Context) Logger() zerolog.Logger { return c.logger }
func (c *Context) Fs() afero.Fs           { return c.fs }

// Storage returns the probe cache, nil when disabled.
func (c *Context) Storage() *storage.SQLiteStorage {
	return c.store
}

// Registry returns the plugin registry, building it on first use.
func (c *Context) Registry() *reader.Registry {
	c.registryOnce.Do(func() {
		r := reader.NewRegistry(c.logger)

		var store reader.InfoStore
		if c.store != nil {
			store = c.store
		}
		ffmpeg := reader.NewFFmpeg(c.fs, store)
		if ffmpeg.IsAvailable() {
			c.logger.Info().Msg("ffmpeg available - movie and audio decoding enabled")
		} else {
			c.logger.Warn().Msg("ffmpeg not found - movies and audio will play as missing media")
		}
		r.Register(ffmpeg)
		r.Register(reader.NewSequence(c.fs))
		for _, p := range c.opts.Plugins {
			r.Register(p)
		}

		c.logger.Debug().Strs("extensions", r.Extensions()).Msg("reader plugins registered")
		c.registry = r
	})
	return c.registry
}

// WarnOnce reports whether key has not been warned about before.
func (c *Context) WarnOnce(key string) bool {
	_, loaded := c.warned.LoadOrStore(key, struct{}{})
	return !loaded
}

// Info opens path with the matching plugin and waits for its info.
func (c *Context) Info(ctx context.Context, path media.Path, memory []reader.MemoryFile) (media.Info, error) {
	if c.isClosed() {
		return media.Info{}, ErrClosed
	}
	r, err := c.Registry().Read(path, memory, c.opts.ReaderOptions)
	if err != nil {
		return media.Info{}, err
	}
	defer func() {
		if err := r.Close(); err != nil {
			c.logger.Warn().Err(err).Str("path", path.String()).Msg("reader close failed")
		}
	}()

	if c.opts.InfoTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.InfoTimeout)
		defer cancel()
	}
	return r.Info().Get(ctx)
}

// LoadTimeline reads a timeline document, bundle or plain media file.
func (c *Context) LoadTimeline(ctx context.Context, path string, memory map[string][]reader.MemoryFile) (*timeline.Timeline, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	tl, err := timeline.Load(path, timeline.LoadOptions{
		Fs:     c.fs,
		Memory: memory,
		Info: func(p media.Path, m []reader.MemoryFile) (media.Info, error) {
			return c.Info(ctx, p, m)
		},
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info().
		Str("path", path).
		Int("tracks", len(tl.Tracks)).
		Int("clips", len(tl.Clips())).
		Str("duration", tl.GlobalRange().Duration.String()).
		Msg("timeline loaded")
	return tl, nil
}

// NewPlayer creates a player for tl sharing this context's plugins and
// missing-media warnings.
func (c *Context) NewPlayer(tl *timeline.Timeline, opts player.Options) (*player.Player, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	opts.WarnOnce = c.WarnOnce
	return player.New(tl, c.Registry(), opts, c.logger)
}

func (c *Context) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close releases the probe cache. Players must be closed first.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.store != nil {
		return c.store.Close()
	}
	return nil
}
