package readcache

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"tlplay/internal/media"
	"tlplay/internal/reader"
)

// Handle is a reference-counted reader. The cache holds one reference while
// the reader is resident; every Get hands out another.
type Handle struct {
	reader.Reader
	key     string
	refs    atomic.Int32
	closing *sync.WaitGroup
	logger  zerolog.Logger

	// broken is set once the reader's info fails to open; requests then go
	// to fallback.
	broken   atomic.Bool
	fallback reader.Reader
}

// Current is the reader requests should be issued to: the opened reader, or
// a missing reader once the media turned out to be unreadable.
func (h *Handle) Current() reader.Reader {
	if h.broken.Load() {
		return h.fallback
	}
	return h.Reader
}

// Broken reports whether the media failed to open after the reader was
// created.
func (h *Handle) Broken() bool {
	return h.broken.Load()
}

// tryAcquire takes a reference unless the handle is already dead.
func (h *Handle) tryAcquire() bool {
	for {
		n := h.refs.Load()
		if n <= 0 {
			return false
		}
		if h.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release drops a reference. The reader is closed in the background once
// the last reference is gone, since releases can happen on its own workers.
func (h *Handle) Release() {
	if h.refs.Add(-1) != 0 {
		return
	}
	h.closing.Add(1)
	go func() {
		defer h.closing.Done()
		if err := h.Reader.Close(); err != nil {
			h.logger.Warn().Err(err).Str("path", h.key).Msg("reader close failed")
		}
		h.logger.Debug().Str("path", h.key).Msg("reader closed")
	}()
}

// Key is the collapsed path the handle is cached under.
func (h *Handle) Key() string { return h.key }

// Stats is a snapshot of cache counters.
type Stats struct {
	Len      int   `json:"len"`
	Max      int   `json:"max"`
	Opens    int64 `json:"opens"`
	Failures int64 `json:"failures"`
}

// ReadCache maps media paths to shared readers, bounded by the number of
// open readers.
type ReadCache struct {
	registry *reader.Registry
	opts     reader.Options
	cache    *lru.Cache[string, *Handle]
	openMu   sync.Mutex
	closing  sync.WaitGroup
	max      atomic.Int32
	opens    atomic.Int64
	failures atomic.Int64
	warnOnce func(path string) bool
	logger   zerolog.Logger
}

// New creates a read cache. warnOnce reports whether an open failure for a
// path has not been logged yet; nil logs every failure.
func New(registry *reader.Registry, max int, opts reader.Options, warnOnce func(string) bool, logger zerolog.Logger) (*ReadCache, error) {
	if max < 1 {
		max = 1
	}
	if warnOnce == nil {
		warnOnce = func(string) bool { return true }
	}
	c := &ReadCache{
		registry: registry,
		opts:     opts,
		warnOnce: warnOnce,
		logger:   logger.With().Str("component", "readcache").Logger(),
	}
	cache, err := lru.NewWithEvict[string, *Handle](max, func(key string, h *Handle) {
		c.logger.Debug().Str("path", key).Msg("reader evicted")
		h.Release()
	})
	if err != nil {
		return nil, err
	}
	c.cache = cache
	c.max.Store(int32(max))
	return c, nil
}

// Get returns a reader for path, opening it on a miss. The caller owns one
// reference and must Release it. Open failures yield a missing reader.
func (c *ReadCache) Get(path media.Path, memory []reader.MemoryFile) *Handle {
	key := path.Pattern()
	if h, ok := c.cache.Get(key); ok && h.tryAcquire() {
		return h
	}

	c.openMu.Lock()
	defer c.openMu.Unlock()

	if h, ok := c.cache.Get(key); ok && h.tryAcquire() {
		return h
	}

	r, err := c.registry.Read(path, memory, c.opts)
	c.opens.Add(1)
	if err != nil {
		c.failures.Add(1)
		if c.warnOnce(key) {
			c.logger.Warn().Err(err).Str("path", key).Msg("cannot open media, substituting missing reader")
		}
		r = reader.NewMissing(path)
	}

	h := &Handle{
		Reader:   r,
		key:      key,
		closing:  &c.closing,
		logger:   c.logger,
		fallback: reader.NewMissing(path),
	}
	h.refs.Store(2)
	if err == nil {
		r.Info().OnDone(func(_ media.Info, err error) {
			if !reader.IsKind(err, reader.OpenError) {
				return
			}
			h.broken.Store(true)
			c.failures.Add(1)
			if c.warnOnce(key) {
				c.logger.Warn().Err(err).Str("path", key).Msg("cannot read media, substituting missing reader")
			}
		})
	}
	c.cache.Add(key, h)
	c.logger.Debug().Str("path", key).Int("open", c.cache.Len()).Msg("reader opened")
	return h
}

// CancelAll cancels pending requests on every resident reader.
func (c *ReadCache) CancelAll() {
	for _, h := range c.cache.Values() {
		h.CancelRequests()
	}
}

// SetMax changes the number of resident readers, evicting from the LRU tail.
func (c *ReadCache) SetMax(n int) {
	if n < 1 {
		n = 1
	}
	c.max.Store(int32(n))
	if evicted := c.cache.Resize(n); evicted > 0 {
		c.logger.Debug().Int("evicted", evicted).Int("max", n).Msg("read cache resized")
	}
}

func (c *ReadCache) Max() int {
	return int(c.max.Load())
}

func (c *ReadCache) Len() int {
	return c.cache.Len()
}

func (c *ReadCache) Stats() Stats {
	return Stats{
		Len:      c.cache.Len(),
		Max:      c.Max(),
		Opens:    c.opens.Load(),
		Failures: c.failures.Load(),
	}
}

// Close drops every resident reader and waits for readers without other
// holders to shut down.
func (c *ReadCache) Close() {
	c.cache.Purge()
	c.closing.Wait()
}
