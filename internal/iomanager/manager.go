package iomanager

import (
	"container/list"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"tlplay/internal/cache"
	"tlplay/internal/media"
	"tlplay/internal/otime"
	"tlplay/internal/readcache"
	"tlplay/internal/reader"
)

// Options bound the manager's concurrency and memory.
type Options struct {
	// VideoRequests and AudioRequests limit outstanding reader calls per
	// kind. Info requests count against the video limit. Zero stalls the kind.
	VideoRequests   int
	AudioRequests   int
	ReadCacheMax    int
	FrameCacheBytes int64
	// ReaderOptions are passed to readers when they are opened.
	ReaderOptions reader.Options
}

var DefaultOptions = Options{
	VideoRequests:   16,
	AudioRequests:   16,
	ReadCacheMax:    10,
	FrameCacheBytes: 256 << 20,
}

type kind int

const (
	kindVideo kind = iota
	kindAudio
	kindCount
)

// Stats is a snapshot of manager counters.
type Stats struct {
	QueuedVideo  int             `json:"queued_video"`
	QueuedAudio  int             `json:"queued_audio"`
	RunningVideo int             `json:"running_video"`
	RunningAudio int             `json:"running_audio"`
	Requests     int64           `json:"requests"`
	Coalesced    int64           `json:"coalesced"`
	Decodes      int64           `json:"decodes"`
	Canceled     int64           `json:"canceled"`
	FrameCache   cache.Stats     `json:"frame_cache"`
	ReadCache    readcache.Stats `json:"read_cache"`
}

// Manager coalesces identical requests, limits how many run at once and
// keeps recently decoded frames.
type Manager struct {
	readCache *readcache.ReadCache
	frames    *cache.LRU[string, any]

	mu       sync.Mutex
	opts     Options
	inflight map[string]task
	queues   [kindCount]*list.List
	running  [kindCount]int

	dispatching atomic.Bool
	again       atomic.Bool

	requests  atomic.Int64
	coalesced atomic.Int64
	decodes   atomic.Int64
	canceled  atomic.Int64

	warnOnce func(string) bool
	logger   zerolog.Logger
}

// New creates a manager over registry. warnOnce deduplicates open and
// decode failure warnings per path; nil logs every failure.
func New(registry *reader.Registry, opts Options, warnOnce func(string) bool, logger zerolog.Logger) (*Manager, error) {
	logger = logger.With().Str("component", "iomanager").Logger()
	if warnOnce == nil {
		warnOnce = func(string) bool { return true }
	}
	rc, err := readcache.New(registry, opts.ReadCacheMax, opts.ReaderOptions, warnOnce, logger)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		readCache: rc,
		frames:    cache.NewLRU[string, any](0, opts.FrameCacheBytes, frameSize),
		opts:      opts,
		inflight:  make(map[string]task),
		warnOnce:  warnOnce,
		logger:    logger,
	}
	for i := range m.queues {
		m.queues[i] = list.New()
	}
	m.logger.Debug().
		Int("video_requests", opts.VideoRequests).
		Int("audio_requests", opts.AudioRequests).
		Str("frame_cache", humanize.IBytes(uint64(max(opts.FrameCacheBytes, 0)))).
		Msg("io manager created")
	return m, nil
}

func frameSize(v any) int64 {
	switch f := v.(type) {
	case media.VideoFrame:
		return f.Image.ByteCount()
	case media.AudioFrame:
		return f.Audio.ByteCount()
	default:
		return 0
	}
}

func (m *Manager) Options() Options {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts
}

// SetOptions applies new limits. Raising a limit dispatches queued work;
// lowering one lets running requests finish.
func (m *Manager) SetOptions(opts Options) {
	m.mu.Lock()
	m.opts.VideoRequests = opts.VideoRequests
	m.opts.AudioRequests = opts.AudioRequests
	m.opts.ReadCacheMax = opts.ReadCacheMax
	m.opts.FrameCacheBytes = opts.FrameCacheBytes
	m.mu.Unlock()

	m.readCache.SetMax(opts.ReadCacheMax)
	m.frames.SetMaxSize(opts.FrameCacheBytes)
	m.dispatch()
}

// GetInfo returns the media info of path.
func (m *Manager) GetInfo(path media.Path, memory []reader.MemoryFile) *reader.Future[media.Info] {
	fp := "info;" + InfoFingerprint(path, m.readerOptions())
	return request(m, fp, kindVideo, path, memory, false, media.Info{},
		func(r reader.Reader) *reader.Future[media.Info] { return r.Info() })
}

// ReadVideo returns the frame of path at media time t.
func (m *Manager) ReadVideo(path media.Path, memory []reader.MemoryFile, t otime.RationalTime, opts reader.Options) *reader.Future[media.VideoFrame] {
	fp := "video;" + VideoFingerprint(path, t, m.readerOptions(), opts)
	return request(m, fp, kindVideo, path, memory, true, media.VideoFrame{Time: t},
		func(r reader.Reader) *reader.Future[media.VideoFrame] { return r.ReadVideo(t, opts) })
}

// ReadAudio returns the PCM of path over media range rng.
func (m *Manager) ReadAudio(path media.Path, memory []reader.MemoryFile, rng otime.TimeRange, opts reader.Options) *reader.Future[media.AudioFrame] {
	fp := "audio;" + AudioFingerprint(path, rng, m.readerOptions(), opts)
	return request(m, fp, kindAudio, path, memory, true, media.AudioFrame{Time: rng.Start},
		func(r reader.Reader) *reader.Future[media.AudioFrame] { return r.ReadAudio(rng, opts) })
}

func (m *Manager) readerOptions() reader.Options {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts.ReaderOptions
}

// CancelRequests resolves every queued and running request as canceled and
// forwards the cancellation to the readers. Running decodes may finish but
// their results are only delivered to callers that ask again.
func (m *Manager) CancelRequests() {
	m.mu.Lock()
	var cancels []func()
	queued := 0
	for k := range m.queues {
		for e := m.queues[k].Front(); e != nil; e = e.Next() {
			t := e.Value.(task)
			t.base().elem = nil
			delete(m.inflight, t.base().fp)
			cancels = append(cancels, t.cancelFunc())
			queued++
		}
		m.queues[k].Init()
	}
	for _, t := range m.inflight {
		t.base().rearmed = false
		cancels = append(cancels, t.cancelFunc())
	}
	m.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	m.canceled.Add(int64(len(cancels)))
	m.readCache.CancelAll()

	if len(cancels) > 0 {
		m.logger.Debug().Int("queued", queued).Int("running", len(cancels)-queued).Msg("requests canceled")
	}
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	s := Stats{
		QueuedVideo:  m.queues[kindVideo].Len(),
		QueuedAudio:  m.queues[kindAudio].Len(),
		RunningVideo: m.running[kindVideo],
		RunningAudio: m.running[kindAudio],
	}
	m.mu.Unlock()
	s.Requests = m.requests.Load()
	s.Coalesced = m.coalesced.Load()
	s.Decodes = m.decodes.Load()
	s.Canceled = m.canceled.Load()
	s.FrameCache = m.frames.Stats()
	s.ReadCache = m.readCache.Stats()
	return s
}

// Close cancels everything and shuts the readers down.
func (m *Manager) Close() {
	m.CancelRequests()
	m.readCache.Close()
	m.frames.Clear()
}

func (m *Manager) limit(k kind) int {
	if k == kindAudio {
		return m.opts.AudioRequests
	}
	return m.opts.VideoRequests
}

func (m *Manager) enqueue(t task) {
	b := t.base()
	b.elem = m.queues[b.kind].PushBack(t)
}

// next pops the oldest queued task of a kind with spare capacity.
func (m *Manager) next() task {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := kind(0); k < kindCount; k++ {
		if m.running[k] >= m.limit(k) {
			continue
		}
		front := m.queues[k].Front()
		if front == nil {
			continue
		}
		t := m.queues[k].Remove(front).(task)
		b := t.base()
		b.elem = nil
		b.running = true
		m.running[k]++
		return t
	}
	return nil
}

// dispatch starts queued tasks until limits are reached. Reentrant calls,
// including completions that fire synchronously, fold into the active loop.
func (m *Manager) dispatch() {
	if !m.dispatching.CompareAndSwap(false, true) {
		m.again.Store(true)
		return
	}
	for {
		m.again.Store(false)
		for t := m.next(); t != nil; t = m.next() {
			m.decodes.Add(1)
			t.start(m)
		}
		m.dispatching.Store(false)
		if !m.again.Load() || !m.dispatching.CompareAndSwap(false, true) {
			return
		}
	}
}

type task interface {
	base() *taskBase
	start(m *Manager)
	// cancelFunc captures the current caller future; call with mu held.
	cancelFunc() func()
}

type taskBase struct {
	fp      string
	kind    kind
	path    media.Path
	memory  []reader.MemoryFile
	elem    *list.Element
	running bool
	rearmed bool
}

func (b *taskBase) base() *taskBase { return b }

type entry[T any] struct {
	taskBase
	future    *reader.Future[T]
	empty     T
	cacheable bool
	issue     func(reader.Reader) *reader.Future[T]
}

func request[T any](m *Manager, fp string, k kind, path media.Path, memory []reader.MemoryFile,
	cacheable bool, empty T, issue func(reader.Reader) *reader.Future[T]) *reader.Future[T] {
	m.requests.Add(1)

	if cacheable {
		if v, ok := m.frames.Get(fp); ok {
			return reader.Resolved(v.(T), nil).Acquire()
		}
	}

	m.mu.Lock()
	if t, ok := m.inflight[fp]; ok {
		e := t.(*entry[T])
		if e.future.Ready() {
			// Canceled while running; the decode result goes to the new holders.
			e.future = arm(m, e)
			e.rearmed = true
		}
		f := e.future.Acquire()
		m.mu.Unlock()
		m.coalesced.Add(1)
		return f
	}

	e := &entry[T]{
		taskBase: taskBase{
			fp:     fp,
			kind:   k,
			path:   path,
			memory: memory,
		},
		empty:     empty,
		cacheable: cacheable,
		issue:     issue,
	}
	e.future = arm(m, e)
	m.inflight[fp] = e
	m.enqueue(e)
	f := e.future.Acquire()
	m.mu.Unlock()

	m.dispatch()
	return f
}

// arm creates a caller-facing future for e. When its last holder lets go
// before the request started, the request is dropped from the queue.
func arm[T any](m *Manager, e *entry[T]) *reader.Future[T] {
	f := reader.NewFuture[T]()
	f.OnRelease(func() {
		m.mu.Lock()
		drop := e.future == f && e.elem != nil
		if drop {
			m.queues[e.kind].Remove(e.elem)
			e.elem = nil
			delete(m.inflight, e.fp)
		}
		m.mu.Unlock()
		if drop {
			m.canceled.Add(1)
			f.Resolve(e.empty, reader.ErrCanceled)
		}
	})
	return f
}

func (e *entry[T]) start(m *Manager) {
	h := m.readCache.Get(e.path, e.memory)
	e.issue(h.Current()).OnDone(func(v T, err error) {
		h.Release()
		e.finish(m, v, err)
	})
}

func (e *entry[T]) cancelFunc() func() {
	f := e.future
	return func() { f.Resolve(e.empty, reader.ErrCanceled) }
}

func (e *entry[T]) finish(m *Manager, v T, err error) {
	m.mu.Lock()
	m.running[e.kind]--
	e.running = false
	if errors.Is(err, reader.ErrCanceled) && e.rearmed {
		e.rearmed = false
		m.enqueue(e)
		m.mu.Unlock()
		m.dispatch()
		return
	}
	if m.inflight[e.fp] == task(e) {
		delete(m.inflight, e.fp)
	}
	f := e.future
	m.mu.Unlock()

	if err == nil && e.cacheable {
		m.frames.Set(e.fp, v)
	}
	if reader.IsKind(err, reader.DecodeError) && m.warnOnce("decode:"+e.path.Pattern()) {
		m.logger.Warn().Err(err).Str("path", e.path.Pattern()).Msg("decode failed, showing missing frames")
	}
	f.Resolve(v, err)
	m.dispatch()
}
