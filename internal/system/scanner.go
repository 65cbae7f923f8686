package system

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/samber/mo"
	"github.com/spf13/afero"

	"tlplay/internal/media"
)

var ErrScanInProgress = errors.New("scan already in progress")

// ScanResult is one playable item found under a scanned directory. Image
// sequences are collapsed into a single result.
type ScanResult struct {
	Path        media.Path
	ContentType string
	Size        int64
	Info        media.Info
	Err         error
}

// Scanner walks directories for media the registered plugins can read and
// probes each item, filling the probe cache.
type Scanner struct {
	sys      *Context
	logger   zerolog.Logger
	scanning bool
	mu       sync.Mutex
}

func NewScanner(sys *Context, logger zerolog.Logger) *Scanner {
	return &Scanner{
		sys:    sys,
		logger: logger.With().Str("component", "scanner").Logger(),
	}
}

func (s *Scanner) IsScanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanning
}

// ScanPath walks root and probes every readable item. Probe failures are
// reported per result; only walk errors fail the scan.
func (s *Scanner) ScanPath(ctx context.Context, root string) ([]ScanResult, error) {
	s.mu.Lock()
	if s.scanning {
		s.mu.Unlock()
		return nil, ErrScanInProgress
	}
	s.scanning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.scanning = false
		s.mu.Unlock()
	}()

	fs := s.sys.Fs()
	st, err := fs.Stat(root)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return nil, &os.PathError{Op: "scan", Path: root, Err: errors.New("not a directory")}
	}

	root = filepath.Clean(root)
	s.logger.Info().Str("path", root).Msg("scanning directory")

	if err := s.CleanupDeletedFiles(); err != nil {
		s.logger.Warn().Err(err).Msg("cleanup failed, continuing with scan")
	}

	items, err := s.collect(fs, root)
	if err != nil {
		return nil, err
	}

	results := make([]ScanResult, 0, len(items))
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		r := ScanResult{
			Path:        it.path,
			ContentType: media.GetContentType(it.path.Extension),
			Size:        it.size,
		}
		r.Info, r.Err = s.sys.Info(ctx, it.path, nil)
		if r.Err != nil {
			s.logger.Warn().Err(r.Err).Str("path", it.path.Pattern()).Msg("probe failed")
		}
		results = append(results, r)
	}

	s.logger.Info().
		Str("path", root).
		Int("items", len(results)).
		Msg("scan completed")
	return results, nil
}

type scanItem struct {
	path media.Path
	size int64
}

// collect gathers the readable files under root, grouping numbered images
// by their sequence pattern.
func (s *Scanner) collect(fs afero.Fs, root string) ([]scanItem, error) {
	registry := s.sys.Registry()
	byKey := make(map[string]*scanItem)
	var keys []string

	err := afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("walk error")
			return nil
		}
		if info.IsDir() {
			if path != root && strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		opts := media.PathOptions{}
		if media.IsImage(path) {
			opts = media.DefaultPathOptions
		}
		p := media.ParsePath(filepath.ToSlash(path), opts)
		if _, ok := registry.Plugin(p); !ok {
			return nil
		}

		key := p.Pattern()
		it, ok := byKey[key]
		if !ok {
			it = &scanItem{path: p}
			byKey[key] = it
			keys = append(keys, key)
		}
		it.size += info.Size()

		if n, ok := p.FrameNumber(); ok {
			r := it.path.Sequence.OrElse(media.FrameRange{Start: n, End: n})
			r.Start = min(r.Start, n)
			r.End = max(r.End, n)
			it.path.Sequence = mo.Some(r)
			if n == r.Start {
				it.path.Number = p.Number
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Sort(keys)
	items := make([]scanItem, 0, len(keys))
	for _, k := range keys {
		items = append(items, *byKey[k])
	}
	return items, nil
}

// CleanupDeletedFiles drops probe cache entries whose file is gone.
func (s *Scanner) CleanupDeletedFiles() error {
	store := s.sys.Storage()
	if store == nil {
		return nil
	}
	records, err := store.ListInfo(-1)
	if err != nil {
		return err
	}

	removed := 0
	for _, r := range records {
		if _, err := s.sys.Fs().Stat(r.Path); !os.IsNotExist(err) {
			continue
		}
		if err := store.DeleteInfo(r.Path); err != nil {
			s.logger.Error().Err(err).Str("path", r.Path).Msg("failed to delete info")
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("cleaned up deleted files")
	}
	return nil
}
