package reader

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"tlplay/internal/media"
)

// Registry maps file extensions to plugins.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	byExt   map[string]Plugin
	logger  zerolog.Logger
}

func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		byExt:  make(map[string]Plugin),
		logger: logger,
	}
}

// Register adds a plugin. A later plugin claiming an extension replaces the
// earlier claim.
func (r *Registry) Register(p Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.plugins = append(r.plugins, p)
	for _, ext := range p.Extensions() {
		r.byExt[strings.ToLower(ext)] = p
	}
	r.logger.Debug().
		Str("plugin", p.Name()).
		Strs("extensions", p.Extensions()).
		Msg("reader plugin registered")
}

func (r *Registry) Plugins() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.plugins)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// Extensions lists every claimed extension in sorted order.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := lo.Keys(r.byExt)
	slices.Sort(exts)
	return exts
}

func (r *Registry) Plugin(path media.Path) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byExt[path.Ext()]
	return p, ok
}

// Read opens a reader with the plugin claiming the path's extension.
func (r *Registry) Read(path media.Path, memory []MemoryFile, opts Options) (Reader, error) {
	p, ok := r.Plugin(path)
	if !ok {
		return nil, &Error{Kind: PluginMissing, Path: path.String(), Err: fmt.Errorf("no plugin for %q", path.Ext())}
	}
	return p.Read(path, memory, opts, r.logger.With().Str("plugin", p.Name()).Logger())
}

// Write opens a writer with the plugin claiming the path's extension.
func (r *Registry) Write(path media.Path, info media.Info, opts Options) (Writer, error) {
	p, ok := r.Plugin(path)
	if !ok {
		return nil, &Error{Kind: PluginMissing, Path: path.String(), Err: fmt.Errorf("no plugin for %q", path.Ext())}
	}
	wp, ok := p.(WritePlugin)
	if !ok {
		return nil, &Error{Kind: PluginMissing, Path: path.String(), Err: fmt.Errorf("plugin %s cannot write", p.Name())}
	}
	return wp.Write(path, info, opts, r.logger.With().Str("plugin", p.Name()).Logger())
}
