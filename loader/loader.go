// Package loader opens hotswap modules built with -buildmode=plugin.
//
// The Go runtime never unmaps a plugin and caches plugins by file path, so a
// rebuilt artifact written over the old one would resolve to the old code.
// Loader therefore opens a private staging copy of each artifact version and
// remembers which versions are already mapped. The staging copy is unlinked
// as soon as it is mapped; the mapping outlives the file.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"plugin"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/chenyanchen/hotswap"
)

// ErrModuleClosed means looking up a symbol on a closed module.
var ErrModuleClosed = errors.New("module is closed")

// library is the part of *plugin.Plugin the loader uses.
type library interface {
	Lookup(symName string) (plugin.Symbol, error)
}

type openFunc func(path string) (library, error)

func openPlugin(path string) (library, error) {
	return plugin.Open(path)
}

// Options configures a Loader.
//
// StageDir is where staging copies are written; empty means a "hotswap"
// directory under os.TempDir(). NoStage opens artifacts in place, which is
// only correct when every build writes a new file name.
type Options struct {
	StageDir string
	NoStage  bool
	Logger   *slog.Logger
}

type version struct {
	path    string
	size    int64
	modTime int64
}

func (v version) String() string {
	return v.path + "@" + strconv.FormatInt(v.modTime, 10) + ":" + strconv.FormatInt(v.size, 10)
}

var _ hotswap.Loader = (*Loader)(nil)

// Loader implements hotswap.Loader on top of the plugin package.
// It is safe for concurrent use.
type Loader struct {
	opts   Options
	logger *slog.Logger
	open   openFunc

	mu     sync.Mutex
	mapped map[version]*mapping

	sf singleflight.Group
}

type mapping struct {
	lib    library
	staged string
}

func New(opts Options) *Loader {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.StageDir == "" {
		opts.StageDir = filepath.Join(os.TempDir(), "hotswap")
	}
	return &Loader{
		opts:   opts,
		logger: logger,
		open:   openPlugin,
		mapped: make(map[version]*mapping),
	}
}

// Open maps the artifact at path. Concurrent opens of the same artifact
// version share one staging copy; reopening a version that is already mapped
// returns the existing mapping.
func (l *Loader) Open(ctx context.Context, path string) (hotswap.Module, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open module: %w", err)
	}
	v := version{path: path, size: info.Size(), modTime: info.ModTime().UnixNano()}

	l.mu.Lock()
	m, ok := l.mapped[v]
	l.mu.Unlock()
	if ok {
		l.logger.Debug("module version already mapped", "path", path, "staged", m.staged)
		return &Module{path: path, mapping: m}, nil
	}

	res, err, shared := l.sf.Do(v.String(), func() (any, error) {
		l.mu.Lock()
		cached, ok := l.mapped[v]
		l.mu.Unlock()
		if ok {
			return cached, nil
		}

		staged := path
		if !l.opts.NoStage {
			s, err := l.stage(path)
			if err != nil {
				return nil, err
			}
			staged = s
		}
		lib, err := l.open(staged)
		if err != nil {
			if staged != path {
				_ = os.Remove(staged)
			}
			return nil, fmt.Errorf("open plugin %s: %w", staged, err)
		}

		if staged != path {
			if err := os.Remove(staged); err != nil {
				l.logger.Warn("remove staging copy", "path", staged, "err", err)
			}
		}

		m := &mapping{lib: lib, staged: staged}
		l.mu.Lock()
		l.mapped[v] = m
		l.mu.Unlock()
		l.logger.Info("module mapped", "path", path, "staged", staged)
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		l.logger.Debug("shared concurrent module open", "path", path)
	}
	return &Module{path: path, mapping: res.(*mapping)}, nil
}

// Mapped returns how many artifact versions this loader has mapped.
func (l *Loader) Mapped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.mapped)
}

func (l *Loader) stage(path string) (string, error) {
	if err := os.MkdirAll(l.opts.StageDir, 0o755); err != nil {
		return "", fmt.Errorf("create stage dir: %w", err)
	}
	ext := filepath.Ext(path)
	base := filepath.Base(path)
	base = base[:len(base)-len(ext)]
	staged := filepath.Join(l.opts.StageDir, base+"-"+uuid.NewString()+ext)

	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("stage %s: %w", path, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(staged, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o755)
	if err != nil {
		return "", fmt.Errorf("stage %s: %w", path, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(staged)
		return "", fmt.Errorf("stage %s: %w", path, err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(staged)
		return "", fmt.Errorf("stage %s: %w", path, err)
	}
	return staged, nil
}

// Module is one host-side handle to a mapped plugin.
type Module struct {
	path    string
	mapping *mapping

	mu     sync.Mutex
	closed bool
}

func (m *Module) Path() string {
	return m.path
}

// Staged returns the file the plugin was actually opened from. A staging
// copy no longer exists once Open returns.
func (m *Module) Staged() string {
	return m.mapping.staged
}

func (m *Module) Lookup(symbol string) (any, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, ErrModuleClosed
	}
	sym, err := m.mapping.lib.Lookup(symbol)
	if err != nil {
		return nil, err
	}
	return sym, nil
}

// Close releases this handle. The code stays mapped for the life of the
// process; the handle refuses further lookups.
func (m *Module) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
