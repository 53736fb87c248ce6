package watch

import (
	"fmt"
	"sync"
	"time"

	"github.com/chenyanchen/hotswap"
)

// Watcher detects rebuilt module artifacts.
type Watcher struct {
	dir  string
	name string
	ext  string

	mu       sync.Mutex
	seen     hotswap.Artifact
	baseline bool
}

func New(dir, name, ext string) (*Watcher, error) {
	if dir == "" {
		return nil, fmt.Errorf("new watcher: dir is empty")
	}
	if name == "" {
		return nil, fmt.Errorf("new watcher: name is empty")
	}
	return &Watcher{dir: dir, name: name, ext: ext}, nil
}

// Poll scans once and returns hotswap.Reload if a newer artifact appeared
// since the previous poll.
func (w *Watcher) Poll() (hotswap.Directive, error) {
	artifact, ok, err := hotswap.FindLatest(w.dir, w.name, w.ext)
	if err != nil {
		return hotswap.None, fmt.Errorf("poll %s: %w", w.dir, err)
	}
	if !ok {
		return hotswap.None, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.baseline {
		w.baseline = true
		w.seen = artifact
		return hotswap.None, nil
	}
	if artifact.Path == w.seen.Path && artifact.ModTime.Equal(w.seen.ModTime) {
		return hotswap.None, nil
	}
	w.seen = artifact
	return hotswap.Reload, nil
}

// Last returns the artifact seen by the latest successful poll.
func (w *Watcher) Last() (hotswap.Artifact, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seen, w.baseline
}

// Throttled polls at most once per interval. Calls in between return
// hotswap.None without touching the file system.
type Throttled struct {
	w        *Watcher
	interval time.Duration
	now      func() time.Time
	next     time.Time
}

func (w *Watcher) Every(interval time.Duration) *Throttled {
	return &Throttled{w: w, interval: interval, now: time.Now}
}

func (t *Throttled) Poll() (hotswap.Directive, error) {
	now := t.now()
	if now.Before(t.next) {
		return hotswap.None, nil
	}
	t.next = now.Add(t.interval)
	return t.w.Poll()
}
