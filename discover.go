package hotswap

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Artifact is a module build output found on disk.
type Artifact struct {
	Path    string
	ModTime time.Time
}

// DylibPrefix returns the platform's dynamic library filename prefix.
func DylibPrefix() string {
	if runtime.GOOS == "windows" {
		return ""
	}
	return "lib"
}

// DylibExt returns the platform's dynamic library extension without the dot.
func DylibExt() string {
	switch runtime.GOOS {
	case "windows":
		return "dll"
	case "darwin", "ios":
		return "dylib"
	default:
		return "so"
	}
}

// FindLatest scans dir (not recursively) for files named
// <DylibPrefix()><name>*.<ext> and returns the most recently modified one.
// An empty ext means DylibExt(). ok is false when nothing matches.
//
// Equal modification times are resolved in favor of the file seen last.
func FindLatest(dir, name, ext string) (Artifact, bool, error) {
	if dir == "" {
		return Artifact{}, false, fmt.Errorf("find latest module: dir is empty")
	}
	if name == "" {
		return Artifact{}, false, fmt.Errorf("find latest module: name is empty")
	}
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = DylibExt()
	}
	prefix := DylibPrefix() + name

	entries, err := os.ReadDir(dir)
	if err != nil {
		return Artifact{}, false, fmt.Errorf("find latest module in %s: %w", dir, err)
	}

	var (
		newest Artifact
		found  bool
	)
	for _, entry := range entries {
		fileName := entry.Name()
		if !strings.HasPrefix(fileName, prefix) {
			continue
		}
		if strings.TrimPrefix(filepath.Ext(fileName), ".") != ext {
			continue
		}
		path := filepath.Join(dir, fileName)
		// Stat follows symlinks so a link to a build output counts as that output.
		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Artifact{}, false, fmt.Errorf("stat %s: %w", path, err)
		}
		if !info.Mode().IsRegular() {
			continue
		}
		if found && info.ModTime().Before(newest.ModTime) {
			continue
		}
		newest = Artifact{
			Path:    path,
			ModTime: info.ModTime(),
		}
		found = true
	}
	return newest, found, nil
}
