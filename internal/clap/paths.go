package clap

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// PathEnv names the environment variable holding extra search directories.
const PathEnv = "CLAP_PATH"

// SearchPaths returns the directories scanned for .clap modules: the
// entries of $CLAP_PATH followed by the platform defaults.
func SearchPaths() []string {
	return searchPaths(runtime.GOOS, os.Getenv, os.UserHomeDir)
}

func searchPaths(goos string, getenv func(string) string, home func() (string, error)) []string {
	var dirs []string
	for _, dir := range filepath.SplitList(getenv(PathEnv)) {
		if dir != "" {
			dirs = append(dirs, dir)
		}
	}

	homeDir, homeErr := home()
	switch goos {
	case "darwin":
		if homeErr == nil {
			dirs = append(dirs, filepath.Join(homeDir, "Library", "Audio", "Plug-Ins", "CLAP"))
		}
		dirs = append(dirs, "/Library/Audio/Plug-Ins/CLAP")
	case "windows":
		if common := getenv("COMMONPROGRAMFILES"); common != "" {
			dirs = append(dirs, filepath.Join(common, "CLAP"))
		}
		if local := getenv("LOCALAPPDATA"); local != "" {
			dirs = append(dirs, filepath.Join(local, "Programs", "Common", "CLAP"))
		}
	default:
		if homeErr == nil {
			dirs = append(dirs, filepath.Join(homeDir, ".clap"))
		}
		dirs = append(dirs, "/usr/lib/clap")
	}
	return dirs
}

// FindModules walks dirs, following symlinks, and returns every .clap
// entry it finds in sorted order. Missing directories are skipped. On
// macOS a module is a bundle directory, elsewhere a regular file.
func FindModules(dirs []string) ([]string, error) {
	f := finder{bundles: runtime.GOOS == "darwin", seen: make(map[string]bool)}
	for _, dir := range dirs {
		if err := f.walk(dir); err != nil {
			return nil, err
		}
	}
	sort.Strings(f.found)
	return f.found, nil
}

type finder struct {
	bundles bool
	seen    map[string]bool
	found   []string
}

func (f *finder) walk(dir string) error {
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if f.seen[resolved] {
		return nil
	}
	f.seen[resolved] = true

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		info, err := os.Stat(path)
		if err != nil {
			// Dangling symlink.
			continue
		}
		isModule := strings.EqualFold(filepath.Ext(entry.Name()), ".clap")
		switch {
		case isModule && info.IsDir() == f.bundles:
			f.found = append(f.found, path)
		case info.IsDir():
			if err := f.walk(path); err != nil {
				return err
			}
		}
	}
	return nil
}
