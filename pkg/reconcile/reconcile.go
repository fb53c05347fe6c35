// Package reconcile finds and removes files under a mirror that no manifest
// accounts for.
package reconcile

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/repocheck/pkg/errors"
)

// Snapshot returns the slash-separated paths, relative to root, of every
// regular file under root.
func Snapshot(fs afero.Fs, root string) (map[string]struct{}, error) {
	present := map[string]struct{}{}
	err := afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if fi.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return errors.WithContext(err, "normalize path")
		}
		if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
			return errors.New("%q is outside of %q", path, root)
		}
		present[filepath.ToSlash(relPath)] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, errors.WithContext(err, "walk")
	}
	return present, nil
}

// Diff returns the sorted paths in present that aren't in expected.
func Diff(present, expected map[string]struct{}) []string {
	var excess []string
	for path := range present {
		if _, ok := expected[path]; !ok {
			excess = append(excess, path)
		}
	}
	sort.Strings(excess)
	return excess
}

// FindExcess returns the sorted relative paths of the files under root that
// aren't in expected.
func FindExcess(fs afero.Fs, root string, expected map[string]struct{}) ([]string, error) {
	present, err := Snapshot(fs, root)
	if err != nil {
		return nil, err
	}
	return Diff(present, expected), nil
}

// Prune deletes the given files, and then any directories that were left
// empty. The root itself is never removed. It keeps going after a failed
// removal, and returns the paths that were removed along with the first
// error.
func Prune(fs afero.Fs, root string, excess []string) (removed []string, err error) {
	dirs := map[string]struct{}{}
	for _, relPath := range excess {
		path := filepath.Join(root, filepath.FromSlash(relPath))
		if rmErr := fs.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			log.WithError(rmErr).WithField("path", relPath).Warn("Failed to remove excess file")
			if err == nil {
				err = errors.WithContext(rmErr, "remove")
			}
			continue
		}

		log.WithField("path", relPath).Debug("Removed excess file")
		removed = append(removed, relPath)
		for dir := filepath.Dir(path); isUnder(root, dir); dir = filepath.Dir(dir) {
			dirs[dir] = struct{}{}
		}
	}

	if dirErr := removeEmptyDirs(fs, dirs); dirErr != nil && err == nil {
		err = dirErr
	}
	return removed, err
}

// removeEmptyDirs removes the empty directories among dirs. Deeper
// directories go first so that a parent whose only entries were empty
// directories is removed too.
func removeEmptyDirs(fs afero.Fs, dirs map[string]struct{}) error {
	var sorted []string
	for dir := range dirs {
		sorted = append(sorted, dir)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return len(sorted[i]) > len(sorted[j])
	})

	for _, dir := range sorted {
		empty, err := afero.IsEmpty(fs, dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return errors.WithContext(err, "check directory")
		}
		if !empty {
			continue
		}

		if err := fs.Remove(dir); err != nil {
			return errors.WithContext(err, "remove directory")
		}
		log.WithField("path", dir).Debug("Removed empty directory")
	}
	return nil
}

// isUnder returns whether path is strictly inside root.
func isUnder(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != "." && rel != ".." &&
		!strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
