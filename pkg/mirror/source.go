package mirror

import (
	"net/url"
	"os"
	"strings"

	"github.com/spf13/afero"

	"github.com/sidkik/repocheck/pkg/errors"
	"github.com/sidkik/repocheck/pkg/verify"
)

// SourceMarkerPath is the file, relative to the mirror root, that records the
// URL the mirror was last updated from.
const SourceMarkerPath = ".url"

// Source selects where broken files are repaired from.
type Source struct {
	// URL is the base URL of the upstream repository. If it's empty and
	// UseRecorded is false, broken files aren't repaired.
	URL string

	// UseRecorded reads the URL from the source marker left by a previous
	// run instead.
	UseRecorded bool
}

// NormalizeSourceURL makes sure the URL ends with exactly one slash, so that
// relative paths can be appended to it.
func NormalizeSourceURL(source string) string {
	return strings.TrimRight(strings.TrimSpace(source), "/") + "/"
}

// ReadSource returns the URL recorded in the mirror's source marker.
func ReadSource(fs afero.Fs, root string) (string, error) {
	path := verify.Join(root, SourceMarkerPath)
	contents, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.FileNotFound{Path: path}
		}
		return "", errors.WithContext(err, "read")
	}

	lines := strings.SplitN(string(contents), "\n", 2)
	source := strings.TrimSpace(lines[0])
	if source == "" {
		return "", errors.New("source marker %q is empty", path)
	}
	return source, nil
}

// WriteSource records source in the mirror's source marker.
func WriteSource(fs afero.Fs, root, source string) error {
	path := verify.Join(root, SourceMarkerPath)
	if err := afero.WriteFile(fs, path, []byte(source), 0644); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}

// fileURL appends a slash-separated repository path to a normalized source
// URL, escaping each path segment.
func fileURL(source, relPath string) string {
	segments := strings.Split(relPath, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return source + strings.Join(segments, "/")
}
