// Package manifest parses the two levels of yum repository metadata into
// FileDescriptors.
//
// The root manifest (repodata/repomd.xml) lists metadata files. Exactly one of
// them has the type "primary" and names the package list, which in turn lists
// every package file in the repository.
package manifest

import (
	"path"
	"strings"

	"github.com/sidkik/repocheck/pkg/checksum"
	"github.com/sidkik/repocheck/pkg/errors"
)

const (
	// RootPath is the location of the root manifest relative to the mirror
	// root.
	RootPath = "repodata/repomd.xml"

	// KindPrimary marks the root manifest entry that points at the package
	// list.
	KindPrimary = "primary"

	// KindPackage is the only kind allowed in the package list.
	KindPackage = "rpm"

	rootNamespace    = "http://linux.duke.edu/metadata/repo"
	packageNamespace = "http://linux.duke.edu/metadata/common"
)

// Size is a file size that may be unknown. The zero value is an unknown size,
// which is different from a known size of zero.
type Size struct {
	Bytes int64
	Known bool
}

// KnownSize returns a Size of n bytes.
func KnownSize(n int64) Size {
	return Size{Bytes: n, Known: true}
}

// FileDescriptor is one file listed in a manifest.
type FileDescriptor struct {
	// Kind is the entry's type, e.g. "primary" in the root manifest or "rpm"
	// in the package list.
	Kind string

	// ChecksumAlgorithm is the normalized (lowercase) algorithm name.
	ChecksumAlgorithm string

	// ChecksumValue is the normalized (lowercase) hex digest.
	ChecksumValue string

	// RelativePath is the slash-separated path of the file relative to the
	// mirror root.
	RelativePath string

	ExpectedSize Size
}

// Root is the parsed root manifest.
type Root struct {
	Revision    string
	Descriptors []FileDescriptor
}

// Primary returns the single descriptor of kind "primary". No primary entry,
// or more than one, is a structural error since the package list can't be
// located.
func (root Root) Primary() (FileDescriptor, error) {
	var primaries []FileDescriptor
	for _, d := range root.Descriptors {
		if d.Kind == KindPrimary {
			primaries = append(primaries, d)
		}
	}

	switch len(primaries) {
	case 0:
		return FileDescriptor{}, errors.NewStructuralError("bad or absent primary package list")
	case 1:
		return primaries[0], nil
	default:
		var paths []string
		for _, d := range primaries {
			paths = append(paths, d.RelativePath)
		}
		return FileDescriptor{}, errors.NewStructuralError(
			"duplicated primary package list: %s", strings.Join(paths, ", "))
	}
}

func newDescriptor(kind, algorithm, digest, href string, size Size) (FileDescriptor, error) {
	switch {
	case strings.TrimSpace(algorithm) == "":
		return FileDescriptor{}, errors.MissingFieldError{Field: "checksum type"}
	case strings.TrimSpace(digest) == "":
		return FileDescriptor{}, errors.MissingFieldError{Field: "checksum"}
	case strings.TrimSpace(href) == "":
		return FileDescriptor{}, errors.MissingFieldError{Field: "location href"}
	}

	relPath, err := cleanRelativePath(href)
	if err != nil {
		return FileDescriptor{}, err
	}

	return FileDescriptor{
		Kind:              strings.TrimSpace(kind),
		ChecksumAlgorithm: checksum.Normalize(algorithm),
		ChecksumValue:     checksum.NormalizeDigest(digest),
		RelativePath:      relPath,
		ExpectedSize:      size,
	}, nil
}

// cleanRelativePath normalizes a location href and rejects paths that would
// resolve outside the mirror root.
func cleanRelativePath(href string) (string, error) {
	slashed := strings.ReplaceAll(strings.TrimSpace(href), "\\", "/")
	if path.IsAbs(slashed) {
		return "", errors.New("location %q is absolute", href)
	}

	cleaned := path.Clean(slashed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("location %q is outside the repository", href)
	}
	return cleaned, nil
}
