package verify

import (
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/spf13/afero"

	"github.com/sidkik/repocheck/pkg/checksum"
	"github.com/sidkik/repocheck/pkg/errors"
	"github.com/sidkik/repocheck/pkg/manifest"
)

// DefaultBufferSize is the size of the buffer used to stream files through
// hashes when no size is configured.
const DefaultBufferSize = 1 << 20

// Status is the outcome of checking a single file. The checks run in the
// order the statuses are declared, and stop at the first failure.
type Status int

const (
	// NotExist means the file is missing.
	NotExist Status = iota

	// BadSize means the file exists but has the wrong length.
	BadSize

	// BadHash means the file has the right length but the wrong contents.
	BadHash

	// OK means every check passed.
	OK
)

func (s Status) String() string {
	switch s {
	case NotExist:
		return "does not exist"
	case BadSize:
		return "size mismatch"
	case BadHash:
		return "hash mismatch"
	case OK:
		return "ok"
	default:
		return "unknown status " + strconv.Itoa(int(s))
	}
}

// Result is the complete outcome of verifying one descriptor.
type Result struct {
	Status Status

	// Path is the slash-separated path relative to the mirror root.
	Path string

	// Expected and Actual describe the mismatch for BadSize and BadHash.
	Expected string
	Actual   string
}

// OK returns whether the file passed verification.
func (r Result) OK() bool {
	return r.Status == OK
}

// Err returns a VerificationError describing the failure, or nil if the file
// is OK.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	return errors.VerificationError{
		Path:     r.Path,
		Status:   r.Status.String(),
		Expected: r.Expected,
		Actual:   r.Actual,
	}
}

// Options configures a Verifier.
type Options struct {
	// BufferSize is the size of the buffer files are hashed through. Each
	// call to Verify allocates its own buffer.
	BufferSize int

	// SkipHash disables the hash check, so only existence and size are
	// verified.
	SkipHash bool
}

// Verifier checks files under a mirror root against their descriptors. It's
// safe for concurrent use.
type Verifier struct {
	fs       afero.Fs
	registry *checksum.Registry
	opts     Options

	bytesHashed int64
}

// New creates a Verifier that reads files from fs and resolves algorithms with
// registry.
func New(fs afero.Fs, registry *checksum.Registry, opts Options) *Verifier {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	return &Verifier{fs: fs, registry: registry, opts: opts}
}

// BytesHashed returns the total number of bytes streamed through hashes by
// this Verifier.
func (v *Verifier) BytesHashed() int64 {
	return atomic.LoadInt64(&v.bytesHashed)
}

// Verify checks the file described by d under root. The existence check runs
// first, then the size check, and the file is only hashed if its size is
// correct. The returned error is for problems that prevent a verdict, such
// as an unreadable file or an unknown algorithm.
func (v *Verifier) Verify(root string, d manifest.FileDescriptor) (Result, error) {
	result := Result{Path: d.RelativePath}
	path := Join(root, d.RelativePath)

	fi, err := v.fs.Stat(path)
	if os.IsNotExist(err) {
		result.Status = NotExist
		return result, nil
	} else if err != nil {
		return result, errors.WithContext(err, "stat")
	}

	// Replacing a directory could throw away files that aren't ours, so it's
	// left for the operator to sort out.
	if fi.IsDir() {
		return result, errors.New("%s is a directory, not a file", d.RelativePath)
	}

	if d.ExpectedSize.Known && fi.Size() != d.ExpectedSize.Bytes {
		result.Status = BadSize
		result.Expected = strconv.FormatInt(d.ExpectedSize.Bytes, 10)
		result.Actual = strconv.FormatInt(fi.Size(), 10)
		return result, nil
	}

	if !v.opts.SkipHash {
		digest, err := v.hash(path, d.ChecksumAlgorithm)
		if err != nil {
			return result, err
		}

		if digest != checksum.NormalizeDigest(d.ChecksumValue) {
			result.Status = BadHash
			result.Expected = checksum.NormalizeDigest(d.ChecksumValue)
			result.Actual = digest
			return result, nil
		}
	}

	result.Status = OK
	return result, nil
}

func (v *Verifier) hash(path, algorithm string) (string, error) {
	factory, err := v.registry.Lookup(algorithm)
	if err != nil {
		return "", err
	}

	f, err := v.fs.Open(path)
	if err != nil {
		return "", errors.WithContext(err, "open")
	}
	defer f.Close()

	digest, n, err := checksum.Sum(f, factory, make([]byte, v.opts.BufferSize))
	atomic.AddInt64(&v.bytesHashed, n)
	if err != nil {
		return "", errors.WithContext(err, "hash")
	}
	return digest, nil
}

// Join resolves a slash-separated repository path against the mirror root
// using the host's path separator.
func Join(root, relPath string) string {
	return filepath.Join(root, filepath.FromSlash(relPath))
}
