package manifest

import (
	"compress/bzip2"
	"compress/gzip"
	"io"
	"io/ioutil"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/sidkik/repocheck/pkg/errors"
)

// Decompress wraps r in a decompressor chosen by the suffix of name. Files
// without a recognized suffix are returned as is.
func Decompress(name string, r io.Reader) (io.ReadCloser, error) {
	switch {
	case strings.HasSuffix(name, ".gz"):
		gzr, err := gzip.NewReader(r)
		if err != nil {
			return nil, badCompression(err, "new gzip reader")
		}
		return gzr, nil
	case strings.HasSuffix(name, ".bz2"):
		return ioutil.NopCloser(bzip2.NewReader(r)), nil
	case strings.HasSuffix(name, ".xz"):
		xzr, err := xz.NewReader(r)
		if err != nil {
			return nil, badCompression(err, "new xz reader")
		}
		return ioutil.NopCloser(xzr), nil
	case strings.HasSuffix(name, ".zst"):
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, badCompression(err, "new zstd reader")
		}
		return zr.IOReadCloser(), nil
	default:
		return ioutil.NopCloser(r), nil
	}
}

func badCompression(err error, context string) error {
	return errors.NewStructuralError("malformed package list: %s",
		errors.WithContext(err, context))
}
