package checksum

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"io"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"

	"github.com/sidkik/repocheck/pkg/errors"
)

// Factory creates a fresh streaming hash. Factories must be safe to call
// concurrently.
type Factory func() hash.Hash

// Registry maps normalized algorithm names to hash factories. It can't be
// modified after it's created, so a single Registry can be shared between
// goroutines.
type Registry struct {
	factories map[string]Factory
}

// UnknownAlgorithmError is returned when a manifest names an algorithm the
// registry doesn't know.
type UnknownAlgorithmError struct {
	Name string
}

func (err UnknownAlgorithmError) Error() string {
	return "unsupported checksum algorithm: " + err.Name
}

// NewRegistry creates a registry with the given algorithms. The names are
// normalized, so lookups are case-insensitive.
func NewRegistry(factories map[string]Factory) *Registry {
	reg := &Registry{factories: map[string]Factory{}}
	for name, factory := range factories {
		reg.factories[Normalize(name)] = factory
	}
	return reg
}

// DefaultRegistry returns a registry with the algorithms used by yum
// repositories, plus the SHA-3 and BLAKE2b families.
func DefaultRegistry() *Registry {
	return NewRegistry(map[string]Factory{
		"md5":    md5.New,
		"sha":    sha1.New,
		"sha1":   sha1.New,
		"sha224": sha256.New224,
		"sha256": sha256.New,
		"sha384": sha512.New384,
		"sha512": sha512.New,

		"sha3-256": sha3.New256,
		"sha3-512": sha3.New512,

		"blake2b-256": mustBlake2b(blake2b.New256),
		"blake2b-512": mustBlake2b(blake2b.New512),
	})
}

// blake2b's constructors only fail for invalid keys, and we never pass one.
func mustBlake2b(newHash func(key []byte) (hash.Hash, error)) Factory {
	return func() hash.Hash {
		h, err := newHash(nil)
		if err != nil {
			panic(err)
		}
		return h
	}
}

// Normalize returns the canonical spelling of an algorithm name: trimmed and
// lowercased, so "SHA256" and " sha256" are the same algorithm.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NormalizeDigest returns the canonical spelling of a hex digest.
func NormalizeDigest(digest string) string {
	return strings.ToLower(strings.TrimSpace(digest))
}

// Lookup returns the factory for the named algorithm.
func (reg *Registry) Lookup(name string) (Factory, error) {
	factory, ok := reg.factories[Normalize(name)]
	if !ok {
		return nil, UnknownAlgorithmError{Name: name}
	}
	return factory, nil
}

// Algorithms returns the sorted names of the registered algorithms.
func (reg *Registry) Algorithms() []string {
	var names []string
	for name := range reg.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// onlyReader hides any WriterTo implementation so that io.CopyBuffer actually
// uses the caller's buffer.
type onlyReader struct {
	io.Reader
}

// Sum streams r through a new hash created by factory, reading at most
// len(buf) bytes at a time. It returns the hex digest and the number of bytes
// read.
func Sum(r io.Reader, factory Factory, buf []byte) (string, int64, error) {
	if len(buf) == 0 {
		return "", 0, errors.New("empty hash buffer")
	}

	h := factory()
	n, err := io.CopyBuffer(h, onlyReader{r}, buf)
	if err != nil {
		return "", n, errors.WithContext(err, "read")
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
