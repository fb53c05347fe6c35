// Package mirror keeps a local copy of a yum repository consistent with its
// manifests.
//
// Every file listed by the manifests is verified, and files that are missing
// or corrupt are deleted, downloaded again from the source URL, and verified
// once more. A file is downloaded at most once per run: if the new copy is
// also bad, the file is reported as broken and the run moves on.
package mirror

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/repocheck/pkg/errors"
	"github.com/sidkik/repocheck/pkg/fetch"
	"github.com/sidkik/repocheck/pkg/manifest"
	"github.com/sidkik/repocheck/pkg/verify"
)

// ProgressFactory returns the progress callback for downloading the file at
// relPath. It may return nil to disable progress reporting.
type ProgressFactory func(relPath string) fetch.ProgressFunc

// Config contains the collaborators of a Synchronizer.
type Config struct {
	Fs       afero.Fs
	Verifier *verify.Verifier
	Fetcher  fetch.Fetcher
	Log      logrus.FieldLogger

	// Workers is the number of files checked concurrently. Values below two
	// check files one at a time.
	Workers int

	Progress ProgressFactory
}

// Synchronizer verifies and repairs mirrors.
type Synchronizer struct {
	fs       afero.Fs
	verifier *verify.Verifier
	fetcher  fetch.Fetcher
	log      logrus.FieldLogger
	workers  int
	progress ProgressFactory
}

// New creates a Synchronizer.
func New(cfg Config) *Synchronizer {
	logger := cfg.Log
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Synchronizer{
		fs:       cfg.Fs,
		verifier: cfg.Verifier,
		fetcher:  cfg.Fetcher,
		log:      logger,
		workers:  cfg.Workers,
		progress: cfg.Progress,
	}
}

// Outcome is the result of ensuring a single file.
type Outcome struct {
	Descriptor manifest.FileDescriptor

	// Initial is the result of the first verification. If the file wasn't
	// fetched, it's also the final result.
	Initial verify.Result

	// Final is the result of the last verification.
	Final verify.Result

	// Fetched is whether a download was attempted.
	Fetched bool

	// NoSource is set when the file needed repair but no source was
	// configured.
	NoSource bool

	// FetchErr is the reason the download failed.
	FetchErr error

	// Err is an error that prevented verification or repair, such as an
	// unreadable file or an unknown checksum algorithm.
	Err error

	// PolicyErr is set when the file's kind isn't allowed at its level.
	PolicyErr error
}

// Verified returns whether the file is intact after the repair protocol.
func (o Outcome) Verified() bool {
	return o.Err == nil && o.FetchErr == nil && o.Final.OK()
}

// OK returns whether the file counts as a success: intact and of an allowed
// kind.
func (o Outcome) OK() bool {
	return o.Verified() && o.PolicyErr == nil
}

// Repaired returns whether the file was broken and has been fixed.
func (o Outcome) Repaired() bool {
	return o.Fetched && o.Verified()
}

// Ensure makes sure the file described by d is intact under root. If it
// isn't and source is set, the file is deleted, downloaded from source and
// verified again. There is no further retry.
func (s *Synchronizer) Ensure(ctx context.Context, root, source string, d manifest.FileDescriptor) Outcome {
	out := Outcome{Descriptor: d}

	result, err := s.verifier.Verify(root, d)
	out.Initial, out.Final = result, result
	if err != nil {
		out.Err = errors.WithContext(err, "verify")
		return out
	}

	if result.OK() {
		return out
	}

	if source == "" {
		out.NoSource = true
		return out
	}

	// Never leave a corrupt file in place, even if the download fails.
	dest := verify.Join(root, d.RelativePath)
	if result.Status != verify.NotExist {
		if err := s.fs.Remove(dest); err != nil && !os.IsNotExist(err) {
			out.Err = errors.WithContext(err, "remove corrupt file")
			return out
		}
	}

	var progress fetch.ProgressFunc
	if s.progress != nil {
		progress = s.progress(d.RelativePath)
	}

	s.log.WithField("path", d.RelativePath).Info("Downloading file")
	out.Fetched = true
	if err := s.fetcher.Fetch(ctx, fileURL(source, d.RelativePath), dest, progress); err != nil {
		out.FetchErr = err
		return out
	}

	result, err = s.verifier.Verify(root, d)
	out.Final = result
	if err != nil {
		out.Err = errors.WithContext(err, "verify download")
	}
	return out
}
