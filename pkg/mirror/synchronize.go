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

// BackupSuffix is appended to the previous root manifest when a fresh copy is
// downloaded.
const BackupSuffix = ".bak"

// Report summarizes a run.
type Report struct {
	// Source is the URL used for repairs, or empty if repairs were disabled.
	Source string

	Revision string
	Root     []Outcome
	Packages []Outcome

	// Failures is the number of files, across both manifest levels, that
	// are broken or have a disallowed kind.
	Failures int

	// Expected is the set of slash-separated paths, relative to the mirror
	// root, that the manifests and the run itself account for.
	Expected map[string]struct{}

	BytesHashed int64
}

// OK returns whether every file passed.
func (r Report) OK() bool {
	return r.Failures == 0
}

// Repaired returns the number of files that were fixed by a download.
func (r Report) Repaired() int {
	var n int
	for _, outcomes := range [][]Outcome{r.Root, r.Packages} {
		for _, o := range outcomes {
			if o.Repaired() {
				n++
			}
		}
	}
	return n
}

// Synchronize verifies the whole mirror at root, repairing files from src when
// a source is available. The returned error is a StructuralError (or wraps
// one) if the run had to be aborted, in which case the report is partial.
// Otherwise, the run succeeded iff Report.OK.
func (s *Synchronizer) Synchronize(ctx context.Context, root string, src Source) (
	report Report, err error) {

	report.Expected = map[string]struct{}{}
	startBytes := s.verifier.BytesHashed()
	defer func() {
		report.BytesHashed = s.verifier.BytesHashed() - startBytes
	}()

	fi, err := s.fs.Stat(root)
	if err != nil || !fi.IsDir() {
		return report, errors.NewStructuralError("directory %q does not exist", root)
	}

	source, err := s.resolveSource(root, src)
	if err != nil {
		return report, err
	}
	report.Source = source
	if source != "" {
		s.log.WithField("source", source).Info("Updating from source")
	}

	report.Expected[SourceMarkerPath] = struct{}{}
	report.Expected[manifest.RootPath] = struct{}{}

	rootManifest, err := s.loadRootManifest(ctx, root, source, &report)
	if err != nil {
		return report, err
	}
	report.Revision = rootManifest.Revision

	for _, d := range rootManifest.Descriptors {
		report.Expected[d.RelativePath] = struct{}{}
	}
	report.Root = s.ensureAll(ctx, root, source, rootManifest.Descriptors)
	for _, o := range report.Root {
		s.logOutcome(o)
		if !o.OK() {
			report.Failures++
		}
	}

	primary, err := rootManifest.Primary()
	if err != nil {
		return report, err
	}
	for _, o := range report.Root {
		if o.Descriptor.RelativePath == primary.RelativePath && !o.Verified() {
			return report, errors.NewStructuralError(
				"primary package list %q is unavailable", primary.RelativePath)
		}
	}

	s.log.Info("Checking package files")
	packages, err := s.loadPackages(root, primary)
	if err != nil {
		return report, err
	}

	for _, d := range packages {
		report.Expected[d.RelativePath] = struct{}{}
	}
	report.Packages = s.ensureAll(ctx, root, source, packages)
	for i, o := range report.Packages {
		if o.Descriptor.Kind != manifest.KindPackage {
			o.PolicyErr = errors.TypePolicyError{
				Path: o.Descriptor.RelativePath,
				Kind: o.Descriptor.Kind,
				Want: manifest.KindPackage,
			}
			report.Packages[i] = o
		}

		s.logOutcome(o)
		if !o.OK() {
			report.Failures++
		}
	}
	return report, nil
}

func (s *Synchronizer) resolveSource(root string, src Source) (string, error) {
	switch {
	case src.UseRecorded:
		source, err := ReadSource(s.fs, root)
		if err != nil {
			return "", errors.NewStructuralError("read recorded source: %s", err)
		}
		return NormalizeSourceURL(source), nil
	case src.URL != "":
		source := NormalizeSourceURL(src.URL)
		if err := WriteSource(s.fs, root, source); err != nil {
			return "", errors.NewStructuralError("record source: %s", err)
		}
		return source, nil
	default:
		return "", nil
	}
}

// loadRootManifest downloads a fresh root manifest if there's a source, and
// parses it. The previous copy is kept as a backup and restored if the
// download fails.
func (s *Synchronizer) loadRootManifest(ctx context.Context, root, source string,
	report *Report) (manifest.Root, error) {

	path := verify.Join(root, manifest.RootPath)
	exists, err := afero.Exists(s.fs, path)
	if err != nil {
		return manifest.Root{}, errors.NewStructuralError("stat root manifest: %s", err)
	}

	if !exists && source == "" {
		return manifest.Root{}, errors.NewStructuralError(
			"main file %q does not exist", manifest.RootPath)
	}

	if source != "" {
		if err := s.refreshRootManifest(ctx, root, source, exists, report); err != nil {
			return manifest.Root{}, err
		}
	}

	f, err := s.fs.Open(path)
	if err != nil {
		return manifest.Root{}, errors.NewStructuralError("open root manifest: %s", err)
	}
	defer f.Close()

	return manifest.ParseRoot(f)
}

func (s *Synchronizer) refreshRootManifest(ctx context.Context, root, source string,
	exists bool, report *Report) error {

	path := verify.Join(root, manifest.RootPath)
	backupPath := path + BackupSuffix
	if exists {
		if err := s.fs.Remove(backupPath); err != nil && !os.IsNotExist(err) {
			return errors.NewStructuralError("remove old backup: %s", err)
		}
		if err := s.fs.Rename(path, backupPath); err != nil {
			return errors.NewStructuralError("back up root manifest: %s", err)
		}
		report.Expected[manifest.RootPath+BackupSuffix] = struct{}{}
	}

	var progress fetch.ProgressFunc
	if s.progress != nil {
		progress = s.progress(manifest.RootPath)
	}

	err := s.fetcher.Fetch(ctx, fileURL(source, manifest.RootPath), path, progress)
	if err == nil {
		return nil
	}

	if !exists {
		return errors.NewStructuralError("download root manifest: %s", err)
	}

	s.log.WithError(err).Warn("Failed to download the root manifest. " +
		"Falling back to the local copy.")
	if err := s.fs.Rename(backupPath, path); err != nil {
		return errors.NewStructuralError("restore root manifest: %s", err)
	}
	delete(report.Expected, manifest.RootPath+BackupSuffix)
	return nil
}

func (s *Synchronizer) loadPackages(root string, primary manifest.FileDescriptor) (
	[]manifest.FileDescriptor, error) {

	f, err := s.fs.Open(verify.Join(root, primary.RelativePath))
	if err != nil {
		return nil, errors.NewStructuralError("open package list: %s", err)
	}
	defer f.Close()

	r, err := manifest.Decompress(primary.RelativePath, f)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return manifest.ParsePackages(r)
}

func (s *Synchronizer) logOutcome(o Outcome) {
	logger := s.log.WithField("path", o.Descriptor.RelativePath)

	switch {
	case o.Err != nil:
		logger.WithError(o.Err).Warn("Failed to check file")
	case o.FetchErr != nil:
		transient := false
		if fetchErr, ok := errors.RootCause(o.FetchErr).(errors.FetchError); ok {
			transient = fetchErr.Transient
		}
		withResultFields(logger, o.Initial).WithError(o.FetchErr).
			WithField("transient", transient).Warn("Could not repair file")
	case !o.Final.OK():
		msg := "File failed verification"
		switch {
		case o.NoSource:
			msg = "File failed verification and no source is configured"
		case o.Fetched:
			msg = "Downloaded file failed verification"
		}
		if o.Final.Status == verify.BadHash {
			logger = logger.WithField("algorithm", o.Descriptor.ChecksumAlgorithm)
		}
		withResultFields(logger, o.Final).Warn(msg)
	case o.Fetched:
		logger.Info("Repaired file")
	default:
		logger.Debug("File OK")
	}

	if o.PolicyErr != nil {
		logger.WithError(o.PolicyErr).Warn("File is not an RPM")
	}
}

func withResultFields(logger logrus.FieldLogger, result verify.Result) logrus.FieldLogger {
	fields := logrus.Fields{"status": result.Status.String()}
	if result.Expected != "" || result.Actual != "" {
		fields["expected"] = result.Expected
		fields["actual"] = result.Actual
	}
	return logger.WithFields(fields)
}
