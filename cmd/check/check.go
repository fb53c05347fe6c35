package check

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sidkik/repocheck/cmd/util"
	"github.com/sidkik/repocheck/pkg/checksum"
	"github.com/sidkik/repocheck/pkg/config"
	"github.com/sidkik/repocheck/pkg/errors"
	"github.com/sidkik/repocheck/pkg/fetch"
	"github.com/sidkik/repocheck/pkg/mirror"
	"github.com/sidkik/repocheck/pkg/reconcile"
	"github.com/sidkik/repocheck/pkg/verify"
)

// useRecordedSource is the value of the update flag when it's passed without
// a URL.
const useRecordedSource = "<recorded>"

const (
	listExcess  = 1
	pruneExcess = 2
)

var (
	fs            = afero.NewOsFs()
	out io.Writer = os.Stdout
	exit          = os.Exit
)

type options struct {
	update     string
	checkHash  bool
	fast       bool
	excess     int
	workers    int
	bufferSize int
	timeout    time.Duration
	configPath string
}

type settings struct {
	root       string
	source     mirror.Source
	workers    int
	bufferSize int
	timeout    time.Duration
	skipHash   bool
	excess     int
}

// New creates the command that checks, and optionally repairs, a mirror.
func New() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "repocheck [DIR]",
		Short: "Verify and repair a yum repository mirror",
		Long: "Verify every file listed by the repository metadata in DIR " +
			"(the current directory by default).\n\n" +
			"With -u URL, broken or missing files are downloaded again from URL, " +
			"and URL is recorded in the mirror. With -u alone, the recorded " +
			"URL is used.\n" +
			"With -r, files that aren't listed by the metadata are reported. " +
			"With -rr, they're deleted.",
		Example: "  repocheck /srv/mirror/centos\n" +
			"  repocheck -u http://mirror.example.com/centos/7/os/x86_64 /srv/mirror/centos\n" +
			"  repocheck -u -rr /srv/mirror/centos",
		Args: cobra.MaximumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			user, err := config.ParseUser(opts.configPath)
			if err != nil {
				util.HandleFatalError(errors.WithContext(err, "parse user config"))
			}

			s, err := newSettings(opts, user, cmd.Flags().Changed, args)
			if err != nil {
				util.HandleFatalError(err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ok, err := run(ctx, s)
			if err != nil {
				log.WithError(err).WithField("fatal", true).Error("Aborted check")
			}

			if !ok {
				fmt.Fprintln(out, "Bad repo.")
				exit(1)
			}
			fmt.Fprintln(out, "The repo is OK.")
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.update, "update", "u", "",
		"repair the mirror from this URL, or from the recorded URL if none is given")
	flags.Lookup("update").NoOptDefVal = useRecordedSource
	flags.BoolVarP(&opts.checkHash, "check", "c", false,
		"verify checksums, even if disabled by --fast or the config file")
	flags.BoolVar(&opts.fast, "fast", false,
		"only check that files exist and have the right size")
	flags.CountVarP(&opts.excess, "excess", "r",
		"report files that aren't listed by the metadata; repeat (-rr) to delete them")
	flags.IntVar(&opts.workers, "workers", config.DefaultWorkers,
		"number of files checked concurrently")
	flags.IntVar(&opts.bufferSize, "buffer-size", config.DefaultBufferSize,
		"size in bytes of the buffer used to hash each file")
	flags.DurationVar(&opts.timeout, "timeout", 0,
		"maximum time for each download (0 for no limit)")
	flags.StringVar(&opts.configPath, "config", "",
		"path to the config file (default "+config.UserConfigPath+")")
	return cmd
}

// newSettings merges the user config with the command line. Flags that were
// explicitly set take precedence.
func newSettings(opts options, user config.User, changed func(string) bool,
	args []string) (settings, error) {

	s := settings{
		workers:    user.Workers,
		bufferSize: user.BufferSize,
		timeout:    user.FetchTimeout.Duration,
		skipHash:   !user.HashesChecked(),
		excess:     opts.excess,
	}

	if changed("workers") {
		s.workers = opts.workers
	}
	if changed("buffer-size") {
		s.bufferSize = opts.bufferSize
	}
	if changed("timeout") {
		s.timeout = opts.timeout
	}
	if opts.fast {
		s.skipHash = true
	}
	if opts.checkHash {
		s.skipHash = false
	}
	if s.excess > pruneExcess {
		s.excess = pruneExcess
	}

	switch {
	case s.workers < 1:
		return settings{}, errors.NewFriendlyError(
			"--workers must be at least 1, got %d", s.workers)
	case s.bufferSize < 1:
		return settings{}, errors.NewFriendlyError(
			"--buffer-size must be at least 1, got %d", s.bufferSize)
	case s.timeout < 0:
		return settings{}, errors.NewFriendlyError(
			"--timeout must not be negative, got %s", s.timeout)
	}

	// Since the URL is optional, `-u URL DIR` is parsed as a bare `-u`
	// followed by two arguments. URLs are told apart from directories by
	// their scheme.
	if changed("update") {
		if opts.update != useRecordedSource {
			s.source.URL = opts.update
		} else {
			for i, arg := range args {
				if strings.Contains(arg, "://") {
					s.source.URL = arg
					args = append(args[:i:i], args[i+1:]...)
					break
				}
			}
			s.source.UseRecorded = s.source.URL == ""
		}
	}

	if len(args) > 1 {
		return settings{}, errors.NewFriendlyError(
			"Expected at most one directory, got %q", args)
	}

	s.root = "."
	if len(args) == 1 {
		s.root = args[0]
	}

	root, err := homedir.Expand(s.root)
	if err != nil {
		return settings{}, errors.WithContext(err, "expand mirror path")
	}
	s.root = root
	return s, nil
}

// run checks the mirror, and returns whether every file passed. The error is
// only set if the run had to be aborted.
func run(ctx context.Context, s settings) (bool, error) {
	verifier := verify.New(fs, checksum.DefaultRegistry(), verify.Options{
		BufferSize: s.bufferSize,
		SkipHash:   s.skipHash,
	})

	cfg := mirror.Config{
		Fs:       fs,
		Verifier: verifier,
		Fetcher:  fetch.HTTPFetcher{Fs: fs, Timeout: s.timeout},
		Log:      log.StandardLogger(),
		Workers:  s.workers,
	}

	// Concurrent downloads would fight over the progress line.
	if s.workers <= 1 {
		pp := util.NewProgressPrinter(out)
		cfg.Progress = pp.For
		defer pp.Clear()
	}

	report, err := mirror.New(cfg).Synchronize(ctx, s.root, s.source)
	if err != nil {
		return false, err
	}

	log.WithFields(log.Fields{
		"checked":     len(report.Root) + len(report.Packages),
		"repaired":    report.Repaired(),
		"failed":      report.Failures,
		"bytesHashed": report.BytesHashed,
	}).Info("Finished checking repository")

	if !report.OK() || s.excess < listExcess {
		return report.OK(), nil
	}

	excess, err := reconcile.FindExcess(fs, s.root, report.Expected)
	if err != nil {
		return false, errors.WithContext(err, "find excess files")
	}

	for _, path := range excess {
		fmt.Fprintf(out, "Excess file: %s\n", path)
	}

	if s.excess < pruneExcess || len(excess) == 0 {
		return true, nil
	}

	removed, err := reconcile.Prune(fs, s.root, excess)
	log.WithField("count", len(removed)).Info("Removed excess files")
	if err != nil {
		return false, errors.WithContext(err, "remove excess files")
	}
	return true, nil
}
