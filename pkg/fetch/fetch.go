package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/repocheck/pkg/errors"
	"github.com/sidkik/repocheck/pkg/version"
)

// partialSuffix is appended to the destination while a download is in
// progress. The file is only renamed into place once it's complete.
const partialSuffix = ".part"

// ProgressFunc is called as data is written. total is -1 if the server didn't
// announce a length.
type ProgressFunc func(written, total int64)

// Fetcher downloads a URL into a file.
type Fetcher interface {
	// Fetch downloads url into dest, creating any missing parent
	// directories. Failures are returned as errors.FetchError.
	Fetch(ctx context.Context, url, dest string, progress ProgressFunc) error
}

// HTTPFetcher fetches files over HTTP(S).
type HTTPFetcher struct {
	// Client is the client used to make requests. Defaults to
	// http.DefaultClient.
	Client *http.Client

	// Fs is where downloaded files are written.
	Fs afero.Fs

	// Timeout bounds each download, including the time spent reading the
	// body. Zero means no limit beyond the caller's context.
	Timeout time.Duration
}

// Fetch implements Fetcher.
func (f HTTPFetcher) Fetch(ctx context.Context, url, dest string, progress ProgressFunc) error {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	fatal := func(err error) error {
		return errors.FetchError{URL: url, Err: err}
	}
	transient := func(err error) error {
		return errors.FetchError{URL: url, Transient: true, Err: err}
	}

	if err := f.Fs.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fatal(errors.WithContext(err, "make parent directory"))
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fatal(errors.WithContext(err, "new request"))
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := client.Do(req)
	if err != nil {
		return transient(errors.WithContext(err, "get"))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case isTransientStatus(resp.StatusCode):
		return transient(fmt.Errorf("server responded with %s", resp.Status))
	default:
		return fatal(fmt.Errorf("server responded with %s", resp.Status))
	}

	partialPath := dest + partialSuffix
	out, err := f.Fs.OpenFile(partialPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fatal(errors.WithContext(err, "create"))
	}

	w := &trackingWriter{w: out}
	_, copyErr := io.Copy(w, &readerWithProgress{
		reader:   resp.Body,
		total:    resp.ContentLength,
		callback: progress,
	})
	closeErr := out.Close()

	switch {
	case copyErr != nil && w.err != nil:
		f.removePartial(partialPath)
		return fatal(errors.WithContext(copyErr, "write"))
	case copyErr != nil:
		f.removePartial(partialPath)
		return transient(errors.WithContext(copyErr, "read body"))
	case closeErr != nil:
		f.removePartial(partialPath)
		return fatal(errors.WithContext(closeErr, "close"))
	}

	if err := f.Fs.Rename(partialPath, dest); err != nil {
		f.removePartial(partialPath)
		return fatal(errors.WithContext(err, "rename"))
	}
	return nil
}

func (f HTTPFetcher) removePartial(path string) {
	if err := f.Fs.Remove(path); err != nil && !os.IsNotExist(err) {
		log.WithError(err).WithField("path", path).Debug(
			"Failed to clean up partial download")
	}
}

// isTransientStatus returns whether a request that failed with the given
// status might succeed if retried later.
func isTransientStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= 500
}

// trackingWriter remembers whether a failed copy was caused by the
// destination rather than the source.
type trackingWriter struct {
	w   io.Writer
	err error
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil {
		t.err = err
	}
	return n, err
}

type readerWithProgress struct {
	reader   io.Reader
	total    int64
	written  int64
	callback ProgressFunc
}

func (r *readerWithProgress) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.written += int64(n)
		if r.callback != nil {
			r.callback(r.written, r.total)
		}
	}
	return n, err
}
