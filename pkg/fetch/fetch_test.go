package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"

	"github.com/sidkik/repocheck/pkg/errors"
)

func newServer(handler http.HandlerFunc) *httptest.Server {
	return httptest.NewServer(handler)
}

func TestFetch(t *testing.T) {
	server := newServer(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "repocheck/")
		w.Write([]byte("package contents"))
	})
	defer server.Close()

	fs := afero.NewMemMapFs()
	var lastWritten, lastTotal int64
	progress := func(written, total int64) {
		lastWritten, lastTotal = written, total
	}

	fetcher := HTTPFetcher{Fs: fs}
	err := fetcher.Fetch(context.Background(), server.URL+"/pkgs/a.rpm", "/mirror/pkgs/a.rpm", progress)
	assert.NoError(t, err)

	contents, err := afero.ReadFile(fs, "/mirror/pkgs/a.rpm")
	assert.NoError(t, err)
	assert.Equal(t, "package contents", string(contents))
	assert.Equal(t, int64(len("package contents")), lastWritten)
	assert.Equal(t, int64(len("package contents")), lastTotal)

	exists, err := afero.Exists(fs, "/mirror/pkgs/a.rpm"+partialSuffix)
	assert.NoError(t, err)
	assert.False(t, exists)
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		expTransient bool
	}{
		{name: "not found", status: http.StatusNotFound, expTransient: false},
		{name: "forbidden", status: http.StatusForbidden, expTransient: false},
		{name: "server error", status: http.StatusInternalServerError, expTransient: true},
		{name: "unavailable", status: http.StatusServiceUnavailable, expTransient: true},
		{name: "request timeout", status: http.StatusRequestTimeout, expTransient: true},
		{name: "rate limited", status: http.StatusTooManyRequests, expTransient: true},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			server := newServer(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(test.status)
			})
			defer server.Close()

			fs := afero.NewMemMapFs()
			err := HTTPFetcher{Fs: fs}.Fetch(context.Background(), server.URL+"/a", "/mirror/a", nil)

			fetchErr, ok := err.(errors.FetchError)
			if assert.True(t, ok, "unexpected error type %T", err) {
				assert.Equal(t, test.expTransient, fetchErr.Transient)
				assert.Equal(t, server.URL+"/a", fetchErr.URL)
			}

			exists, err := afero.Exists(fs, "/mirror/a")
			assert.NoError(t, err)
			assert.False(t, exists)
		})
	}
}

func TestFetchWriteError(t *testing.T) {
	server := newServer(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("contents"))
	})
	defer server.Close()

	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	err := HTTPFetcher{Fs: fs}.Fetch(context.Background(), server.URL+"/a", "/mirror/a", nil)

	fetchErr, ok := err.(errors.FetchError)
	if assert.True(t, ok) {
		assert.False(t, fetchErr.Transient)
	}
}

func TestFetchCancelled(t *testing.T) {
	server := newServer(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	defer server.Close()

	fs := afero.NewMemMapFs()
	fetcher := HTTPFetcher{Fs: fs, Timeout: 50 * time.Millisecond}
	err := fetcher.Fetch(context.Background(), server.URL+"/a", "/mirror/a", nil)

	fetchErr, ok := err.(errors.FetchError)
	if assert.True(t, ok) {
		assert.True(t, fetchErr.Transient)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = HTTPFetcher{Fs: fs}.Fetch(ctx, server.URL+"/a", "/mirror/a", nil)
	assert.IsType(t, errors.FetchError{}, err)
}

func TestFetchUnreachable(t *testing.T) {
	server := newServer(func(w http.ResponseWriter, r *http.Request) {})
	url := server.URL
	server.Close()

	err := HTTPFetcher{Fs: afero.NewMemMapFs()}.Fetch(context.Background(), url+"/a", "/mirror/a", nil)
	fetchErr, ok := err.(errors.FetchError)
	if assert.True(t, ok) {
		assert.True(t, fetchErr.Transient)
	}
}
