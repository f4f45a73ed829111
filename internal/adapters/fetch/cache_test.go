package fetch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/fetch"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

const payload = "source archive bytes"

func newCache(t *testing.T, client *http.Client) *fetch.Cache {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Info(gomock.Any()).AnyTimes()
	log.EXPECT().Warn(gomock.Any()).AnyTimes()
	return fetch.NewCache(t.TempDir(), client, log)
}

func archiveServer(t *testing.T, hits *atomic.Int32, release <-chan struct{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/libjpeg-turbo-1.5.2.tar.gz" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		if release != nil {
			<-release
		}
		_, _ = w.Write([]byte(payload))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCache_Fetch_SingleFlight(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := archiveServer(t, &hits, release)
	cache := newCache(t, srv.Client())

	url := srv.URL + "/libjpeg-turbo-1.5.2.tar.gz"
	checksum := digest.FromString(payload).String()

	const fetchers = 8
	var wg sync.WaitGroup
	paths := make([]string, fetchers)
	errs := make([]error, fetchers)
	for i := range fetchers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			paths[i], errs[i] = cache.Fetch(context.Background(), url, checksum)
		}()
	}

	require.Eventually(t, func() bool { return hits.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
	close(release)
	wg.Wait()

	for i := range fetchers {
		require.NoError(t, errs[i])
		assert.Equal(t, paths[0], paths[i])
	}
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, "libjpeg-turbo-1.5.2.tar.gz", filepath.Base(paths[0]))

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))

	// A later fetch is served from disk.
	again, err := cache.Fetch(context.Background(), url, checksum)
	require.NoError(t, err)
	assert.Equal(t, paths[0], again)
	assert.Equal(t, int32(1), hits.Load())
}

func TestCache_Fetch_ChecksumMismatch(t *testing.T) {
	var hits atomic.Int32
	srv := archiveServer(t, &hits, nil)
	cache := newCache(t, srv.Client())

	_, err := cache.Fetch(context.Background(), srv.URL+"/libjpeg-turbo-1.5.2.tar.gz", digest.FromString("other").String())
	require.ErrorIs(t, err, domain.ErrFetchFailed)

	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, domain.FetchChecksumMismatch, fetchErr.Kind)
	assert.False(t, domain.Retryable(err))
}

func TestCache_Fetch_NotFound(t *testing.T) {
	var hits atomic.Int32
	srv := archiveServer(t, &hits, nil)
	cache := newCache(t, srv.Client())

	_, err := cache.Fetch(context.Background(), srv.URL+"/missing.tar.gz", "")

	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, domain.FetchNotFound, fetchErr.Kind)
}

func TestCache_Fetch_CacheUnwritable(t *testing.T) {
	var hits atomic.Int32
	srv := archiveServer(t, &hits, nil)

	// A regular file where the cache directory should be.
	blocked := filepath.Join(t.TempDir(), "downloads")
	require.NoError(t, os.WriteFile(blocked, nil, 0o600))

	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Info(gomock.Any()).AnyTimes()
	cache := fetch.NewCache(blocked, srv.Client(), log)

	_, err := cache.Fetch(context.Background(), srv.URL+"/libjpeg-turbo-1.5.2.tar.gz", "")
	require.ErrorIs(t, err, domain.ErrFetchFailed)

	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, domain.FetchCache, fetchErr.Kind)
	assert.False(t, domain.Retryable(err))
}

func TestCache_Fetch_Timeout(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := archiveServer(t, &hits, release)
	t.Cleanup(func() { close(release) })

	client := srv.Client()
	client.Timeout = 50 * time.Millisecond
	cache := newCache(t, client)

	_, err := cache.Fetch(context.Background(), srv.URL+"/libjpeg-turbo-1.5.2.tar.gz", "")

	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, domain.FetchNetworkTimeout, fetchErr.Kind)
	assert.True(t, domain.Retryable(err))
}

func TestCache_Fetch_LocalFile(t *testing.T) {
	cache := newCache(t, nil)
	path := filepath.Join(t.TempDir(), "zlib-1.3.tar.gz")
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))

	got, err := cache.Fetch(context.Background(), "file://"+filepath.ToSlash(path), digest.FromString(payload).String())
	require.NoError(t, err)
	assert.Equal(t, path, got)

	got, err = cache.Fetch(context.Background(), path, "")
	require.NoError(t, err)
	assert.Equal(t, path, got)

	_, err = cache.Fetch(context.Background(), path, digest.FromString("tampered").String())
	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, domain.FetchChecksumMismatch, fetchErr.Kind)
}

func TestCache_Fetch_InvalidInput(t *testing.T) {
	cache := newCache(t, nil)

	_, err := cache.Fetch(context.Background(), "ftp://example.invalid/zlib.tar.gz", "")
	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, domain.FetchUnsupported, fetchErr.Kind)

	_, err = cache.Fetch(context.Background(), "https://example.invalid/zlib.tar.gz", "md5:abc")
	require.ErrorIs(t, err, domain.ErrFetchFailed)
}
