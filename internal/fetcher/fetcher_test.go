package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newHTTPOnlyFetcher() *Fetcher {
	return &Fetcher{httpClient: &http.Client{Timeout: time.Second}}
}

func TestFetchOneParsesJSONContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"a":1}`))
	}))
	defer srv.Close()

	f := newHTTPOnlyFetcher()
	res := f.FetchOne(context.Background(), srv.URL)
	require.NoError(t, res.Err)
	require.NotNil(t, res.Value)
}

func TestFetchOneKeepsRawStringForNonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	f := newHTTPOnlyFetcher()
	res := f.FetchOne(context.Background(), srv.URL)
	require.NoError(t, res.Err)
	require.NotNil(t, res.Value)
}

func TestFetchOneReportsHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := newHTTPOnlyFetcher()
	res := f.FetchOne(context.Background(), srv.URL)
	require.Error(t, res.Err)
}

func TestFetchOneRejectsUnsupportedScheme(t *testing.T) {
	f := newHTTPOnlyFetcher()
	res := f.FetchOne(context.Background(), "ftp://example.com/file")
	require.Error(t, res.Err)
}

func TestFetchAllPreservesOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(r.URL.Query().Get("n")))
	}))
	defer srv.Close()

	f := newHTTPOnlyFetcher()
	urls := []string{srv.URL + "?n=0", srv.URL + "?n=1", srv.URL + "?n=2"}
	results, err := f.FetchAll(context.Background(), urls)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, r := range results {
		require.Equal(t, urls[i], r.URL)
	}
}

func TestFetchAllStopsOnFirstError(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	f := newHTTPOnlyFetcher()
	_, err := f.FetchAll(context.Background(), []string{good.URL, bad.URL})
	require.Error(t, err)
}

func TestFetchAsyncDeliversOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("async"))
	}))
	defer srv.Close()

	f := newHTTPOnlyFetcher()
	ch := f.FetchAsync(context.Background(), srv.URL)
	select {
	case res := <-ch:
		require.NoError(t, res.Err)
	case <-time.After(time.Second):
		t.Fatal("expected a result before timeout")
	}
}

func TestFetchOneRejectsMalformedS3URL(t *testing.T) {
	f := newHTTPOnlyFetcher()
	res := f.FetchOne(context.Background(), "s3:///missing-bucket")
	require.Error(t, res.Err)
}
