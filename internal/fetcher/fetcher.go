// Package fetcher implements PurC's async/sync URL load adapter (spec
// §4 "Fetcher adapter" — consulted through a narrow interface, never on
// the scheduler's hot path). Grounded on the teacher's
// internal/executor.Invoke "parallel pre-execution queries" step: fan
// out independent loads via errgroup, converge on a single error.
package fetcher

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/purc-go/purc/internal/except"
	"github.com/purc-go/purc/internal/logging"
	"github.com/purc-go/purc/internal/variant"
	"golang.org/x/sync/errgroup"
)

// Result is one URL load's outcome: the response body, parsed as eJSON
// when the content type allows it and kept as a raw string otherwise
// (spec §4 "Fetcher adapter... hands back a variant").
type Result struct {
	URL         string
	ContentType string
	Value       *variant.Value
	Err         error
}

// Fetcher loads http(s):// and s3:// URLs into variant values. The zero
// value has no HTTP client; use NewHTTPOnly for http(s):// only, or New
// to also wire an S3 client.
type Fetcher struct {
	httpClient *http.Client
	s3Client   *s3.Client
}

// Config controls transport timeouts (spec §9 ambient stack).
type Config struct {
	RequestTimeout time.Duration
}

// New builds a Fetcher, resolving AWS credentials from the default
// chain (environment, shared config, IMDS) the way the teacher's own
// cloud-credential path does via aws-sdk-go-v2/config.
func New(ctx context.Context, cfg Config) (*Fetcher, error) {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		logging.Op().Warn("fetcher: no AWS credentials available, s3:// URLs will fail", "error", err)
		awsCfg = aws.Config{}
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		s3Client:   s3.NewFromConfig(awsCfg),
	}, nil
}

// NewHTTPOnly builds a Fetcher backed by client with no S3 client wired,
// for callers that only ever load http(s):// URLs and want to skip AWS
// credential resolution. An s3:// request against it fails with
// KindNotSupported rather than reaching for a nil client.
func NewHTTPOnly(client *http.Client) *Fetcher {
	return &Fetcher{httpClient: client}
}

// FetchOne synchronously loads one URL (spec §4 "sync" mode — the
// calling verb's frame blocks the current step, not the scheduler).
func (f *Fetcher) FetchOne(ctx context.Context, rawURL string) Result {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Result{URL: rawURL, Err: except.New(except.KindInvalidValue, "fetcher: bad url %q: %v", rawURL, err)}
	}

	var body []byte
	var contentType string
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		body, contentType, err = f.fetchHTTP(ctx, rawURL)
	case "s3":
		if f.s3Client == nil {
			err = except.New(except.KindNotSupported, "fetcher: no s3 client configured")
			break
		}
		body, contentType, err = f.fetchS3(ctx, u)
	default:
		err = except.New(except.KindNotSupported, "fetcher: unsupported scheme %q", u.Scheme)
	}
	if err != nil {
		return Result{URL: rawURL, Err: err}
	}

	val := parseBody(body, contentType)
	return Result{URL: rawURL, ContentType: contentType, Value: val}
}

// FetchAsync loads rawURL on a separate goroutine, delivering the
// result on the returned channel exactly once (spec §4 "async" mode —
// the caller arranges an intrinsic observer for the coroutine's own
// resume, this package never touches coroutine state).
func (f *Fetcher) FetchAsync(ctx context.Context, rawURL string) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		out <- f.FetchOne(ctx, rawURL)
	}()
	return out
}

// FetchAll loads every url concurrently, preserving input order in the
// result slice (spec §4, teacher's errgroup-fanned-out pre-fetch step).
// It returns the first error encountered; all in-flight loads are
// cancelled via the shared context once one fails.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) ([]Result, error) {
	results := make([]Result, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			r := f.FetchOne(gctx, u)
			results[i] = r
			return r.Err
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", except.New(except.KindIO, "fetcher: build request: %v", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, "", except.New(except.KindIO, "fetcher: http get %s: %v", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, "", except.New(except.KindIO, "fetcher: http get %s: status %d", rawURL, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", except.New(except.KindIO, "fetcher: read body %s: %v", rawURL, err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// fetchS3 treats s3://bucket/key as the object address, the layout the
// teacher's own S3-backed artifact paths use.
func (f *Fetcher) fetchS3(ctx context.Context, u *url.URL) ([]byte, string, error) {
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return nil, "", except.New(except.KindInvalidValue, "fetcher: s3 url must be s3://bucket/key, got %s", u.String())
	}

	out, err := f.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", except.New(except.KindIO, "fetcher: s3 get %s/%s: %v", bucket, key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", except.New(except.KindIO, "fetcher: read s3 body %s/%s: %v", bucket, key, err)
	}
	contentType := ""
	if out.ContentType != nil {
		contentType = *out.ContentType
	}
	return body, contentType, nil
}

// parseBody attempts eJSON/JSON parsing for json-ish content types and
// falls back to a plain string variant otherwise (spec §4.1 "parse").
func parseBody(body []byte, contentType string) *variant.Value {
	if strings.Contains(contentType, "json") {
		if v, err := variant.Parse(string(bytes.TrimSpace(body))); err == nil {
			return v
		}
	}
	return variant.MakeString(string(body))
}
