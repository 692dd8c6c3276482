package orbit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// ErrFetch wraps any failure to retrieve the raw element-set document.
var ErrFetch = errors.New("fetch element sets")

// DefaultTLEURL is the CelesTrak feed of active satellites in TLE format.
const DefaultTLEURL = "https://celestrak.org/NORAD/elements/gp.php?GROUP=active&FORMAT=tle"

const (
	defaultFetchTimeout = 30 * time.Second
	maxDocumentBytes    = 16 << 20
)

// Fetcher retrieves a raw element-set document in one call. There are no
// partial results: it returns the full document or an error.
type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// HTTPFetcher downloads the document over HTTP(S).
type HTTPFetcher struct {
	URL     string
	Client  *http.Client
	Timeout time.Duration
}

// Fetch performs a single GET and returns the body.
func (f *HTTPFetcher) Fetch(ctx context.Context) ([]byte, error) {
	url := f.URL
	if url == "" {
		url = DefaultTLEURL
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrFetch, err)
	}
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("User-Agent", "antenna-tracker")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: GET %s: unexpected status %s", ErrFetch, url, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrFetch, err)
	}
	return body, nil
}

// FileFetcher reads the document from disk, for offline operation.
type FileFetcher struct {
	Path string
}

// Fetch reads the whole file.
func (f *FileFetcher) Fetch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	return data, nil
}
