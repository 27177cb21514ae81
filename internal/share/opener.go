package share

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalOpener dereferences file:// URIs under a fixed root directory and
// http(s) URLs. Anything else is rejected.
type LocalOpener struct {
	Root   string
	Client *http.Client
}

// NewLocalOpener builds an opener rooted at dir.
func NewLocalOpener(dir string) *LocalOpener {
	return &LocalOpener{Root: dir, Client: &http.Client{Timeout: 30 * time.Second}}
}

// Open returns the content behind the URI and its size when known (-1 for
// streams of unknown length).
func (o *LocalOpener) Open(ctx context.Context, uri string) (io.ReadCloser, int64, error) {
	switch {
	case strings.HasPrefix(uri, "file://"):
		parsed, err := url.Parse(uri)
		if err != nil {
			return nil, 0, fmt.Errorf("parse uri: %w", err)
		}
		cleaned := filepath.Join(o.Root, filepath.Clean("/"+parsed.Path))
		if !strings.HasPrefix(cleaned, filepath.Clean(o.Root)+string(os.PathSeparator)) {
			return nil, 0, fmt.Errorf("uri escapes share root")
		}
		f, err := os.Open(cleaned)
		if err != nil {
			return nil, 0, err
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, 0, err
		}
		return f, info.Size(), nil

	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			return nil, 0, err
		}
		resp, err := o.Client.Do(req)
		if err != nil {
			return nil, 0, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, 0, fmt.Errorf("fetch %s: status %d", uri, resp.StatusCode)
		}
		return resp.Body, resp.ContentLength, nil

	default:
		return nil, 0, fmt.Errorf("unsupported share uri scheme")
	}
}
