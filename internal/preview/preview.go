// Package preview fetches best-effort page metadata for link messages. A
// failed fetch only omits the preview decoration; it never blocks message
// display.
package preview

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// Preview is the displayable metadata of a linked page.
type Preview struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

// Fetcher resolves link previews with a bounded HTTP client.
type Fetcher struct {
	client  *http.Client
	maxBody int64
}

// NewFetcher builds a Fetcher.
func NewFetcher() *Fetcher {
	return &Fetcher{
		client:  &http.Client{Timeout: 8 * time.Second},
		maxBody: 512 << 10,
	}
}

// Fetch returns metadata for the URL, or nil when anything goes wrong.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) *Preview {
	if p := videoThumbnail(rawURL); p != nil {
		return p
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("Accept", "text/html")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "text/html") {
		return nil
	}

	doc, err := html.Parse(http.MaxBytesReader(nil, resp.Body, f.maxBody))
	if err != nil {
		return nil
	}

	p := &Preview{URL: rawURL}
	walk(doc, p)
	if p.Title == "" && p.Description == "" && p.ImageURL == "" {
		return nil
	}
	return p
}

func walk(n *html.Node, p *Preview) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "title":
			if p.Title == "" && n.FirstChild != nil {
				p.Title = strings.TrimSpace(n.FirstChild.Data)
			}
		case "meta":
			var name, property, content string
			for _, a := range n.Attr {
				switch a.Key {
				case "name":
					name = strings.ToLower(a.Val)
				case "property":
					property = strings.ToLower(a.Val)
				case "content":
					content = a.Val
				}
			}
			switch {
			case property == "og:title" && content != "":
				p.Title = content
			case property == "og:description" && content != "":
				p.Description = content
			case name == "description" && p.Description == "":
				p.Description = content
			case property == "og:image" && p.ImageURL == "":
				p.ImageURL = content
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, p)
	}
}

// videoThumbnail short-circuits the known video host: its thumbnails follow a
// fixed URL scheme, so no page fetch is needed.
func videoThumbnail(rawURL string) *Preview {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")

	var videoID string
	switch host {
	case "youtube.com", "m.youtube.com":
		videoID = u.Query().Get("v")
		if videoID == "" && strings.HasPrefix(u.Path, "/shorts/") {
			videoID = strings.Trim(strings.TrimPrefix(u.Path, "/shorts/"), "/")
		}
	case "youtu.be":
		videoID = strings.Trim(u.Path, "/")
	default:
		return nil
	}
	if videoID == "" {
		return nil
	}
	return &Preview{
		URL:      rawURL,
		ImageURL: "https://img.youtube.com/vi/" + videoID + "/hqdefault.jpg",
	}
}
