package loader

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultFetchTimeout bounds a single URL fetch.
const DefaultFetchTimeout = 30 * time.Second

// maxBodySize caps how much of a page is read.
const maxBodySize = 10 << 20

// URLLoader fetches a web page and extracts its text.
type URLLoader struct {
	url    string
	client *http.Client
}

// URLLoaderOption configures the URLLoader
type URLLoaderOption func(*URLLoader)

// WithHTTPClient sets the client used to fetch.
func WithHTTPClient(c *http.Client) URLLoaderOption {
	return func(l *URLLoader) {
		l.client = c
	}
}

// NewURLLoader creates a new URLLoader
func NewURLLoader(rawURL string, opts ...URLLoaderOption) *URLLoader {
	l := &URLLoader{
		url:    rawURL,
		client: &http.Client{Timeout: DefaultFetchTimeout},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load implements Loader
func (l *URLLoader) Load(ctx context.Context) ([]Document, error) {
	u, err := url.Parse(l.url)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid url %q", l.url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "ragflow/1.0")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", l.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: status code %d", l.url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", l.url, err)
	}

	doc := Document{
		Path:     l.url,
		Language: "text",
		Metadata: map[string]string{"url": l.url},
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "application/pdf" {
		pages, err := FromPDF(ctx, l.url, body)
		if err != nil {
			return nil, err
		}
		for i := range pages {
			pages[i].Metadata["url"] = l.url
		}
		return pages, nil
	}

	switch {
	case mediaType == "text/html" || mediaType == "application/xhtml+xml" || mediaType == "":
		text, title, err := HTMLToText(strings.NewReader(string(body)))
		if err != nil {
			return nil, err
		}
		doc.Text = text
		if title != "" {
			doc.Metadata["title"] = title
		}
	case mediaType == "text/markdown":
		text, err := MarkdownToText(body)
		if err != nil {
			return nil, err
		}
		doc.Text = text
	case strings.HasPrefix(mediaType, "text/"):
		doc.Text = string(body)
	default:
		return nil, fmt.Errorf("unsupported content type %q at %s", mediaType, l.url)
	}

	if strings.TrimSpace(doc.Text) == "" {
		return nil, fmt.Errorf("no text found at %s", l.url)
	}
	return []Document{doc}, nil
}
