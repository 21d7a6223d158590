package schema

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
)

// maxDocumentSize caps how much of a schema document is read.
const maxDocumentSize = 10 << 20

// Document is a raw schema document as read from a Source.
type Document struct {
	// Name identifies the document (file path or URL) and drives format inference.
	Name string

	// ContentType is the media type reported by the source, if any.
	ContentType string

	Data []byte
}

// Source reads the raw schema document.
type Source interface {
	Read(ctx context.Context) (*Document, error)
}

// NewSource picks a Source for location: http(s) URLs are fetched remotely,
// anything else is treated as a local file path.
func NewSource(location string) Source {
	if u, err := url.Parse(location); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return NewHTTPSource(location)
	}
	return FileSource{Path: location}
}

// FileSource reads a schema document from the local filesystem.
type FileSource struct {
	Path string
}

func (s FileSource) Read(_ context.Context) (*Document, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("schema: open %s: %w", s.Path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", s.Path, err)
	}
	return &Document{Name: s.Path, Data: data}, nil
}

// HTTPSource downloads a schema document, e.g. from a storage bucket's
// public URL.
type HTTPSource struct {
	URL    string
	client *http.Client
}

// NewHTTPSource creates an HTTPSource using a Chrome-fingerprinted TLS client.
func NewHTTPSource(rawURL string) *HTTPSource {
	return &HTTPSource{URL: rawURL, client: newChromeClient()}
}

func (s *HTTPSource) Read(ctx context.Context) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("schema: build request: %w", err)
	}
	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Accept", "application/json, application/yaml;q=0.9, */*;q=0.8")

	client := s.client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("schema: fetch %s: %w", s.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("schema: fetch %s: HTTP %d", s.URL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("schema: read body: %w", err)
	}

	name := s.URL
	if u, err := url.Parse(s.URL); err == nil {
		name = path.Base(u.Path)
	}
	return &Document{
		Name:        name,
		ContentType: strings.ToLower(resp.Header.Get("Content-Type")),
		Data:        data,
	}, nil
}

// StaticSource serves an in-memory document.
type StaticSource struct {
	Name string
	Data []byte
}

func (s StaticSource) Read(_ context.Context) (*Document, error) {
	return &Document{Name: s.Name, Data: s.Data}, nil
}
