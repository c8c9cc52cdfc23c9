package loader

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/smallnest/ragflow/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPage = `<!DOCTYPE html>
<html>
<head>
	<title>Test Page</title>
	<script>console.log('test');</script>
	<style>body { color: blue; }</style>
</head>
<body>
	<h1>Test Content</h1>
	<p>This is a   test
	paragraph.</p>
	<ul><li>first</li><li><p>second</p></li></ul>
	<script>alert('test');</script>
</body>
</html>`

func TestHTMLToText(t *testing.T) {
	text, title, err := HTMLToText(strings.NewReader(testPage))
	require.NoError(t, err)
	assert.Equal(t, "Test Page", title)
	assert.Equal(t, "Test Content\n\nThis is a test paragraph.\n\nfirst\n\nsecond", text)
	assert.NotContains(t, text, "console.log")
	assert.NotContains(t, text, "color: blue")
	assert.NotContains(t, text, "alert")
}

func TestHTMLToText_NoBlocks(t *testing.T) {
	text, title, err := HTMLToText(strings.NewReader("<div>just <b>some</b> text</div>"))
	require.NoError(t, err)
	assert.Empty(t, title)
	assert.Equal(t, "just some text", text)
}

func TestMarkdownToText(t *testing.T) {
	text, err := MarkdownToText([]byte("# Title\n\nSome *emphasis* here.\n\n- one\n- two\n"))
	require.NoError(t, err)
	assert.Equal(t, "Title\n\nSome emphasis here.\n\none\n\ntwo", text)
}

func TestFromContent(t *testing.T) {
	t.Run("Code keeps its language", func(t *testing.T) {
		doc, err := FromContent("pkg/main.go", []byte("package main\n"))
		require.NoError(t, err)
		assert.Equal(t, "go", doc.Language)
		assert.Equal(t, "package main\n", doc.Text)
		assert.Equal(t, "pkg/main.go", doc.Metadata["path"])
		assert.Equal(t, "go", doc.Metadata["type"])
	})

	t.Run("Markdown becomes text", func(t *testing.T) {
		doc, err := FromContent("README.md", []byte("# Hello\n\nWorld"))
		require.NoError(t, err)
		assert.Equal(t, "text", doc.Language)
		assert.Equal(t, "Hello\n\nWorld", doc.Text)
	})

	t.Run("HTML becomes text", func(t *testing.T) {
		doc, err := FromContent("index.html", []byte(testPage))
		require.NoError(t, err)
		assert.Equal(t, "Test Page", doc.Metadata["title"])
		assert.Contains(t, doc.Text, "Test Content")
	})

	t.Run("No extension", func(t *testing.T) {
		doc, err := FromContent("LICENSE", []byte("MIT"))
		require.NoError(t, err)
		assert.Equal(t, "text", doc.Language)
		assert.Equal(t, "text", doc.Metadata["type"])
	})
}

func TestFilesLoader(t *testing.T) {
	docs, err := NewFilesLoader([]File{
		{Path: "a.py", Content: "def f():\n    pass\n"},
		{Path: "b.txt", Content: "plain"},
	}).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "python", docs[0].Language)
	assert.Equal(t, "plain", docs[1].Text)

	_, err = NewFilesLoader([]File{{Content: "x"}}).Load(context.Background())
	var cfg *rag.ConfigError
	assert.ErrorAs(t, err, &cfg)
}

func TestFilesLoader_PDF(t *testing.T) {
	raw, err := os.ReadFile("testdata/sample.pdf")
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name    string
		content string
	}{
		{"Raw", string(raw)},
		{"Base64", base64.StdEncoding.EncodeToString(raw)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := NewFilesLoader([]File{
				{Path: "notes.txt", Content: "first"},
				{Path: "docs/Sample.PDF", Content: tt.content},
			}).Load(ctx)
			require.NoError(t, err)
			require.Len(t, docs, 3)

			assert.Equal(t, "first", docs[0].Text)
			for i, page := range docs[1:] {
				assert.Equal(t, "text", page.Language)
				assert.Equal(t, "docs/Sample.PDF", page.Path)
				assert.Equal(t, "pdf", page.Metadata["type"])
				assert.Equal(t, strconv.Itoa(i+1), page.Metadata["page"])
				assert.Equal(t, "2", page.Metadata["total_pages"])
			}
			assert.True(t, strings.HasPrefix(docs[1].Text, "A Simple PDF File"))
			assert.Contains(t, docs[1].Text, "Continued on page 2")
			assert.Contains(t, docs[2].Text, "The end, and just as well.")
		})
	}

	t.Run("Not a PDF", func(t *testing.T) {
		_, err := NewFilesLoader([]File{{Path: "a.pdf", Content: "plain words"}}).Load(ctx)
		var cfg *rag.ConfigError
		assert.ErrorAs(t, err, &cfg)

		_, err = NewFilesLoader([]File{{Path: "a.pdf", Content: base64.StdEncoding.EncodeToString([]byte("hello"))}}).Load(ctx)
		assert.ErrorAs(t, err, &cfg)
	})

	t.Run("Truncated", func(t *testing.T) {
		_, err := NewFilesLoader([]File{{Path: "a.pdf", Content: string(raw[:200])}}).Load(ctx)
		assert.ErrorContains(t, err, "failed to read pdf a.pdf")
	})
}

func TestStaticLoader(t *testing.T) {
	doc := FromText("hello", map[string]string{"k": "v"})
	docs, err := NewStaticLoader(doc).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "hello", docs[0].Text)
	assert.Equal(t, "v", docs[0].Metadata["k"])
}

func TestURLLoader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/page":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(testPage))
		case "/notes.md":
			w.Header().Set("Content-Type", "text/markdown")
			_, _ = w.Write([]byte("# Notes\n\nRemember this."))
		case "/plain":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("raw text"))
		case "/image":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte{0x89, 0x50})
		case "/report.pdf":
			w.Header().Set("Content-Type", "application/pdf")
			http.ServeFile(w, r, "testdata/sample.pdf")
		case "/empty":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html><body></body></html>"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()
	ctx := context.Background()

	docs, err := NewURLLoader(server.URL + "/page").Load(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Contains(t, docs[0].Text, "This is a test paragraph.")
	assert.Equal(t, "Test Page", docs[0].Metadata["title"])
	assert.Equal(t, server.URL+"/page", docs[0].Metadata["url"])

	docs, err = NewURLLoader(server.URL+"/notes.md", WithHTTPClient(server.Client())).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Notes\n\nRemember this.", docs[0].Text)

	docs, err = NewURLLoader(server.URL + "/plain").Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "raw text", docs[0].Text)

	docs, err = NewURLLoader(server.URL + "/report.pdf").Load(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, server.URL+"/report.pdf", docs[1].Metadata["url"])
	assert.Contains(t, docs[1].Text, "continued from page 1")

	_, err = NewURLLoader(server.URL + "/missing").Load(ctx)
	assert.ErrorContains(t, err, "status code 404")

	_, err = NewURLLoader(server.URL + "/image").Load(ctx)
	assert.ErrorContains(t, err, "unsupported content type")

	_, err = NewURLLoader(server.URL + "/empty").Load(ctx)
	assert.ErrorContains(t, err, "no text")

	_, err = NewURLLoader("ftp://example.com/file").Load(ctx)
	assert.ErrorContains(t, err, "invalid url")
}
