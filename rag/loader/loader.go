package loader

import (
	"context"
	"maps"
	"path/filepath"
	"strings"

	"github.com/smallnest/ragflow/rag"
	"github.com/smallnest/ragflow/rag/splitter"
)

// Document is the plain text of one part of a Source. A Source usually has a
// single document; a source made of several files has one per file.
type Document struct {
	Text     string
	Path     string
	Language string
	Metadata map[string]string
}

// Loader produces the documents of a source.
type Loader interface {
	Load(ctx context.Context) ([]Document, error)
}

// StaticLoader returns a fixed list of documents
type StaticLoader struct {
	Documents []Document
}

// NewStaticLoader creates a new StaticLoader
func NewStaticLoader(documents ...Document) *StaticLoader {
	return &StaticLoader{Documents: documents}
}

// Load implements Loader
func (l *StaticLoader) Load(ctx context.Context) ([]Document, error) {
	return l.Documents, nil
}

// FromText wraps plain text in a document.
func FromText(text string, metadata map[string]string) Document {
	return Document{Text: text, Language: "text", Metadata: maps.Clone(metadata)}
}

// FromContent converts the content of the file at path to a document.
// Markdown and HTML are reduced to their text; everything else is kept
// verbatim with the language guessed from the extension, so code is split on
// its own structure.
func FromContent(path string, content []byte) (Document, error) {
	doc := Document{
		Path:     path,
		Language: splitter.LanguageFromPath(path),
		Metadata: map[string]string{"path": path, "type": formatOf(path)},
	}

	switch doc.Language {
	case "markdown":
		text, err := MarkdownToText(content)
		if err != nil {
			return doc, err
		}
		doc.Text = text
		doc.Language = "text"
	case "html":
		text, title, err := HTMLToText(strings.NewReader(string(content)))
		if err != nil {
			return doc, err
		}
		doc.Text = text
		doc.Language = "text"
		if title != "" {
			doc.Metadata["title"] = title
		}
	default:
		doc.Text = string(content)
	}
	return doc, nil
}

func formatOf(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return "text"
	}
	return ext
}

// File is a named piece of content, as submitted to the index endpoint. PDF
// content may be base64 encoded.
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// FilesLoader converts a set of submitted files.
type FilesLoader struct {
	files []File
}

// NewFilesLoader creates a new FilesLoader
func NewFilesLoader(files []File) *FilesLoader {
	return &FilesLoader{files: files}
}

// Load implements Loader. Files are returned in the given order; a PDF
// contributes one document per page.
func (l *FilesLoader) Load(ctx context.Context) ([]Document, error) {
	docs := make([]Document, 0, len(l.files))
	for _, f := range l.files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.Path == "" {
			return nil, rag.NewConfigError("files", "file without a path")
		}
		if formatOf(f.Path) == "pdf" {
			pages, err := FromPDF(ctx, f.Path, []byte(f.Content))
			if err != nil {
				return nil, err
			}
			docs = append(docs, pages...)
			continue
		}
		doc, err := FromContent(f.Path, []byte(f.Content))
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
