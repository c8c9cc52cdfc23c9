package loader

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"

	"github.com/smallnest/ragflow/rag"
)

const pdfMagic = "%PDF-"

// LangChainLoader adapts a langchaingo documentloaders.Loader to Loader. Every
// loaded document keeps its metadata, formatted as strings.
type LangChainLoader struct {
	loader   documentloaders.Loader
	metadata map[string]string
}

// NewLangChainLoader wraps l. metadata is added to every document.
func NewLangChainLoader(l documentloaders.Loader, metadata map[string]string) *LangChainLoader {
	return &LangChainLoader{loader: l, metadata: maps.Clone(metadata)}
}

// Load implements Loader
func (l *LangChainLoader) Load(ctx context.Context) ([]Document, error) {
	schemaDocs, err := l.loader.Load(ctx)
	if err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(schemaDocs))
	for _, sd := range schemaDocs {
		md := make(map[string]string, len(sd.Metadata)+len(l.metadata))
		for k, v := range sd.Metadata {
			md[k] = fmt.Sprint(v)
		}
		maps.Copy(md, l.metadata)
		docs = append(docs, Document{
			Text:     strings.TrimSpace(sd.PageContent),
			Path:     md["path"],
			Language: "text",
			Metadata: md,
		})
	}
	return docs, nil
}

// FromPDF extracts the text of a PDF, one document per page. content is the
// raw file or its standard base64 encoding, as JSON clients send it.
func FromPDF(ctx context.Context, path string, content []byte) ([]Document, error) {
	data, err := decodePDF(content)
	if err != nil {
		return nil, rag.NewConfigError("files", "%s: %v", path, err)
	}

	pdf := documentloaders.NewPDF(bytes.NewReader(data), int64(len(data)))
	docs, err := NewLangChainLoader(pdf, map[string]string{"path": path, "type": "pdf"}).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf %s: %w", path, err)
	}
	return docs, nil
}

func decodePDF(content []byte) ([]byte, error) {
	if bytes.HasPrefix(content, []byte(pdfMagic)) {
		return content, nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(content)))
	if err != nil {
		return nil, fmt.Errorf("content is neither a PDF nor base64: %w", err)
	}
	if !bytes.HasPrefix(data, []byte(pdfMagic)) {
		return nil, errors.New("decoded content is not a PDF")
	}
	return data, nil
}
