package ops

import (
	"bytes"
	"path/filepath"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"github.com/emanuelteklu/cc-sidecar/pkg/errors"
	"github.com/emanuelteklu/cc-sidecar/pkg/filestore"
)

// Brief is one research document.
type Brief struct {
	Slug    string `json:"slug"`
	Name    string `json:"name"`
	Content string `json:"content"`
	HTML    string `json:"html"`
}

// Library lists and reads the markdown briefs in one directory.
type Library struct {
	store *filestore.Store
	dir   string
	md    goldmark.Markdown
}

func NewLibrary(store *filestore.Store, dir string) *Library {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM, // tables, strikethrough, autolinks, task lists
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &Library{store: store, dir: dir, md: md}
}

// List returns the briefs newest first.
func (l *Library) List() ([]filestore.MarkdownFile, error) {
	return l.store.ListMarkdown(l.dir)
}

// Get reads one brief. A slug containing anything other than letters,
// digits, '-' or '_' is rejected before any file is touched.
func (l *Library) Get(slug string) (*Brief, error) {
	safe, ok := SanitizeSlug(slug)
	if !ok || safe == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "Invalid slug").WithContext("slug", slug)
	}

	content, err := l.store.ReadText(filepath.Join(l.dir, safe+".md"))
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeNotFound) {
			return nil, errors.Wrap(err, errors.ErrCodeNotFound, "research brief missing").
				WithUserMessage("Research brief not found")
		}
		return nil, err
	}

	var html bytes.Buffer
	if err := l.md.Convert([]byte(content), &html); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "rendering brief").WithContext("slug", safe)
	}

	return &Brief{
		Slug:    safe,
		Name:    filestore.TitleFromSlug(safe),
		Content: content,
		HTML:    html.String(),
	}, nil
}

// SanitizeSlug keeps only [A-Za-z0-9_-] and reports whether the slug was
// already clean.
func SanitizeSlug(slug string) (string, bool) {
	b := make([]byte, 0, len(slug))
	for i := 0; i < len(slug); i++ {
		c := slug[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			b = append(b, c)
		}
	}
	safe := string(b)
	return safe, safe == slug
}
