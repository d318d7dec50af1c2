// Package filestore performs JSON, text and directory I/O strictly through a
// pathguard.Guard. No method touches the filesystem before the guard has
// accepted the path.
package filestore

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/emanuelteklu/cc-sidecar/pkg/errors"
	"github.com/emanuelteklu/cc-sidecar/pkg/pathguard"
)

// Store is safe for concurrent use, but writes are plain read-modify-write at
// the caller's level: concurrent writers to the same file can lose updates.
type Store struct {
	guard *pathguard.Guard
}

// MarkdownFile describes one *.md document in a listed directory.
type MarkdownFile struct {
	Slug     string  `json:"slug"`
	Name     string  `json:"name"`
	Modified float64 `json:"modified"`
}

func New(guard *pathguard.Guard) *Store {
	return &Store{guard: guard}
}

// ReadRaw returns the JSON document at path unparsed. A missing file is
// ErrCodeNotFound and a file that is not valid JSON is ErrCodeMalformed.
func (s *Store) ReadRaw(path string) (json.RawMessage, error) {
	safe, err := s.guard.Validate(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(safe)
	if err != nil {
		return nil, readError(err, safe)
	}
	data = bytes.TrimSpace(data)
	if !json.Valid(data) {
		return nil, errors.New(errors.ErrCodeMalformed, "file is not valid JSON").WithContext("path", safe)
	}
	return json.RawMessage(data), nil
}

// ReadJSON decodes the JSON document at path into v.
func (s *Store) ReadJSON(path string, v any) error {
	raw, err := s.ReadRaw(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Wrap(err, errors.ErrCodeMalformed, "decoding JSON").WithContext("path", path)
	}
	return nil
}

// WriteJSON writes v as indented JSON, creating parent directories. The file
// is replaced by rename so readers never observe a partial document.
func (s *Store) WriteJSON(path string, v any) error {
	safe, err := s.guard.Validate(path)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "encoding JSON")
	}
	data = append(data, '\n')

	dir := filepath.Dir(safe)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "creating directory").WithContext("path", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(safe)+".*")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "creating temp file").WithContext("path", dir)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, errors.ErrCodeInternal, "writing file").WithContext("path", safe)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, errors.ErrCodeInternal, "writing file").WithContext("path", safe)
	}
	if err := os.Rename(tmpName, safe); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, errors.ErrCodeInternal, "replacing file").WithContext("path", safe)
	}
	return nil
}

// ReadText returns the file at path as a string.
func (s *Store) ReadText(path string) (string, error) {
	safe, err := s.guard.Validate(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(safe)
	if err != nil {
		return "", readError(err, safe)
	}
	return string(data), nil
}

// ListMarkdown lists the *.md files directly inside dir, newest first. A
// missing directory yields an empty list.
func (s *Store) ListMarkdown(dir string) ([]MarkdownFile, error) {
	safe, err := s.guard.Validate(dir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(safe)
	if err != nil {
		if os.IsNotExist(err) {
			return []MarkdownFile{}, nil
		}
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "listing directory").WithContext("path", safe)
	}

	files := make([]MarkdownFile, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".md" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		slug := strings.TrimSuffix(name, ".md")
		files = append(files, MarkdownFile{
			Slug:     slug,
			Name:     TitleFromSlug(slug),
			Modified: float64(info.ModTime().UnixNano()) / 1e9,
		})
	}

	sort.SliceStable(files, func(i, j int) bool {
		if files[i].Modified != files[j].Modified {
			return files[i].Modified > files[j].Modified
		}
		return files[i].Slug < files[j].Slug
	})
	return files, nil
}

// TitleFromSlug turns "my-brief_v2" into "My Brief_V2": dashes become spaces
// and every letter that does not follow another letter is upper-cased.
func TitleFromSlug(slug string) string {
	var sb strings.Builder
	prevCased := false
	for _, r := range strings.ReplaceAll(slug, "-", " ") {
		if unicode.IsLetter(r) {
			if prevCased {
				sb.WriteRune(unicode.ToLower(r))
			} else {
				sb.WriteRune(unicode.ToTitle(r))
			}
			prevCased = true
			continue
		}
		sb.WriteRune(r)
		prevCased = false
	}
	return sb.String()
}

func readError(err error, path string) error {
	if os.IsNotExist(err) {
		return errors.Wrap(err, errors.ErrCodeNotFound, "file not found").WithContext("path", path)
	}
	return errors.Wrap(err, errors.ErrCodeInternal, "reading file").WithContext("path", path)
}
