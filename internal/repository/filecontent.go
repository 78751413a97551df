package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// FileContent serves content text from a directory laid out the way content
// URLs name it: store://2024/5/1/abc.bin resolves to <root>/2024/5/1/abc.bin.
type FileContent struct {
	root string
}

// NewFileContent reads content below root.
func NewFileContent(root string) *FileContent {
	return &FileContent{root: root}
}

// Text returns the text of content. Only text/* mimetypes in UTF-8,
// US-ASCII or ISO-8859-1 are transformable.
func (c *FileContent) Text(_ context.Context, content ContentData) (string, error) {
	if !strings.HasPrefix(content.Mimetype, "text/") {
		return "", ErrNoTransformer
	}
	path, err := c.resolve(content.URL)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s is missing", ErrTransformFailed, content.URL)
		}
		return "", fmt.Errorf("%w: %v", ErrTransformFailed, err)
	}

	switch strings.ToLower(content.Encoding) {
	case "", "utf-8", "utf8", "us-ascii":
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: %s is not valid UTF-8", ErrTransformFailed, content.URL)
		}
		return string(data), nil
	case "iso-8859-1", "latin1":
		runes := make([]rune, len(data))
		for i, b := range data {
			runes[i] = rune(b)
		}
		return string(runes), nil
	default:
		return "", ErrNoTransformer
	}
}

func (c *FileContent) resolve(url string) (string, error) {
	_, rel, ok := strings.Cut(url, "://")
	if !ok {
		rel = url
	}
	rel = filepath.FromSlash(rel)
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: content url %q escapes the content root", ErrTransformFailed, url)
	}
	return filepath.Join(c.root, rel), nil
}
