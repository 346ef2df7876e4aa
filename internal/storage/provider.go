// Package storage defines where fetched artifacts are written. Backends live
// in subpackages: local (filesystem), gcs (Google Cloud Storage) and memory.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// Provider persists one object and returns a URI that locates it.
type Provider interface {
	PutObject(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error)
}

// ErrInvalidPath is returned for empty object paths or ones that escape the
// backend root.
var ErrInvalidPath = errors.New("storage: invalid object path")

// ObjectPath joins prefix and name into a slash-separated key. It rejects
// names that are empty or resolve outside prefix.
func ObjectPath(prefix, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsRune(name, 0) {
		return "", ErrInvalidPath
	}
	cleaned := path.Clean("/" + strings.ReplaceAll(name, `\`, "/"))
	if cleaned == "/" {
		return "", ErrInvalidPath
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return strings.TrimPrefix(cleaned, "/"), nil
	}
	return prefix + cleaned, nil
}
