// Package filestore keeps generated documents (invoices) on local disk or in S3.
package filestore

import (
	"context"
	"path"
	"strings"

	"github.com/rendis/actiondesk/pkg/schema"
)

// Store reads and writes named files. Paths returned by Write are accepted
// by Read and Exists.
type Store interface {
	Write(ctx context.Context, name string, data []byte) (string, error)
	Read(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// cleanName rejects names that are empty or try to leave the store's root.
func cleanName(name string) (string, error) {
	n := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	n = strings.TrimPrefix(n, "/")
	if n == "" || n == "." || n == ".." || strings.HasPrefix(n, "../") {
		return "", schema.NewErrorf(schema.ErrCodeValidation, "invalid file name %q", name)
	}
	return n, nil
}
