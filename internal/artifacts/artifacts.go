// Package artifacts stores rendered report files and hands back the URL they are
// served from.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// DefaultBaseURL is the API path artifacts are downloaded from.
const DefaultBaseURL = "/api/downloads"

// ContentTypePDF is the content type of rendered reports.
const ContentTypePDF = "application/pdf"

// ErrNotFound is returned by Open when no artifact exists under the key.
var ErrNotFound = errors.New("artifact not found")

// ErrInvalidKey is returned for keys that are not a single safe file name.
var ErrInvalidKey = errors.New("invalid artifact key")

// Store persists artifact blobs.
type Store interface {
	// Put writes data under key and returns the artifact URL.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Open returns the artifact body and its content type.
	Open(ctx context.Context, key string) (io.ReadCloser, string, error)
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateKey rejects anything that is not a plain file name.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) || strings.Contains(key, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// KeyFromURL extracts the key from a URL produced by a store with the given base.
func KeyFromURL(baseURL, url string) (string, bool) {
	prefix := strings.TrimSuffix(baseURL, "/") + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(url, prefix)
	return key, ValidateKey(key) == nil
}

func joinURL(baseURL, key string) string {
	return strings.TrimSuffix(baseURL, "/") + "/" + key
}
