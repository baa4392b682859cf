// Package storage keeps uploaded paper files on disk and loads them back,
// either from local storage or from a remote http(s) location.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrTooLarge is returned for files over the configured size cap
var ErrTooLarge = errors.New("file too large")

// FileStore saves paper files under a root directory
type FileStore struct {
	root     string
	client   *http.Client
	maxBytes int64
}

// NewFileStore creates a file store rooted at dir. fetchTimeout bounds remote
// downloads and maxBytes caps any single file; zero means no cap.
func NewFileStore(dir string, fetchTimeout time.Duration, maxBytes int64) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	if fetchTimeout <= 0 {
		fetchTimeout = 60 * time.Second
	}
	return &FileStore{
		root:     dir,
		client:   &http.Client{Timeout: fetchTimeout},
		maxBytes: maxBytes,
	}, nil
}

// Save writes src to <root>/<userID>/<paperID><ext> and returns the path and size
func (s *FileStore) Save(userID, paperID, filename string, src io.Reader) (string, int64, error) {
	dir := filepath.Join(s.root, safeName(userID))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create storage directory: %w", err)
	}

	path := filepath.Join(dir, paperID+strings.ToLower(filepath.Ext(filename)))
	dst, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create storage file: %w", err)
	}
	defer dst.Close()

	if s.maxBytes > 0 {
		src = io.LimitReader(src, s.maxBytes+1)
	}
	n, err := io.Copy(dst, src)
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("failed to save file: %w", err)
	}
	if s.maxBytes > 0 && n > s.maxBytes {
		os.Remove(path)
		return "", 0, fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, s.maxBytes)
	}

	return path, n, nil
}

// Load returns the bytes behind location, a local path or an http(s) URL
func (s *FileStore) Load(ctx context.Context, location string) ([]byte, error) {
	if IsRemote(location) {
		return s.fetch(ctx, location)
	}

	data, err := os.ReadFile(location)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", location, err)
	}
	return data, nil
}

// Remove deletes a stored file. Remote locations and missing files are ignored.
func (s *FileStore) Remove(location string) error {
	if location == "" || IsRemote(location) {
		return nil
	}
	if err := os.Remove(location); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *FileStore) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("failed to download %s: status %d", url, resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if s.maxBytes > 0 {
		body = io.LimitReader(resp.Body, s.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", url, err)
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, url, s.maxBytes)
	}
	return data, nil
}

// IsRemote reports whether location is an http(s) URL
func IsRemote(location string) bool {
	lower := strings.ToLower(location)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func safeName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
	if s == "" {
		return "anonymous"
	}
	return s
}
