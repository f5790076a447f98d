// Package capture feeds frames from a source through the recognizer into an
// attendance session.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrSourceUnavailable is returned when a frame source cannot be opened or
// stops delivering frames.
var ErrSourceUnavailable = errors.New("frame source unavailable")

var frameExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".bmp": true}

// Source delivers encoded image frames. Next returns io.EOF when the source
// is exhausted.
type Source interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// Open picks a source for location: an http(s) URL is polled as a snapshot
// camera, a directory is read as a sequence of frames, anything else is a
// single still image.
func Open(location string, interval time.Duration) (Source, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return NewSnapshotSource(location, interval), nil
	}
	info, err := os.Stat(location)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if info.IsDir() {
		return NewDirSource(location)
	}
	return NewFileSource(location)
}

// FileSource yields one still image.
type FileSource struct {
	data []byte
	done bool
}

// NewFileSource reads the image at path.
func NewFileSource(path string) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return &FileSource{data: data}, nil
}

func (s *FileSource) Next(ctx context.Context) ([]byte, error) {
	if s.done {
		return nil, io.EOF
	}
	s.done = true
	return s.data, nil
}

func (s *FileSource) Close() error { return nil }

// DirSource yields the images of a directory in name order.
type DirSource struct {
	paths []string
	pos   int
}

// NewDirSource lists the image files in dir.
func NewDirSource(dir string) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && frameExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no images in %s", ErrSourceUnavailable, dir)
	}
	sort.Strings(paths)
	return &DirSource{paths: paths}, nil
}

func (s *DirSource) Next(ctx context.Context) ([]byte, error) {
	if s.pos >= len(s.paths) {
		return nil, io.EOF
	}
	path := s.paths[s.pos]
	s.pos++
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return data, nil
}

func (s *DirSource) Close() error { return nil }

// SnapshotSource polls a camera that serves a JPEG on every GET.
type SnapshotSource struct {
	url      string
	interval time.Duration
	client   *http.Client
	last     time.Time
}

// NewSnapshotSource creates a source polling url at most once per interval.
func NewSnapshotSource(url string, interval time.Duration) *SnapshotSource {
	return &SnapshotSource{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *SnapshotSource) Next(ctx context.Context) ([]byte, error) {
	if wait := s.interval - time.Since(s.last); !s.last.IsZero() && wait > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	s.last = time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: camera returned status %d", ErrSourceUnavailable, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return data, nil
}

func (s *SnapshotSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
