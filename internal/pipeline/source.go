package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"parking-fines-service/internal/imaging"
)

// ErrSkipFrame marks a source error that only affects the current frame.
var ErrSkipFrame = errors.New("frame skipped")

type Frame struct {
	Name  string
	Image image.Image
}

// FrameSource yields frames in order. Next returns io.EOF when exhausted.
type FrameSource interface {
	Next(ctx context.Context) (Frame, error)
}

var frameExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
}

// DirSource reads the image files of a directory in lexical order.
type DirSource struct {
	mu    sync.Mutex
	paths []string
	next  int
}

func NewDirSource(dir string) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if frameExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return &DirSource{paths: paths}, nil
}

// Len is the number of frames the source will yield.
func (s *DirSource) Len() int {
	return len(s.paths)
}

func (s *DirSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	s.mu.Lock()
	if s.next >= len(s.paths) {
		s.mu.Unlock()
		return Frame{}, io.EOF
	}
	path := s.paths[s.next]
	s.next++
	s.mu.Unlock()

	img, err := imaging.Open(path)
	if err != nil {
		return Frame{Name: filepath.Base(path)}, fmt.Errorf("%w: %s: %v", ErrSkipFrame, path, err)
	}
	return Frame{Name: filepath.Base(path), Image: img}, nil
}

// ImageSource yields a single image once.
type ImageSource struct {
	mu    sync.Mutex
	frame Frame
	done  bool
}

func NewImageSource(name string, img image.Image) *ImageSource {
	return &ImageSource{frame: Frame{Name: name, Image: img}}
}

func (s *ImageSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return Frame{}, io.EOF
	}
	s.done = true
	return s.frame, nil
}
