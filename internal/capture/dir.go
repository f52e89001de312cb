package capture

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/andresmejia3/attendant/internal/gallery"
)

// DirSource replays the images of a directory in lexical order and returns
// io.EOF once they are exhausted.
type DirSource struct {
	files []string
	next  int
	loop  bool
}

// NewDirSource lists the image files in dir. With loop set the directory is
// replayed forever.
func NewDirSource(dir string, loop bool) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && gallery.IsSampleFile(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no images in %s", dir)
	}
	sort.Strings(files)
	return &DirSource{files: files, loop: loop}, nil
}

// Len is the number of distinct frames.
func (s *DirSource) Len() int { return len(s.files) }

func (s *DirSource) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.files) {
		if !s.loop {
			return nil, io.EOF
		}
		s.next = 0
	}
	path := s.files[s.next]
	s.next++
	return gallery.DecodeFile(path)
}

func (s *DirSource) Close() error { return nil }
