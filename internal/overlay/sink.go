package overlay

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio"
)

// PreviewSink keeps the latest annotated frame at Path, replaced atomically so
// an image viewer never reads a torn file. With SnapshotDir set it also keeps
// one numbered frame per recorded attendance.
type PreviewSink struct {
	Path        string
	SnapshotDir string
	Quality     int
}

// NewPreviewSink creates snapshotDir (when set) up front.
func NewPreviewSink(path, snapshotDir string) (*PreviewSink, error) {
	if snapshotDir != "" {
		if err := os.MkdirAll(snapshotDir, 0755); err != nil {
			return nil, fmt.Errorf("creating snapshot directory: %w", err)
		}
	}
	if path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("creating preview directory: %w", err)
			}
		}
	}
	return &PreviewSink{Path: path, SnapshotDir: snapshotDir, Quality: 85}, nil
}

func (s *PreviewSink) encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.Quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Show replaces the preview file with frame.
func (s *PreviewSink) Show(frame image.Image) error {
	if s.Path == "" {
		return nil
	}
	data, err := s.encode(frame)
	if err != nil {
		return err
	}
	return renameio.WriteFile(s.Path, data, 0644)
}

// Snapshot saves frame as <identity>_<date>_<time>.jpg in SnapshotDir.
func (s *PreviewSink) Snapshot(frame image.Image, identity string, at time.Time) error {
	if s.SnapshotDir == "" {
		return nil
	}
	data, err := s.encode(frame)
	if err != nil {
		return err
	}
	name := strings.ReplaceAll(identity, string(filepath.Separator), "_")
	file := fmt.Sprintf("%s_%s.jpg", name, at.Format("2006-01-02_150405"))
	return renameio.WriteFile(filepath.Join(s.SnapshotDir, file), data, 0644)
}
