// Package capture provides frame sources for the recognition loop: a live
// device decoded by ffmpeg into an MJPEG pipe, and a directory of still
// images replayed in name order.
package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	"github.com/andresmejia3/attendant/internal/utils"
)

const megabyte = 1024 * 1024

// ErrStreamEnded means the MJPEG stream closed. For a live device this is a
// failure, not a normal end.
var ErrStreamEnded = errors.New("capture stream ended")

// MJPEGSource splits a stream of concatenated JPEG frames.
type MJPEGSource struct {
	scanner *bufio.Scanner
	stream  io.Closer
	cmd     *utils.SafeCommand
}

// NewMJPEGReader reads frames from r. Close closes r if it is an io.Closer.
func NewMJPEGReader(r io.Reader) *MJPEGSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(utils.SplitJpeg)

	s := &MJPEGSource{scanner: scanner}
	if c, ok := r.(io.Closer); ok {
		s.stream = c
	}
	return s
}

// OpenDevice starts ffmpeg on dev and returns its frame stream. The process
// is killed when ctx is cancelled or the source is closed.
func OpenDevice(ctx context.Context, dev utils.CaptureDevice) (*MJPEGSource, error) {
	if err := utils.CheckDependency("ffmpeg"); err != nil {
		return nil, err
	}

	ffmpeg := utils.NewFFmpegCaptureCmd(ctx, dev)
	out, err := ffmpeg.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create FFmpeg stdout pipe: %w", err)
	}
	if err := ffmpeg.Start(); err != nil {
		return nil, fmt.Errorf("failed to start FFmpeg: %w", err)
	}

	s := NewMJPEGReader(out)
	s.cmd = ffmpeg
	return s, nil
}

// Next blocks until the next frame is decoded.
func (s *MJPEGSource) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return nil, fmt.Errorf("frame scanner failed: %w", err)
		}
		if s.cmd != nil && s.cmd.Stderr.Len() > 0 {
			return nil, fmt.Errorf("%w: %s", ErrStreamEnded, utils.Tail(s.cmd.Stderr.String(), 5))
		}
		return nil, ErrStreamEnded
	}
	img, err := jpeg.Decode(bytes.NewReader(s.scanner.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}
	return img, nil
}

// Command returns the ffmpeg process, nil for a plain reader.
func (s *MJPEGSource) Command() *utils.SafeCommand { return s.cmd }

// Close releases the device.
func (s *MJPEGSource) Close() error {
	if s.stream != nil {
		s.stream.Close() // Ensure pipe is closed to prevent leaks/zombies
	}
	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}
	s.cmd.Process.Kill()
	s.cmd.Wait() // killed on purpose, the exit status says nothing
	return nil
}
