package utils

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// --- 1. Process Safety & Command Wrapping ---

// SafeCommand wraps a standard exec.Cmd with a buffer to catch Stderr (Python logs)
// This ensures we don't lose critical crash information if a worker dies.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommand initializes a command and attaches a buffer to its Stderr pipe
// It prepares the command for execution but does not start it.
func NewSafeCommand(ctx context.Context, name string, args ...string) *SafeCommand {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// ShowError prints a formatted error box and dumps worker logs if a SafeCommand is provided.
func ShowError(context string, err error, s *SafeCommand) {
	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "🚨 ATTENDANT ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DETAILS: %v\n", err)
	}

	// If we have a SafeCommand and it captured logs, print them.
	if s != nil && s.Stderr.Len() > 0 {
		fmt.Fprintf(os.Stderr, "\nWORKER LOGS:\n%s\n", s.Stderr.String())
	}
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
}

// Die is ShowError followed by exit(1). Only commands call it, never library code.
func Die(context string, err error, s *SafeCommand) {
	ShowError(context, err, s)
	os.Exit(1)
}

// --- 2. Capture Engine ---

var (
	JpegSOI = []byte{0xFF, 0xD8} // Start of Image
	JpegEOI = []byte{0xFF, 0xD9} // End of Image
)

// SplitJpeg is the custom splitter for bufio.Scanner
// It locates the Start Of Image (FFD8) and End Of Image (FFD9) markers to extract full JPEG frames.
func SplitJpeg(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, JpegSOI)
	if start == -1 {
		return 0, nil, nil
	}
	end := bytes.Index(data[start:], JpegEOI)
	if end == -1 {
		return 0, nil, nil
	}
	return start + end + 2, data[start : start+end+2], nil
}

// CaptureDevice describes a live camera (or any ffmpeg input) to read frames from.
type CaptureDevice struct {
	Path   string // e.g. /dev/video0, "0" on avfoundation, an RTSP URL
	Format string // ffmpeg input format (v4l2, avfoundation, dshow); empty lets ffmpeg probe
	Size   string // e.g. 640x480, empty keeps the device default
	FPS    int    // 0 keeps the device default
}

// CaptureArgs builds the ffmpeg argument list that streams MJPEG frames to stdout.
func CaptureArgs(dev CaptureDevice) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if dev.Format != "" {
		args = append(args, "-f", dev.Format)
	}
	if dev.FPS > 0 {
		args = append(args, "-framerate", strconv.Itoa(dev.FPS))
	}
	if dev.Size != "" {
		args = append(args, "-video_size", dev.Size)
	}
	// Using -vcodec mjpeg ensures we get JPEGs Go can split
	return append(args, "-i", dev.Path, "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "3", "-")
}

// NewFFmpegCaptureCmd creates the decoder pipe for a capture device.
// The process is killed when ctx is cancelled.
func NewFFmpegCaptureCmd(ctx context.Context, dev CaptureDevice) *SafeCommand {
	return NewSafeCommand(ctx, "ffmpeg", CaptureArgs(dev)...)
}

// CheckDependency reports a readable error when an external binary is missing from PATH.
func CheckDependency(name string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("%s not found in PATH: %w", name, err)
	}
	return nil
}

// Tail returns at most the last n lines of s.
func Tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}

// FmtDuration renders a duration as HH:MM:SS for session summaries.
func FmtDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
