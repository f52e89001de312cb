// Package worker drives the Python face worker process. Detection and
// embedding run in Python; Go talks to it over a length-prefixed binary
// protocol on stdin, with replies on a dedicated pipe (FD 3).
package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"math"
	"os"
	"reflect"
	"sync"
	"time"

	"github.com/andresmejia3/attendant/internal/utils" // Using the SafeCommand wrapper
)

// Request opcodes.
const (
	OpDetect byte = 0x01 // [jpeg] -> [n][n x box]
	OpEmbed  byte = 0x02 // [box][jpeg] -> [dim][dim x float32]
)

// Response status bytes.
const (
	statusOK  byte = 0
	statusErr byte = 1
)

// ErrWorkerDead is returned after a timeout or cancellation killed the process.
var ErrWorkerDead = errors.New("python worker is no longer running")

// ReplyError is an error the worker reported for one request. The process is
// still alive and in sync, so the next request can go ahead.
type ReplyError struct {
	Msg string
}

func (e *ReplyError) Error() string { return "python worker error: " + e.Msg }

// Recoverable reports that the failure is limited to the request that caused it.
func (e *ReplyError) Recoverable() bool { return true }

// Options configures the worker process.
type Options struct {
	Python  string        // interpreter, defaults to python3
	Script  string        // defaults to python/worker.py
	Timeout time.Duration // per request, 0 disables
}

type PythonWorker struct {
	ID       int
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser
	Timeout  time.Duration

	mu   sync.Mutex
	dead bool

	// JPEG of the last frame sent, so Embed calls after Detect on the same
	// frame don't re-encode it.
	lastImg  image.Image
	lastJPEG []byte
}

func NewPythonWorker(ctx context.Context, id int, opts Options) (*PythonWorker, error) {
	if opts.Python == "" {
		opts.Python = "python3"
	}
	if opts.Script == "" {
		opts.Script = "python/worker.py"
	}

	py := utils.NewSafeCommand(ctx, opts.Python, "-u", opts.Script)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close() // Prevent FD leak
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &PythonWorker{
		ID:       id,
		Cmd:      py,
		Stdin:    stdin,
		DataPipe: r,
		Timeout:  opts.Timeout,
	}, nil
}

// Detect returns the face boxes in img, in the worker's order.
func (w *PythonWorker) Detect(ctx context.Context, img image.Image) ([]image.Rectangle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	frame, err := w.encode(img)
	if err != nil {
		return nil, err
	}
	body, err := w.communicate(ctx, OpDetect, frame)
	if err != nil {
		return nil, err
	}
	return parseBoxes(body)
}

// Embed returns the face encoding of box in img.
func (w *PythonWorker) Embed(ctx context.Context, img image.Image, box image.Rectangle) ([]float64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	frame, err := w.encode(img)
	if err != nil {
		return nil, err
	}
	req := new(bytes.Buffer)
	binary.Write(req, binary.BigEndian, [4]int32{
		int32(box.Min.X), int32(box.Min.Y), int32(box.Max.X), int32(box.Max.Y),
	})
	req.Write(frame)

	body, err := w.communicate(ctx, OpEmbed, req.Bytes())
	if err != nil {
		return nil, err
	}
	return parseVector(body)
}

func (w *PythonWorker) encode(img image.Image) ([]byte, error) {
	if w.lastImg != nil && reflect.TypeOf(img).Comparable() && w.lastImg == img {
		return w.lastJPEG, nil
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}
	w.lastImg, w.lastJPEG = img, buf.Bytes()
	return w.lastJPEG, nil
}

// communicate sends one request and waits for the reply, honoring ctx and
// the per-request timeout. A request that does not complete kills the
// process, since the protocol cannot resynchronize after a partial frame.
func (w *PythonWorker) communicate(ctx context.Context, op byte, payload []byte) ([]byte, error) {
	if w.dead {
		return nil, ErrWorkerDead
	}

	type result struct {
		body []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		body, err := w.roundTrip(op, payload)
		done <- result{body, err}
	}()

	var timeout <-chan time.Time
	if w.Timeout > 0 {
		timer := time.NewTimer(w.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		return decodeStatus(res.body)
	case <-ctx.Done():
		w.kill()
		return nil, ctx.Err()
	case <-timeout:
		w.kill()
		return nil, fmt.Errorf("worker %d: no reply within %s", w.ID, w.Timeout)
	}
}

// roundTrip writes [Length][Op][Payload] and reads [Length][Body].
func (w *PythonWorker) roundTrip(op byte, payload []byte) ([]byte, error) {
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(payload)+1)); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write([]byte{op}); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(payload); err != nil {
		return nil, err
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // This is where we catch the "ModuleNotFoundError" crash
	}

	respLen := binary.BigEndian.Uint32(header)
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

func (w *PythonWorker) kill() {
	w.dead = true
	if w.Cmd != nil && w.Cmd.Process != nil {
		w.Cmd.Process.Kill()
	}
	w.DataPipe.Close()
}

// decodeStatus strips the status byte, turning [1][MsgLen][Msg] into an error.
func decodeStatus(body []byte) ([]byte, error) {
	if len(body) == 0 {
		return nil, errors.New("empty response from python worker")
	}
	switch body[0] {
	case statusOK:
		return body[1:], nil
	case statusErr:
		r := bytes.NewReader(body[1:])
		var n uint32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return nil, fmt.Errorf("python worker error: malformed message: %w", err)
		}
		msg := make([]byte, n)
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, fmt.Errorf("python worker error: truncated message: %w", err)
		}
		return nil, &ReplyError{Msg: string(msg)}
	default:
		return nil, fmt.Errorf("unknown status byte %d from python worker", body[0])
	}
}

// parseBoxes reads [NumFaces] followed by NumFaces x [x0 y0 x1 y1] int32.
func parseBoxes(body []byte) ([]image.Rectangle, error) {
	r := bytes.NewReader(body)
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, fmt.Errorf("reading face count: %w", err)
	}
	if int64(n)*16 > int64(r.Len()) {
		return nil, fmt.Errorf("response claims %d faces but has %d bytes", n, r.Len())
	}
	boxes := make([]image.Rectangle, 0, n)
	for i := uint32(0); i < n; i++ {
		var b [4]int32
		if err := binary.Read(r, binary.BigEndian, &b); err != nil {
			return nil, fmt.Errorf("reading box %d: %w", i, err)
		}
		boxes = append(boxes, image.Rect(int(b[0]), int(b[1]), int(b[2]), int(b[3])))
	}
	return boxes, nil
}

// parseVector reads [Dim] followed by Dim float32 values.
func parseVector(body []byte) ([]float64, error) {
	r := bytes.NewReader(body)
	var dim uint32
	if err := binary.Read(r, binary.BigEndian, &dim); err != nil {
		return nil, fmt.Errorf("reading embedding size: %w", err)
	}
	if int64(dim)*4 > int64(r.Len()) {
		return nil, fmt.Errorf("response claims %d dimensions but has %d bytes", dim, r.Len())
	}
	raw := make([]float32, dim)
	if err := binary.Read(r, binary.BigEndian, raw); err != nil {
		return nil, fmt.Errorf("reading embedding: %w", err)
	}
	vec := make([]float64, dim)
	for i, v := range raw {
		if math.IsNaN(float64(v)) {
			return nil, fmt.Errorf("embedding component %d is NaN", i)
		}
		vec[i] = float64(v)
	}
	return vec, nil
}

// Logs returns the tail of the worker's stderr for error reports.
func (w *PythonWorker) Logs() string {
	if w.Cmd == nil || w.Cmd.Stderr == nil {
		return ""
	}
	return utils.Tail(w.Cmd.Stderr.String(), 20)
}

func (w *PythonWorker) Close() error {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd == nil {
		return nil
	}
	err := w.Cmd.Wait()
	if w.dead {
		return nil
	}
	return err
}
