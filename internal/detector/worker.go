package detector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"parking-fines-service/internal/domain/fines"
	"parking-fines-service/internal/imaging"
)

// frameQuality is the JPEG quality of frames sent to the worker.
const frameQuality = 90

// WorkerDetector runs a model in a child process. Frames go to the child's
// stdin and replies come back on file descriptor 3, so anything the model
// prints to stdout cannot corrupt the stream. The child's stderr is kept for
// diagnostics.
type WorkerDetector struct {
	mu       sync.Mutex
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	replies  io.ReadCloser
	stderr   *lockedBuffer
	minScore float64
	log      zerolog.Logger

	broken    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// workerExitTimeout bounds how long Close waits for the child to exit after
// its pipes are closed before killing it.
const workerExitTimeout = 5 * time.Second

// StartWorker launches command with args. Predictions scoring below minScore
// are discarded.
func StartWorker(command string, args []string, minScore float64, log zerolog.Logger) (*WorkerDetector, error) {
	cmd := exec.Command(command, args...)
	stderr := &lockedBuffer{}
	cmd.Stderr = stderr

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create reply pipe: %w", err)
	}
	cmd.ExtraFiles = []*os.File{w}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to start detector worker: %w", err)
	}
	w.Close()

	log.Info().
		Str("command", command).
		Strs("args", args).
		Int("pid", cmd.Process.Pid).
		Msg("detector worker started")

	return &WorkerDetector{
		cmd:      cmd,
		stdin:    stdin,
		replies:  r,
		stderr:   stderr,
		minScore: minScore,
		log:      log,
	}, nil
}

// Detect sends one frame and waits for the reply. Calls are serialised; the
// worker handles one frame at a time. Once a transport error leaves the reply
// stream misaligned every later call fails with ErrWorkerBroken.
func (d *WorkerDetector) Detect(ctx context.Context, frame image.Image) ([]fines.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.broken.Load() {
		return nil, ErrWorkerBroken
	}

	payload, err := imaging.EncodeJPEG(frame, frameQuality)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.broken.Load() {
		return nil, ErrWorkerBroken
	}

	body, err := d.communicate(payload)
	if errors.Is(err, ErrWorker) {
		return nil, err
	}
	if err != nil {
		d.broken.Store(true)
		d.log.Error().
			Err(err).
			Str("stderr", d.stderr.Tail(512)).
			Msg("detector worker stream broken, no further frames will be sent")
		return nil, fmt.Errorf("%w: %v", ErrWorkerBroken, err)
	}

	dets, err := decodePredictions(body)
	if err != nil {
		return nil, err
	}
	kept := dets[:0]
	for _, det := range dets {
		if det.Confidence >= d.minScore {
			kept = append(kept, det)
		}
	}
	return kept, nil
}

func (d *WorkerDetector) communicate(payload []byte) ([]byte, error) {
	if err := writeFrame(d.stdin, payload); err != nil {
		return nil, err
	}
	return readFrame(d.replies)
}

// Close stops the worker and waits for it to exit, killing it if it does not
// exit in time. Closing the pipes unblocks a Detect call waiting for a reply,
// so Close may be called while Detect is running. Later calls return the
// first result.
func (d *WorkerDetector) Close() error {
	d.closeOnce.Do(func() {
		d.broken.Store(true)
		d.stdin.Close()
		d.replies.Close()
		if d.cmd == nil {
			return
		}

		done := make(chan error, 1)
		go func() { done <- d.cmd.Wait() }()

		var err error
		select {
		case err = <-done:
		case <-time.After(workerExitTimeout):
			d.log.Warn().Msg("detector worker did not exit, killing it")
			d.cmd.Process.Kill()
			err = <-done
		}
		if err != nil {
			d.log.Warn().Err(err).Str("stderr", d.stderr.Tail(512)).Msg("detector worker exited with error")
		}
		d.closeErr = err
	})
	return d.closeErr
}

// CloseOnDone closes d once ctx is done.
func (d *WorkerDetector) CloseOnDone(ctx context.Context) {
	go func() {
		<-ctx.Done()
		d.Close()
	}()
}

// lockedBuffer collects child stderr, which exec copies from its own goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// Tail returns at most the last n bytes written, trimmed.
func (b *lockedBuffer) Tail(n int) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.buf.Bytes()
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return strings.TrimSpace(string(s))
}
