package domain

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultPipeJoinTimeout bounds how long a supervisor waits for a pipe drain to finish.
const DefaultPipeJoinTimeout = 10 * time.Second

var errPipeTimeout = errors.New("pipe drain did not finish in time")

// pipeDrain continuously consumes one output stream of a worker so the child
// never blocks on a full pipe buffer.
type pipeDrain struct {
	name      string
	src       io.ReadCloser
	done      chan struct{}
	closeOnce sync.Once
}

func startPipeDrain(name string, src io.ReadCloser, consume func(io.Reader) error) *pipeDrain {
	p := &pipeDrain{
		name: name,
		src:  src,
		done: make(chan struct{}),
	}

	go func() {
		defer close(p.done)

		if err := consume(src); err != nil && !isClosedPipeErr(err) {
			slog.Debug("Pipe drain stopped with error", "pipe", name, "error", err)
		}
	}()

	return p
}

// Join waits for the stream to reach EOF. If that does not happen within
// timeout, the read end is closed to unblock the drain and errPipeTimeout is returned.
func (p *pipeDrain) Join(timeout time.Duration) error {
	if p == nil {
		return nil
	}

	select {
	case <-p.done:
		p.closeSource()
		return nil
	case <-time.After(timeout):
	}

	p.closeSource()

	select {
	case <-p.done:
	case <-time.After(timeout):
	}

	return errPipeTimeout
}

// Close stops the drain immediately and waits up to timeout for it to exit.
func (p *pipeDrain) Close(timeout time.Duration) error {
	if p == nil {
		return nil
	}

	p.closeSource()

	select {
	case <-p.done:
		return nil
	case <-time.After(timeout):
		return errPipeTimeout
	}
}

func (p *pipeDrain) closeSource() {
	p.closeOnce.Do(func() {
		_ = p.src.Close()
	})
}

// copyTo returns a consumer that copies the stream into w.
func copyTo(w io.Writer) func(io.Reader) error {
	return func(r io.Reader) error {
		_, err := io.Copy(w, r)
		return err
	}
}

// logLines returns a consumer that logs every line of the stream.
func logLines(taskID int, stream string) func(io.Reader) error {
	return func(r io.Reader) error {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			slog.Debug("Worker output", "taskID", taskID, "stream", stream, "line", scanner.Text())
		}

		return scanner.Err()
	}
}

func isClosedPipeErr(err error) bool {
	return errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed)
}
