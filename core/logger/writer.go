package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

const (
	queueDepth    = 256
	sinkBufferLen = 64 * 1024
)

// lineWriter copies log lines to every sink from one background goroutine so
// callers never wait on disk or stdout. The first sink error sticks and is
// returned by later calls.
type lineWriter struct {
	lines   chan []byte
	flushes chan chan error
	stopped chan struct{}

	gate   sync.RWMutex
	closed bool

	mu    sync.Mutex
	sinks []*bufio.Writer
	err   error
}

func newLineWriter(sinks ...io.Writer) *lineWriter {
	w := &lineWriter{
		lines:   make(chan []byte, queueDepth),
		flushes: make(chan chan error),
		stopped: make(chan struct{}),
	}
	for _, s := range sinks {
		if s != nil {
			w.sinks = append(w.sinks, bufio.NewWriterSize(s, sinkBufferLen))
		}
	}
	go w.run()
	return w
}

func (w *lineWriter) run() {
	defer close(w.stopped)
	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				w.fail(w.flush())
				return
			}
			w.fail(w.write(line, len(w.lines) == 0))
		case ack := <-w.flushes:
			for len(w.lines) > 0 {
				w.fail(w.write(<-w.lines, false))
			}
			ack <- w.flush()
		}
	}
}

var errWriterClosed = errors.New("logger: writer closed")

// Write queues a copy of p. It blocks only when the queue is full.
func (w *lineWriter) Write(p []byte) error {
	if err := w.sticky(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	w.gate.RLock()
	defer w.gate.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	w.lines <- append([]byte(nil), p...)
	return nil
}

// Flush waits until everything queued so far reached the sinks.
func (w *lineWriter) Flush() error {
	ack := make(chan error, 1)
	select {
	case w.flushes <- ack:
		return <-ack
	case <-w.stopped:
		return w.sticky()
	}
}

// Close drains the queue and stops the goroutine.
func (w *lineWriter) Close() error {
	w.gate.Lock()
	if !w.closed {
		w.closed = true
		close(w.lines)
	}
	w.gate.Unlock()
	<-w.stopped
	return w.sticky()
}

// write buffers line in every sink and flushes once the queue is drained.
func (w *lineWriter) write(line []byte, idle bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range w.sinks {
		if _, err := s.Write(line); err != nil {
			return err
		}
		if !idle {
			continue
		}
		if err := s.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func (w *lineWriter) flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var errs []error
	for _, s := range w.sinks {
		errs = append(errs, s.Flush())
	}
	return errors.Join(errs...)
}

func (w *lineWriter) fail(err error) {
	if err == nil {
		return
	}
	w.mu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.mu.Unlock()
}

func (w *lineWriter) sticky() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}
