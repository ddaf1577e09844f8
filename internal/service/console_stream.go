package service

import (
	"sync"

	"github.com/google/uuid"

	"github.com/haatos/runkeeper/internal/build"
)

// consoleClientBuffer is how many chunks a subscriber may fall behind
// before it is dropped.
const consoleClientBuffer = 64

type consoleKey struct {
	job    string
	number int64
}

func keyOf(r *build.Record) consoleKey {
	return consoleKey{job: r.Job().Name(), number: r.Number()}
}

type consoleStream struct {
	written int64
	clients map[string]chan []byte
}

// ConsoleHub fans the console output of running builds out to live
// subscribers. Writers never block on slow subscribers.
type ConsoleHub struct {
	m       sync.Mutex
	streams map[consoleKey]*consoleStream
}

func NewConsoleHub() *ConsoleHub {
	return &ConsoleHub{streams: make(map[consoleKey]*consoleStream)}
}

// ConsoleSubscription delivers the output written after Offset bytes.
// Chunks is closed when the build finishes or the subscriber lags behind.
type ConsoleSubscription struct {
	Offset int64
	Chunks <-chan []byte
	Cancel func()
}

// Open starts a stream for r and returns the writer feeding it.
func (h *ConsoleHub) Open(r *build.Record) *ConsoleWriter {
	k := keyOf(r)
	h.m.Lock()
	defer h.m.Unlock()
	h.streams[k] = &consoleStream{clients: make(map[string]chan []byte)}
	return &ConsoleWriter{hub: h, key: k}
}

// Close ends the stream for r and closes every subscriber.
func (h *ConsoleHub) Close(r *build.Record) {
	k := keyOf(r)
	h.m.Lock()
	defer h.m.Unlock()
	s, ok := h.streams[k]
	if !ok {
		return
	}
	for uid, ch := range s.clients {
		close(ch)
		delete(s.clients, uid)
	}
	delete(h.streams, k)
}

// Subscribe attaches to the live stream of r. It reports false when r has
// no open stream, in which case the console file is complete.
func (h *ConsoleHub) Subscribe(r *build.Record) (ConsoleSubscription, bool) {
	k := keyOf(r)
	h.m.Lock()
	defer h.m.Unlock()
	s, ok := h.streams[k]
	if !ok {
		return ConsoleSubscription{}, false
	}
	uid := uuid.NewString()
	ch := make(chan []byte, consoleClientBuffer)
	s.clients[uid] = ch
	return ConsoleSubscription{
		Offset: s.written,
		Chunks: ch,
		Cancel: func() { h.removeClient(k, uid) },
	}, true
}

func (h *ConsoleHub) removeClient(k consoleKey, uid string) {
	h.m.Lock()
	defer h.m.Unlock()
	s, ok := h.streams[k]
	if !ok {
		return
	}
	if ch, ok := s.clients[uid]; ok {
		close(ch)
		delete(s.clients, uid)
	}
}

// ConsoleWriter publishes whatever is written to it. It must be written to
// after the same bytes reached the console file.
type ConsoleWriter struct {
	hub *ConsoleHub
	key consoleKey
}

func (w *ConsoleWriter) Write(p []byte) (int, error) {
	w.hub.m.Lock()
	defer w.hub.m.Unlock()
	s, ok := w.hub.streams[w.key]
	if !ok {
		return len(p), nil
	}
	s.written += int64(len(p))
	for uid, ch := range s.clients {
		chunk := make([]byte, len(p))
		copy(chunk, p)
		select {
		case ch <- chunk:
		default:
			close(ch)
			delete(s.clients, uid)
		}
	}
	return len(p), nil
}
