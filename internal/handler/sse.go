package handler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/haatos/runkeeper/internal/build"
)

const (
	consoleOutputEvent = "output"
	consoleEndEvent    = "end"
)

// Event is a single server-sent event. Multi-line data is split into one
// data field per line.
type Event struct {
	ID    []byte
	Data  []byte
	Event []byte
	Retry []byte
}

func (ev *Event) MarshalTo(w io.Writer) error {
	if len(ev.Data) == 0 {
		return nil
	}
	if len(ev.ID) > 0 {
		if _, err := fmt.Fprintf(w, "id: %s\n", ev.ID); err != nil {
			return err
		}
	}
	if len(ev.Event) > 0 {
		if _, err := fmt.Fprintf(w, "event: %s\n", ev.Event); err != nil {
			return err
		}
	}
	if len(ev.Retry) > 0 {
		if _, err := fmt.Fprintf(w, "retry: %s\n", ev.Retry); err != nil {
			return err
		}
	}
	for line := range bytes.SplitSeq(ev.Data, []byte("\n")) {
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprint(w, "\n")
	return err
}

// GetConsoleSSE replays the console written so far and follows it until
// the build completes.
func (h *BuildHandler) GetConsoleSSE(c echo.Context) error {
	r, err := h.record(c)
	if err != nil {
		return err
	}

	sub, live := h.buildService.StreamConsole(r)
	if live {
		defer sub.Cancel()
	}

	var backlog []byte
	f, err := h.buildService.OpenConsole(r)
	switch {
	case err == nil:
		var src io.Reader = f
		if live {
			src = io.LimitReader(f, sub.Offset)
		}
		backlog, err = io.ReadAll(src)
		f.Close()
		if err != nil {
			return newError(c, err, http.StatusInternalServerError, "unable to read console output")
		}
	case errors.Is(err, fs.ErrNotExist) && live:
	case errors.Is(err, fs.ErrNotExist):
		return newError(c, err, http.StatusNotFound, "console output not found")
	default:
		return newError(c, err, http.StatusInternalServerError, "unable to read console output")
	}

	w := c.Response()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(event string, data []byte) bool {
		ev := &Event{Event: []byte(event), Data: data}
		if err := ev.MarshalTo(w); err != nil {
			log.WithError(err).WithField("record", r.String()).Debug("err writing console event")
			return false
		}
		w.Flush()
		return true
	}

	if !send(consoleOutputEvent, backlog) {
		return nil
	}
	if !live {
		send(consoleEndEvent, consoleEndData(r))
		return nil
	}
	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case chunk, ok := <-sub.Chunks:
			if !ok {
				if r.Status() != build.StatusCompleted {
					// dropped for lagging; the client reconnects and replays
					return nil
				}
				send(consoleEndEvent, consoleEndData(r))
				return nil
			}
			if !send(consoleOutputEvent, chunk) {
				return nil
			}
		}
	}
}

func consoleEndData(r *build.Record) []byte {
	if res := r.Result(); res != build.ResultNone {
		return []byte(res)
	}
	return []byte(r.Status().String())
}
