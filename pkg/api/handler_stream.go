package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/semibot/gateway/pkg/metrics"
)

// sseEvent is one queued server-sent event.
type sseEvent struct {
	name string
	data []byte
}

// sseSubscriber buffers events between the relay and one HTTP response.
// Send is bounded: if the buffer is full past sendTimeout the relay drops
// this subscriber.
type sseSubscriber struct {
	ch          chan sseEvent
	sendTimeout time.Duration

	once sync.Once
	done chan struct{}
}

func newSSESubscriber(sendTimeout time.Duration) *sseSubscriber {
	return &sseSubscriber{
		ch:          make(chan sseEvent, 64),
		sendTimeout: sendTimeout,
		done:        make(chan struct{}),
	}
}

// Send queues one event. Fails when the subscriber is closed or its buffer
// stays full past the write budget.
func (s *sseSubscriber) Send(event string, data []byte) error {
	select {
	case <-s.done:
		return errors.New("subscriber closed")
	default:
	}

	timer := time.NewTimer(s.sendTimeout)
	defer timer.Stop()

	select {
	case s.ch <- sseEvent{name: event, data: data}:
		return nil
	case <-s.done:
		return errors.New("subscriber closed")
	case <-timer.C:
		return errors.New("subscriber write timed out")
	}
}

// Close is idempotent; it wakes the serving goroutine.
func (s *sseSubscriber) Close() {
	s.once.Do(func() { close(s.done) })
}

// streamHandler handles GET /api/v1/sessions/:id/stream, attaching the
// caller to the session's event stream until the session ends or the client
// disconnects.
func (s *Server) streamHandler(c *echo.Context) error {
	orgID := orgFromRequest(c)
	if orgID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "org id is required")
	}
	sessionID := c.Param("id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	// Session must exist and belong to the caller's org before we attach.
	if _, err := s.sessions.GetSession(c.Request().Context(), orgID, sessionID); err != nil {
		return mapServiceError(err)
	}

	w := c.Response()
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)

	sub := newSSESubscriber(s.sseWriteTimeout)
	s.relay.Register(sessionID, sub)
	metrics.SSESubscribers.Inc()
	defer func() {
		s.relay.Unregister(sessionID, sub)
		sub.Close()
		metrics.SSESubscribers.Dec()
	}()

	// Initial comment so proxies commit to streaming.
	if _, err := fmt.Fprintf(w, ": connected\n\n"); err != nil {
		return nil
	}
	_ = rc.Flush()

	serveSSE(w, rc.Flush, sub, c.Request().Context().Done())
	return nil
}

// serveSSE pumps queued events to the response until the client goes away or
// the subscriber closes. The relay closes the subscriber right after sending
// the terminal event, so the close can be observed while that event is still
// queued; the done path drains the buffer before returning so the completion
// or error frame always reaches the client.
func serveSSE(w io.Writer, flush func() error, sub *sseSubscriber, clientGone <-chan struct{}) {
	writeEvent := func(ev sseEvent) bool {
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, ev.data); err != nil {
			return false
		}
		return flush() == nil
	}

	for {
		select {
		case <-clientGone:
			return
		case <-sub.done:
			for {
				select {
				case ev := <-sub.ch:
					if !writeEvent(ev) {
						return
					}
				default:
					return
				}
			}
		case ev := <-sub.ch:
			if !writeEvent(ev) {
				return
			}
		}
	}
}
