package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"stakevault/services/vaultd/journal"
)

const (
	wsWriteTimeout = 10 * time.Second
	streamPage     = 500
	streamBuffer   = 64
)

var errSlowSubscriber = errors.New("event stream subscriber fell behind")

// eventHub fans journaled records out to live stream subscribers.
type eventHub struct {
	mu   sync.Mutex
	subs map[chan []journal.Record]struct{}
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[chan []journal.Record]struct{})}
}

func (h *eventHub) subscribe() (<-chan []journal.Record, func()) {
	ch := make(chan []journal.Record, streamBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
}

// publish never blocks. A subscriber whose buffer is full is dropped and its
// channel closed.
func (h *eventHub) publish(records []journal.Record) {
	if len(records) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- records:
		default:
			delete(h.subs, ch)
			close(ch)
		}
	}
}

// handleEventStream replays journaled events after the cursor and then
// pushes each newly committed event over a websocket.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "event journal disabled")
		return
	}
	var cursor uint64
	if raw := r.URL.Query().Get("after"); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid after cursor")
			return
		}
		cursor = after
	}

	live, cancel := s.hub.subscribe()
	defer cancel()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, cursor, live); err != nil {
		switch {
		case errors.Is(err, errSlowSubscriber):
			_ = conn.Close(websocket.StatusTryAgainLater, "subscriber fell behind")
		case websocket.CloseStatus(err) == -1 && ctx.Err() == nil:
			s.logger.Warn("event stream failed", "error", err.Error())
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, cursor uint64, live <-chan []journal.Record) error {
	for {
		page, err := s.journal.List(ctx, journal.Filter{AfterSequence: cursor, Limit: streamPage})
		if err != nil {
			return err
		}
		for _, record := range page {
			if err := writeRecord(ctx, conn, record); err != nil {
				return err
			}
			cursor = record.Sequence
		}
		if len(page) < streamPage {
			break
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case records, ok := <-live:
			if !ok {
				return errSlowSubscriber
			}
			for _, record := range records {
				if record.Sequence <= cursor {
					continue
				}
				if err := writeRecord(ctx, conn, record); err != nil {
					return err
				}
				cursor = record.Sequence
			}
		}
	}
}

func writeRecord(ctx context.Context, conn *websocket.Conn, record journal.Record) error {
	payload, err := toEventResponse(record)
	if err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
