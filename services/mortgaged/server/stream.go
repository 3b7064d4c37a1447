package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"lendchain/services/mortgaged/journal"
)

const (
	wsWriteTimeout   = 10 * time.Second
	subscriberBuffer = 256
)

// streamHub fans journaled entries out to websocket subscribers. A subscriber
// that falls a full buffer behind is disconnected and must resume with
// ?after= from the last sequence it saw.
type streamHub struct {
	mu   sync.Mutex
	subs map[chan journal.Entry]struct{}
}

func newStreamHub() *streamHub {
	return &streamHub{subs: make(map[chan journal.Entry]struct{})}
}

func (h *streamHub) subscribe() (<-chan journal.Entry, func()) {
	ch := make(chan journal.Entry, subscriberBuffer)
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

func (h *streamHub) publish(entries []journal.Entry) {
	if len(entries) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		for _, entry := range entries {
			select {
			case ch <- entry:
				continue
			default:
			}
			delete(h.subs, ch)
			close(ch)
			break
		}
	}
}

func matches(f journal.Filter, entry journal.Entry) bool {
	if f.MortgageID != nil && (entry.MortgageID == nil || *entry.MortgageID != *f.MortgageID) {
		return false
	}
	if t := strings.TrimSpace(f.Type); t != "" && entry.Type != t {
		return false
	}
	return true
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.writeError(w, journal.ErrNotConfigured)
		return
	}
	filter, err := eventFilter(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	// Streams outlive the server write timeout.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := conn.CloseRead(r.Context())
	if err := s.stream(ctx, conn, filter); err != nil {
		if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) stream(ctx context.Context, conn *websocket.Conn, filter journal.Filter) error {
	updates, cancel := s.hub.subscribe()
	defer cancel()

	// Subscribe before loading the backlog so nothing committed in between
	// is lost; duplicates are skipped by sequence.
	last := filter.After
	page := filter
	page.Limit = 0
	for {
		backlog, err := s.journal.List(ctx, page)
		if err != nil {
			return err
		}
		for _, entry := range backlog {
			if err := writeEntry(ctx, conn, entry); err != nil {
				return err
			}
			last = entry.Sequence
		}
		if len(backlog) == 0 {
			break
		}
		page.After = last
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry, ok := <-updates:
			if !ok {
				return conn.Close(websocket.StatusTryAgainLater, "subscriber too slow")
			}
			if entry.Sequence <= last || !matches(filter, entry) {
				continue
			}
			if err := writeEntry(ctx, conn, entry); err != nil {
				return err
			}
			last = entry.Sequence
		}
	}
}

func writeEntry(ctx context.Context, conn *websocket.Conn, entry journal.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
