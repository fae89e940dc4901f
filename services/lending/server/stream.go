package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"stakelend/core/events"
	"stakelend/services/lending/index"
)

const (
	wsWriteTimeout     = 10 * time.Second
	streamBuffer       = 32
	streamHistoryLimit = 256
)

// StreamFrame is one committed event as delivered over the websocket stream.
type StreamFrame struct {
	Seq        uint64            `json:"seq"`
	Receipt    string            `json:"receipt"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	Timestamp  int64             `json:"ts"`
}

func (f StreamFrame) touches(address string) bool {
	if address == "" {
		return true
	}
	for _, value := range f.Attributes {
		if value == address {
			return true
		}
	}
	return false
}

// Hub fans committed events out to websocket subscribers. Emit never blocks:
// a subscriber that falls behind its buffer misses frames.
type Hub struct {
	mu      sync.Mutex
	seq     uint64
	nextID  uint64
	subs    map[uint64]chan StreamFrame
	history []StreamFrame
	clock   func() time.Time
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]chan StreamFrame), clock: time.Now}
}

// Resume continues numbering after seq so frames carry the same sequence and
// receipt as the index rows written for the same events.
func (h *Hub) Resume(seq uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if seq > h.seq {
		h.seq = seq
	}
}

// Emit implements events.Emitter.
func (h *Hub) Emit(e events.Event) {
	if h == nil || e == nil {
		return
	}
	ev := e.Event()
	if ev == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	attrs := make(map[string]string, len(ev.Attributes))
	for k, v := range ev.Attributes {
		attrs[k] = v
	}
	frame := StreamFrame{
		Seq:        h.seq,
		Receipt:    index.ReceiptID(h.seq, ev),
		Type:       ev.Type,
		Attributes: attrs,
		Timestamp:  h.clock().Unix(),
	}
	h.history = append(h.history, frame)
	if len(h.history) > streamHistoryLimit {
		h.history = h.history[len(h.history)-streamHistoryLimit:]
	}
	for _, sub := range h.subs {
		select {
		case sub <- frame:
		default:
		}
	}
}

// Subscribe registers a subscriber and returns its channel, a cancel func
// and the retained frames newer than since.
func (h *Hub) Subscribe(ctx context.Context, since uint64) (<-chan StreamFrame, func(), []StreamFrame) {
	updates := make(chan StreamFrame, streamBuffer)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = updates
	backlog := make([]StreamFrame, 0, len(h.history))
	for _, frame := range h.history {
		if frame.Seq > since {
			backlog = append(backlog, frame)
		}
	}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
			h.mu.Unlock()
		})
	}
	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return updates, cancel, backlog
}

// Subscribers reports the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "Unavailable", "event stream disabled")
		return
	}
	var since uint64
	if cursor := strings.TrimSpace(r.URL.Query().Get("cursor")); cursor != "" {
		parsed, err := strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "InvalidArgument", "cursor must be an unsigned integer")
			return
		}
		since = parsed
	}
	address := strings.TrimSpace(r.URL.Query().Get("address"))
	if address != "" {
		if _, err := parseAddress(address); err != nil {
			writeError(w, http.StatusBadRequest, "InvalidArgument", err.Error())
			return
		}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.originPatterns})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, since, address); err != nil {
		if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
			s.logger.Debug("event stream ended", "error", err)
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, since uint64, address string) error {
	updates, cancel, backlog := s.hub.Subscribe(ctx, since)
	defer cancel()

	for _, frame := range backlog {
		if !frame.touches(address) {
			continue
		}
		if err := writeFrame(ctx, conn, frame); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-updates:
			if !ok {
				return nil
			}
			if !frame.touches(address) {
				continue
			}
			if err := writeFrame(ctx, conn, frame); err != nil {
				return err
			}
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, frame StreamFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
