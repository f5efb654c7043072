package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/flowline-ai/flowline/api"
	"github.com/flowline-ai/flowline/eventlog"
)

// StreamHandler pushes live workflow log entries over WebSocket.
type StreamHandler struct {
	broadcaster *eventlog.Broadcaster
	logger      *zap.Logger

	// writeTimeout bounds each frame write so one dead client cannot
	// stall the stream goroutine.
	writeTimeout time.Duration
	// insecureSkipVerify disables origin checks, test use only.
	insecureSkipVerify bool
}

// NewStreamHandler creates the handler.
func NewStreamHandler(broadcaster *eventlog.Broadcaster, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{
		broadcaster:  broadcaster,
		logger:       logger.With(zap.String("component", "stream_handler")),
		writeTimeout: 10 * time.Second,
	}
}

// Register mounts the routes on mux.
func (h *StreamHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/conversations/{id}/stream", h.HandleStream)
	mux.HandleFunc("GET /api/v1/stream", h.HandleStreamAll)
}

// HandleStream streams one conversation's entries.
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, r.PathValue("id"))
}

// HandleStreamAll streams every conversation's entries.
func (h *StreamHandler) HandleStreamAll(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "")
}

func (h *StreamHandler) serve(w http.ResponseWriter, r *http.Request, conversationID string) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: h.insecureSkipVerify,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	sub := h.broadcaster.Subscribe(conversationID)
	defer sub.Close()

	h.logger.Info("stream opened", zap.String("conversation_id", conversationID))

	// Reads are discarded; their only purpose is surfacing client close.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-sub.C:
			if !ok {
				return
			}
			if err := h.writeEntry(ctx, conn, entry); err != nil {
				h.logger.Debug("stream write failed", zap.Error(err))
				return
			}
		}
	}
}

func (h *StreamHandler) writeEntry(ctx context.Context, conn *websocket.Conn, entry *eventlog.Entry) error {
	data, err := json.Marshal(api.NewLogEntryView(entry))
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
