package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/flowline-ai/flowline/api"
	"github.com/flowline-ai/flowline/eventlog"
)

func newStreamServer(t *testing.T) (*httptest.Server, *eventlog.Broadcaster) {
	t.Helper()
	broadcaster := eventlog.NewBroadcaster(16, zap.NewNop())

	mux := http.NewServeMux()
	NewStreamHandler(broadcaster, zap.NewNop()).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, broadcaster
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func readEntry(t *testing.T, ctx context.Context, conn *websocket.Conn) api.LogEntryView {
	t.Helper()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var view api.LogEntryView
	require.NoError(t, json.Unmarshal(data, &view))
	return view
}

func TestStreamHandler_ConversationScoped(t *testing.T) {
	srv, broadcaster := newStreamServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv, "/api/v1/conversations/conv-1/stream"), nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	require.Eventually(t, func() bool {
		return broadcaster.SubscriberCount() == 1
	}, time.Second, 5*time.Millisecond)

	// An entry for another conversation never reaches this stream.
	broadcaster.Publish(&eventlog.Entry{ID: "other", ConversationID: "conv-2", Kind: eventlog.KindAgentMessage})
	broadcaster.Publish(&eventlog.Entry{
		ID:             "mine",
		ConversationID: "conv-1",
		StepIndex:      3,
		Kind:           eventlog.KindHandoff,
		AgentID:        "coder",
		Payload:        "planner -> coder",
	})

	view := readEntry(t, ctx, conn)
	assert.Equal(t, "mine", view.ID)
	assert.Equal(t, "handoff", view.Kind)
	assert.Equal(t, 3, view.StepIndex)
}

func TestStreamHandler_GlobalStream(t *testing.T) {
	srv, broadcaster := newStreamServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv, "/api/v1/stream"), nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	require.Eventually(t, func() bool {
		return broadcaster.SubscriberCount() == 1
	}, time.Second, 5*time.Millisecond)

	broadcaster.Publish(&eventlog.Entry{ID: "a", ConversationID: "conv-1", Kind: eventlog.KindAgentMessage})
	broadcaster.Publish(&eventlog.Entry{ID: "b", ConversationID: "conv-2", Kind: eventlog.KindError})

	assert.Equal(t, "a", readEntry(t, ctx, conn).ID)
	assert.Equal(t, "b", readEntry(t, ctx, conn).ID)
}

func TestStreamHandler_UnsubscribesOnClose(t *testing.T) {
	srv, broadcaster := newStreamServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv, "/api/v1/stream"), nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return broadcaster.SubscriberCount() == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))

	require.Eventually(t, func() bool {
		return broadcaster.SubscriberCount() == 0
	}, time.Second, 5*time.Millisecond)
}
