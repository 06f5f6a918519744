package source

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonwatch/signalrun/internal/models"
)

func dialBridge(t *testing.T, b *Bridge) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestBridgeDeliversMessageFrames(t *testing.T) {
	b := NewBridge(NewDirectory(), 8)
	conn := dialBridge(t, b)

	msg := models.MessageEvent{
		ChannelID:   42,
		ChannelName: "alpha_calls",
		MessageID:   "m1",
		Text:        "new gem 0xABC",
		Timestamp:   time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
		Forwards:    3,
		Views:       500,
	}
	require.NoError(t, conn.WriteJSON(Frame{Type: FrameMessage, Message: &msg}))

	select {
	case got := <-b.Events():
		assert.Equal(t, "m1", got.MessageID)
		assert.Equal(t, 3, got.Forwards)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestBridgeUpdatesDirectory(t *testing.T) {
	dir := NewDirectory()
	b := NewBridge(dir, 8)
	conn := dialBridge(t, b)

	info := models.ChannelInfo{ID: 42, Title: "Alpha Calls", Username: "alpha_calls", ParticipantsCount: 12000, IsBroadcast: true}
	require.NoError(t, conn.WriteJSON(Frame{Type: FrameChannelInfo, Channel: &info}))

	require.Eventually(t, func() bool { return dir.Len() == 1 }, time.Second, 10*time.Millisecond)
	assert.True(t, dir.IsChannelAccessible("ALPHA_CALLS"))
	got, ok := dir.GetChannelInfo("Alpha Calls")
	require.True(t, ok)
	assert.Equal(t, 12000, got.ParticipantsCount)
	_, ok = dir.GetChannelByID(42)
	assert.True(t, ok)
}

func TestBridgeSkipsUnknownFrames(t *testing.T) {
	b := NewBridge(NewDirectory(), 8)
	conn := dialBridge(t, b)

	require.NoError(t, conn.WriteJSON(Frame{Type: "heartbeat"}))
	msg := models.MessageEvent{ChannelName: "alpha", MessageID: "m1"}
	require.NoError(t, conn.WriteJSON(Frame{Type: FrameMessage, Message: &msg}))

	// The unknown frame must not have killed the connection.
	select {
	case got := <-b.Events():
		assert.Equal(t, "m1", got.MessageID)
	case <-time.After(time.Second):
		t.Fatal("connection did not survive unknown frame")
	}
}

func TestBridgeDropsWhenBufferFull(t *testing.T) {
	b := NewBridge(nil, 1)
	b.handle(Frame{Type: FrameMessage, Message: &models.MessageEvent{MessageID: "m1"}})
	b.handle(Frame{Type: FrameMessage, Message: &models.MessageEvent{MessageID: "m2"}})

	assert.Equal(t, int64(1), b.Dropped())
	got := <-b.Events()
	assert.Equal(t, "m1", got.MessageID)
}

func TestDirectoryUnknownChannel(t *testing.T) {
	dir := NewDirectory()
	assert.False(t, dir.IsChannelAccessible("ghost"))
	_, ok := dir.GetChannelInfo("ghost")
	assert.False(t, ok)
}
