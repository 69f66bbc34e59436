package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vendorlane/pulse/internal/store"
	"github.com/vendorlane/pulse/pkg/models"
)

func newTestHub(t *testing.T) (*Hub, *store.MemoryStore, *httptest.Server) {
	t.Helper()
	st := store.NewMemoryStore()
	hub := NewHub(st, quietLogger(), nil, Options{HeartbeatInterval: time.Minute})
	server := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		server.Close()
	})
	return hub, st, server
}

func dialHub(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readHubFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	frame, err := DecodeFrame(data)
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return *frame
}

func writeHubFrame(t *testing.T, conn *websocket.Conn, frameType string, payload any) {
	t.Helper()
	data, err := EncodeFrame(frameType, payload)
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func TestHubSendsConnectionAckFirst(t *testing.T) {
	_, _, server := newTestHub(t)
	conn := dialHub(t, server)

	frame := readHubFrame(t, conn)
	if frame.Type != FrameConnectionAck {
		t.Fatalf("first frame = %q, want connection_ack", frame.Type)
	}
	var ack ConnectionAckPayload
	if err := json.Unmarshal(frame.Payload, &ack); err != nil {
		t.Fatalf("ack payload: %v", err)
	}
	if ack.SessionID == "" {
		t.Error("connection_ack carried no session id")
	}
}

func TestHubPingPong(t *testing.T) {
	_, _, server := newTestHub(t)
	conn := dialHub(t, server)
	readHubFrame(t, conn) // ack

	writeHubFrame(t, conn, FramePing, nil)
	frame := readHubFrame(t, conn)
	if frame.Type != FramePong {
		t.Fatalf("frame = %q, want pong", frame.Type)
	}
}

func TestHubChatMessageFanOut(t *testing.T) {
	_, st, server := newTestHub(t)

	conv := &models.Conversation{VendorID: "vendor-1", CustomerID: "customer-1"}
	if err := st.CreateConversation(context.Background(), conv); err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}

	sender := dialHub(t, server)
	watcher := dialHub(t, server)
	readHubFrame(t, sender)
	readHubFrame(t, watcher)

	writeHubFrame(t, sender, FrameSubscribe, SubscribePayload{ConversationID: conv.ID})
	writeHubFrame(t, watcher, FrameSubscribe, SubscribePayload{ConversationID: conv.ID})

	// Second subscriber's subscribe must be registered before the send;
	// ping round-trips prove the hub has processed both.
	writeHubFrame(t, sender, FramePing, nil)
	readHubFrame(t, sender)
	writeHubFrame(t, watcher, FramePing, nil)
	readHubFrame(t, watcher)

	writeHubFrame(t, sender, FrameChatMessage, ChatMessagePayload{
		ConversationID: conv.ID,
		Content:        "any fresh stock?",
	})

	frame := readHubFrame(t, watcher)
	if frame.Type != FrameMessageReceived {
		t.Fatalf("watcher frame = %q, want message_received", frame.Type)
	}
	var msg models.Message
	if err := json.Unmarshal(frame.Payload, &msg); err != nil {
		t.Fatalf("message payload: %v", err)
	}
	if msg.Content != "any fresh stock?" || msg.ConversationID != conv.ID {
		t.Errorf("message = %+v", msg)
	}

	// The sender does not get its own message echoed back; its next frame is
	// the conversation update.
	for _, conn := range []*websocket.Conn{sender, watcher} {
		frame = readHubFrame(t, conn)
		if frame.Type != FrameConversationUpdated {
			t.Fatalf("frame = %q, want conversation_updated", frame.Type)
		}
		var updated models.Conversation
		if err := json.Unmarshal(frame.Payload, &updated); err != nil {
			t.Fatalf("conversation payload: %v", err)
		}
		if updated.ID != conv.ID || updated.LastMessageAt.IsZero() {
			t.Errorf("conversation = %+v", updated)
		}
	}

	// The message must also be durable.
	history, err := st.History(context.Background(), conv.ID, 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 {
		t.Errorf("History() returned %d messages, want 1", len(history))
	}
}

func TestHubFlagMessage(t *testing.T) {
	_, st, server := newTestHub(t)

	conv := &models.Conversation{VendorID: "vendor-1", CustomerID: "customer-1"}
	if err := st.CreateConversation(context.Background(), conv); err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	msg := &models.Message{SenderID: "customer-1", Content: "suspicious offer"}
	if err := st.AppendMessage(context.Background(), conv.ID, msg); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}

	conn := dialHub(t, server)
	readHubFrame(t, conn)
	writeHubFrame(t, conn, FrameSubscribe, SubscribePayload{ConversationID: conv.ID})
	writeHubFrame(t, conn, FrameFlagMessage, FlagMessagePayload{
		ConversationID: conv.ID,
		MessageID:      msg.ID,
		Reason:         "scam",
	})

	frame := readHubFrame(t, conn)
	if frame.Type != FrameMessageFlagged {
		t.Fatalf("frame = %q, want message_flagged", frame.Type)
	}
	var flagged models.Message
	if err := json.Unmarshal(frame.Payload, &flagged); err != nil {
		t.Fatalf("flagged payload: %v", err)
	}
	if !flagged.Flagged || flagged.FlagReason != "scam" {
		t.Errorf("flagged message = %+v", flagged)
	}
}

func TestHubRejectsInvalidFrames(t *testing.T) {
	_, _, server := newTestHub(t)
	conn := dialHub(t, server)
	readHubFrame(t, conn)

	tests := []struct {
		name string
		raw  string
	}{
		{"subscribe without conversation", `{"type":"subscribe","payload":{}}`},
		{"chat without content", `{"type":"chat_message","payload":{"conversationId":"c1"}}`},
		{"unknown extra field", `{"type":"ping","payload":{},"seq":9}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(tt.raw)); err != nil {
				t.Fatalf("write: %v", err)
			}
			frame := readHubFrame(t, conn)
			if frame.Type != FrameError {
				t.Fatalf("frame = %q, want error", frame.Type)
			}
			var payload ErrorPayload
			if err := json.Unmarshal(frame.Payload, &payload); err != nil {
				t.Fatalf("error payload: %v", err)
			}
			if payload.Code != "invalid_frame" {
				t.Errorf("error code = %q, want invalid_frame", payload.Code)
			}
		})
	}
}

func TestHubUnknownFrameType(t *testing.T) {
	_, _, server := newTestHub(t)
	conn := dialHub(t, server)
	readHubFrame(t, conn)

	writeHubFrame(t, conn, "bogus", nil)
	frame := readHubFrame(t, conn)
	if frame.Type != FrameError {
		t.Fatalf("frame = %q, want error", frame.Type)
	}
	var payload ErrorPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		t.Fatalf("error payload: %v", err)
	}
	if payload.Code != "request_failed" {
		t.Errorf("error code = %q, want request_failed", payload.Code)
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	_, st, server := newTestHub(t)

	conv := &models.Conversation{VendorID: "vendor-1", CustomerID: "customer-1"}
	if err := st.CreateConversation(context.Background(), conv); err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}

	conn := dialHub(t, server)
	readHubFrame(t, conn)
	writeHubFrame(t, conn, FrameSubscribe, SubscribePayload{ConversationID: conv.ID})
	writeHubFrame(t, conn, FrameUnsubscribe, SubscribePayload{ConversationID: conv.ID})

	// Round-trip to ensure the unsubscribe has been processed.
	writeHubFrame(t, conn, FramePing, nil)
	if frame := readHubFrame(t, conn); frame.Type != FramePong {
		t.Fatalf("frame = %q, want pong", frame.Type)
	}

	writeHubFrame(t, conn, FrameChatMessage, ChatMessagePayload{
		ConversationID: conv.ID,
		Content:        "still listening?",
	})

	// Only errors would come back; a pong round-trip shows nothing else
	// was delivered in between.
	writeHubFrame(t, conn, FramePing, nil)
	if frame := readHubFrame(t, conn); frame.Type != FramePong {
		t.Errorf("frame = %q, want pong (no fan-out after unsubscribe)", frame.Type)
	}
}
