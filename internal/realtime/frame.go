package realtime

import (
	"encoding/json"
	"fmt"
)

// Frame types sent by clients.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePing        = "ping"
	FrameChatMessage = "chat_message"
	FrameFlagMessage = "flag_message"
)

// Frame types sent by the server.
const (
	FrameConnectionAck       = "connection_ack"
	FramePong                = "pong"
	FrameMessageReceived     = "message_received"
	FrameConversationUpdated = "conversation_updated"
	FrameMessageFlagged      = "message_flagged"
	FrameReviewSLA           = "review_sla"
	FrameError               = "error"
)

// Frame is the single wire envelope for both directions: a type tag plus a
// type-specific JSON payload.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubscribePayload carries the conversation id for subscribe and unsubscribe
// frames.
type SubscribePayload struct {
	ConversationID string `json:"conversationId"`
}

// ChatMessagePayload is the client request to post a message.
type ChatMessagePayload struct {
	ConversationID string         `json:"conversationId"`
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// FlagMessagePayload is the client request to flag a message for moderation.
type FlagMessagePayload struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	Reason         string `json:"reason,omitempty"`
}

// ConnectionAckPayload confirms a new session to the peer.
type ConnectionAckPayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId,omitempty"`
}

// PongPayload answers an application-level ping.
type PongPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// ErrorPayload reports a rejected frame back to the sender.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EncodeFrame marshals a frame with the given payload.
func EncodeFrame(frameType string, payload any) ([]byte, error) {
	frame := Frame{Type: frameType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", frameType, err)
		}
		frame.Payload = raw
	}
	return json.Marshal(frame)
}

// DecodeFrame unmarshals a raw frame and rejects envelopes without a type.
func DecodeFrame(raw []byte) (*Frame, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, err
	}
	if frame.Type == "" {
		return nil, fmt.Errorf("frame type is required")
	}
	return &frame, nil
}
