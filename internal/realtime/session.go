package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vendorlane/pulse/pkg/models"
)

// session is one connected websocket peer. Reads and writes run on separate
// goroutines; everything outbound goes through the send channel so only the
// write loop touches the connection for data frames.
type session struct {
	hub  *Hub
	conn *websocket.Conn
	user *models.User

	id     string
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	sendMu    sync.RWMutex
	closed    bool
}

func newSession(h *Hub, conn *websocket.Conn, user *models.User) *session {
	return &session{
		hub:  h,
		conn: conn,
		user: user,
		id:   uuid.NewString(),
		send: make(chan []byte, h.opts.SendBuffer),
	}
}

func (s *session) run(parent context.Context) {
	s.ctx, s.cancel = context.WithCancel(parent)
	s.hub.register(s)
	defer s.hub.unregister(s)
	defer s.close()

	go s.writeLoop()

	userID := ""
	if s.user != nil {
		userID = s.user.ID
	}
	s.sendFrame(FrameConnectionAck, ConnectionAckPayload{SessionID: s.id, UserID: userID})

	s.readLoop()
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.sendMu.Lock()
		s.closed = true
		close(s.send)
		s.sendMu.Unlock()
		_ = s.conn.Close()
	})
}

// enqueue queues raw bytes for the write loop. A peer that cannot drain its
// buffer is cut loose rather than blocking the broadcaster.
func (s *session) enqueue(data []byte) bool {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- data:
		return true
	default:
		s.hub.logger.Warn("dropping slow websocket peer", "session_id", s.id)
		s.cancel()
		return false
	}
}

func (s *session) sendFrame(frameType string, payload any) {
	data, err := EncodeFrame(frameType, payload)
	if err != nil {
		s.hub.logger.Error("frame encode failed", "frame", frameType, "error", err)
		return
	}
	if s.enqueue(data) {
		s.hub.metrics.FrameSent(frameType)
	}
}

func (s *session) sendError(code, message string) {
	s.sendFrame(FrameError, ErrorPayload{Code: code, Message: message})
}

func (s *session) pongWait() time.Duration {
	return s.hub.opts.HeartbeatInterval * time.Duration(s.hub.opts.PongTimeoutIntervals)
}

func (s *session) readLoop() {
	s.conn.SetReadLimit(s.hub.opts.MaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.pongWait()))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.pongWait()))
	})

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		frame, err := DecodeFrame(data)
		if err != nil {
			s.sendError("invalid_frame", err.Error())
			continue
		}
		if err := ValidateClientFrame(data, frame); err != nil {
			s.sendError("invalid_frame", err.Error())
			continue
		}

		s.hub.metrics.FrameReceived(frame.Type)
		if err := s.handleFrame(frame); err != nil {
			s.sendError("request_failed", err.Error())
		}
	}
}

func (s *session) writeLoop() {
	ticker := time.NewTicker(s.hub.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			_ = s.conn.Close()
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.hub.opts.WriteTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.cancel()
				return
			}
		case msg, ok := <-s.send:
			if !ok {
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.hub.opts.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.cancel()
				return
			}
		}
	}
}

func (s *session) handleFrame(frame *Frame) error {
	switch frame.Type {
	case FramePing:
		s.sendFrame(FramePong, PongPayload{Timestamp: time.Now().UnixMilli()})
		return nil
	case FrameSubscribe:
		return s.handleSubscribe(frame, true)
	case FrameUnsubscribe:
		return s.handleSubscribe(frame, false)
	case FrameChatMessage:
		return s.handleChatMessage(frame)
	case FrameFlagMessage:
		return s.handleFlagMessage(frame)
	default:
		return fmt.Errorf("unknown frame type %q", frame.Type)
	}
}

func (s *session) handleSubscribe(frame *Frame, subscribe bool) error {
	var payload SubscribePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		return err
	}
	if subscribe {
		if err := s.authorizeConversation(payload.ConversationID); err != nil {
			return err
		}
		s.hub.subscribe(s, payload.ConversationID)
	} else {
		s.hub.unsubscribe(s, payload.ConversationID)
	}
	return nil
}

// authorizeConversation restricts subscriptions to participants, with admins
// allowed everywhere. Anonymous sessions (auth disabled) are unrestricted.
func (s *session) authorizeConversation(conversationID string) error {
	if s.user == nil || s.user.Type == models.UserTypeAdmin {
		return nil
	}
	conv, err := s.hub.store.GetConversation(s.ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(s.user.ID) {
		return fmt.Errorf("not a participant of conversation %s", conversationID)
	}
	return nil
}

func (s *session) handleChatMessage(frame *Frame) error {
	var payload ChatMessagePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		return err
	}
	if strings.TrimSpace(payload.Content) == "" {
		return fmt.Errorf("content is required")
	}
	if err := s.authorizeConversation(payload.ConversationID); err != nil {
		return err
	}

	msg := &models.Message{
		Content:  payload.Content,
		Metadata: payload.Metadata,
	}
	if s.user != nil {
		msg.SenderID = s.user.ID
		msg.SenderType = s.user.Type
	}
	if err := s.hub.store.AppendMessage(s.ctx, payload.ConversationID, msg); err != nil {
		return err
	}

	s.hub.broadcast(payload.ConversationID, FrameMessageReceived, msg, s)
	if conv, err := s.hub.store.GetConversation(s.ctx, payload.ConversationID); err == nil {
		s.hub.Broadcast(payload.ConversationID, FrameConversationUpdated, conv)
	}
	return nil
}

func (s *session) handleFlagMessage(frame *Frame) error {
	var payload FlagMessagePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		return err
	}
	if err := s.authorizeConversation(payload.ConversationID); err != nil {
		return err
	}

	msg, err := s.hub.store.FlagMessage(s.ctx, payload.ConversationID, payload.MessageID, payload.Reason)
	if err != nil {
		return err
	}
	s.hub.Broadcast(payload.ConversationID, FrameMessageFlagged, msg)
	return nil
}
