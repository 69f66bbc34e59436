package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vendorlane/pulse/pkg/models"
)

// maxMessagesPerConversation bounds per-conversation history to keep memory
// use predictable; old messages are trimmed past the limit.
const maxMessagesPerConversation = 1000

// MemoryStore is an in-memory Store for tests and local runs.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation
	messages      map[string][]*models.Message
	applications  map[string]*models.Application
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: map[string]*models.Conversation{},
		messages:      map[string][]*models.Message{},
		applications:  map[string]*models.Application{},
	}
}

func (m *MemoryStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := cloneConversation(conv)
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	clone.UpdatedAt = clone.CreatedAt
	// Reflect generated fields back to the caller.
	conv.ID = clone.ID
	conv.CreatedAt = clone.CreatedAt
	conv.UpdatedAt = clone.UpdatedAt
	m.conversations[clone.ID] = clone
	return nil
}

func (m *MemoryStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.conversations[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return cloneConversation(conv), nil
}

func (m *MemoryStore) ListConversations(ctx context.Context, participantID string, opts ListOptions) ([]*models.Conversation, error) {
	opts = clampListOptions(opts)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []*models.Conversation
	for _, conv := range m.conversations {
		if participantID == "" || conv.HasParticipant(participantID) {
			all = append(all, cloneConversation(conv))
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].LastMessageAt.Equal(all[j].LastMessageAt) {
			return all[i].LastMessageAt.After(all[j].LastMessageAt)
		}
		return all[i].ID < all[j].ID
	})

	if opts.Offset >= len(all) {
		return nil, nil
	}
	all = all[opts.Offset:]
	if len(all) > opts.Limit {
		all = all[:opts.Limit]
	}
	return all, nil
}

func (m *MemoryStore) AppendMessage(ctx context.Context, conversationID string, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[conversationID]
	if !ok {
		return ErrConversationNotFound
	}

	clone := cloneMessage(msg)
	clone.ConversationID = conversationID
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	msg.ID = clone.ID
	msg.ConversationID = conversationID
	msg.CreatedAt = clone.CreatedAt

	msgs := append(m.messages[conversationID], clone)
	if len(msgs) > maxMessagesPerConversation {
		msgs = msgs[len(msgs)-maxMessagesPerConversation:]
	}
	m.messages[conversationID] = msgs

	conv.LastMessageAt = clone.CreatedAt
	conv.UpdatedAt = clone.CreatedAt
	return nil
}

func (m *MemoryStore) History(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	limit = clampHistoryLimit(limit)

	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.conversations[conversationID]; !ok {
		return nil, ErrConversationNotFound
	}

	msgs := m.messages[conversationID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]*models.Message, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, cloneMessage(msg))
	}
	return out, nil
}

func (m *MemoryStore) FlagMessage(ctx context.Context, conversationID, messageID, reason string) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, msg := range m.messages[conversationID] {
		if msg.ID == messageID {
			msg.Flagged = true
			msg.FlagReason = reason
			return cloneMessage(msg), nil
		}
	}
	return nil, ErrMessageNotFound
}

func (m *MemoryStore) MarkRead(ctx context.Context, conversationID, readerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversations[conversationID]; !ok {
		return ErrConversationNotFound
	}
	now := time.Now()
	for _, msg := range m.messages[conversationID] {
		if msg.SenderID != readerID && msg.ReadAt.IsZero() {
			msg.ReadAt = now
		}
	}
	return nil
}

func (m *MemoryStore) UnreadCount(ctx context.Context, conversationID, userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.conversations[conversationID]; !ok {
		return 0, ErrConversationNotFound
	}
	count := 0
	for _, msg := range m.messages[conversationID] {
		if msg.SenderID != userID && msg.ReadAt.IsZero() {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) CreateApplication(ctx context.Context, app *models.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *app
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if clone.Status == "" {
		clone.Status = models.ApplicationPending
	}
	if clone.Priority == "" {
		clone.Priority = models.PriorityStandard
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	clone.UpdatedAt = clone.CreatedAt
	app.ID = clone.ID
	app.Status = clone.Status
	app.Priority = clone.Priority
	m.applications[clone.ID] = &clone
	return nil
}

func (m *MemoryStore) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	app, ok := m.applications[id]
	if !ok {
		return nil, ErrApplicationNotFound
	}
	clone := *app
	return &clone, nil
}

func (m *MemoryStore) ListPendingApplications(ctx context.Context) ([]*models.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Application
	for _, app := range m.applications {
		if app.Status == models.ApplicationPending || app.Status == models.ApplicationInReview {
			clone := *app
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }

func cloneConversation(conv *models.Conversation) *models.Conversation {
	clone := *conv
	if conv.Metadata != nil {
		clone.Metadata = make(map[string]any, len(conv.Metadata))
		for k, v := range conv.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

func cloneMessage(msg *models.Message) *models.Message {
	clone := *msg
	if msg.Metadata != nil {
		clone.Metadata = make(map[string]any, len(msg.Metadata))
		for k, v := range msg.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}
