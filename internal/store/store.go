// Package store persists conversations, messages and vendor applications.
package store

import (
	"context"
	"errors"

	"github.com/vendorlane/pulse/pkg/models"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrApplicationNotFound  = errors.New("application not found")
)

// ListOptions configures conversation listing.
type ListOptions struct {
	Limit  int
	Offset int
}

// Store is the persistence interface behind the realtime hub and the
// gateway API. Implementations must be safe for concurrent use.
type Store interface {
	// Conversations
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListConversations(ctx context.Context, participantID string, opts ListOptions) ([]*models.Conversation, error)

	// Messages
	AppendMessage(ctx context.Context, conversationID string, msg *models.Message) error
	History(ctx context.Context, conversationID string, limit int) ([]*models.Message, error)
	FlagMessage(ctx context.Context, conversationID, messageID, reason string) (*models.Message, error)
	MarkRead(ctx context.Context, conversationID, readerID string) error
	UnreadCount(ctx context.Context, conversationID, userID string) (int, error)

	// Vendor applications
	CreateApplication(ctx context.Context, app *models.Application) error
	GetApplication(ctx context.Context, id string) (*models.Application, error)
	ListPendingApplications(ctx context.Context) ([]*models.Application, error)

	Close() error
}

// defaultHistoryLimit bounds History when the caller passes no limit.
const defaultHistoryLimit = 50

// maxHistoryLimit is the hard cap on a single history page.
const maxHistoryLimit = 500

func clampHistoryLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}

func clampListOptions(opts ListOptions) ListOptions {
	if opts.Limit <= 0 || opts.Limit > maxHistoryLimit {
		opts.Limit = defaultHistoryLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	return opts
}
