package store

import (
	"context"
	"testing"

	"github.com/vendorlane/pulse/pkg/models"
)

func newConversation(t *testing.T, s Store, vendorID, customerID string) *models.Conversation {
	t.Helper()
	conv := &models.Conversation{VendorID: vendorID, CustomerID: customerID}
	if err := s.CreateConversation(context.Background(), conv); err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	if conv.ID == "" {
		t.Fatal("CreateConversation() did not assign an id")
	}
	return conv
}

func TestMemoryStoreConversationLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	conv := newConversation(t, s, "vendor-1", "customer-1")

	got, err := s.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	if got.VendorID != "vendor-1" || got.CustomerID != "customer-1" {
		t.Errorf("GetConversation() = %+v", got)
	}

	if _, err := s.GetConversation(ctx, "missing"); err != ErrConversationNotFound {
		t.Errorf("GetConversation(missing) error = %v, want ErrConversationNotFound", err)
	}
}

func TestMemoryStoreListConversationsByParticipant(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	a := newConversation(t, s, "vendor-1", "customer-1")
	b := newConversation(t, s, "vendor-1", "customer-2")
	newConversation(t, s, "vendor-2", "customer-3")

	// Touch b so it sorts first.
	if err := s.AppendMessage(ctx, b.ID, &models.Message{SenderID: "customer-2", Content: "hi"}); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}

	got, err := s.ListConversations(ctx, "vendor-1", ListOptions{})
	if err != nil {
		t.Fatalf("ListConversations() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListConversations(vendor-1) returned %d, want 2", len(got))
	}
	if got[0].ID != b.ID || got[1].ID != a.ID {
		t.Errorf("order = [%s %s], want most recently active first", got[0].ID, got[1].ID)
	}

	got, err = s.ListConversations(ctx, "customer-3", ListOptions{})
	if err != nil {
		t.Fatalf("ListConversations() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("ListConversations(customer-3) returned %d, want 1", len(got))
	}
}

func TestMemoryStoreHistoryAndFlag(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	conv := newConversation(t, s, "vendor-1", "customer-1")

	first := &models.Message{SenderID: "customer-1", SenderType: models.UserTypeCustomer, Content: "is this in stock?"}
	second := &models.Message{SenderID: "vendor-1", SenderType: models.UserTypeVendor, Content: "yes, 12 units"}
	for _, msg := range []*models.Message{first, second} {
		if err := s.AppendMessage(ctx, conv.ID, msg); err != nil {
			t.Fatalf("AppendMessage() error = %v", err)
		}
	}

	history, err := s.History(ctx, conv.ID, 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("History() returned %d messages, want 2", len(history))
	}
	if history[0].Content != "is this in stock?" {
		t.Errorf("History()[0].Content = %q, want oldest first", history[0].Content)
	}

	flagged, err := s.FlagMessage(ctx, conv.ID, second.ID, "pricing dispute")
	if err != nil {
		t.Fatalf("FlagMessage() error = %v", err)
	}
	if !flagged.Flagged || flagged.FlagReason != "pricing dispute" {
		t.Errorf("FlagMessage() = %+v", flagged)
	}

	if _, err := s.FlagMessage(ctx, conv.ID, "missing", "x"); err != ErrMessageNotFound {
		t.Errorf("FlagMessage(missing) error = %v, want ErrMessageNotFound", err)
	}

	// Appending must not mutate into terminal errors on limited history.
	history, err = s.History(ctx, conv.ID, 1)
	if err != nil {
		t.Fatalf("History(limit=1) error = %v", err)
	}
	if len(history) != 1 || history[0].ID != second.ID {
		t.Errorf("History(limit=1) = %+v, want only the newest message", history)
	}
}

func TestMemoryStoreUnreadAndMarkRead(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	conv := newConversation(t, s, "vendor-1", "customer-1")

	for range 3 {
		if err := s.AppendMessage(ctx, conv.ID, &models.Message{SenderID: "customer-1", Content: "ping"}); err != nil {
			t.Fatalf("AppendMessage() error = %v", err)
		}
	}
	if err := s.AppendMessage(ctx, conv.ID, &models.Message{SenderID: "vendor-1", Content: "pong"}); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}

	count, err := s.UnreadCount(ctx, conv.ID, "vendor-1")
	if err != nil {
		t.Fatalf("UnreadCount() error = %v", err)
	}
	if count != 3 {
		t.Errorf("UnreadCount(vendor-1) = %d, want 3", count)
	}

	if err := s.MarkRead(ctx, conv.ID, "vendor-1"); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	count, err = s.UnreadCount(ctx, conv.ID, "vendor-1")
	if err != nil {
		t.Fatalf("UnreadCount() error = %v", err)
	}
	if count != 0 {
		t.Errorf("UnreadCount(vendor-1) after MarkRead = %d, want 0", count)
	}

	// The other side still has the vendor's reply unread.
	count, err = s.UnreadCount(ctx, conv.ID, "customer-1")
	if err != nil {
		t.Fatalf("UnreadCount() error = %v", err)
	}
	if count != 1 {
		t.Errorf("UnreadCount(customer-1) = %d, want 1", count)
	}
}

func TestMemoryStoreApplications(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	app := &models.Application{CompanyName: "Calm Waters Ltd"}
	if err := s.CreateApplication(ctx, app); err != nil {
		t.Fatalf("CreateApplication() error = %v", err)
	}
	if app.Status != models.ApplicationPending || app.Priority != models.PriorityStandard {
		t.Errorf("CreateApplication() defaults = %q/%q", app.Status, app.Priority)
	}

	approved := &models.Application{CompanyName: "Done Deal", Status: models.ApplicationApproved}
	if err := s.CreateApplication(ctx, approved); err != nil {
		t.Fatalf("CreateApplication() error = %v", err)
	}

	pending, err := s.ListPendingApplications(ctx)
	if err != nil {
		t.Fatalf("ListPendingApplications() error = %v", err)
	}
	if len(pending) != 1 || pending[0].ID != app.ID {
		t.Errorf("ListPendingApplications() = %+v, want only the pending application", pending)
	}

	if _, err := s.GetApplication(ctx, "missing"); err != ErrApplicationNotFound {
		t.Errorf("GetApplication(missing) error = %v, want ErrApplicationNotFound", err)
	}
}
