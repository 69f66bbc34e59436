package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/vendorlane/pulse/pkg/models"
)

// SQLiteStore implements Store on a local SQLite database. It is the default
// persistence for single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and ensures the
// schema exists. Pass ":memory:" for an ephemeral database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// under concurrent hub traffic.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			vendor_id TEXT NOT NULL,
			customer_id TEXT NOT NULL,
			subject TEXT,
			last_message_at DATETIME,
			metadata TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			sender_id TEXT NOT NULL,
			sender_type TEXT NOT NULL,
			content TEXT NOT NULL,
			flagged INTEGER NOT NULL DEFAULT 0,
			flag_reason TEXT,
			read_at DATETIME,
			metadata TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS applications (
			id TEXT PRIMARY KEY,
			company_name TEXT NOT NULL,
			status TEXT NOT NULL,
			priority TEXT NOT NULL,
			submitted_at DATETIME NOT NULL,
			snapshot TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_vendor ON conversations(vendor_id)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_customer ON conversations(customer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_applications_status ON applications(status)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now()
	}
	conv.UpdatedAt = conv.CreatedAt

	metadata, err := marshalMetadata(conv.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, vendor_id, customer_id, subject, last_message_at, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.VendorID, conv.CustomerID, conv.Subject,
		nullTime(conv.LastMessageAt), metadata, conv.CreatedAt, conv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, vendor_id, customer_id, subject, last_message_at, metadata, created_at, updated_at
		FROM conversations WHERE id = ?`, id)
	return scanConversation(row)
}

func (s *SQLiteStore) ListConversations(ctx context.Context, participantID string, opts ListOptions) ([]*models.Conversation, error) {
	opts = clampListOptions(opts)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, vendor_id, customer_id, subject, last_message_at, metadata, created_at, updated_at
		FROM conversations
		WHERE (? = '' OR vendor_id = ? OR customer_id = ?)
		ORDER BY last_message_at DESC, id
		LIMIT ? OFFSET ?`,
		participantID, participantID, participantID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var out []*models.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID string, msg *models.Message) error {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.ConversationID = conversationID

	metadata, err := marshalMetadata(msg.Metadata)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, sender_type, content, flagged, flag_reason, read_at, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, conversationID, msg.SenderID, string(msg.SenderType), msg.Content,
		boolToInt(msg.Flagged), msg.FlagReason, nullTime(msg.ReadAt), metadata, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE conversations SET last_message_at = ?, updated_at = ? WHERE id = ?`,
		msg.CreatedAt, msg.CreatedAt, conversationID)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) History(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	limit = clampHistoryLimit(limit)

	// Newest page, returned oldest-first.
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, sender_type, content, flagged, flag_reason, read_at, metadata, created_at
		FROM (
			SELECT * FROM messages WHERE conversation_id = ?
			ORDER BY created_at DESC, id DESC LIMIT ?
		) ORDER BY created_at ASC, id ASC`,
		conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) FlagMessage(ctx context.Context, conversationID, messageID, reason string) (*models.Message, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET flagged = 1, flag_reason = ?
		WHERE id = ? AND conversation_id = ?`,
		reason, messageID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to flag message: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrMessageNotFound
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, sender_id, sender_type, content, flagged, flag_reason, read_at, metadata, created_at
		FROM messages WHERE id = ?`, messageID)
	return scanMessage(row)
}

func (s *SQLiteStore) MarkRead(ctx context.Context, conversationID, readerID string) error {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET read_at = ?
		WHERE conversation_id = ? AND sender_id != ? AND read_at IS NULL`,
		time.Now(), conversationID, readerID)
	if err != nil {
		return fmt.Errorf("failed to mark read: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UnreadCount(ctx context.Context, conversationID, userID string) (int, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return 0, err
	}
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE conversation_id = ? AND sender_id != ? AND read_at IS NULL`,
		conversationID, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) CreateApplication(ctx context.Context, app *models.Application) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if app.Status == "" {
		app.Status = models.ApplicationPending
	}
	if app.Priority == "" {
		app.Priority = models.PriorityStandard
	}
	if app.CreatedAt.IsZero() {
		app.CreatedAt = time.Now()
	}
	app.UpdatedAt = app.CreatedAt

	snapshot, err := json.Marshal(app)
	if err != nil {
		return fmt.Errorf("failed to encode application: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO applications (id, company_name, status, priority, submitted_at, snapshot, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		app.ID, app.CompanyName, string(app.Status), string(app.Priority),
		app.SubmittedAt, string(snapshot), app.CreatedAt, app.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	var snapshot string
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM applications WHERE id = ?`, id).Scan(&snapshot)
	if err == sql.ErrNoRows {
		return nil, ErrApplicationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return decodeApplication(snapshot)
}

func (s *SQLiteStore) ListPendingApplications(ctx context.Context) ([]*models.Application, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT snapshot FROM applications
		WHERE status IN (?, ?)
		ORDER BY submitted_at ASC`,
		string(models.ApplicationPending), string(models.ApplicationInReview))
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	var out []*models.Application
	for rows.Next() {
		var snapshot string
		if err := rows.Scan(&snapshot); err != nil {
			return nil, err
		}
		app, err := decodeApplication(snapshot)
		if err != nil {
			return nil, err
		}
		out = append(out, app)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*models.Conversation, error) {
	var conv models.Conversation
	var subject, metadata sql.NullString
	var lastMessageAt sql.NullTime

	err := row.Scan(&conv.ID, &conv.VendorID, &conv.CustomerID, &subject,
		&lastMessageAt, &metadata, &conv.CreatedAt, &conv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan conversation: %w", err)
	}
	conv.Subject = subject.String
	if lastMessageAt.Valid {
		conv.LastMessageAt = lastMessageAt.Time
	}
	if err := unmarshalMetadata(metadata, &conv.Metadata); err != nil {
		return nil, err
	}
	return &conv, nil
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var msg models.Message
	var senderType string
	var flagged int
	var flagReason, metadata sql.NullString
	var readAt sql.NullTime

	err := row.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &senderType,
		&msg.Content, &flagged, &flagReason, &readAt, &metadata, &msg.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}
	msg.SenderType = models.UserType(senderType)
	msg.Flagged = flagged != 0
	msg.FlagReason = flagReason.String
	if readAt.Valid {
		msg.ReadAt = readAt.Time
	}
	if err := unmarshalMetadata(metadata, &msg.Metadata); err != nil {
		return nil, err
	}
	return &msg, nil
}

func marshalMetadata(metadata map[string]any) (sql.NullString, error) {
	if len(metadata) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalMetadata(raw sql.NullString, dst *map[string]any) error {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw.String), dst); err != nil {
		return fmt.Errorf("failed to decode metadata: %w", err)
	}
	return nil
}

func decodeApplication(snapshot string) (*models.Application, error) {
	var app models.Application
	if err := json.Unmarshal([]byte(snapshot), &app); err != nil {
		return nil, fmt.Errorf("failed to decode application: %w", err)
	}
	return &app, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
