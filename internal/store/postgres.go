package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/vendorlane/pulse/pkg/models"
)

// PostgresConfig holds connection settings for the Postgres store.
type PostgresConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultPostgresConfig returns default connection settings.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		Host:            "localhost",
		Port:            5432,
		User:            "pulse",
		Database:        "pulse",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// PostgresStore implements Store on PostgreSQL for multi-node deployments.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a pooled connection and verifies it with a ping.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	if config == nil {
		config = DefaultPostgresConfig()
	}
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		config.Host, config.Port, config.User, config.Password,
		config.Database, config.SSLMode, int(config.ConnectTimeout.Seconds()),
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an existing connection. Used by tests.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		conv.ID, conv.VendorID, conv.CustomerID, conv.Subject,
		nullTime(conv.LastMessageAt), metadata, conv.CreatedAt, conv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, vendor_id, customer_id, subject, last_message_at, metadata, created_at, updated_at
		FROM conversations WHERE id = $1`, id)
	return scanConversation(row)
}

func (s *PostgresStore) ListConversations(ctx context.Context, participantID string, opts ListOptions) ([]*models.Conversation, error) {
	opts = clampListOptions(opts)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, vendor_id, customer_id, subject, last_message_at, metadata, created_at, updated_at
		FROM conversations
		WHERE ($1 = '' OR vendor_id = $1 OR customer_id = $1)
		ORDER BY last_message_at DESC, id
		LIMIT $2 OFFSET $3`,
		participantID, opts.Limit, opts.Offset)
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

func (s *PostgresStore) AppendMessage(ctx context.Context, conversationID string, msg *models.Message) error {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		msg.ID, conversationID, msg.SenderID, string(msg.SenderType), msg.Content,
		msg.Flagged, msg.FlagReason, nullTime(msg.ReadAt), metadata, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE conversations SET last_message_at = $1, updated_at = $1 WHERE id = $2`,
		msg.CreatedAt, conversationID)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrConversationNotFound
	}
	return tx.Commit()
}

func (s *PostgresStore) History(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	limit = clampHistoryLimit(limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, sender_type, content, flagged, flag_reason, read_at, metadata, created_at
		FROM (
			SELECT * FROM messages WHERE conversation_id = $1
			ORDER BY created_at DESC, id DESC LIMIT $2
		) page ORDER BY created_at ASC, id ASC`,
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

func (s *PostgresStore) FlagMessage(ctx context.Context, conversationID, messageID, reason string) (*models.Message, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET flagged = TRUE, flag_reason = $1
		WHERE id = $2 AND conversation_id = $3`,
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
		FROM messages WHERE id = $1`, messageID)
	return scanMessage(row)
}

func (s *PostgresStore) MarkRead(ctx context.Context, conversationID, readerID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET read_at = $1
		WHERE conversation_id = $2 AND sender_id != $3 AND read_at IS NULL`,
		time.Now(), conversationID, readerID)
	if err != nil {
		return fmt.Errorf("failed to mark read: %w", err)
	}
	return nil
}

func (s *PostgresStore) UnreadCount(ctx context.Context, conversationID, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE conversation_id = $1 AND sender_id != $2 AND read_at IS NULL`,
		conversationID, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CreateApplication(ctx context.Context, app *models.Application) error {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		app.ID, app.CompanyName, string(app.Status), string(app.Priority),
		app.SubmittedAt, string(snapshot), app.CreatedAt, app.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	var snapshot string
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM applications WHERE id = $1`, id).Scan(&snapshot)
	if err == sql.ErrNoRows {
		return nil, ErrApplicationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return decodeApplication(snapshot)
}

func (s *PostgresStore) ListPendingApplications(ctx context.Context) ([]*models.Application, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT snapshot FROM applications
		WHERE status IN ($1, $2)
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

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
