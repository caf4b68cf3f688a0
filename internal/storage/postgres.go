package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/samueelperez/tricyclecrm-sub003/internal/models"
	"go.uber.org/zap"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (c DatabaseConfig) connString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", config.connString())
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	return newPostgresStorage(db, logger)
}

// NewPostgresStorageFromURL opens a connection from a postgres:// URL.
func NewPostgresStorageFromURL(dsn string, logger *zap.Logger) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	return newPostgresStorage(db, logger)
}

func newPostgresStorage(db *sql.DB, logger *zap.Logger) (*PostgresStorage, error) {
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	storage := &PostgresStorage{db: db, logger: logger.Named("storage")}
	if err := storage.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	storage.logger.Info("PostgreSQL storage ready")
	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("failed to read migrations file: %w", err)
	}
	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("failed to execute migrations: %w", err)
	}
	return nil
}

const conversationColumns = `id, title, mode, user_id, COALESCE(thread_id, ''), created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*models.Conversation, error) {
	conv := &models.Conversation{}
	err := row.Scan(&conv.ID, &conv.Title, &conv.Mode, &conv.UserID, &conv.ThreadID, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *PostgresStorage) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	query := `
		INSERT INTO chatbot_conversations (id, title, mode, user_id, thread_id)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		RETURNING created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query, conv.ID, conv.Title, conv.Mode, conv.UserID, conv.ThreadID).
		Scan(&conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetConversation(ctx context.Context, id, userID string) (*models.Conversation, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}

	query := `SELECT ` + conversationColumns + `
		FROM chatbot_conversations
		WHERE id = $1 AND user_id = $2`

	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

func (s *PostgresStorage) ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	query := `SELECT ` + conversationColumns + `
		FROM chatbot_conversations
		WHERE user_id = $1
		ORDER BY updated_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var out []*models.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) UpdateConversation(ctx context.Context, id, userID string, patch models.ConversationPatch) (*models.Conversation, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}

	var title, mode, threadID sql.NullString
	if patch.Title != nil {
		title = sql.NullString{String: *patch.Title, Valid: true}
	}
	if patch.Mode != nil {
		mode = sql.NullString{String: string(*patch.Mode), Valid: true}
	}
	if patch.ThreadID != nil && *patch.ThreadID != "" {
		threadID = sql.NullString{String: *patch.ThreadID, Valid: true}
	}

	query := `
		UPDATE chatbot_conversations
		SET title = COALESCE($3, title),
		    mode = COALESCE($4, mode),
		    thread_id = COALESCE($5, thread_id),
		    updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING ` + conversationColumns

	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, id, userID, title, mode, threadID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update conversation: %w", err)
	}
	return conv, nil
}

func (s *PostgresStorage) TouchConversation(ctx context.Context, id, userID, threadID string) error {
	if !validID(id) {
		return ErrNotFound
	}

	query := `
		UPDATE chatbot_conversations
		SET thread_id = COALESCE(NULLIF($3, ''), thread_id),
		    updated_at = NOW()
		WHERE id = $1 AND user_id = $2`

	result, err := s.db.ExecContext(ctx, query, id, userID, threadID)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return expectRows(result)
}

func (s *PostgresStorage) DeleteConversation(ctx context.Context, id, userID string) error {
	if !validID(id) {
		return ErrNotFound
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM chatbot_conversations WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return expectRows(result)
}

func (s *PostgresStorage) ListConversationIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM chatbot_conversations WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan conversation id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStorage) DeleteConversations(ctx context.Context, userID string, ids []string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM chatbot_conversations WHERE user_id = $1 AND id = ANY($2)`, userID, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to delete conversations: %w", err)
	}
	return result.RowsAffected()
}

func (s *PostgresStorage) AddMessage(ctx context.Context, msg *models.Message) error {
	query := `
		INSERT INTO chatbot_messages (id, conversation_id, role, content)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query, msg.ID, msg.ConversationID, msg.Role, msg.Content).
		Scan(&msg.CreatedAt, &msg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to add message: %w", err)
	}
	return nil
}

func (s *PostgresStorage) ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	query := `
		SELECT id, conversation_id, role, content, created_at, updated_at
		FROM chatbot_messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.CreatedAt, &msg.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) DeleteMessages(ctx context.Context, conversationIDs []string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM chatbot_messages WHERE conversation_id = ANY($1)`, pq.Array(conversationIDs))
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}
	return result.RowsAffected()
}

func (s *PostgresStorage) RecordInteraction(ctx context.Context, interaction *models.Interaction) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chatbot_interactions (user_id, message, mode) VALUES ($1, $2, $3)`,
		interaction.UserID, interaction.Message, interaction.Mode)
	if err != nil {
		return fmt.Errorf("failed to record interaction: %w", err)
	}
	return nil
}

// validID keeps malformed ids from reaching the uuid columns as a 500.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func expectRows(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
