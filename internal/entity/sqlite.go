package entity

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"avatarforge/internal/database"
	"avatarforge/internal/services"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// SQLiteStore keeps faq and chatbot records in the local database for single
// host installs and tests.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the tables on first use.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if err := database.EnsureSQLiteSchema(ctx, db, "entity", schemaVersion, schemaSQL); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) ReadRenderInputs(ctx context.Context, ref Ref) (Inputs, error) {
	if err := ref.Validate(); err != nil {
		return Inputs{}, services.Wrap(services.ErrValidation, "entity", "read inputs", err.Error(), nil)
	}
	row := s.db.QueryRowContext(ctx, inputsQuery(ref, question), ref.ID)
	inputs, err := scanInputs(ref, row)
	if errors.Is(err, sql.ErrNoRows) {
		return Inputs{}, services.Wrap(services.ErrNotFound, "entity", "read inputs", ref.String()+" does not exist", nil)
	}
	if err != nil {
		return Inputs{}, fmt.Errorf("read render inputs for %s: %w", ref, err)
	}
	return inputs, nil
}

func (s *SQLiteStore) WriteRenderMarker(ctx context.Context, ref Ref, marker Marker, artifact *string) error {
	query, args, err := markerQuery(ref, marker, artifact, question)
	if err != nil {
		return err
	}
	res, err := database.ExecWithRetry(ctx, s.db, query, args...)
	if err != nil {
		return fmt.Errorf("write %s marker for %s: %w", marker, ref, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return services.Wrap(services.ErrNotFound, "entity", "write marker", ref.String()+" does not exist", nil)
	}
	return nil
}

// Chatbot is the subset of chatbot fields managed locally.
type Chatbot struct {
	ID       int64
	Name     string
	Gender   string
	IconPath string
}

// PutChatbot inserts or replaces a chatbot record.
func (s *SQLiteStore) PutChatbot(ctx context.Context, c Chatbot) error {
	_, err := database.ExecWithRetry(ctx, s.db,
		`INSERT INTO chatbot (chatbot_id, nome, genero, icon_path) VALUES (?, ?, ?, ?)
         ON CONFLICT(chatbot_id) DO UPDATE SET nome = excluded.nome, genero = excluded.genero, icon_path = excluded.icon_path`,
		c.ID, c.Name, nullable(c.Gender), nullable(c.IconPath),
	)
	if err != nil {
		return fmt.Errorf("put chatbot %d: %w", c.ID, err)
	}
	return nil
}

// FAQ is the subset of FAQ fields managed locally.
type FAQ struct {
	ID        int64
	ChatbotID int64
	Answer    string
	VideoText string
}

// PutFAQ inserts or replaces a FAQ record.
func (s *SQLiteStore) PutFAQ(ctx context.Context, f FAQ) error {
	_, err := database.ExecWithRetry(ctx, s.db,
		`INSERT INTO faq (faq_id, chatbot_id, resposta, video_text) VALUES (?, ?, ?, ?)
         ON CONFLICT(faq_id) DO UPDATE SET chatbot_id = excluded.chatbot_id, resposta = excluded.resposta, video_text = excluded.video_text`,
		f.ID, f.ChatbotID, nullable(f.Answer), nullable(f.VideoText),
	)
	if err != nil {
		return fmt.Errorf("put faq %d: %w", f.ID, err)
	}
	return nil
}

// Artifact reports the stored marker and path of one slot.
func (s *SQLiteStore) Artifact(ctx context.Context, ref Ref) (Marker, string, error) {
	cols, err := columnsFor(ref)
	if err != nil {
		return "", "", err
	}
	var marker, path sql.NullString
	query := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s = ?", cols.marker, cols.path, cols.table, cols.key)
	if err := s.db.QueryRowContext(ctx, query, ref.ID).Scan(&marker, &path); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", services.Wrap(services.ErrNotFound, "entity", "read artifact", ref.String()+" does not exist", nil)
		}
		return "", "", fmt.Errorf("read artifact for %s: %w", ref, err)
	}
	return Marker(marker.String), path.String, nil
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}
