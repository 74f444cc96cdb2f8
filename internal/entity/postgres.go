package entity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"avatarforge/internal/services"
)

// PgStore reads and writes the backoffice faq and chatbot tables.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore wraps an existing pool.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// EnsureColumns adds the per-slot marker columns for chatbot clips when the
// backoffice schema predates them.
func (s *PgStore) EnsureColumns(ctx context.Context) error {
	for _, stmt := range []string{
		"ALTER TABLE chatbot ADD COLUMN IF NOT EXISTS video_greeting_status TEXT",
		"ALTER TABLE chatbot ADD COLUMN IF NOT EXISTS video_idle_status TEXT",
	} {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure chatbot marker columns: %w", err)
		}
	}
	return nil
}

func (s *PgStore) ReadRenderInputs(ctx context.Context, ref Ref) (Inputs, error) {
	if err := ref.Validate(); err != nil {
		return Inputs{}, services.Wrap(services.ErrValidation, "entity", "read inputs", err.Error(), nil)
	}
	row := s.pool.QueryRow(ctx, inputsQuery(ref, dollar), ref.ID)
	inputs, err := scanInputs(ref, row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Inputs{}, services.Wrap(services.ErrNotFound, "entity", "read inputs", ref.String()+" does not exist", nil)
	}
	if err != nil {
		return Inputs{}, fmt.Errorf("read render inputs for %s: %w", ref, err)
	}
	return inputs, nil
}

func (s *PgStore) WriteRenderMarker(ctx context.Context, ref Ref, marker Marker, artifact *string) error {
	query, args, err := markerQuery(ref, marker, artifact, dollar)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("write %s marker for %s: %w", marker, ref, err)
	}
	if tag.RowsAffected() == 0 {
		return services.Wrap(services.ErrNotFound, "entity", "write marker", ref.String()+" does not exist", nil)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInputs(ref Ref, row rowScanner) (Inputs, error) {
	var inputs Inputs
	if ref.Scope == ScopeFAQ {
		var videoText, answer string
		if err := row.Scan(&videoText, &answer, &inputs.Name, &inputs.VoiceGender, &inputs.AvatarPath); err != nil {
			return Inputs{}, err
		}
		inputs.Text = faqText(videoText, answer)
		return inputs, nil
	}
	if err := row.Scan(&inputs.Name, &inputs.VoiceGender, &inputs.AvatarPath); err != nil {
		return Inputs{}, err
	}
	return inputs, nil
}
