// Package sessionsql keeps sessions in PostgreSQL.
package sessionsql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openkcm/storyblok-proxy/internal/serviceerr"
	"github.com/openkcm/storyblok-proxy/pkg/session"
)

const (
	selectSession = `SELECT id, application_code, access_token, refresh_token, pending, created_at, expiry
FROM sessions WHERE id = $1 AND expiry > now();`

	upsertSession = `INSERT INTO sessions (id, application_code, access_token, refresh_token, pending, created_at, expiry)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
    application_code = EXCLUDED.application_code,
    access_token = EXCLUDED.access_token,
    refresh_token = EXCLUDED.refresh_token,
    pending = EXCLUDED.pending,
    expiry = EXCLUDED.expiry;`

	deleteSession = `DELETE FROM sessions WHERE id = $1;`

	deleteExpired = `DELETE FROM sessions WHERE expiry <= now();`
)

type Repository struct {
	db *pgxpool.Pool
}

var _ session.Repository = (*Repository)(nil)

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) LoadSession(ctx context.Context, sessionID string) (session.Data, error) {
	var (
		s       session.Data
		pending []byte
	)

	err := r.db.QueryRow(ctx, selectSession, sessionID).Scan(
		&s.ID, &s.ApplicationCode, &s.AccessToken, &s.RefreshToken, &pending, &s.CreatedAt, &s.Expiry,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return session.Data{}, errors.Join(err, serviceerr.ErrNotFound)
	}
	if err != nil {
		return session.Data{}, fmt.Errorf("selecting session: %w", err)
	}

	if len(pending) > 0 {
		s.Pending = new(session.Authorization)
		if err := json.Unmarshal(pending, s.Pending); err != nil {
			return session.Data{}, fmt.Errorf("decoding pending authorization: %w", err)
		}
	}

	return s, nil
}

func (r *Repository) StoreSession(ctx context.Context, s session.Data) error {
	var pending []byte
	if s.Pending != nil {
		var err error
		if pending, err = json.Marshal(s.Pending); err != nil {
			return fmt.Errorf("encoding pending authorization: %w", err)
		}
	}

	if _, err := r.db.Exec(ctx, upsertSession,
		s.ID, s.ApplicationCode, s.AccessToken, s.RefreshToken, pending, s.CreatedAt, s.Expiry,
	); err != nil {
		return fmt.Errorf("upserting session: %w", err)
	}

	return nil
}

func (r *Repository) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := r.db.Exec(ctx, deleteSession, sessionID); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	return nil
}

// DeleteExpired removes the expired sessions and returns how many were
// removed.
func (r *Repository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, deleteExpired)
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}

	return tag.RowsAffected(), nil
}
