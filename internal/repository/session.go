package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatdesk/internal/logger"
	"github.com/chatdesk/internal/model"
)

type SessionRepo struct {
	db *pgxpool.Pool
}

func NewSessionRepo(db *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{db: db}
}

func (r *SessionRepo) Create(ctx context.Context, userID, deviceName, secretHash string) (*model.Session, error) {
	defer logger.DeferLogDuration("sessionRepo.Create", time.Now())()

	s := &model.Session{UserID: userID, DeviceName: deviceName, SecretHash: secretHash}
	err := r.db.QueryRow(ctx, `
		INSERT INTO sessions (user_id, device_name, secret_hash)
		VALUES ($1, $2, $3)
		RETURNING id, last_seen_at, created_at`,
		userID, deviceName, secretHash,
	).Scan(&s.ID, &s.LastSeenAt, &s.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("sessionRepo.Create: %w", err)
	}
	return s, nil
}

func (r *SessionRepo) Get(ctx context.Context, id string) (*model.Session, error) {
	defer logger.DeferLogDuration("sessionRepo.Get", time.Now())()

	s := &model.Session{}
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, device_name, secret_hash, last_seen_at, created_at, revoked_at
		FROM sessions WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.UserID, &s.DeviceName, &s.SecretHash, &s.LastSeenAt, &s.CreatedAt, &s.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sessionRepo.Get: %w", err)
	}
	return s, nil
}

func (r *SessionRepo) TouchLastSeen(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("sessionRepo.TouchLastSeen", time.Now())()

	if _, err := r.db.Exec(ctx,
		`UPDATE sessions SET last_seen_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("sessionRepo.TouchLastSeen: %w", err)
	}
	return nil
}

func (r *SessionRepo) Revoke(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("sessionRepo.Revoke", time.Now())()

	tag, err := r.db.Exec(ctx,
		`UPDATE sessions SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("sessionRepo.Revoke: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
