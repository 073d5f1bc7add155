// Package repository contains the pgx-backed data access layer. Every method
// takes a context, logs its duration and wraps errors with its call site.
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

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

type UserRepo struct {
	db *pgxpool.Pool
}

func NewUserRepo(db *pgxpool.Pool) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) Create(ctx context.Context, email, name, passwordHash string) (*model.User, error) {
	defer logger.DeferLogDuration("userRepo.Create", time.Now())()

	u := &model.User{Email: email, Name: name, PasswordHash: passwordHash}
	err := r.db.QueryRow(ctx, `
		INSERT INTO users (email, name, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		email, name, passwordHash,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("userRepo.Create: %w", err)
	}
	return u, nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	defer logger.DeferLogDuration("userRepo.GetByID", time.Now())()
	return r.get(ctx, "id = $1", id)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	defer logger.DeferLogDuration("userRepo.GetByEmail", time.Now())()
	return r.get(ctx, "email = $1", email)
}

func (r *UserRepo) get(ctx context.Context, where string, arg any) (*model.User, error) {
	u := &model.User{}
	err := r.db.QueryRow(ctx, `
		SELECT id, email, name, avatar_url, password_hash, email_verified, created_at
		FROM users WHERE `+where,
		arg,
	).Scan(&u.ID, &u.Email, &u.Name, &u.AvatarURL, &u.PasswordHash, &u.EmailVerified, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("userRepo.get: %w", err)
	}
	return u, nil
}

// List returns all users except the given one, for the new-chat directory.
func (r *UserRepo) List(ctx context.Context, excludeUserID string) ([]model.UserPublic, error) {
	defer logger.DeferLogDuration("userRepo.List", time.Now())()

	rows, err := r.db.Query(ctx, `
		SELECT id, email, name, avatar_url
		FROM users WHERE id <> $1
		ORDER BY name, email`,
		excludeUserID,
	)
	if err != nil {
		return nil, fmt.Errorf("userRepo.List: %w", err)
	}
	defer rows.Close()

	var users []model.UserPublic
	for rows.Next() {
		var u model.UserPublic
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.AvatarURL); err != nil {
			return nil, fmt.Errorf("userRepo.List scan: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *UserRepo) MarkEmailVerified(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("userRepo.MarkEmailVerified", time.Now())()

	tag, err := r.db.Exec(ctx, `UPDATE users SET email_verified = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("userRepo.MarkEmailVerified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepo) UpdateProfile(ctx context.Context, id, name, avatarURL string) error {
	defer logger.DeferLogDuration("userRepo.UpdateProfile", time.Now())()

	tag, err := r.db.Exec(ctx, `
		UPDATE users SET name = $2, avatar_url = $3 WHERE id = $1`,
		id, name, avatarURL,
	)
	if err != nil {
		return fmt.Errorf("userRepo.UpdateProfile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
