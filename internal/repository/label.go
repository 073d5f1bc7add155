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

type LabelRepo struct {
	db *pgxpool.Pool
}

func NewLabelRepo(db *pgxpool.Pool) *LabelRepo {
	return &LabelRepo{db: db}
}

func (r *LabelRepo) Create(ctx context.Context, name, color, createdBy string) (*model.Label, error) {
	defer logger.DeferLogDuration("labelRepo.Create", time.Now())()

	l := &model.Label{Name: name, Color: color, CreatedBy: createdBy}
	err := r.db.QueryRow(ctx, `
		INSERT INTO labels (name, color, created_by)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		name, color, createdBy,
	).Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("labelRepo.Create: %w", err)
	}
	return l, nil
}

func (r *LabelRepo) Get(ctx context.Context, id string) (*model.Label, error) {
	defer logger.DeferLogDuration("labelRepo.Get", time.Now())()

	l := &model.Label{}
	err := r.db.QueryRow(ctx, `
		SELECT id, name, color, created_by, created_at FROM labels WHERE id = $1`,
		id,
	).Scan(&l.ID, &l.Name, &l.Color, &l.CreatedBy, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("labelRepo.Get: %w", err)
	}
	return l, nil
}

func (r *LabelRepo) List(ctx context.Context) ([]model.Label, error) {
	defer logger.DeferLogDuration("labelRepo.List", time.Now())()

	rows, err := r.db.Query(ctx,
		`SELECT id, name, color, created_by, created_at FROM labels ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("labelRepo.List: %w", err)
	}
	defer rows.Close()

	var labels []model.Label
	for rows.Next() {
		var l model.Label
		if err := rows.Scan(&l.ID, &l.Name, &l.Color, &l.CreatedBy, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("labelRepo.List scan: %w", err)
		}
		labels = append(labels, l)
	}
	return labels, rows.Err()
}

// ListByChat returns the labels attached to one chat.
func (r *LabelRepo) ListByChat(ctx context.Context, chatID string) ([]model.Label, error) {
	defer logger.DeferLogDuration("labelRepo.ListByChat", time.Now())()

	rows, err := r.db.Query(ctx, `
		SELECT l.id, l.name, l.color, l.created_by, l.created_at
		FROM chat_labels cl
		JOIN labels l ON l.id = cl.label_id
		WHERE cl.chat_id = $1
		ORDER BY l.name`,
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("labelRepo.ListByChat: %w", err)
	}
	defer rows.Close()

	var labels []model.Label
	for rows.Next() {
		var l model.Label
		if err := rows.Scan(&l.ID, &l.Name, &l.Color, &l.CreatedBy, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("labelRepo.ListByChat scan: %w", err)
		}
		labels = append(labels, l)
	}
	return labels, rows.Err()
}

func (r *LabelRepo) Delete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("labelRepo.Delete", time.Now())()

	tag, err := r.db.Exec(ctx, `DELETE FROM labels WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("labelRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *LabelRepo) Attach(ctx context.Context, chatID, labelID string) error {
	defer logger.DeferLogDuration("labelRepo.Attach", time.Now())()

	if _, err := r.db.Exec(ctx, `
		INSERT INTO chat_labels (chat_id, label_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		chatID, labelID); err != nil {
		return fmt.Errorf("labelRepo.Attach: %w", err)
	}
	return nil
}

func (r *LabelRepo) Detach(ctx context.Context, chatID, labelID string) error {
	defer logger.DeferLogDuration("labelRepo.Detach", time.Now())()

	tag, err := r.db.Exec(ctx,
		`DELETE FROM chat_labels WHERE chat_id = $1 AND label_id = $2`, chatID, labelID)
	if err != nil {
		return fmt.Errorf("labelRepo.Detach: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *LabelRepo) DetachAll(ctx context.Context, chatID string) error {
	defer logger.DeferLogDuration("labelRepo.DetachAll", time.Now())()

	if _, err := r.db.Exec(ctx,
		`DELETE FROM chat_labels WHERE chat_id = $1`, chatID); err != nil {
		return fmt.Errorf("labelRepo.DetachAll: %w", err)
	}
	return nil
}
