package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatdesk/internal/logger"
	"github.com/chatdesk/internal/model"
)

type PushRepo struct {
	db *pgxpool.Pool
}

func NewPushRepo(db *pgxpool.Pool) *PushRepo {
	return &PushRepo{db: db}
}

func (r *PushRepo) Save(ctx context.Context, sub *model.PushSubscription) error {
	defer logger.DeferLogDuration("pushRepo.Save", time.Now())()

	_, err := r.db.Exec(ctx, `
		INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, endpoint) DO UPDATE SET p256dh = $3, auth = $4`,
		sub.UserID, sub.Endpoint, sub.P256dh, sub.Auth,
	)
	if err != nil {
		return fmt.Errorf("pushRepo.Save: %w", err)
	}
	return nil
}

func (r *PushRepo) ListByUsers(ctx context.Context, userIDs []string) ([]model.PushSubscription, error) {
	defer logger.DeferLogDuration("pushRepo.ListByUsers", time.Now())()

	if len(userIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT user_id, endpoint, p256dh, auth, created_at
		FROM push_subscriptions WHERE user_id = ANY($1)`,
		userIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("pushRepo.ListByUsers: %w", err)
	}
	defer rows.Close()

	var subs []model.PushSubscription
	for rows.Next() {
		var s model.PushSubscription
		if err := rows.Scan(&s.UserID, &s.Endpoint, &s.P256dh, &s.Auth, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("pushRepo.ListByUsers scan: %w", err)
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// Delete removes a subscription, typically after the push service answered
// 404 or 410 for its endpoint.
func (r *PushRepo) Delete(ctx context.Context, userID, endpoint string) error {
	defer logger.DeferLogDuration("pushRepo.Delete", time.Now())()

	if _, err := r.db.Exec(ctx,
		`DELETE FROM push_subscriptions WHERE user_id = $1 AND endpoint = $2`,
		userID, endpoint); err != nil {
		return fmt.Errorf("pushRepo.Delete: %w", err)
	}
	return nil
}
