// Package push delivers Web Push notifications for messages that arrive
// while the recipient has no open connection.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/chatdesk/internal/logger"
	"github.com/chatdesk/internal/model"
)

// SubscriptionStore is the persistence surface the notifier needs.
type SubscriptionStore interface {
	ListByUsers(ctx context.Context, userIDs []string) ([]model.PushSubscription, error)
	Delete(ctx context.Context, userID, endpoint string) error
}

// Notification is the JSON payload the service worker receives.
type Notification struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	ChatID string `json:"chat_id"`
}

type Notifier struct {
	subs    SubscriptionStore
	pub     string
	priv    string
	subject string
}

func NewNotifier(subs SubscriptionStore, publicKey, privateKey, subject string) *Notifier {
	return &Notifier{subs: subs, pub: publicKey, priv: privateKey, subject: subject}
}

// PublicKey is handed to clients so they can subscribe.
func (n *Notifier) PublicKey() string { return n.pub }

// NotifyUsers pushes a notification to every subscription of the given
// users. Dead endpoints (404/410) are removed; other failures are logged and
// skipped, one bad subscription never blocks the rest.
func (n *Notifier) NotifyUsers(ctx context.Context, userIDs []string, note Notification) {
	defer logger.DeferLogDuration("push.NotifyUsers", time.Now())()

	subs, err := n.subs.ListByUsers(ctx, userIDs)
	if err != nil {
		logger.Errorf("push: list subscriptions: %v", err)
		return
	}
	if len(subs) == 0 {
		return
	}
	payload, err := json.Marshal(note)
	if err != nil {
		logger.Errorf("push: marshal payload: %v", err)
		return
	}

	for _, sub := range subs {
		s := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
		}
		resp, err := webpush.SendNotificationWithContext(ctx, payload, s, &webpush.Options{
			Subscriber:      n.subject,
			VAPIDPublicKey:  n.pub,
			VAPIDPrivateKey: n.priv,
			TTL:             60,
		})
		if err != nil {
			logger.Errorf("push: send to %s: %v", sub.Endpoint, err)
			continue
		}
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			if err := n.subs.Delete(ctx, sub.UserID, sub.Endpoint); err != nil {
				logger.Errorf("push: drop dead subscription: %v", err)
			}
		} else if resp.StatusCode >= 400 {
			logger.Errorf("push: endpoint answered %d", resp.StatusCode)
		}
		resp.Body.Close()
	}
}

// MessagePreview builds the notification body for a new message.
func MessagePreview(m *model.Message, senderName string) Notification {
	body := m.Content
	if body == "" && m.AttachmentType != "" {
		body = fmt.Sprintf("Sent a %s", m.AttachmentType)
	}
	if len(body) > 120 {
		body = body[:117] + "..."
	}
	return Notification{Title: senderName, Body: body, ChatID: m.ChatID}
}
