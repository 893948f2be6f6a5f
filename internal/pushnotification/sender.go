package pushnotification

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/kazz187/novelguild/internal/config"
	"github.com/kazz187/novelguild/internal/pushsubscription"
)

const notificationTTL = 86400

type NotificationPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

type sendFunc func(ctx context.Context, message []byte, s *webpush.Subscription, options *webpush.Options) (*http.Response, error)

type Sender struct {
	vapidEnv *config.VAPIDEnv
	repo     pushsubscription.Repository
	send     sendFunc
}

func NewSender(vapidEnv *config.VAPIDEnv, repo pushsubscription.Repository) *Sender {
	return &Sender{
		vapidEnv: vapidEnv,
		repo:     repo,
		send:     webpush.SendNotificationWithContext,
	}
}

func (s *Sender) Configured() bool {
	return s.vapidEnv.PublicKey != "" && s.vapidEnv.PrivateKey != ""
}

// Send delivers payload to every subscription that receives notifications
// for userID and returns how many were accepted by their push service.
func (s *Sender) Send(ctx context.Context, userID string, payload *NotificationPayload) int {
	if !s.Configured() {
		slog.WarnContext(ctx, "push notification: VAPID keys not configured, skipping")
		return 0
	}

	subs, err := s.repo.List(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "push notification: failed to list subscriptions", "error", err)
		return 0
	}

	data, err := json.Marshal(payload)
	if err != nil {
		slog.ErrorContext(ctx, "push notification: failed to marshal payload", "error", err)
		return 0
	}

	delivered := 0
	for _, sub := range subs {
		if !sub.Receives(userID) {
			continue
		}
		if s.sendToSubscription(ctx, sub, data) {
			delivered++
		}
	}
	return delivered
}

func (s *Sender) sendToSubscription(ctx context.Context, sub *pushsubscription.Subscription, data []byte) bool {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}

	resp, err := s.send(ctx, data, wpSub, &webpush.Options{
		VAPIDPublicKey:  s.vapidEnv.PublicKey,
		VAPIDPrivateKey: s.vapidEnv.PrivateKey,
		Subscriber:      s.vapidEnv.Contact,
		TTL:             notificationTTL,
	})
	if err != nil {
		slog.ErrorContext(ctx, "push notification: failed to send", "endpoint", sub.Endpoint, "error", err)
		return false
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone:
		slog.InfoContext(ctx, "push notification: subscription expired, removing", "endpoint", sub.Endpoint)
		if err := s.repo.Delete(ctx, sub.ID); err != nil {
			slog.ErrorContext(ctx, "push notification: failed to delete expired subscription", "id", sub.ID, "error", err)
		}
		return false
	case resp.StatusCode >= 400:
		slog.WarnContext(ctx, "push notification: unexpected status", "endpoint", sub.Endpoint, "status", resp.StatusCode)
		return false
	}
	return true
}
