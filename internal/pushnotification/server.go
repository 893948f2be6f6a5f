package pushnotification

import (
	"context"
	"time"

	"connectrpc.com/connect"
	"github.com/oklog/ulid/v2"

	novelguildv1 "github.com/kazz187/novelguild/api/novelguild/v1"
	"github.com/kazz187/novelguild/api/novelguild/v1/novelguildv1connect"
	"github.com/kazz187/novelguild/internal/config"
	"github.com/kazz187/novelguild/internal/pushsubscription"
	"github.com/kazz187/novelguild/pkg/cerr"
)

var _ novelguildv1connect.PushNotificationServiceHandler = (*Server)(nil)

type Server struct {
	vapidEnv *config.VAPIDEnv
	repo     pushsubscription.Repository
	sender   *Sender
	now      func() time.Time
}

func NewServer(vapidEnv *config.VAPIDEnv, repo pushsubscription.Repository, sender *Sender) *Server {
	return &Server{
		vapidEnv: vapidEnv,
		repo:     repo,
		sender:   sender,
		now:      time.Now,
	}
}

func (s *Server) GetVapidPublicKey(_ context.Context, _ *connect.Request[novelguildv1.GetVapidPublicKeyRequest]) (*connect.Response[novelguildv1.GetVapidPublicKeyResponse], error) {
	if s.vapidEnv.PublicKey == "" {
		return nil, cerr.NewError(cerr.FailedPrecondition, "VAPID keys not configured", nil).ConnectError()
	}
	return connect.NewResponse(&novelguildv1.GetVapidPublicKeyResponse{
		PublicKey: s.vapidEnv.PublicKey,
	}), nil
}

func (s *Server) RegisterPushSubscription(ctx context.Context, req *connect.Request[novelguildv1.RegisterPushSubscriptionRequest]) (*connect.Response[novelguildv1.RegisterPushSubscriptionResponse], error) {
	if req.Msg.Endpoint == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "endpoint is required", nil).ConnectError()
	}
	if req.Msg.P256DhKey == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "p256dh_key is required", nil).ConnectError()
	}
	if req.Msg.AuthKey == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "auth_key is required", nil).ConnectError()
	}

	now := s.now().UTC()
	sub, err := s.repo.FindByEndpoint(ctx, req.Msg.Endpoint)
	switch {
	case err == nil:
		// Re-registering an endpoint rotates its keys.
		sub.UserID = req.Msg.UserId
		sub.P256dhKey = req.Msg.P256DhKey
		sub.AuthKey = req.Msg.AuthKey
		sub.UpdatedAt = now
	case cerr.IsCode(err, cerr.NotFound):
		sub = &pushsubscription.Subscription{
			ID:        ulid.Make().String(),
			UserID:    req.Msg.UserId,
			Endpoint:  req.Msg.Endpoint,
			P256dhKey: req.Msg.P256DhKey,
			AuthKey:   req.Msg.AuthKey,
			CreatedAt: now,
			UpdatedAt: now,
		}
	default:
		return nil, err
	}
	if err := s.repo.Save(ctx, sub); err != nil {
		return nil, err
	}
	return connect.NewResponse(&novelguildv1.RegisterPushSubscriptionResponse{}), nil
}

func (s *Server) UnregisterPushSubscription(ctx context.Context, req *connect.Request[novelguildv1.UnregisterPushSubscriptionRequest]) (*connect.Response[novelguildv1.UnregisterPushSubscriptionResponse], error) {
	if req.Msg.Endpoint == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "endpoint is required", nil).ConnectError()
	}

	if err := s.repo.DeleteByEndpoint(ctx, req.Msg.Endpoint); err != nil {
		return nil, err
	}

	return connect.NewResponse(&novelguildv1.UnregisterPushSubscriptionResponse{}), nil
}

func (s *Server) SendTestNotification(ctx context.Context, req *connect.Request[novelguildv1.SendTestNotificationRequest]) (*connect.Response[novelguildv1.SendTestNotificationResponse], error) {
	n := s.sender.Send(ctx, req.Msg.UserId, &NotificationPayload{
		Title: "NovelGuild 测试",
		Body:  "推送通知已可用",
	})
	return connect.NewResponse(&novelguildv1.SendTestNotificationResponse{
		Delivered: int32(n),
	}), nil
}
