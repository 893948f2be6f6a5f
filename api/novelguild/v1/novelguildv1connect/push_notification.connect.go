package novelguildv1connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	v1 "github.com/kazz187/novelguild/api/novelguild/v1"
)

const PushNotificationServiceName = "novelguild.v1.PushNotificationService"

const (
	PushNotificationServiceGetVapidPublicKeyProcedure          = "/novelguild.v1.PushNotificationService/GetVapidPublicKey"
	PushNotificationServiceRegisterPushSubscriptionProcedure   = "/novelguild.v1.PushNotificationService/RegisterPushSubscription"
	PushNotificationServiceUnregisterPushSubscriptionProcedure = "/novelguild.v1.PushNotificationService/UnregisterPushSubscription"
	PushNotificationServiceSendTestNotificationProcedure       = "/novelguild.v1.PushNotificationService/SendTestNotification"
)

type PushNotificationServiceClient interface {
	GetVapidPublicKey(context.Context, *connect.Request[v1.GetVapidPublicKeyRequest]) (*connect.Response[v1.GetVapidPublicKeyResponse], error)
	RegisterPushSubscription(context.Context, *connect.Request[v1.RegisterPushSubscriptionRequest]) (*connect.Response[v1.RegisterPushSubscriptionResponse], error)
	UnregisterPushSubscription(context.Context, *connect.Request[v1.UnregisterPushSubscriptionRequest]) (*connect.Response[v1.UnregisterPushSubscriptionResponse], error)
	SendTestNotification(context.Context, *connect.Request[v1.SendTestNotificationRequest]) (*connect.Response[v1.SendTestNotificationResponse], error)
}

func NewPushNotificationServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) PushNotificationServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{WithJSON()}, opts...)
	return &pushNotificationServiceClient{
		getVapidPublicKey:          connect.NewClient[v1.GetVapidPublicKeyRequest, v1.GetVapidPublicKeyResponse](httpClient, baseURL+PushNotificationServiceGetVapidPublicKeyProcedure, opts...),
		registerPushSubscription:   connect.NewClient[v1.RegisterPushSubscriptionRequest, v1.RegisterPushSubscriptionResponse](httpClient, baseURL+PushNotificationServiceRegisterPushSubscriptionProcedure, opts...),
		unregisterPushSubscription: connect.NewClient[v1.UnregisterPushSubscriptionRequest, v1.UnregisterPushSubscriptionResponse](httpClient, baseURL+PushNotificationServiceUnregisterPushSubscriptionProcedure, opts...),
		sendTestNotification:       connect.NewClient[v1.SendTestNotificationRequest, v1.SendTestNotificationResponse](httpClient, baseURL+PushNotificationServiceSendTestNotificationProcedure, opts...),
	}
}

type pushNotificationServiceClient struct {
	getVapidPublicKey          *connect.Client[v1.GetVapidPublicKeyRequest, v1.GetVapidPublicKeyResponse]
	registerPushSubscription   *connect.Client[v1.RegisterPushSubscriptionRequest, v1.RegisterPushSubscriptionResponse]
	unregisterPushSubscription *connect.Client[v1.UnregisterPushSubscriptionRequest, v1.UnregisterPushSubscriptionResponse]
	sendTestNotification       *connect.Client[v1.SendTestNotificationRequest, v1.SendTestNotificationResponse]
}

func (c *pushNotificationServiceClient) GetVapidPublicKey(ctx context.Context, req *connect.Request[v1.GetVapidPublicKeyRequest]) (*connect.Response[v1.GetVapidPublicKeyResponse], error) {
	return c.getVapidPublicKey.CallUnary(ctx, req)
}

func (c *pushNotificationServiceClient) RegisterPushSubscription(ctx context.Context, req *connect.Request[v1.RegisterPushSubscriptionRequest]) (*connect.Response[v1.RegisterPushSubscriptionResponse], error) {
	return c.registerPushSubscription.CallUnary(ctx, req)
}

func (c *pushNotificationServiceClient) UnregisterPushSubscription(ctx context.Context, req *connect.Request[v1.UnregisterPushSubscriptionRequest]) (*connect.Response[v1.UnregisterPushSubscriptionResponse], error) {
	return c.unregisterPushSubscription.CallUnary(ctx, req)
}

func (c *pushNotificationServiceClient) SendTestNotification(ctx context.Context, req *connect.Request[v1.SendTestNotificationRequest]) (*connect.Response[v1.SendTestNotificationResponse], error) {
	return c.sendTestNotification.CallUnary(ctx, req)
}

type PushNotificationServiceHandler interface {
	GetVapidPublicKey(context.Context, *connect.Request[v1.GetVapidPublicKeyRequest]) (*connect.Response[v1.GetVapidPublicKeyResponse], error)
	RegisterPushSubscription(context.Context, *connect.Request[v1.RegisterPushSubscriptionRequest]) (*connect.Response[v1.RegisterPushSubscriptionResponse], error)
	UnregisterPushSubscription(context.Context, *connect.Request[v1.UnregisterPushSubscriptionRequest]) (*connect.Response[v1.UnregisterPushSubscriptionResponse], error)
	SendTestNotification(context.Context, *connect.Request[v1.SendTestNotificationRequest]) (*connect.Response[v1.SendTestNotificationResponse], error)
}

func NewPushNotificationServiceHandler(svc PushNotificationServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSON()}, opts...)
	getVapidPublicKey := connect.NewUnaryHandler(PushNotificationServiceGetVapidPublicKeyProcedure, svc.GetVapidPublicKey, opts...)
	registerPushSubscription := connect.NewUnaryHandler(PushNotificationServiceRegisterPushSubscriptionProcedure, svc.RegisterPushSubscription, opts...)
	unregisterPushSubscription := connect.NewUnaryHandler(PushNotificationServiceUnregisterPushSubscriptionProcedure, svc.UnregisterPushSubscription, opts...)
	sendTestNotification := connect.NewUnaryHandler(PushNotificationServiceSendTestNotificationProcedure, svc.SendTestNotification, opts...)
	return "/" + PushNotificationServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case PushNotificationServiceGetVapidPublicKeyProcedure:
			getVapidPublicKey.ServeHTTP(w, r)
		case PushNotificationServiceRegisterPushSubscriptionProcedure:
			registerPushSubscription.ServeHTTP(w, r)
		case PushNotificationServiceUnregisterPushSubscriptionProcedure:
			unregisterPushSubscription.ServeHTTP(w, r)
		case PushNotificationServiceSendTestNotificationProcedure:
			sendTestNotification.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}
